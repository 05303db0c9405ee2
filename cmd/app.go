package cmd

import (
	"context"
	"fmt"
	"time"

	log "github.com/charmbracelet/log"
	"github.com/lkarlslund/chatsettings/pkg/config"
	"github.com/lkarlslund/chatsettings/pkg/configapi"
	"github.com/lkarlslund/chatsettings/pkg/credentials"
	"github.com/lkarlslund/chatsettings/pkg/logutil"
	"github.com/lkarlslund/chatsettings/pkg/resolver"
	"github.com/lkarlslund/chatsettings/pkg/settings"
)

// app wires the client side components for one command invocation.
type app struct {
	cfg      *config.ClientConfig
	store    *settings.Store
	api      *configapi.Client
	creds    *credentials.Controller
	resolver *resolver.Resolver
	logger   *log.Logger
}

func openApp(opts *rootOptions) (*app, error) {
	cfg, err := config.LoadOrCreateClientConfig(opts.clientConfig)
	if err != nil {
		return nil, fmt.Errorf("load client config: %w", err)
	}
	path := cfg.SettingsPath
	if opts.settingsPath != "" {
		path = opts.settingsPath
	}
	store, err := settings.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open settings: %w", err)
	}
	logger := logutil.Component("client")
	api := configapi.NewClient(cfg.ServerURL, time.Duration(cfg.TimeoutSeconds)*time.Second)
	return &app{
		cfg:      cfg,
		store:    store,
		api:      api,
		creds:    credentials.NewController(store, api, logger),
		resolver: resolver.New(store, api, resolver.WithLogger(logger)),
		logger:   logger,
	}, nil
}

// start runs the initial resolution and keeps the resolver subscribed until
// the returned func is called.
func (a *app) start(ctx context.Context) func() {
	return a.resolver.Start(ctx)
}
