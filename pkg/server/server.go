package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lkarlslund/chatsettings/pkg/builtin"
	"github.com/lkarlslund/chatsettings/pkg/catalog"
	"github.com/lkarlslund/chatsettings/pkg/config"
	"github.com/lkarlslund/chatsettings/pkg/configapi"
	"github.com/lkarlslund/chatsettings/pkg/upload"
	"golang.org/x/crypto/acme/autocert"
	"golang.org/x/sync/errgroup"
)

var nowUTC = func() time.Time { return time.Now().UTC() }

type Options struct {
	ConfigPath string
	// Env overlays environment overrides on every (re)loaded config.
	Env    func(string) (string, bool)
	Logger *log.Logger
}

// Server is the configuration service: provider catalog, builtin models,
// file upload proxy and the catalog event feed.
type Server struct {
	store      *config.ServerConfigStore
	env        func(string) (string, bool)
	logger     *log.Logger
	builtin    *builtin.Service
	upload     *upload.Handler
	events     *Hub
	handler    http.Handler
	httpServer *http.Server
}

func New(cfg *config.ServerConfig, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		store:   config.NewServerConfigStore(opts.ConfigPath, cfg),
		env:     opts.Env,
		logger:  logger,
		builtin: builtin.NewService(logger.With("component", "builtin")),
		events:  NewHub(),
	}
	s.upload = upload.NewHandler(func() config.UploadConfig {
		return s.store.Snapshot().Upload
	}, logger.With("component", "upload"))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/models", func(m chi.Router) {
			m.Get("/providers", s.handleProviders)
			m.Get("/providers/{provider}/models", s.handleProviderModels)
			m.Get("/events", s.events.ServeHTTP)
		})
		api.Route("/builtin-models", func(b chi.Router) {
			b.Get("/config", s.handleBuiltinConfig)
			b.Get("/models", s.handleBuiltinModels)
			b.Post("/validate", s.handleBuiltinValidate)
		})
		api.Method(http.MethodPost, "/file/process", s.upload)
	})
	s.handler = r

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Store() *config.ServerConfigStore {
	return s.store
}

func (s *Server) Events() *Hub {
	return s.events
}

// Run serves until ctx is cancelled, watching the config file for changes
// when a path is set.
func (s *Server) Run(ctx context.Context) error {
	cfg := s.store.Snapshot()
	g, gctx := errgroup.WithContext(ctx)

	if s.store.Path() != "" {
		g.Go(func() error { return s.Watch(gctx) })
	}

	servers := []*http.Server{}
	switch {
	case cfg.TLS.Enabled && cfg.TLS.Mode == config.TLSModeLetsEncrypt:
		mgr := &autocert.Manager{
			Cache:      autocert.DirCache(cfg.TLS.CacheDir),
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(cfg.TLS.Domain),
			Email:      cfg.TLS.Email,
		}
		httpsSrv := s.tlsServer(cfg.TLS.ListenAddr)
		httpsSrv.TLSConfig = &tls.Config{GetCertificate: mgr.GetCertificate, MinVersion: tls.VersionTLS12}
		challenge := &http.Server{
			Addr:              ":80",
			Handler:           mgr.HTTPHandler(http.HandlerFunc(redirectHTTPS)),
			ReadHeaderTimeout: 10 * time.Second,
		}
		servers = append(servers, httpsSrv, challenge)
		g.Go(func() error {
			s.logger.Info("http challenge/redirect listening", "addr", challenge.Addr)
			return serve(challenge.ListenAndServe())
		})
		g.Go(func() error {
			s.logger.Info("https listening", "addr", httpsSrv.Addr, "domain", cfg.TLS.Domain)
			return serve(httpsSrv.ListenAndServeTLS("", ""))
		})
	case cfg.TLS.Enabled:
		httpsSrv := s.tlsServer(cfg.TLS.ListenAddr)
		httpsSrv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		servers = append(servers, httpsSrv)
		g.Go(func() error {
			s.logger.Info("https listening", "addr", httpsSrv.Addr)
			return serve(httpsSrv.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile))
		})
	default:
		servers = append(servers, s.httpServer)
		g.Go(func() error {
			s.logger.Info("config service listening", "addr", s.httpServer.Addr)
			return serve(s.httpServer.ListenAndServe())
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		s.events.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, srv := range servers {
			_ = srv.Shutdown(shutdownCtx)
		}
		return nil
	})
	return g.Wait()
}

func (s *Server) tlsServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: s.httpServer.ReadHeaderTimeout,
		ReadTimeout:       s.httpServer.ReadTimeout,
		IdleTimeout:       s.httpServer.IdleTimeout,
	}
}

func serve(err error) error {
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

func redirectHTTPS(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "https://"+r.Host+r.RequestURI, http.StatusMovedPermanently)
}

func (s *Server) handleProviders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, catalog.ProviderMap(s.store.Snapshot().Providers))
}

func (s *Server) handleProviderModels(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "provider")
	models, ok := catalog.ModelMap(s.store.Snapshot().Providers, id)
	if !ok {
		writeDetail(w, http.StatusNotFound, fmt.Sprintf("provider %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, models)
}

func (s *Server) handleBuiltinConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.store.Snapshot().Builtin
	if err := s.builtin.VerifyAccessKey(cfg, r.Header.Get(configapi.AccessKeyHeader)); err != nil {
		writeDetail(w, builtin.StatusCode(err), detail(err))
		return
	}
	writeJSON(w, http.StatusOK, configapi.BuiltinConfig{
		Enabled:  cfg.Enabled,
		BaseURL:  cfg.BaseURL,
		Provider: catalog.BuiltinProviderID,
	})
}

func (s *Server) handleBuiltinModels(w http.ResponseWriter, r *http.Request) {
	cfg := s.store.Snapshot().Builtin
	if err := s.builtin.VerifyAccessKey(cfg, r.Header.Get(configapi.AccessKeyHeader)); err != nil {
		writeDetail(w, builtin.StatusCode(err), detail(err))
		return
	}
	b, err := s.builtin.Models(r.Context(), cfg)
	if err != nil {
		writeDetail(w, builtin.StatusCode(err), detail(err))
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleBuiltinValidate always answers 200; the verdict is in the body.
func (s *Server) handleBuiltinValidate(w http.ResponseWriter, r *http.Request) {
	cfg := s.store.Snapshot().Builtin
	if err := s.builtin.VerifyAccessKey(cfg, r.Header.Get(configapi.AccessKeyHeader)); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false, "message": detail(err)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "message": "access key is valid"})
}

func detail(err error) string {
	var be *builtin.Error
	if errors.As(err, &be) {
		return be.Detail
	}
	return err.Error()
}

func writeDetail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
