package resolver

import (
	"context"
	"errors"
	"sync"

	log "github.com/charmbracelet/log"
	"github.com/lkarlslund/chatsettings/pkg/catalog"
	"github.com/lkarlslund/chatsettings/pkg/configapi"
	"github.com/lkarlslund/chatsettings/pkg/settings"
)

// Messages shown to the user when a resolution fails.
const (
	MsgMissingAccessKey = "configure a builtin model access key in the API settings first"
	MsgBuiltinRejected  = "failed to load builtin models, check that the access key is correct"
	MsgBuiltinFailed    = "failed to load builtin models"
	MsgProvidersFailed  = "failed to load providers"
	MsgModelsFailed     = "failed to load models"

	HintLoadingModels = "loading models..."
)

var (
	ErrProviderLocked  = errors.New("provider is fixed to builtin in builtin mode")
	ErrUnknownProvider = errors.New("provider is not in the loaded provider list")
	ErrUnknownModel    = errors.New("model is not in the loaded model list")
	ErrBusy            = errors.New("a refresh is already running")
)

// Accessor is the part of the configuration service the resolver needs.
type Accessor interface {
	GetProviders(ctx context.Context) (map[string]catalog.ProviderConfig, error)
	GetProviderModels(ctx context.Context, providerID string) (map[string]catalog.ModelConfig, error)
	GetBuiltinModels(ctx context.Context, accessKey string) (catalog.BuiltinBundle, error)
}

type State struct {
	Providers map[string]catalog.ProviderConfig
	Models    map[string]catalog.ModelConfig
	Loading   bool
	Error     string
}

type Option func(*Resolver)

// WithStaleGuard controls whether responses that were overtaken by a newer
// request for the same map are dropped. It is on by default.
func WithStaleGuard(on bool) Option {
	return func(r *Resolver) { r.staleGuard = on }
}

func WithLogger(l *log.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// Resolver keeps the provider and model lists in line with the credential
// mode and the selected provider.
type Resolver struct {
	store      *settings.Store
	api        Accessor
	logger     *log.Logger
	staleGuard bool

	mu          sync.Mutex
	ctx         context.Context
	providers   map[string]catalog.ProviderConfig
	models      map[string]catalog.ModelConfig
	loading     int
	errMsg      string
	providerGen uint64
	modelGen    uint64
}

func New(store *settings.Store, api Accessor, opts ...Option) *Resolver {
	r := &Resolver{
		store:      store,
		api:        api,
		logger:     log.Default(),
		staleGuard: true,
		ctx:        context.Background(),
		providers:  map[string]catalog.ProviderConfig{},
		models:     map[string]catalog.ModelConfig{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start subscribes to settings changes and runs the initial resolution.
// Reactions to later changes use ctx. The returned func unsubscribes.
func (r *Resolver) Start(ctx context.Context) (stop func()) {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()
	stop = r.store.Subscribe(r.onChange)
	s := r.store.Snapshot()
	r.resolveSource(ctx, s)
	if s.APIKeyType == settings.APIKeyTypeCustom && s.ChatProvider != "" {
		r.resolveModels(ctx, r.store.Snapshot())
	}
	return stop
}

func (r *Resolver) onChange(prev, next settings.Settings) {
	r.mu.Lock()
	ctx := r.ctx
	r.mu.Unlock()
	if prev.APIKeyType != next.APIKeyType || prev.BuiltinModelAccessKey != next.BuiltinModelAccessKey {
		r.resolveSource(ctx, next)
	}
	custom := next.APIKeyType == settings.APIKeyTypeCustom
	wasCustom := prev.APIKeyType == settings.APIKeyTypeCustom
	if custom && next.ChatProvider != "" && (prev.ChatProvider != next.ChatProvider || !wasCustom) {
		// the builtin reaction above may have moved the selection
		r.resolveModels(ctx, r.store.Snapshot())
	}
}

// Refresh re-runs the resolution for the current settings. It returns
// ErrBusy while another loading resolution is in flight.
func (r *Resolver) Refresh(ctx context.Context) error {
	r.mu.Lock()
	if r.loading > 0 {
		r.mu.Unlock()
		return ErrBusy
	}
	r.loading++
	r.mu.Unlock()
	defer r.endLoading()

	s := r.store.Snapshot()
	r.resolveSource(ctx, s)
	s = r.store.Snapshot()
	if s.APIKeyType == settings.APIKeyTypeCustom && s.ChatProvider != "" {
		r.resolveModels(ctx, s)
	}
	return nil
}

// SelectProvider picks a custom provider and clears the model. The model list
// is fetched by the resulting settings change.
func (r *Resolver) SelectProvider(id string) error {
	s := r.store.Snapshot()
	if s.IsBuiltin() {
		return ErrProviderLocked
	}
	if id != "" {
		r.mu.Lock()
		_, ok := r.providers[id]
		r.mu.Unlock()
		if !ok {
			return ErrUnknownProvider
		}
	}
	return r.store.Update(func(s *settings.Settings) error {
		s.ChatProvider = id
		s.ChatModel = ""
		return nil
	})
}

// SelectModel picks a model from the loaded list; empty clears the choice.
func (r *Resolver) SelectModel(id string) error {
	if id != "" {
		r.mu.Lock()
		_, ok := r.models[id]
		r.mu.Unlock()
		if !ok {
			return ErrUnknownModel
		}
	}
	return r.store.Update(func(s *settings.Settings) error {
		s.ChatModel = id
		return nil
	})
}

func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return State{
		Providers: catalog.CloneProviders(r.providers),
		Models:    catalog.CloneModels(r.models),
		Loading:   r.loading > 0,
		Error:     r.errMsg,
	}
}

// SelectedModel returns the details of the selected model if it is loaded.
func (r *Resolver) SelectedModel() (catalog.ModelConfig, bool) {
	id := r.store.Snapshot().ChatModel
	if id == "" {
		return catalog.ModelConfig{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.models[id]
	return m, ok
}

// resolveSource loads the provider list for the credential mode in s.
func (r *Resolver) resolveSource(ctx context.Context, s settings.Settings) {
	if s.IsBuiltin() {
		r.resolveBuiltin(ctx, s)
		return
	}
	r.resolveProviders(ctx)
}

func (r *Resolver) resolveBuiltin(ctx context.Context, s settings.Settings) {
	r.mu.Lock()
	r.providerGen++
	r.modelGen++
	pg, mg := r.providerGen, r.modelGen
	if s.BuiltinModelAccessKey == "" {
		r.providers = map[string]catalog.ProviderConfig{}
		r.models = map[string]catalog.ModelConfig{}
		r.errMsg = MsgMissingAccessKey
		r.mu.Unlock()
		return
	}
	r.loading++
	r.errMsg = ""
	r.mu.Unlock()
	defer r.endLoading()

	bundle, err := r.api.GetBuiltinModels(ctx, s.BuiltinModelAccessKey)

	r.mu.Lock()
	if r.stale(pg, r.providerGen) || r.stale(mg, r.modelGen) {
		r.mu.Unlock()
		r.logger.Debug("dropping stale builtin models response")
		return
	}
	if err != nil {
		r.providers = map[string]catalog.ProviderConfig{}
		r.models = map[string]catalog.ModelConfig{}
		if errors.Is(err, configapi.ErrAccessKeyRejected) {
			r.errMsg = MsgBuiltinRejected
		} else {
			r.errMsg = MsgBuiltinFailed
		}
		r.mu.Unlock()
		r.logger.Warn("load builtin models", "err", err)
		return
	}
	r.providers = map[string]catalog.ProviderConfig{catalog.BuiltinProviderID: bundle.Provider}
	r.models = catalog.CloneModels(bundle.Models)
	models := r.models
	r.mu.Unlock()

	cur := r.store.Snapshot()
	_, known := models[cur.ChatModel]
	if cur.ChatProvider == catalog.BuiltinProviderID && (cur.ChatModel == "" || known) {
		return
	}
	if err := r.store.Update(func(s *settings.Settings) error {
		if !s.IsBuiltin() {
			return nil
		}
		if s.ChatProvider != catalog.BuiltinProviderID {
			s.ChatProvider = catalog.BuiltinProviderID
			s.ChatModel = ""
			return nil
		}
		if _, ok := models[s.ChatModel]; !ok {
			s.ChatModel = ""
		}
		return nil
	}); err != nil {
		r.logger.Warn("select builtin provider", "err", err)
	}
}

func (r *Resolver) resolveProviders(ctx context.Context) {
	r.mu.Lock()
	r.providerGen++
	gen := r.providerGen
	r.loading++
	r.errMsg = ""
	r.mu.Unlock()
	defer r.endLoading()

	providers, err := r.api.GetProviders(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stale(gen, r.providerGen) {
		r.logger.Debug("dropping stale providers response")
		return
	}
	if err != nil {
		r.providers = map[string]catalog.ProviderConfig{}
		r.errMsg = MsgProvidersFailed
		r.logger.Warn("load providers", "err", err)
		return
	}
	delete(providers, catalog.BuiltinProviderID)
	r.providers = providers
}

// resolveModels replaces the model list with the models of s.ChatProvider.
func (r *Resolver) resolveModels(ctx context.Context, s settings.Settings) {
	provider := s.ChatProvider
	r.mu.Lock()
	r.modelGen++
	gen := r.modelGen
	if provider == catalog.BuiltinProviderID {
		r.models = map[string]catalog.ModelConfig{}
		r.mu.Unlock()
		// builtin is not a custom provider; drop the selection left over
		// from builtin mode
		err := r.store.Update(func(s *settings.Settings) error {
			if !s.IsBuiltin() && s.ChatProvider == catalog.BuiltinProviderID {
				s.ChatProvider = ""
				s.ChatModel = ""
			}
			return nil
		})
		if err != nil {
			r.logger.Warn("clear builtin selection", "err", err)
		}
		return
	}
	if r.errMsg == MsgModelsFailed {
		r.errMsg = ""
	}
	r.mu.Unlock()

	models, err := r.api.GetProviderModels(ctx, provider)

	cur := r.store.Snapshot()
	r.mu.Lock()
	if r.stale(gen, r.modelGen) || (r.staleGuard && (cur.ChatProvider != provider || cur.IsBuiltin())) {
		r.mu.Unlock()
		r.logger.Debug("dropping stale models response", "provider", provider)
		return
	}
	if err != nil {
		r.models = map[string]catalog.ModelConfig{}
		r.errMsg = MsgModelsFailed
		r.mu.Unlock()
		r.logger.Warn("load models", "provider", provider, "err", err)
		return
	}
	r.models = models
	r.mu.Unlock()

	if cur.ChatModel == "" {
		return
	}
	if _, ok := models[cur.ChatModel]; ok {
		return
	}
	if err := r.store.Update(func(s *settings.Settings) error {
		if s.ChatProvider != provider {
			return nil
		}
		if _, ok := models[s.ChatModel]; !ok {
			s.ChatModel = ""
		}
		return nil
	}); err != nil {
		r.logger.Warn("clear unknown model", "err", err)
	}
}

func (r *Resolver) stale(gen, latest uint64) bool {
	return r.staleGuard && gen != latest
}

func (r *Resolver) endLoading() {
	r.mu.Lock()
	r.loading--
	r.mu.Unlock()
}
