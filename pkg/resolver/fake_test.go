package resolver

import (
	"context"
	"io"
	"strings"
	"sync"

	log "github.com/charmbracelet/log"
	"github.com/lkarlslund/chatsettings/pkg/catalog"
	"github.com/lkarlslund/chatsettings/pkg/settings"
)

type fakeAPI struct {
	mu           sync.Mutex
	providers    map[string]catalog.ProviderConfig
	providersErr error
	models       map[string]map[string]catalog.ModelConfig
	modelsErr    error
	builtin      catalog.BuiltinBundle
	builtinErr   error
	gates        map[string]chan struct{}
	started      chan string
	calls        []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		providers: map[string]catalog.ProviderConfig{
			"openai":    {ID: "openai", Name: "OpenAI"},
			"anthropic": {ID: "anthropic", Name: "Anthropic"},
		},
		models: map[string]map[string]catalog.ModelConfig{
			"openai": {
				"gpt-5":      {ID: "gpt-5", Name: "GPT-5", ContextLength: 400000},
				"gpt-5-mini": {ID: "gpt-5-mini", Name: "GPT-5 mini"},
			},
			"anthropic": {
				"claude-sonnet-4-5": {ID: "claude-sonnet-4-5", Name: "Claude Sonnet 4.5"},
			},
		},
		builtin: catalog.BuiltinBundle{
			Provider: catalog.BuiltinProvider(),
			Models: map[string]catalog.ModelConfig{
				"gpt-4o-mini": {ID: "gpt-4o-mini", Name: "gpt-4o-mini"},
			},
		},
		gates:   map[string]chan struct{}{},
		started: make(chan string, 16),
	}
}

// wait blocks on the gate registered under name, if any.
func (f *fakeAPI) wait(name string) {
	f.mu.Lock()
	gate := f.gates[name]
	f.mu.Unlock()
	if gate == nil {
		return
	}
	f.started <- name
	<-gate
}

func (f *fakeAPI) gate(name string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[name] = ch
	return ch
}

func (f *fakeAPI) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) GetProviders(context.Context) (map[string]catalog.ProviderConfig, error) {
	f.record("providers")
	f.wait("providers")
	if f.providersErr != nil {
		return nil, f.providersErr
	}
	return catalog.CloneProviders(f.providers), nil
}

func (f *fakeAPI) GetProviderModels(_ context.Context, providerID string) (map[string]catalog.ModelConfig, error) {
	f.record("models:" + providerID)
	f.wait(providerID)
	if f.modelsErr != nil {
		return nil, f.modelsErr
	}
	return catalog.CloneModels(f.models[providerID]), nil
}

func (f *fakeAPI) GetBuiltinModels(_ context.Context, accessKey string) (catalog.BuiltinBundle, error) {
	f.record("builtin:" + accessKey)
	f.wait("builtin")
	if f.builtinErr != nil {
		return catalog.BuiltinBundle{}, f.builtinErr
	}
	return catalog.BuiltinBundle{Provider: f.builtin.Provider, Models: catalog.CloneModels(f.builtin.Models)}, nil
}

func newTestResolver(s settings.Settings, api *fakeAPI, opts ...Option) (*Resolver, *settings.Store) {
	store := settings.NewMemoryStore(s)
	opts = append([]Option{WithLogger(log.New(io.Discard))}, opts...)
	return New(store, api, opts...), store
}

func ids[V any](m map[string]V) string {
	return strings.Join(catalog.SortedIDs(m), ",")
}

func contains(calls []string, call string) bool {
	for _, c := range calls {
		if c == call {
			return true
		}
	}
	return false
}
