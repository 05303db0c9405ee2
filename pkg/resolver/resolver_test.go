package resolver

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/lkarlslund/chatsettings/pkg/catalog"
	"github.com/lkarlslund/chatsettings/pkg/configapi"
	"github.com/lkarlslund/chatsettings/pkg/settings"
)

func custom(provider, model string) settings.Settings {
	return settings.Settings{APIKeyType: settings.APIKeyTypeCustom, ChatProvider: provider, ChatModel: model}
}

func builtin(key, provider, model string) settings.Settings {
	return settings.Settings{
		APIKeyType:            settings.APIKeyTypeBuiltin,
		BuiltinModelAccessKey: key,
		ChatProvider:          provider,
		ChatModel:             model,
	}
}

func waitStarted(t *testing.T, api *fakeAPI, want string) {
	t.Helper()
	select {
	case got := <-api.started:
		if got != want {
			t.Fatalf("expected %q to block first, got %q", want, got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func TestBuiltinWithoutAccessKey(t *testing.T) {
	api := newFakeAPI()
	r, _ := newTestResolver(builtin("", "", ""), api)
	defer r.Start(context.Background())()

	st := r.State()
	if len(st.Providers) != 0 || len(st.Models) != 0 {
		t.Fatalf("expected empty maps, got %v / %v", st.Providers, st.Models)
	}
	if st.Error != MsgMissingAccessKey {
		t.Fatalf("error = %q", st.Error)
	}
	if calls := api.Calls(); len(calls) != 0 {
		t.Fatalf("expected no requests, got %v", calls)
	}
}

func TestBuiltinKeySelectsBuiltinProvider(t *testing.T) {
	api := newFakeAPI()
	r, store := newTestResolver(builtin("key-1", "openai", "gpt-5"), api)
	defer r.Start(context.Background())()

	st := r.State()
	if got := ids(st.Providers); got != "builtin" {
		t.Fatalf("providers = %q", got)
	}
	if got := ids(st.Models); got != "gpt-4o-mini" {
		t.Fatalf("models = %q", got)
	}
	s := store.Snapshot()
	if s.ChatProvider != "builtin" || s.ChatModel != "" {
		t.Fatalf("expected builtin provider with empty model, got %+v", s)
	}
	if st.Error != "" || st.Loading {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestSwitchToBuiltinMode(t *testing.T) {
	api := newFakeAPI()
	r, store := newTestResolver(custom("openai", "gpt-5"), api)
	defer r.Start(context.Background())()

	if err := store.Update(func(s *settings.Settings) error {
		s.APIKeyType = settings.APIKeyTypeBuiltin
		s.BuiltinModelAccessKey = "key-1"
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	s := store.Snapshot()
	if s.ChatProvider != "builtin" || s.ChatModel != "" {
		t.Fatalf("expected builtin selection, got %+v", s)
	}
	if got := ids(r.State().Providers); got != "builtin" {
		t.Fatalf("providers = %q", got)
	}
	if contains(api.Calls(), "models:builtin") {
		t.Fatalf("builtin models must not be fetched as a custom provider: %v", api.Calls())
	}
	if err := r.SelectModel("gpt-4o-mini"); err != nil {
		t.Fatalf("select builtin model: %v", err)
	}
	if m, ok := r.SelectedModel(); !ok || m.ID != "gpt-4o-mini" {
		t.Fatalf("selected model = %+v, %v", m, ok)
	}
}

func TestBuiltinKeepsKnownModel(t *testing.T) {
	api := newFakeAPI()
	r, store := newTestResolver(builtin("key-1", "builtin", "gpt-4o-mini"), api)
	defer r.Start(context.Background())()
	if got := store.Snapshot().ChatModel; got != "gpt-4o-mini" {
		t.Fatalf("known builtin model must be kept, got %q", got)
	}

	api.builtin.Models = map[string]catalog.ModelConfig{"other": {ID: "other"}}
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := store.Snapshot().ChatModel; got != "" {
		t.Fatalf("model missing from the new set must be cleared, got %q", got)
	}
}

func TestBuiltinFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "rejected", err: configapi.ErrAccessKeyRejected, want: MsgBuiltinRejected},
		{name: "transport", err: errors.New("connection refused"), want: MsgBuiltinFailed},
		{name: "server error", err: fmt.Errorf("get builtin models: %w", &configapi.HTTPError{StatusCode: 502}), want: MsgBuiltinFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			api := newFakeAPI()
			api.builtinErr = tc.err
			r, store := newTestResolver(builtin("key-1", "openai", ""), api)
			defer r.Start(context.Background())()
			st := r.State()
			if st.Error != tc.want {
				t.Fatalf("error = %q, want %q", st.Error, tc.want)
			}
			if len(st.Providers) != 0 || len(st.Models) != 0 || st.Loading {
				t.Fatalf("unexpected state %+v", st)
			}
			if store.Snapshot().ChatProvider != "openai" {
				t.Fatal("failed load must not touch the selection")
			}
		})
	}
}

func TestCustomProviderChangeReplacesModels(t *testing.T) {
	api := newFakeAPI()
	r, store := newTestResolver(custom("openai", ""), api)
	defer r.Start(context.Background())()

	if got := ids(r.State().Providers); got != "anthropic,openai" {
		t.Fatalf("providers = %q", got)
	}
	if err := r.SelectModel("gpt-5"); err != nil {
		t.Fatal(err)
	}
	if err := r.SelectProvider("anthropic"); err != nil {
		t.Fatal(err)
	}
	s := store.Snapshot()
	if s.ChatProvider != "anthropic" || s.ChatModel != "" {
		t.Fatalf("unexpected settings %+v", s)
	}
	if got := ids(r.State().Models); got != "claude-sonnet-4-5" {
		t.Fatalf("models must be replaced, got %q", got)
	}
}

func TestCustomModelClearedWhenMissing(t *testing.T) {
	api := newFakeAPI()
	r, store := newTestResolver(custom("openai", "gpt-3"), api)
	defer r.Start(context.Background())()
	if got := store.Snapshot().ChatModel; got != "" {
		t.Fatalf("unknown model must be cleared after load, got %q", got)
	}

	r2, store2 := newTestResolver(custom("openai", "gpt-5"), newFakeAPI())
	defer r2.Start(context.Background())()
	if got := store2.Snapshot().ChatModel; got != "gpt-5" {
		t.Fatalf("known model must be kept, got %q", got)
	}
}

func TestCustomFailures(t *testing.T) {
	api := newFakeAPI()
	api.providersErr = errors.New("boom")
	r, _ := newTestResolver(custom("", ""), api)
	defer r.Start(context.Background())()
	st := r.State()
	if st.Error != MsgProvidersFailed || len(st.Providers) != 0 {
		t.Fatalf("unexpected state %+v", st)
	}

	api = newFakeAPI()
	api.modelsErr = errors.New("boom")
	r, _ = newTestResolver(custom("openai", ""), api)
	defer r.Start(context.Background())()
	st = r.State()
	if st.Error != MsgModelsFailed || len(st.Models) != 0 {
		t.Fatalf("unexpected state %+v", st)
	}
	if len(st.Providers) != 2 {
		t.Fatalf("providers must survive a model failure, got %v", st.Providers)
	}
}

func TestRefreshIsIdempotent(t *testing.T) {
	for _, s := range []settings.Settings{custom("openai", "gpt-5"), builtin("key-1", "builtin", "")} {
		api := newFakeAPI()
		r, store := newTestResolver(s, api)
		stop := r.Start(context.Background())
		if err := r.Refresh(context.Background()); err != nil {
			t.Fatal(err)
		}
		first, firstSettings := r.State(), store.Snapshot()
		if err := r.Refresh(context.Background()); err != nil {
			t.Fatal(err)
		}
		second, secondSettings := r.State(), store.Snapshot()
		if !reflect.DeepEqual(first, second) || !firstSettings.Equal(secondSettings) {
			t.Fatalf("refresh changed state: %+v vs %+v", first, second)
		}
		stop()
	}
}

func TestRefreshBusyWhileLoading(t *testing.T) {
	api := newFakeAPI()
	r, _ := newTestResolver(builtin("key-1", "builtin", ""), api)
	defer r.Start(context.Background())()

	gate := api.gate("builtin")
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := r.Refresh(context.Background()); err != nil {
			t.Errorf("refresh: %v", err)
		}
	}()
	waitStarted(t, api, "builtin")
	if !r.State().Loading {
		t.Fatal("expected loading while builtin models are fetched")
	}
	if err := r.Refresh(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	close(gate)
	wg.Wait()
	if r.State().Loading {
		t.Fatal("loading flag must be cleared")
	}
}

func TestBothReactionsRunInOrder(t *testing.T) {
	api := newFakeAPI()
	r, store := newTestResolver(builtin("key-1", "builtin", ""), api)
	defer r.Start(context.Background())()

	before := len(api.Calls())
	if err := store.Update(func(s *settings.Settings) error {
		s.APIKeyType = settings.APIKeyTypeCustom
		s.ChatProvider = "openai"
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	got := api.Calls()[before:]
	if !reflect.DeepEqual(got, []string{"providers", "models:openai"}) {
		t.Fatalf("calls = %v", got)
	}
}

func TestBuiltinIDInCustomModeSkipsFetch(t *testing.T) {
	api := newFakeAPI()
	r, store := newTestResolver(builtin("key-1", "builtin", "gpt-4o-mini"), api)
	defer r.Start(context.Background())()
	if err := store.Update(func(s *settings.Settings) error {
		s.APIKeyType = settings.APIKeyTypeCustom
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if contains(api.Calls(), "models:builtin") {
		t.Fatalf("unexpected fetch: %v", api.Calls())
	}
	st := r.State()
	if len(st.Models) != 0 || ids(st.Providers) != "anthropic,openai" {
		t.Fatalf("unexpected state %+v", st)
	}
	if s := store.Snapshot(); s.ChatProvider != "" || s.ChatModel != "" {
		t.Fatalf("builtin selection must be cleared in custom mode, got %+v", s)
	}
	if ps := r.ProviderSelector(); ps.Selected != "" {
		t.Fatalf("provider selector still selects %q", ps.Selected)
	}
	if ms := r.ModelSelector(); !ms.Disabled || ms.Hint != "" {
		t.Fatalf("model selector = %+v, want disabled without loading hint", ms)
	}
}

func TestStoredBuiltinIDInCustomModeIsClearedOnStart(t *testing.T) {
	api := newFakeAPI()
	r, store := newTestResolver(custom("builtin", "gpt-4o-mini"), api)
	defer r.Start(context.Background())()
	if s := store.Snapshot(); s.ChatProvider != "" || s.ChatModel != "" {
		t.Fatalf("expected cleared selection, got %+v", s)
	}
	if contains(api.Calls(), "models:builtin") {
		t.Fatalf("unexpected fetch: %v", api.Calls())
	}
}

func TestSelectionErrors(t *testing.T) {
	api := newFakeAPI()
	r, _ := newTestResolver(builtin("key-1", "builtin", ""), api)
	stop := r.Start(context.Background())
	if err := r.SelectProvider("openai"); !errors.Is(err, ErrProviderLocked) {
		t.Fatalf("expected ErrProviderLocked, got %v", err)
	}
	stop()

	r, store := newTestResolver(custom("openai", ""), newFakeAPI())
	defer r.Start(context.Background())()
	if err := r.SelectProvider("mistral"); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
	if err := r.SelectModel("claude-sonnet-4-5"); !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("expected ErrUnknownModel, got %v", err)
	}
	if err := r.SelectModel("gpt-5"); err != nil {
		t.Fatal(err)
	}
	if err := r.SelectModel(""); err != nil {
		t.Fatal(err)
	}
	if store.Snapshot().ChatModel != "" {
		t.Fatal("empty selection must clear the model")
	}
}

func TestLateResponseForPreviousProviderIsDropped(t *testing.T) {
	api := newFakeAPI()
	r, store := newTestResolver(custom("", ""), api)
	defer r.Start(context.Background())()

	gate := api.gate("anthropic")
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := r.SelectProvider("anthropic"); err != nil {
			t.Errorf("select anthropic: %v", err)
		}
	}()
	waitStarted(t, api, "anthropic")
	if err := r.SelectProvider("openai"); err != nil {
		t.Fatalf("select openai: %v", err)
	}
	close(gate)
	wg.Wait()

	s := store.Snapshot()
	if s.ChatProvider != "openai" || s.ChatModel != "" {
		t.Fatalf("unexpected settings %+v", s)
	}
	if got := ids(r.State().Models); got != "gpt-5,gpt-5-mini" {
		t.Fatalf("models = %q", got)
	}
	calls := api.Calls()
	if !contains(calls, "models:anthropic") || !contains(calls, "models:openai") {
		t.Fatalf("expected both model fetches, got %v", calls)
	}
}

func TestOvertakenRefreshIsDropped(t *testing.T) {
	tests := []struct {
		name   string
		guard  bool
		models string
	}{
		{name: "guarded", guard: true, models: "claude-sonnet-4-5"},
		{name: "unguarded", guard: false, models: "gpt-5,gpt-5-mini"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			api := newFakeAPI()
			r, _ := newTestResolver(custom("openai", ""), api, WithStaleGuard(tc.guard))
			defer r.Start(context.Background())()

			gate := api.gate("openai")
			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := r.Refresh(context.Background()); err != nil {
					t.Errorf("refresh: %v", err)
				}
			}()
			waitStarted(t, api, "openai")
			if err := r.SelectProvider("anthropic"); err != nil {
				t.Fatalf("select anthropic: %v", err)
			}
			close(gate)
			wg.Wait()
			if got := ids(r.State().Models); got != tc.models {
				t.Fatalf("models = %q, want %q", got, tc.models)
			}
		})
	}
}
