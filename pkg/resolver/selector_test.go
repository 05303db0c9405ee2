package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/lkarlslund/chatsettings/pkg/catalog"
)

func TestModelSelectorHintWhileModelsMissing(t *testing.T) {
	api := newFakeAPI()
	api.models["openai"] = map[string]catalog.ModelConfig{}
	r, _ := newTestResolver(custom("openai", ""), api)
	defer r.Start(context.Background())()

	sel := r.ModelSelector()
	if !sel.Disabled || sel.Hint != HintLoadingModels {
		t.Fatalf("expected disabled selector with loading hint, got %+v", sel)
	}
}

func TestModelSelectorStates(t *testing.T) {
	r, _ := newTestResolver(custom("", ""), newFakeAPI())
	defer r.Start(context.Background())()
	if sel := r.ModelSelector(); !sel.Disabled || sel.Hint != "" {
		t.Fatalf("no provider: expected disabled without hint, got %+v", sel)
	}

	api := newFakeAPI()
	api.modelsErr = errors.New("boom")
	r, _ = newTestResolver(custom("openai", ""), api)
	defer r.Start(context.Background())()
	if sel := r.ModelSelector(); !sel.Disabled || sel.Hint != "" {
		t.Fatalf("failed load: expected disabled without hint, got %+v", sel)
	}

	r, _ = newTestResolver(custom("openai", "gpt-5"), newFakeAPI())
	defer r.Start(context.Background())()
	sel := r.ModelSelector()
	if sel.Disabled || sel.Selected != "gpt-5" || len(sel.Options) != 2 {
		t.Fatalf("unexpected selector %+v", sel)
	}
	if sel.Options[0].ID != "gpt-5" || sel.Options[0].Name != "GPT-5" {
		t.Fatalf("options must be sorted by id, got %+v", sel.Options)
	}
}

func TestProviderSelectorLockedInBuiltinMode(t *testing.T) {
	r, _ := newTestResolver(builtin("key-1", "", ""), newFakeAPI())
	defer r.Start(context.Background())()
	sel := r.ProviderSelector()
	if !sel.Disabled || sel.Selected != "builtin" || len(sel.Options) != 1 {
		t.Fatalf("unexpected selector %+v", sel)
	}

	r, _ = newTestResolver(custom("", ""), newFakeAPI())
	defer r.Start(context.Background())()
	if sel := r.ProviderSelector(); sel.Disabled || len(sel.Options) != 2 {
		t.Fatalf("unexpected selector %+v", sel)
	}
}
