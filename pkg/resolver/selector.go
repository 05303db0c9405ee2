package resolver

import "github.com/lkarlslund/chatsettings/pkg/catalog"

type Choice struct {
	ID   string
	Name string
}

// Selector is what a provider or model picker should render.
type Selector struct {
	Disabled bool
	Hint     string
	Selected string
	Options  []Choice
}

// ProviderSelector is locked in builtin mode.
func (r *Resolver) ProviderSelector() Selector {
	s := r.store.Snapshot()
	st := r.State()
	sel := Selector{
		Disabled: s.IsBuiltin(),
		Selected: s.ChatProvider,
		Options:  providerOptions(st.Providers),
	}
	if s.IsBuiltin() {
		sel.Hint = "the provider is fixed to builtin models"
	}
	return sel
}

// ModelSelector is disabled until a provider is selected and its models are
// loaded. While models are still missing and nothing failed it carries a
// loading hint.
func (r *Resolver) ModelSelector() Selector {
	s := r.store.Snapshot()
	st := r.State()
	sel := Selector{
		Disabled: s.ChatProvider == "" || len(st.Models) == 0,
		Selected: s.ChatModel,
		Options:  modelOptions(st.Models),
	}
	if s.ChatProvider != "" && st.Error == "" && len(st.Models) == 0 {
		sel.Hint = HintLoadingModels
	}
	return sel
}

func providerOptions(m map[string]catalog.ProviderConfig) []Choice {
	out := make([]Choice, 0, len(m))
	for _, id := range catalog.SortedIDs(m) {
		out = append(out, Choice{ID: id, Name: m[id].Name})
	}
	return out
}

func modelOptions(m map[string]catalog.ModelConfig) []Choice {
	out := make([]Choice, 0, len(m))
	for _, id := range catalog.SortedIDs(m) {
		out = append(out, Choice{ID: id, Name: m[id].Name})
	}
	return out
}
