package catalog

import (
	"sort"
	"strings"
)

// BuiltinProviderID is the reserved pseudo-provider used for site-operated models.
const BuiltinProviderID = "builtin"

const (
	APITypeChatCompletions = "chat_completions"
	APITypeResponses       = "responses"
)

type ProviderConfig struct {
	ID               string `toml:"id" json:"id"`
	Name             string `toml:"name" json:"name"`
	Description      string `toml:"description,omitempty" json:"description,omitempty"`
	SupportsThinking bool   `toml:"supports_thinking,omitempty" json:"supports_thinking"`
}

type Pricing struct {
	Input  float64 `toml:"input" json:"input"`
	Output float64 `toml:"output" json:"output"`
}

type ModelConfig struct {
	ID                      string  `toml:"id" json:"id"`
	Name                    string  `toml:"name" json:"name"`
	Description             string  `toml:"description,omitempty" json:"description,omitempty"`
	APIType                 string  `toml:"api_type,omitempty" json:"api_type,omitempty"`
	ContextLength           int     `toml:"context_length,omitempty" json:"context_length"`
	SupportsVision          bool    `toml:"supports_vision,omitempty" json:"supports_vision"`
	SupportsFunctionCalling bool    `toml:"supports_function_calling,omitempty" json:"supports_function_calling"`
	SupportsStreaming       bool    `toml:"supports_streaming,omitempty" json:"supports_streaming"`
	Pricing                 Pricing `toml:"pricing" json:"pricing"`
}

// BuiltinBundle is what the builtin models endpoint returns: the builtin
// pseudo-provider together with every model it currently serves.
type BuiltinBundle struct {
	Provider ProviderConfig         `json:"provider"`
	Models   map[string]ModelConfig `json:"models"`
}

// ProviderEntry is a catalog provider together with its model list, as
// stored in the server config.
type ProviderEntry struct {
	ProviderConfig
	Models []ModelConfig `toml:"models"`
}

func BuiltinProvider() ProviderConfig {
	return ProviderConfig{
		ID:          BuiltinProviderID,
		Name:        "Builtin models",
		Description: "Models provided by the site operator",
	}
}

func (m ModelConfig) Normalize() ModelConfig {
	m.ID = strings.TrimSpace(m.ID)
	m.Name = strings.TrimSpace(m.Name)
	m.Description = strings.TrimSpace(m.Description)
	m.APIType = strings.TrimSpace(m.APIType)
	if m.Name == "" {
		m.Name = m.ID
	}
	if m.APIType == "" {
		m.APIType = APITypeChatCompletions
	}
	if m.ContextLength < 0 {
		m.ContextLength = 0
	}
	return m
}

func (p ProviderConfig) Normalize() ProviderConfig {
	p.ID = strings.TrimSpace(p.ID)
	p.Name = strings.TrimSpace(p.Name)
	p.Description = strings.TrimSpace(p.Description)
	if p.Name == "" {
		p.Name = p.ID
	}
	return p
}

// ProviderMap indexes the catalog providers by id.
func ProviderMap(entries []ProviderEntry) map[string]ProviderConfig {
	out := make(map[string]ProviderConfig, len(entries))
	for _, e := range entries {
		out[e.ID] = e.ProviderConfig
	}
	return out
}

// ModelMap returns the models of the given provider keyed by model id.
func ModelMap(entries []ProviderEntry, providerID string) (map[string]ModelConfig, bool) {
	for _, e := range entries {
		if e.ID != providerID {
			continue
		}
		out := make(map[string]ModelConfig, len(e.Models))
		for _, m := range e.Models {
			out[m.ID] = m
		}
		return out, true
	}
	return nil, false
}

// SortedIDs returns the map keys in display order.
func SortedIDs[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func CloneProviders(in map[string]ProviderConfig) map[string]ProviderConfig {
	out := make(map[string]ProviderConfig, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func CloneModels(in map[string]ModelConfig) map[string]ModelConfig {
	out := make(map[string]ModelConfig, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
