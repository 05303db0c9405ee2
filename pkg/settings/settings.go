package settings

import (
	"fmt"
	"maps"
	"net/url"
	"strings"
)

type APIKeyType string

const (
	APIKeyTypeBuiltin APIKeyType = "builtin"
	APIKeyTypeCustom  APIKeyType = "custom"
)

// DefaultOpenAIBaseURL is used for the OpenAI compatible provider when no
// base URL is configured.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

type OpenAICompatibleConfig struct {
	BaseURL string `json:"baseUrl"`
}

func (c OpenAICompatibleConfig) EffectiveBaseURL() string {
	if c.BaseURL == "" {
		return DefaultOpenAIBaseURL
	}
	return c.BaseURL
}

// Settings is the user's chat configuration. Provider and model catalogs are
// not part of it; they are fetched on demand.
type Settings struct {
	APIKeyType             APIKeyType             `json:"apiKeyType"`
	APIKeys                map[string]string      `json:"apiKeys"`
	BuiltinModelAccessKey  string                 `json:"builtinModelAccessKey"`
	ChatProvider           string                 `json:"chatProvider"`
	ChatModel              string                 `json:"chatModel"`
	OpenAIProxyURL         string                 `json:"openaiProxyUrl"`
	OpenAICompatibleConfig OpenAICompatibleConfig `json:"openaiCompatibleConfig"`
}

func Default() Settings {
	return Settings{
		APIKeyType: APIKeyTypeCustom,
		APIKeys:    map[string]string{},
	}
}

func (s Settings) IsBuiltin() bool {
	return s.APIKeyType == APIKeyTypeBuiltin
}

func (s Settings) APIKey(provider string) string {
	return s.APIKeys[provider]
}

func (s Settings) Clone() Settings {
	cp := s
	cp.APIKeys = maps.Clone(s.APIKeys)
	if cp.APIKeys == nil {
		cp.APIKeys = map[string]string{}
	}
	return cp
}

func (s Settings) Equal(o Settings) bool {
	return s.APIKeyType == o.APIKeyType &&
		s.BuiltinModelAccessKey == o.BuiltinModelAccessKey &&
		s.ChatProvider == o.ChatProvider &&
		s.ChatModel == o.ChatModel &&
		s.OpenAIProxyURL == o.OpenAIProxyURL &&
		s.OpenAICompatibleConfig == o.OpenAICompatibleConfig &&
		maps.Equal(s.APIKeys, o.APIKeys)
}

func (s *Settings) Normalize() {
	s.APIKeyType = APIKeyType(strings.ToLower(strings.TrimSpace(string(s.APIKeyType))))
	if s.APIKeyType == "" {
		s.APIKeyType = APIKeyTypeCustom
	}
	keys := make(map[string]string, len(s.APIKeys))
	for provider, key := range s.APIKeys {
		provider = strings.TrimSpace(provider)
		key = strings.TrimSpace(key)
		if provider == "" || key == "" {
			continue
		}
		keys[provider] = key
	}
	s.APIKeys = keys
	s.BuiltinModelAccessKey = strings.TrimSpace(s.BuiltinModelAccessKey)
	s.ChatProvider = strings.TrimSpace(s.ChatProvider)
	s.ChatModel = strings.TrimSpace(s.ChatModel)
	if s.ChatProvider == "" {
		s.ChatModel = ""
	}
	s.OpenAIProxyURL = strings.TrimRight(strings.TrimSpace(s.OpenAIProxyURL), "/")
	s.OpenAICompatibleConfig.BaseURL = strings.TrimRight(strings.TrimSpace(s.OpenAICompatibleConfig.BaseURL), "/")
}

func (s Settings) Validate() error {
	switch s.APIKeyType {
	case APIKeyTypeBuiltin, APIKeyTypeCustom:
	default:
		return fmt.Errorf("apiKeyType must be builtin or custom, got %q", s.APIKeyType)
	}
	if s.OpenAIProxyURL != "" {
		if err := validateHTTPURL("openaiProxyUrl", s.OpenAIProxyURL); err != nil {
			return err
		}
	}
	if s.OpenAICompatibleConfig.BaseURL != "" {
		if err := validateHTTPURL("openaiCompatibleConfig.baseUrl", s.OpenAICompatibleConfig.BaseURL); err != nil {
			return err
		}
	}
	return nil
}

func validateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid url: %w", field, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) url, got %q", field, raw)
	}
	return nil
}
