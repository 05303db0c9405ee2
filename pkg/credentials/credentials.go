package credentials

import (
	"context"
	"strings"
	"sync"

	log "github.com/charmbracelet/log"
	"github.com/lkarlslund/chatsettings/pkg/settings"
)

// Status is the outcome of the last builtin access key validation.
type Status string

const (
	StatusUnknown Status = "unknown"
	StatusValid   Status = "valid"
	StatusInvalid Status = "invalid"
)

// KeyValidator checks a builtin access key against the configuration service.
type KeyValidator interface {
	ValidateBuiltinKey(ctx context.Context, accessKey string) (bool, error)
}

// CustomProvider is one API key slot shown in custom mode.
type CustomProvider struct {
	ID          string
	Name        string
	Description string
}

var customProviders = []CustomProvider{
	{ID: "openai", Name: "OpenAI", Description: "Supports GPT and o-series models (Responses API)"},
	{ID: "openai_compatible", Name: "OpenAI compatible", Description: "Custom OpenAI compatible API (Chat Completions)"},
	{ID: "anthropic", Name: "Anthropic", Description: "Supports Claude models"},
	{ID: "google", Name: "Google", Description: "Supports Gemini models"},
	{ID: "azure", Name: "Azure OpenAI", Description: "Microsoft Azure OpenAI service"},
	{ID: "deepseek", Name: "DeepSeek", Description: "Supports DeepSeek models"},
	{ID: "moonshot", Name: "Moonshot", Description: "Supports Kimi models"},
}

// CustomProviders lists the providers a user can store an API key for.
func CustomProviders() []CustomProvider {
	return append([]CustomProvider(nil), customProviders...)
}

// Controller manages the credential mode and keys in the settings store.
type Controller struct {
	store     *settings.Store
	validator KeyValidator
	logger    *log.Logger

	mu         sync.Mutex
	status     Status
	statusKey  string
	validating bool
}

func NewController(store *settings.Store, validator KeyValidator, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	return &Controller{store: store, validator: validator, logger: logger, status: StatusUnknown}
}

// SetMode switches between builtin and custom credentials. The resolver
// reacts to the change; the selected model is left alone here.
func (c *Controller) SetMode(mode settings.APIKeyType) error {
	if err := c.store.Update(func(s *settings.Settings) error {
		s.APIKeyType = mode
		return nil
	}); err != nil {
		return err
	}
	c.resetStatus()
	return nil
}

func (c *Controller) SetBuiltinAccessKey(key string) error {
	if err := c.store.Update(func(s *settings.Settings) error {
		s.BuiltinModelAccessKey = key
		return nil
	}); err != nil {
		return err
	}
	c.resetStatus()
	return nil
}

// SetAPIKey stores the key for a custom provider; an empty key removes it.
func (c *Controller) SetAPIKey(provider, key string) error {
	return c.store.Update(func(s *settings.Settings) error {
		if strings.TrimSpace(key) == "" {
			delete(s.APIKeys, provider)
			return nil
		}
		s.APIKeys[provider] = key
		return nil
	})
}

func (c *Controller) SetOpenAIProxyURL(u string) error {
	return c.store.Update(func(s *settings.Settings) error {
		s.OpenAIProxyURL = u
		return nil
	})
}

func (c *Controller) SetOpenAICompatibleBaseURL(u string) error {
	return c.store.Update(func(s *settings.Settings) error {
		s.OpenAICompatibleConfig.BaseURL = u
		return nil
	})
}

// ValidateBuiltinKey checks the stored access key. An empty key is invalid
// without asking the service; transport failures count as invalid.
func (c *Controller) ValidateBuiltinKey(ctx context.Context) Status {
	key := c.store.Snapshot().BuiltinModelAccessKey
	if key == "" {
		c.setStatus(key, StatusInvalid)
		return StatusInvalid
	}

	c.mu.Lock()
	c.validating = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.validating = false
		c.mu.Unlock()
	}()

	status := StatusInvalid
	valid, err := c.validator.ValidateBuiltinKey(ctx, key)
	switch {
	case err != nil:
		c.logger.Warn("builtin access key validation failed", "err", err)
	case valid:
		status = StatusValid
	}
	c.setStatus(key, status)
	return status
}

// Status reports the last validation result, or unknown when the access key
// changed since it was computed.
func (c *Controller) Status() Status {
	key := c.store.Snapshot().BuiltinModelAccessKey
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.statusKey != key {
		return StatusUnknown
	}
	return c.status
}

func (c *Controller) Validating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validating
}

func (c *Controller) setStatus(key string, status Status) {
	c.mu.Lock()
	c.statusKey = key
	c.status = status
	c.mu.Unlock()
}

func (c *Controller) resetStatus() {
	c.mu.Lock()
	c.status = StatusUnknown
	c.statusKey = ""
	c.mu.Unlock()
}
