package builtin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	log "github.com/charmbracelet/log"
	"github.com/lkarlslund/chatsettings/pkg/cache"
	"github.com/lkarlslund/chatsettings/pkg/catalog"
	"github.com/lkarlslund/chatsettings/pkg/config"
	openai "github.com/sashabaranov/go-openai"
)

const defaultContextLength = 128000

var nowUTC = func() time.Time { return time.Now().UTC() }

// Error is a failure with the HTTP status the API should answer with.
type Error struct {
	StatusCode int
	Detail     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("builtin models: %d %s", e.StatusCode, e.Detail)
}

// StatusCode returns the HTTP status carried by err, or 500.
func StatusCode(err error) int {
	var be *Error
	if errors.As(err, &be) {
		return be.StatusCode
	}
	return http.StatusInternalServerError
}

// Service serves the site-operated model pool.
type Service struct {
	logger *log.Logger
	cache  *cache.TTLMap[string, map[string]catalog.ModelConfig]
}

func NewService(logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		logger: logger,
		cache:  cache.NewTTLMap[string, map[string]catalog.ModelConfig](),
	}
}

// VerifyAccessKey checks a client access key against the configured list.
func (s *Service) VerifyAccessKey(cfg config.BuiltinConfig, key string) error {
	if !cfg.Enabled {
		return &Error{StatusCode: http.StatusServiceUnavailable, Detail: "builtin models are not enabled"}
	}
	if len(cfg.AccessKeys) == 0 {
		return &Error{StatusCode: http.StatusInternalServerError, Detail: "server has no builtin model access keys configured"}
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return &Error{StatusCode: http.StatusUnauthorized, Detail: "missing access key"}
	}
	if !slices.Contains(cfg.AccessKeys, key) {
		return &Error{StatusCode: http.StatusForbidden, Detail: "invalid access key"}
	}
	return nil
}

// Models returns the builtin bundle, listing upstream models through the
// OpenAI compatible /models endpoint. Results are cached for
// cfg.CacheSeconds.
func (s *Service) Models(ctx context.Context, cfg config.BuiltinConfig) (catalog.BuiltinBundle, error) {
	if cfg.APIKey == "" {
		return catalog.BuiltinBundle{}, &Error{StatusCode: http.StatusInternalServerError, Detail: "server has no builtin model api key configured"}
	}
	key := cfg.BaseURL + "\x00" + cfg.APIKey
	if models, ok := s.cache.Get(key, nowUTC()); ok {
		return bundle(models), nil
	}
	models, err := s.listUpstream(ctx, cfg)
	if err != nil {
		return catalog.BuiltinBundle{}, err
	}
	if cfg.CacheSeconds > 0 {
		s.cache.Set(key, models, nowUTC(), time.Duration(cfg.CacheSeconds)*time.Second)
	}
	return bundle(models), nil
}

// Invalidate drops cached upstream listings, used after a config reload.
func (s *Service) Invalidate() {
	s.cache.Clear()
}

func (s *Service) listUpstream(ctx context.Context, cfg config.BuiltinConfig) (map[string]catalog.ModelConfig, error) {
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = cfg.BaseURL
	oc.HTTPClient = &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
	client := openai.NewClientWithConfig(oc)

	list, err := client.ListModels(ctx)
	if err != nil {
		s.logger.Error("list builtin models", "base_url", cfg.BaseURL, "err", err)
		return nil, classifyUpstream(err)
	}
	out := make(map[string]catalog.ModelConfig, len(list.Models))
	for _, m := range list.Models {
		if m.ID == "" {
			continue
		}
		out[m.ID] = ModelFromID(m.ID)
	}
	s.logger.Debug("listed builtin models", "count", len(out))
	return out, nil
}

func classifyUpstream(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return &Error{StatusCode: apiErr.HTTPStatusCode, Detail: "failed to list models: " + apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return &Error{StatusCode: reqErr.HTTPStatusCode, Detail: "failed to list models: " + reqErr.Error()}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{StatusCode: http.StatusGatewayTimeout, Detail: "listing models timed out"}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{StatusCode: http.StatusGatewayTimeout, Detail: "listing models timed out"}
	}
	return &Error{StatusCode: http.StatusBadGateway, Detail: "request error: " + err.Error()}
}

// ModelFromID describes an upstream model that only reported its id.
func ModelFromID(id string) catalog.ModelConfig {
	lower := strings.ToLower(id)
	return catalog.ModelConfig{
		ID:                      id,
		Name:                    id,
		Description:             "Builtin model: " + id,
		APIType:                 catalog.APITypeChatCompletions,
		ContextLength:           defaultContextLength,
		SupportsVision:          strings.Contains(lower, "vision") || strings.Contains(lower, "gpt-4"),
		SupportsFunctionCalling: true,
		SupportsStreaming:       true,
	}
}

func bundle(models map[string]catalog.ModelConfig) catalog.BuiltinBundle {
	return catalog.BuiltinBundle{
		Provider: catalog.BuiltinProvider(),
		Models:   catalog.CloneModels(models),
	}
}
