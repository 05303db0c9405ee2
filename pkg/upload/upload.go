package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	log "github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/lkarlslund/chatsettings/pkg/config"
	"github.com/tidwall/gjson"
)

const (
	// Path is both the public route and the backend endpoint.
	Path            = "/api/v1/file/process"
	RequestIDHeader = "X-Request-ID"

	maxResponseBytes = 32 << 20
)

// Envelope is the error body produced by the proxy itself.
type Envelope struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

// Handler forwards file processing requests to the internal backend.
type Handler struct {
	config func() config.UploadConfig
	client *http.Client
	logger *log.Logger
}

// NewHandler returns a proxy reading its settings from cfg on every request,
// so config reloads apply without a restart.
func NewHandler(cfg func() config.UploadConfig, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{config: cfg, client: &http.Client{}, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cfg := h.config()
	reqID := middleware.GetReqID(r.Context())
	if reqID == "" {
		reqID = r.Header.Get(RequestIDHeader)
	}
	if reqID == "" {
		reqID = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, reqID)

	if err := checkFormContentType(r.Header.Get("Content-Type")); err != nil {
		h.proxyError(w, reqID, err)
		return
	}
	limit := int64(cfg.MaxBodyMB) << 20
	if limit > 0 && r.ContentLength > limit {
		writeJSON(w, http.StatusRequestEntityTooLarge, Envelope{
			Code:    http.StatusRequestEntityTooLarge,
			Message: "file too large",
			Details: map[string]any{"limit_bytes": limit},
		})
		return
	}
	body := io.Reader(r.Body)
	if limit > 0 {
		body = http.MaxBytesReader(w, r.Body, limit)
	}

	ctx := r.Context()
	if cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BackendURL+Path, body)
	if err != nil {
		h.proxyError(w, reqID, err)
		return
	}
	req.ContentLength = r.ContentLength
	req.Header.Set("Content-Type", r.Header.Get("Content-Type"))
	req.Header.Set(RequestIDHeader, reqID)

	resp, err := h.client.Do(req)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, Envelope{
				Code:    http.StatusRequestEntityTooLarge,
				Message: "file too large",
				Details: map[string]any{"limit_bytes": tooLarge.Limit},
			})
			return
		}
		h.proxyError(w, reqID, err)
		return
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		h.proxyError(w, reqID, fmt.Errorf("read backend response: %w", err))
		return
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		h.logger.Warn("file processing failed", "request_id", reqID, "status", resp.StatusCode)
		if gjson.ValidBytes(b) {
			writeRawJSON(w, resp.StatusCode, b)
			return
		}
		writeJSON(w, resp.StatusCode, Envelope{
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("file processing failed (%d)", resp.StatusCode),
			Details: map[string]any{"status": resp.StatusCode},
		})
		return
	}
	if !gjson.ValidBytes(b) {
		h.proxyError(w, reqID, errors.New("backend returned a non-json response"))
		return
	}
	writeRawJSON(w, http.StatusOK, b)
}

func (h *Handler) proxyError(w http.ResponseWriter, reqID string, err error) {
	h.logger.Error("file process proxy error", "request_id", reqID, "err", err)
	writeJSON(w, http.StatusInternalServerError, Envelope{
		Code:    http.StatusInternalServerError,
		Message: "server proxy error",
		Details: map[string]any{"error": err.Error()},
	})
}

func checkFormContentType(v string) error {
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		return fmt.Errorf("request body is not form data: %w", err)
	}
	if !strings.EqualFold(mt, "multipart/form-data") {
		return fmt.Errorf("request body is not multipart form data: %s", mt)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRawJSON(w http.ResponseWriter, status int, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.Copy(w, bytes.NewReader(b))
}
