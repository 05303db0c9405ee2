package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/lkarlslund/chatsettings/pkg/catalog"
	"github.com/pelletier/go-toml/v2"
)

const (
	defaultConfigFileName = "chatsettingsd.toml"
	appDirName            = "chatsettings"

	TLSModeLetsEncrypt = "letsencrypt"
	TLSModePEM         = "pem"
)

type TLSConfig struct {
	Enabled    bool   `toml:"enabled"`
	Mode       string `toml:"mode"`
	ListenAddr string `toml:"listen_addr"`
	Domain     string `toml:"domain"`
	Email      string `toml:"email"`
	CacheDir   string `toml:"cache_dir"`
	CertFile   string `toml:"cert_file,omitempty"`
	KeyFile    string `toml:"key_file,omitempty"`
}

// BuiltinConfig controls the site-operated model pool that users reach with
// an access key instead of their own provider keys.
type BuiltinConfig struct {
	Enabled        bool     `toml:"enabled"`
	BaseURL        string   `toml:"base_url"`
	APIKey         string   `toml:"api_key,omitempty"`
	AccessKeys     []string `toml:"access_keys,omitempty"`
	CacheSeconds   int      `toml:"cache_seconds,omitempty"`
	TimeoutSeconds int      `toml:"timeout_seconds,omitempty"`
}

type UploadConfig struct {
	BackendURL     string `toml:"backend_url"`
	TimeoutSeconds int    `toml:"timeout_seconds,omitempty"`
	MaxBodyMB      int    `toml:"max_body_mb,omitempty"`
}

type ServerConfig struct {
	ListenAddr string                  `toml:"listen_addr"`
	Builtin    BuiltinConfig           `toml:"builtin"`
	Upload     UploadConfig            `toml:"upload"`
	TLS        TLSConfig               `toml:"tls"`
	Providers  []catalog.ProviderEntry `toml:"providers"`
}

type ClientConfig struct {
	ServerURL      string `toml:"server_url"`
	SettingsPath   string `toml:"settings_path,omitempty"`
	TimeoutSeconds int    `toml:"timeout_seconds,omitempty"`
}

func DefaultServerConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultConfigFileName
	}
	return filepath.Join(home, ".config", appDirName, defaultConfigFileName)
}

func DefaultClientConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "chatsettings.toml"
	}
	return filepath.Join(home, ".config", appDirName, "chatsettings.toml")
}

func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "settings.json"
	}
	return filepath.Join(home, ".config", appDirName, "settings.json")
}

func DefaultTLSCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "tls-autocert"
	}
	return filepath.Join(home, ".cache", appDirName, "tls-autocert")
}

func NewDefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ListenAddr: "127.0.0.1:8000",
		Builtin: BuiltinConfig{
			Enabled:        true,
			BaseURL:        "https://api.openai.com/v1",
			CacheSeconds:   60,
			TimeoutSeconds: 30,
		},
		Upload: UploadConfig{
			BackendURL:     "http://backend:8000",
			TimeoutSeconds: 120,
			MaxBodyMB:      50,
		},
		TLS: TLSConfig{
			Enabled:    false,
			Mode:       TLSModeLetsEncrypt,
			ListenAddr: ":443",
			CacheDir:   DefaultTLSCacheDir(),
		},
		Providers: catalog.DefaultProviders(),
	}
}

func NewDefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		ServerURL:      "http://127.0.0.1:8000",
		SettingsPath:   DefaultSettingsPath(),
		TimeoutSeconds: 30,
	}
}

func LoadClientConfig(path string) (*ClientConfig, error) {
	cfg := NewDefaultClientConfig()
	if err := load(path, cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadOrCreateClientConfig(path string) (*ClientConfig, error) {
	cfg := NewDefaultClientConfig()
	if err := loadOrCreate(path, cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadServerConfig(path string) (*ServerConfig, error) {
	cfg := NewDefaultServerConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	// An explicit providers table replaces the seeded catalog instead of
	// being appended to it.
	cfg.Providers = nil
	if err := toml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse toml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadOrCreate(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	_, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := writeAtomic(path, v); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	return load(path, v)
}

func load(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(b, v); err != nil {
		return fmt.Errorf("parse toml: %w", err)
	}
	return nil
}

func Save(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return writeAtomic(path, v)
}

func writeAtomic(path string, v any) error {
	b, err := marshalTOML(v)
	if err != nil {
		return fmt.Errorf("encode toml: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func marshalTOML(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetArraysMultiline(true)
	enc.SetIndentSymbol("  ")
	enc.SetIndentTables(true)
	enc.SetTablesInline(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	out := buf.Bytes()
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	return out, nil
}

// ApplyEnv overlays the BUILTIN_MODEL_* and INTERNAL_BACKEND_URL variables
// used by container deployments. Unset variables leave the file values alone.
func (c *ServerConfig) ApplyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup("BUILTIN_MODEL_ENABLED"); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			c.Builtin.Enabled = b
		}
	}
	if v, ok := lookup("BUILTIN_MODEL_BASE_URL"); ok && strings.TrimSpace(v) != "" {
		c.Builtin.BaseURL = v
	}
	if v, ok := lookup("BUILTIN_MODEL_API_KEY"); ok {
		c.Builtin.APIKey = v
	}
	if v, ok := lookup("BUILTIN_MODEL_ACCESS_KEY"); ok {
		c.Builtin.AccessKeys = SplitCSV(v)
	}
	if v, ok := lookup("INTERNAL_BACKEND_URL"); ok && strings.TrimSpace(v) != "" {
		c.Upload.BackendURL = v
	}
}

func (c *ServerConfig) Normalize() {
	c.ListenAddr = strings.TrimSpace(c.ListenAddr)
	if c.ListenAddr == "" {
		c.ListenAddr = ":8000"
	}
	c.Builtin.BaseURL = strings.TrimRight(strings.TrimSpace(c.Builtin.BaseURL), "/")
	c.Builtin.APIKey = strings.TrimSpace(c.Builtin.APIKey)
	c.Builtin.AccessKeys = SplitCSV(strings.Join(c.Builtin.AccessKeys, ","))
	if c.Builtin.CacheSeconds < 0 {
		c.Builtin.CacheSeconds = 0
	}
	if c.Builtin.TimeoutSeconds <= 0 {
		c.Builtin.TimeoutSeconds = 30
	}
	c.Upload.BackendURL = strings.TrimRight(strings.TrimSpace(c.Upload.BackendURL), "/")
	if c.Upload.TimeoutSeconds <= 0 {
		c.Upload.TimeoutSeconds = 120
	}
	if c.Upload.MaxBodyMB <= 0 {
		c.Upload.MaxBodyMB = 50
	}
	c.TLS.Mode = strings.ToLower(strings.TrimSpace(c.TLS.Mode))
	if c.TLS.Mode == "" {
		c.TLS.Mode = TLSModeLetsEncrypt
	}
	c.TLS.ListenAddr = strings.TrimSpace(c.TLS.ListenAddr)
	if c.TLS.ListenAddr == "" {
		c.TLS.ListenAddr = ":443"
	}
	c.TLS.Domain = strings.TrimSpace(c.TLS.Domain)
	c.TLS.Email = strings.TrimSpace(c.TLS.Email)
	c.TLS.CacheDir = strings.TrimSpace(c.TLS.CacheDir)
	if c.TLS.CacheDir == "" {
		c.TLS.CacheDir = DefaultTLSCacheDir()
	}
	c.TLS.CertFile = strings.TrimSpace(c.TLS.CertFile)
	c.TLS.KeyFile = strings.TrimSpace(c.TLS.KeyFile)
	for i := range c.Providers {
		c.Providers[i].ProviderConfig = c.Providers[i].ProviderConfig.Normalize()
		for j := range c.Providers[i].Models {
			c.Providers[i].Models[j] = c.Providers[i].Models[j].Normalize()
		}
	}
	sort.SliceStable(c.Providers, func(i, j int) bool { return c.Providers[i].ID < c.Providers[j].ID })
}

func (c *ServerConfig) Validate() error {
	if c.Builtin.BaseURL != "" {
		if err := validateHTTPURL("builtin.base_url", c.Builtin.BaseURL); err != nil {
			return err
		}
	}
	if c.Upload.BackendURL != "" {
		if err := validateHTTPURL("upload.backend_url", c.Upload.BackendURL); err != nil {
			return err
		}
	}
	if c.TLS.Enabled {
		switch c.TLS.Mode {
		case TLSModeLetsEncrypt:
			if c.TLS.Domain == "" {
				return errors.New("tls.domain is required when tls.enabled=true and tls.mode=letsencrypt")
			}
		case TLSModePEM:
			if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
				return errors.New("tls.cert_file and tls.key_file are required when tls.enabled=true and tls.mode=pem")
			}
		default:
			return errors.New("tls.mode must be one of letsencrypt, pem")
		}
	}
	idSeen := map[string]struct{}{}
	for _, p := range c.Providers {
		if p.ID == "" {
			return errors.New("provider id cannot be empty")
		}
		if p.ID == catalog.BuiltinProviderID {
			return fmt.Errorf("provider id %q is reserved", p.ID)
		}
		if _, ok := idSeen[p.ID]; ok {
			return fmt.Errorf("duplicate provider id %q", p.ID)
		}
		idSeen[p.ID] = struct{}{}
		modelSeen := map[string]struct{}{}
		for _, m := range p.Models {
			if m.ID == "" {
				return fmt.Errorf("provider %q has a model with empty id", p.ID)
			}
			if _, ok := modelSeen[m.ID]; ok {
				return fmt.Errorf("provider %q has duplicate model id %q", p.ID, m.ID)
			}
			modelSeen[m.ID] = struct{}{}
		}
	}
	return nil
}

func (c *ClientConfig) Normalize() {
	c.ServerURL = strings.TrimRight(strings.TrimSpace(c.ServerURL), "/")
	c.SettingsPath = strings.TrimSpace(c.SettingsPath)
	if c.ServerURL == "" {
		c.ServerURL = "http://127.0.0.1:8000"
	}
	if c.SettingsPath == "" {
		c.SettingsPath = DefaultSettingsPath()
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
}

func (c *ClientConfig) Validate() error {
	if strings.TrimSpace(c.ServerURL) == "" {
		return errors.New("server_url cannot be empty")
	}
	return validateHTTPURL("server_url", c.ServerURL)
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

// SplitCSV splits a comma-separated list, dropping blanks and duplicates.
func SplitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	seen := map[string]struct{}{}
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

type ServerConfigStore struct {
	mu   sync.RWMutex
	path string
	cfg  *ServerConfig
}

func NewServerConfigStore(path string, cfg *ServerConfig) *ServerConfigStore {
	return &ServerConfigStore{path: path, cfg: cfg}
}

func (s *ServerConfigStore) Path() string {
	return s.path
}

func (s *ServerConfigStore) Snapshot() ServerConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneServerConfig(s.cfg)
}

func (s *ServerConfigStore) Update(mutator func(*ServerConfig) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := cloneServerConfig(s.cfg)
	if err := mutator(&cp); err != nil {
		return err
	}
	cp.Normalize()
	if err := cp.Validate(); err != nil {
		return err
	}
	if err := Save(s.path, &cp); err != nil {
		return err
	}
	s.cfg = &cp
	return nil
}

// Replace swaps in an already validated config without writing it back,
// used when the file changed on disk.
func (s *ServerConfigStore) Replace(cfg *ServerConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := cloneServerConfig(cfg)
	s.cfg = &cp
}

func cloneServerConfig(in *ServerConfig) ServerConfig {
	cp := *in
	cp.Builtin.AccessKeys = append([]string(nil), in.Builtin.AccessKeys...)
	cp.Providers = make([]catalog.ProviderEntry, len(in.Providers))
	for i, p := range in.Providers {
		cp.Providers[i] = p
		cp.Providers[i].Models = append([]catalog.ModelConfig(nil), p.Models...)
	}
	return cp
}
