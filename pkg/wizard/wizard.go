package wizard

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/lkarlslund/chatsettings/pkg/config"
)

type prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

// RunServerWizard asks for the server settings on in/out and saves the
// result to path. The provider catalog is left as is; edit it in the file.
func RunServerWizard(in io.Reader, out io.Writer, path string, cfg *config.ServerConfig) error {
	p := prompter{in: bufio.NewScanner(in), out: out}
	fmt.Fprintln(out, "Config service setup")
	cfg.ListenAddr = p.ask("Listen address", cfg.ListenAddr)

	cfg.Builtin.Enabled = p.askBool("Enable builtin models? (y/n)", cfg.Builtin.Enabled)
	if cfg.Builtin.Enabled {
		cfg.Builtin.BaseURL = p.ask("Builtin upstream base URL", cfg.Builtin.BaseURL)
		cfg.Builtin.APIKey = p.ask("Builtin upstream API key", cfg.Builtin.APIKey)
		cfg.Builtin.AccessKeys = config.SplitCSV(p.ask("Client access keys (comma-separated)", strings.Join(cfg.Builtin.AccessKeys, ",")))
		cfg.Builtin.CacheSeconds = p.askInt("Model list cache seconds", cfg.Builtin.CacheSeconds)
	}

	cfg.Upload.BackendURL = p.ask("File processing backend URL", cfg.Upload.BackendURL)
	cfg.Upload.MaxBodyMB = p.askInt("Max upload size (MB)", cfg.Upload.MaxBodyMB)

	cfg.TLS.Enabled = p.askBool("Enable TLS? (y/N)", cfg.TLS.Enabled)
	if cfg.TLS.Enabled {
		cfg.TLS.Mode = p.ask("TLS mode (letsencrypt/pem)", cfg.TLS.Mode)
		cfg.TLS.ListenAddr = p.ask("TLS listen address", cfg.TLS.ListenAddr)
		if strings.EqualFold(strings.TrimSpace(cfg.TLS.Mode), config.TLSModePEM) {
			cfg.TLS.CertFile = p.ask("Certificate file", cfg.TLS.CertFile)
			cfg.TLS.KeyFile = p.ask("Key file", cfg.TLS.KeyFile)
		} else {
			cfg.TLS.Domain = p.ask("TLS domain", cfg.TLS.Domain)
			cfg.TLS.Email = p.ask("ACME email", cfg.TLS.Email)
			cfg.TLS.CacheDir = p.ask("ACME cache dir", cfg.TLS.CacheDir)
		}
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}
	return config.Save(path, cfg)
}

// RunClientWizard asks where the config service lives and where settings
// are stored.
func RunClientWizard(in io.Reader, out io.Writer, path string, cfg *config.ClientConfig) error {
	p := prompter{in: bufio.NewScanner(in), out: out}
	fmt.Fprintln(out, "Client setup")
	cfg.ServerURL = p.ask("Config service URL", cfg.ServerURL)
	cfg.SettingsPath = p.ask("Settings file", cfg.SettingsPath)
	cfg.TimeoutSeconds = p.askInt("Request timeout seconds", cfg.TimeoutSeconds)
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}
	return config.Save(path, cfg)
}

func (p prompter) ask(label, def string) string {
	if def == "" {
		fmt.Fprintf(p.out, "%s: ", label)
	} else {
		fmt.Fprintf(p.out, "%s [%s]: ", label, def)
	}
	if !p.in.Scan() {
		return def
	}
	txt := strings.TrimSpace(p.in.Text())
	if txt == "" {
		return def
	}
	return txt
}

func (p prompter) askBool(label string, def bool) bool {
	switch strings.ToLower(p.ask(label, strconv.FormatBool(def))) {
	case "y", "yes", "true", "1":
		return true
	case "n", "no", "false", "0":
		return false
	}
	return def
}

func (p prompter) askInt(label string, def int) int {
	v, err := strconv.Atoi(p.ask(label, strconv.Itoa(def)))
	if err != nil || v < 0 {
		return def
	}
	return v
}
