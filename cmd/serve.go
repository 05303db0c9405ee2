package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lkarlslund/chatsettings/pkg/config"
	"github.com/lkarlslund/chatsettings/pkg/logutil"
	"github.com/lkarlslund/chatsettings/pkg/server"
	"github.com/lkarlslund/chatsettings/pkg/wizard"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		listenAddr string
		envFile    string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the config service (provider catalog, builtin models, file upload proxy)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadEnvFile(envFile); err != nil {
				return err
			}
			cfg, err := config.LoadServerConfig(configPath)
			if err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("load server config: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "No server config found at %s. Running first-time setup wizard.\n", configPath)
				cfg = config.NewDefaultServerConfig()
				if err := wizard.RunServerWizard(cmd.InOrStdin(), cmd.OutOrStdout(), configPath, cfg); err != nil {
					return fmt.Errorf("first-time setup failed: %w", err)
				}
			}
			cfg.ApplyEnv(os.LookupEnv)
			if cmd.Flags().Changed("listen-addr") {
				cfg.ListenAddr = listenAddr
			}
			cfg.Normalize()
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("server config: %w", err)
			}

			srv := server.New(cfg, server.Options{
				ConfigPath: configPath,
				Env:        os.LookupEnv,
				Logger:     logutil.Component("server"),
			})
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&configPath, "server-config", config.DefaultServerConfigPath(), "Server config TOML path")
	cmd.Flags().StringVar(&listenAddr, "listen-addr", "", "Override listen address from config (e.g. 127.0.0.1:8080)")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file with BUILTIN_MODEL_* and INTERNAL_BACKEND_URL overrides")
	return cmd
}

// loadEnvFile loads a dotenv file without overriding variables that are
// already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}
