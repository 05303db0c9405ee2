package cmd

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/lkarlslund/chatsettings/pkg/config"
	"github.com/lkarlslund/chatsettings/pkg/wizard"
	"github.com/spf13/cobra"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Run configuration wizards",
	}

	var serverPath string
	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Configure the config service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServerConfig(serverPath)
			if err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("load server config: %w", err)
				}
				cfg = config.NewDefaultServerConfig()
			}
			return wizard.RunServerWizard(cmd.InOrStdin(), cmd.OutOrStdout(), serverPath, cfg)
		},
	}
	serverCmd.Flags().StringVar(&serverPath, "server-config", config.DefaultServerConfigPath(), "Server config TOML path")

	clientCmd := &cobra.Command{
		Use:   "client",
		Short: "Configure the config service URL and settings location",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClientConfig(opts.clientConfig)
			if err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("load client config: %w", err)
				}
				cfg = config.NewDefaultClientConfig()
			}
			return wizard.RunClientWizard(cmd.InOrStdin(), cmd.OutOrStdout(), opts.clientConfig, cfg)
		},
	}

	configCmd.AddCommand(serverCmd, clientCmd)
	return configCmd
}
