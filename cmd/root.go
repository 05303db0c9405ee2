package cmd

import (
	"fmt"
	"os"

	"github.com/lkarlslund/chatsettings/pkg/config"
	"github.com/lkarlslund/chatsettings/pkg/logutil"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	logLevel     string
	logFormat    string
	clientConfig string
	settingsPath string
}

// NewRootCmd builds the chatsettings command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "chatsettings",
		Short: "Chat provider, model and credential settings",
		Long:  "chatsettings manages a chat client's credential mode, provider and model selection, and runs the config service they are resolved against.",
	}
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if os.Geteuid() == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "warning: running as root")
		}
		return logutil.Configure(opts.logLevel, opts.logFormat)
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "loglevel", "info", "Log level (trace, debug, info, warn, error, fatal)")
	root.PersistentFlags().StringVar(&opts.logFormat, "logformat", logutil.FormatText, "Log format (text, json, logfmt)")
	root.PersistentFlags().StringVar(&opts.clientConfig, "config", config.DefaultClientConfigPath(), "Client config TOML path")
	root.PersistentFlags().StringVar(&opts.settingsPath, "settings", "", "Settings JSON path (overrides settings_path from the client config)")

	root.AddCommand(
		newServeCmd(),
		newConfigCmd(opts),
		newSettingsCmd(opts),
		newModelsCmd(opts),
		newVersionCmd(),
	)
	return root
}

func Execute() error {
	return NewRootCmd().Execute()
}
