package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/lkarlslund/chatsettings/pkg/catalog"
	"github.com/lkarlslund/chatsettings/pkg/credentials"
	"github.com/lkarlslund/chatsettings/pkg/settings"
	"github.com/spf13/cobra"
)

func newSettingsCmd(opts *rootOptions) *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Show and change credential settings",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the current settings (secrets masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			printSettings(cmd.OutOrStdout(), a.store.Snapshot())
			return nil
		},
	}

	modeCmd := &cobra.Command{
		Use:       "mode <builtin|custom>",
		Short:     "Switch between builtin models and your own provider keys",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(settings.APIKeyTypeBuiltin), string(settings.APIKeyTypeCustom)},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.start(cmd.Context())()
			if err := a.creds.SetMode(settings.APIKeyType(args[0])); err != nil {
				return err
			}
			printResolution(cmd.OutOrStdout(), a)
			return nil
		},
	}

	accessKeyCmd := &cobra.Command{
		Use:   "access-key <key>",
		Short: "Set the builtin model access key (empty string clears it)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.start(cmd.Context())()
			if err := a.creds.SetBuiltinAccessKey(args[0]); err != nil {
				return err
			}
			printResolution(cmd.OutOrStdout(), a)
			return nil
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the builtin model access key against the config service",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			status := a.creds.ValidateBuiltinKey(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "access key: %s\n", status)
			if status != credentials.StatusValid {
				return fmt.Errorf("builtin access key is %s", status)
			}
			return nil
		},
	}

	apiKeyCmd := &cobra.Command{
		Use:   "api-key <provider> [key]",
		Short: "Set or clear the API key of a custom provider",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isCustomProvider(args[0]) {
				return fmt.Errorf("unknown provider %q (see 'settings providers')", args[0])
			}
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			key := ""
			if len(args) == 2 {
				key = args[1]
			}
			if err := a.creds.SetAPIKey(args[0], key); err != nil {
				return err
			}
			if key == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "cleared %s api key\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s api key %s\n", args[0], mask(key))
			return nil
		},
	}

	proxyCmd := &cobra.Command{
		Use:   "openai-proxy <url>",
		Short: "Set the OpenAI proxy URL (empty string uses the official endpoint)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			return a.creds.SetOpenAIProxyURL(args[0])
		},
	}

	baseURLCmd := &cobra.Command{
		Use:   "compatible-base-url <url>",
		Short: "Set the base URL of the OpenAI compatible provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			if err := a.creds.SetOpenAICompatibleBaseURL(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "openai compatible base url: %s\n", a.store.Snapshot().OpenAICompatibleConfig.EffectiveBaseURL())
			return nil
		},
	}

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List the providers you can store an API key for",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			s := a.store.Snapshot()
			for _, p := range credentials.CustomProviders() {
				state := "not set"
				if k := s.APIKey(p.ID); k != "" {
					state = mask(k)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-18s %-18s %-10s %s\n", p.ID, p.Name, state, p.Description)
			}
			return nil
		},
	}

	settingsCmd.AddCommand(showCmd, modeCmd, accessKeyCmd, validateCmd, apiKeyCmd, proxyCmd, baseURLCmd, providersCmd)
	return settingsCmd
}

func isCustomProvider(id string) bool {
	for _, p := range credentials.CustomProviders() {
		if p.ID == id {
			return true
		}
	}
	return false
}

func printSettings(w io.Writer, s settings.Settings) {
	fmt.Fprintf(w, "mode:                 %s\n", s.APIKeyType)
	fmt.Fprintf(w, "builtin access key:   %s\n", orNone(mask(s.BuiltinModelAccessKey)))
	fmt.Fprintf(w, "provider:             %s\n", orNone(s.ChatProvider))
	fmt.Fprintf(w, "model:                %s\n", orNone(s.ChatModel))
	fmt.Fprintf(w, "openai proxy url:     %s\n", orNone(s.OpenAIProxyURL))
	fmt.Fprintf(w, "compatible base url:  %s\n", s.OpenAICompatibleConfig.EffectiveBaseURL())
	for _, id := range catalog.SortedIDs(s.APIKeys) {
		fmt.Fprintf(w, "api key %-13s %s\n", id+":", mask(s.APIKeys[id]))
	}
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:4] + strings.Repeat("*", len(secret)-8) + secret[len(secret)-4:]
}

func orNone(v string) string {
	if v == "" {
		return "(none)"
	}
	return v
}
