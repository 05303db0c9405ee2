package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lkarlslund/chatsettings/pkg/server"
	"github.com/spf13/cobra"
)

func newModelsCmd(opts *rootOptions) *cobra.Command {
	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "Resolve providers and models for the current credentials",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Show the available providers and models",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.start(cmd.Context())()
			printResolution(cmd.OutOrStdout(), a)
			return nil
		},
	}

	selectProviderCmd := &cobra.Command{
		Use:   "select-provider <id>",
		Short: "Select a custom provider (clears the model)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.start(cmd.Context())()
			if err := a.resolver.SelectProvider(args[0]); err != nil {
				return err
			}
			printResolution(cmd.OutOrStdout(), a)
			return nil
		},
	}

	selectModelCmd := &cobra.Command{
		Use:   "select-model <id>",
		Short: "Select a model of the current provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.start(cmd.Context())()
			if err := a.resolver.SelectModel(args[0]); err != nil {
				return err
			}
			printSelectedModel(cmd.OutOrStdout(), a)
			return nil
		},
	}

	var reconnect time.Duration
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-resolve models whenever the config service reloads its catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			defer a.start(ctx)()
			printResolution(cmd.OutOrStdout(), a)
			return watchCatalog(ctx, a, cmd.OutOrStdout(), reconnect)
		},
	}
	watchCmd.Flags().DurationVar(&reconnect, "reconnect", 5*time.Second, "Delay before reconnecting after the event feed drops")

	modelsCmd.AddCommand(listCmd, selectProviderCmd, selectModelCmd, watchCmd)
	return modelsCmd
}

// watchCatalog refreshes the resolver on every catalog event until ctx ends.
func watchCatalog(ctx context.Context, a *app, out io.Writer, reconnect time.Duration) error {
	for {
		err := watchOnce(ctx, a, out)
		if ctx.Err() != nil {
			return nil
		}
		a.logger.Warn("catalog event feed dropped", "err", err, "retry_in", reconnect)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnect):
		}
	}
}

func watchOnce(ctx context.Context, a *app, out io.Writer) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.api.EventsURL(), nil)
	if err != nil {
		return fmt.Errorf("dial events: %w", err)
	}
	defer conn.Close()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var ev server.Event
		if err := json.Unmarshal(b, &ev); err != nil || ev.Type != server.EventCatalogReloaded {
			continue
		}
		a.logger.Info("catalog reloaded, refreshing", "at", ev.At)
		if err := a.resolver.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn("refresh", "err", err)
			continue
		}
		printResolution(out, a)
	}
}

func printResolution(w io.Writer, a *app) {
	st := a.resolver.State()
	s := a.store.Snapshot()
	fmt.Fprintf(w, "mode: %s\n", s.APIKeyType)
	if st.Error != "" {
		fmt.Fprintf(w, "error: %s\n", st.Error)
	}
	ps := a.resolver.ProviderSelector()
	fmt.Fprintln(w, "providers:")
	for _, o := range ps.Options {
		fmt.Fprintf(w, "  %s %-20s %s\n", marker(o.ID == ps.Selected), o.ID, o.Name)
	}
	if ps.Hint != "" {
		fmt.Fprintf(w, "  (%s)\n", ps.Hint)
	}
	ms := a.resolver.ModelSelector()
	fmt.Fprintln(w, "models:")
	for _, o := range ms.Options {
		fmt.Fprintf(w, "  %s %-28s %s\n", marker(o.ID == ms.Selected), o.ID, o.Name)
	}
	switch {
	case ms.Hint != "":
		fmt.Fprintf(w, "  (%s)\n", ms.Hint)
	case ms.Disabled:
		fmt.Fprintln(w, "  (select a provider first)")
	}
}

func printSelectedModel(w io.Writer, a *app) {
	m, ok := a.resolver.SelectedModel()
	if !ok {
		fmt.Fprintln(w, "no model selected")
		return
	}
	fmt.Fprintf(w, "model:            %s (%s)\n", m.ID, m.Name)
	fmt.Fprintf(w, "api type:         %s\n", m.APIType)
	fmt.Fprintf(w, "context length:   %d\n", m.ContextLength)
	fmt.Fprintf(w, "vision:           %t\n", m.SupportsVision)
	fmt.Fprintf(w, "function calling: %t\n", m.SupportsFunctionCalling)
	fmt.Fprintf(w, "streaming:        %t\n", m.SupportsStreaming)
}

func marker(selected bool) string {
	if selected {
		return "*"
	}
	return " "
}
