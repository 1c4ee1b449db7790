// Package main is the entry point for the confidant CLI.
package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/confidant/internal/core"
	"github.com/flemzord/confidant/internal/security"
	"github.com/flemzord/confidant/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "warning: .env:", err)
	}
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "confidant",
		Short:         "A personal streaming chat companion",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	root.PersistentFlags().String("log-level", "", "Override the configured log level")
	root.AddCommand(
		versionCmd(),
		serveCmd(),
		chatCmd(),
		historyCmd(),
		profileCmd(),
		configCmd(),
	)
	return root
}

// buildRuntime assembles the application from the persistent flags.
func buildRuntime(cmd *cobra.Command) (*app.Runtime, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	level, _ := cmd.Flags().GetString("log-level")
	return app.Build(cmd.Context(), app.Params{
		ConfigPath: cfgPath,
		LogLevel:   level,
		LogOutput:  cmd.ErrOrStderr(),
		Version:    version,
	})
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "confidant %s (commit: %s, built: %s)\n", version, commit, date)
			mods := core.GetModules()
			if len(mods) == 0 {
				fmt.Fprintln(out, "\nNo compiled modules.")
				return
			}
			fmt.Fprintln(out, "\nCompiled modules:")
			for _, mod := range mods {
				fmt.Fprintf(out, "  %s\n", mod.ID)
			}
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the chat gateway with all configured modules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := buildRuntime(cmd)
			if err != nil {
				return err
			}
			return rt.Serve(ctx, version)
		},
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <prompt...>",
		Short: "Send one prompt and stream the reply to stdout",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := buildRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			events, err := rt.Session.Handle(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var failure error
			for ev := range events {
				if ev.IsError() {
					failure = fmt.Errorf("chat: %s", ev.Error)
					continue
				}
				fmt.Fprint(out, ev.Content)
			}
			fmt.Fprintln(out)
			if failure == nil && ctx.Err() != nil {
				return ctx.Err()
			}
			return failure
		},
	}
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect or reset the stored conversation",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the stored conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := buildRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			h := rt.Session.Snapshot()
			out := cmd.OutOrStdout()
			if len(h) == 0 {
				fmt.Fprintln(out, "No conversation stored.")
				return nil
			}
			for _, t := range h {
				fmt.Fprintf(out, "%s: %s\n", t.Role, t.Content)
			}
			fmt.Fprintf(out, "\nTurns: %d, exchanges: %d\n", len(h), h.Pairs())
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Erase the stored conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := buildRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			n := rt.Session.Turns()
			if err := rt.Session.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d turns.\n", n)
			return nil
		},
	}

	cmd.AddCommand(show, clearCmd)
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and print it with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := buildRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			out := cmd.OutOrStdout()
			source := rt.ConfigPath
			if source == "" {
				source = "built-in defaults"
			}
			fmt.Fprintf(out, "Configuration OK (%s)\n\n", source)
			return writeRedacted(out, rt.Config, rt.Redactor)
		},
	})
	return cmd
}

// writeRedacted renders v as YAML after masking secrets.
func writeRedacted(w io.Writer, v any, r *security.Redactor) error {
	raw, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("render config: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("render config: %w", err)
	}
	r.RedactMap(doc)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("render config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("render config: %w", err)
	}
	_, err = w.Write(buf.Bytes())
	return err
}
