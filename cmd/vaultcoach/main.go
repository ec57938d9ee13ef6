package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ghiac/vaultcoach"
	"github.com/ghiac/vaultcoach/config"
	"github.com/ghiac/vaultcoach/engine"
	"github.com/ghiac/vaultcoach/log"
	"github.com/ghiac/vaultcoach/mcpserver"
	"github.com/ghiac/vaultcoach/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var storeDriver string

	root := &cobra.Command{
		Use:           "vaultcoach",
		Short:         "Pole vault training assistant backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&storeDriver, "store", "", "store driver override: memory|sqlite|mongodb")

	root.AddCommand(newServeCmd(&storeDriver))
	root.AddCommand(newMCPCmd(&storeDriver))
	root.AddCommand(newToolsCmd())
	root.AddCommand(newImportCmd(&storeDriver))
	root.AddCommand(newTokenCmd())
	return root
}

// loadConfig reads the environment and configures the logger to write to w
func loadConfig(storeDriver string, w io.Writer) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if storeDriver != "" {
		cfg.Store.Driver = storeDriver
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	log.Configure(w, cfg.Log.Format, cfg.Log.Level)
	return cfg, nil
}

func newServeCmd(storeDriver *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*storeDriver, os.Stdout)
			if err != nil {
				return err
			}
			app, err := vaultcoach.New(cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.NewServer(cfg, app).Start(ctx)
		},
	}
}

func newMCPCmd(storeDriver *string) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the training tools over MCP on stdio for one athlete",
		RunE: func(_ *cobra.Command, _ []string) error {
			// stdout carries the protocol
			cfg, err := loadConfig(*storeDriver, os.Stderr)
			if err != nil {
				return err
			}
			app, err := vaultcoach.New(cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			s, err := mcpserver.New(app.GetExecutor(), userID, vaultcoach.Version())
			if err != nil {
				return err
			}
			return mcpserver.ServeStdio(s)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "athlete user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tool catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := engine.LoadCatalog()
			if err != nil {
				return err
			}
			for _, t := range registry.GetTools() {
				required := t.RequiredParams()
				if len(required) > 0 {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%-28s %s (requires %v)\n", t.Name, t.Status, required)
				} else {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%-28s %s\n", t.Name, t.Status)
				}
			}
			return nil
		},
	}
}

func newImportCmd(storeDriver *string) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "import <sessions.json>",
		Short: "Import a JSON array of training sessions for an athlete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*storeDriver, os.Stderr)
			if err != nil {
				return err
			}
			app, err := vaultcoach.New(cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			n, err := app.ImportSessions(context.Background(), userID, f)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "imported %d sessions for %s\n", n, userID)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "athlete user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var userID string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a development bearer token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig("", os.Stderr)
			if err != nil {
				return err
			}
			token, err := server.IssueToken(cfg.Auth, userID, ttl)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "athlete user id")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
