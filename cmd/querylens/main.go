package main

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"

	"github.com/guillermoBallester/querylens/internal/config"
	"github.com/guillermoBallester/querylens/internal/secret"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "querylens",
		Short: "Inspect the SQL queries a request ran and replay them safely",
		Long: `querylens groups the SQL executed while serving a request, flags repeated
queries and the time they cost, and lets read-only statements be re-run or
explained later through signed tokens.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(),
		newTokenCmd(),
		newSummarizeCmd(),
		newSecretCmd(),
	)
	return root
}

// newLogger writes JSON to stderr. stdout is reserved for the MCP stdio transport.
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// resolveSecret returns the signing secret from the configured source.
func resolveSecret(cfg *config.Config) ([]byte, error) {
	var src secret.Source = secret.Static(cfg.SecretKey)
	if cfg.SecretKeyring {
		kr, err := secret.OpenKeyring()
		if err != nil {
			return nil, err
		}
		src = kr
	}
	key, err := src.Secret()
	if err != nil {
		return nil, fmt.Errorf("resolving signing secret: %w", err)
	}
	return key, nil
}

// redactDSN masks the password in a database URL for safe logging.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
