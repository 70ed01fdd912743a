package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/guillermoBallester/querylens/internal/secret"
	"github.com/spf13/cobra"
)

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage the signing secret in the OS keyring",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set",
		Short: "Store the signing secret read from stdin",
		Long: `set reads one line from stdin and stores it as the token signing secret in
the OS keyring. Start the server with SECRET_KEYRING=true to use it.`,
		Example: `  openssl rand -hex 32 | querylens secret set`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kr, err := secret.OpenKeyring()
			if err != nil {
				return err
			}
			return storeSecret(cmd, kr)
		},
	})
	return cmd
}

func storeSecret(cmd *cobra.Command, kr *secret.Keyring) error {
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("reading secret from stdin: %w", err)
	}
	if err := kr.Store([]byte(strings.TrimSpace(line))); err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.ErrOrStderr(), "signing secret stored in OS keyring")
	return err
}
