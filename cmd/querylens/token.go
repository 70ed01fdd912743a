package main

import (
	"encoding/json"
	"fmt"

	"github.com/guillermoBallester/querylens/internal/adapter/token"
	"github.com/guillermoBallester/querylens/internal/config"
	"github.com/guillermoBallester/querylens/internal/core/domain"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign or inspect replay tokens with the configured secret",
	}
	cmd.AddCommand(newTokenSignCmd(), newTokenVerifyCmd())
	return cmd
}

// loadCodec builds a codec from the environment. Transport settings do not
// matter here, so stdio is forced to skip the HTTP bearer-token requirement.
func loadCodec() (*token.Codec, error) {
	stdio := config.TransportStdio
	cfg, err := config.Load(config.Overrides{Transport: &stdio})
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	key, err := resolveSecret(cfg)
	if err != nil {
		return nil, err
	}
	return token.NewCodec(key, domain.NewReadOnlyPolicy(cfg.ReadOnlyKeyword))
}

func newTokenSignCmd() *cobra.Command {
	var statement, paramsJSON string
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a statement and its parameters",
		Example: `  querylens token sign --statement 'SELECT * FROM users WHERE id = $1' --params-json '{"positional":[42]}'
  querylens token sign --statement 'SELECT * FROM users WHERE id = @id' --params-json '{"named":{"id":42}}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var params domain.Params
			if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
				return fmt.Errorf("parsing --params-json: %w", err)
			}
			codec, err := loadCodec()
			if err != nil {
				return err
			}
			return signStatement(cmd, codec, statement, params)
		},
	}
	cmd.Flags().StringVar(&statement, "statement", "", "SQL statement to sign")
	cmd.Flags().StringVar(&paramsJSON, "params-json", "", `Parameters as {"positional":[...]} or {"named":{...}}`)
	_ = cmd.MarkFlagRequired("statement")
	_ = cmd.MarkFlagRequired("params-json")
	return cmd
}

func signStatement(cmd *cobra.Command, codec *token.Codec, statement string, params domain.Params) error {
	tok, ok := codec.Sign(statement, params)
	if !ok {
		return fmt.Errorf("statement cannot be signed: it needs parameters and must be read-only")
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), tok)
	return err
}

func newTokenVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify TOKEN",
		Short: "Verify a token and print the statement it carries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := loadCodec()
			if err != nil {
				return err
			}
			return verifyToken(cmd, codec, args[0])
		},
	}
}

type verifiedToken struct {
	Statement string        `json:"statement"`
	Params    domain.Params `json:"params"`
	SQL       string        `json:"sql"`
}

func verifyToken(cmd *cobra.Command, codec *token.Codec, tok string) error {
	q, err := codec.Verify(tok)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(verifiedToken{
		Statement: q.Statement,
		Params:    q.Params,
		SQL:       domain.FormatSQL(q.Statement, q.Params),
	})
}
