package main

import (
	"bufio"

	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue tokens for a user",
	}
	cmd.AddCommand(newTokenMintCmd(false), newTokenMintCmd(true))
	return cmd
}

// newTokenMintCmd builds "token mint" for API keys or "token session" for session tokens
func newTokenMintCmd(session bool) *cobra.Command {
	use, short := "mint <username>", "Mint an API token after checking the user's password"
	if session {
		use, short = "session <username>", "Sign a session token after checking the user's password"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := cliLogger(cmd, cfg)
			defer logger.Shutdown()

			st, err := openStores(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer st.close()

			auth, err := newAuthServices(cfg, st, nil, logger)
			if err != nil {
				return err
			}

			password, err := readSecret(cmd, bufio.NewReader(cmd.InOrStdin()), "Password: ")
			if err != nil {
				return err
			}
			if err := auth.credentials.CheckCredentials(cmd.Context(), args[0], password); err != nil {
				return err
			}

			var token string
			if session {
				token, err = auth.tokens.MintToken(args[0], auth.tokens.DefaultLifetime())
			} else {
				token, err = auth.tokens.MintAPIToken(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}

			cmd.Println(token)
			return nil
		},
	}
}
