package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcpcore/mcpcore/internal/oauthclient"
)

var hashSecretCmd = &cobra.Command{
	Use:   "hash-secret [client-secret]",
	Short: "Generate an Argon2id hash for an OAuth client secret",
	Long: `Generate an Argon2id hash of an OAuth client-credentials secret for
use in config, via oauthclient.CredentialStore.PinHash.

Example:
  mcpcore hash-secret "my-client-secret"

Security note: the secret will appear in shell history. Consider clearing
history after use, or pipe it in via an environment variable.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := oauthclient.HashSecret(args[0])
		if err != nil {
			return fmt.Errorf("hash-secret: %w", err)
		}
		fmt.Println(hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashSecretCmd)
}
