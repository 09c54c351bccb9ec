// cmd/webhookctl/token.go
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/javajoker/digistore/internal/utils"
)

func tokenCmd() *cobra.Command {
	var secret string
	var ttlHours int

	cmd := &cobra.Command{
		Use:   "token [operator-id]",
		Short: "Mint an operator token for the admin API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("secret not provided and JWT_SECRET not set")
			}
			if ttlHours < 1 {
				return errors.New("ttl must be at least one hour")
			}

			utils.SetJWTSecret(secret)
			token, err := utils.GenerateJWT(args[0], utils.RoleOperator, ttlHours)
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "JWT signing secret")
	cmd.Flags().IntVar(&ttlHours, "ttl", 12, "token lifetime in hours")

	return cmd
}
