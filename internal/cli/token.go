package cli

import (
	"fmt"

	"github.com/babysteps/progression/internal/auth"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func init() {
	tokenCmd.Flags().String("role", auth.RoleViewer, "admin role (admin realm only)")
	rootCmd.AddCommand(tokenCmd)
}

var tokenCmd = &cobra.Command{
	Use:   "token <user|admin|service> <subject>",
	Short: "Mint a signed JWT for local testing",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		realm := auth.Realm(args[0])
		role := ""
		switch realm {
		case auth.RealmAdmin:
			role, _ = cmd.Flags().GetString("role")
		case auth.RealmUser:
			if _, err := uuid.Parse(args[1]); err != nil {
				return fmt.Errorf("user subject must be a uuid: %w", err)
			}
		}

		mgr := auth.NewJWTManager(cfg.JWTSecret, cfg.UserTokenExpiry(), cfg.AdminTokenExpiry(), cfg.ServiceTokenExpiry())
		tok, err := mgr.GenerateToken(realm, args[1], role)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}
