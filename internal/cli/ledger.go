package cli

import (
	"fmt"

	"github.com/babysteps/progression/internal/app"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func init() {
	ledgerCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(ledgerCmd)
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect point ledgers",
}

var verifyCmd = &cobra.Command{
	Use:   "verify <user-id>...",
	Short: "Check balance and ledger invariants for users",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := make([]uuid.UUID, 0, len(args))
		for _, a := range args {
			id, err := uuid.Parse(a)
			if err != nil {
				return fmt.Errorf("invalid user id %q: %w", a, err)
			}
			ids = append(ids, id)
		}

		return withRuntime(cmd.Context(), func(rt *app.Runtime) error {
			var failed int
			for _, id := range ids {
				res, err := rt.Engine.Progression.Verify(cmd.Context(), id)
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				if !res.AllPassed {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d ledgers failed verification", failed, len(ids))
			}
			return nil
		})
	},
}
