package cli

import (
	"github.com/babysteps/progression/internal/app"
	"github.com/babysteps/progression/internal/catalog"
	"github.com/spf13/cobra"
)

func init() {
	seedCmd.Flags().StringP("file", "f", "catalog/seed.toml", "catalog file to load")
	seedCmd.Flags().Bool("dry-run", false, "validate the file without writing")
	rootCmd.AddCommand(seedCmd)
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load badge rules, challenges, missions and shop items from a TOML catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		seed, err := catalog.LoadFile(path)
		if err != nil {
			return err
		}
		if dryRun {
			logger.Info("catalog is valid", "file", path,
				"rules", len(seed.Rules), "challenges", len(seed.Challenges),
				"missions", len(seed.Missions), "shop_items", len(seed.ShopItems))
			return nil
		}

		return withRuntime(cmd.Context(), func(rt *app.Runtime) error {
			sum, err := catalog.Apply(cmd.Context(), rt.Engine.Catalog, seed)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sum)
		})
	},
}
