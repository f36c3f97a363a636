package cli

import (
	"fmt"

	"github.com/babysteps/progression/internal/app"
	"github.com/babysteps/progression/internal/service"
	"github.com/spf13/cobra"
)

func init() {
	jobsCmd.AddCommand(jobsListCmd, jobsRunCmd)
	rootCmd.AddCommand(jobsCmd)
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Run scheduled maintenance jobs on demand",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the job names",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range []string{service.JobChallengeRollover, service.JobEventFinalize, service.JobMissionExpiry} {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

var jobsRunCmd = &cobra.Command{
	Use:   "run <name|all>",
	Short: "Run one job, or every job with \"all\"",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(rt *app.Runtime) error {
			if args[0] == "all" {
				results, err := rt.Engine.Jobs.RunAll(cmd.Context())
				if perr := printJSON(cmd.OutOrStdout(), results); perr != nil {
					return perr
				}
				return err
			}
			res, err := rt.Engine.Jobs.Run(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		})
	},
}
