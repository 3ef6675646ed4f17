package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/augmentalis/uiscout/internal/observability"
	"github.com/augmentalis/uiscout/internal/scrape"
)

// newAppsCmd creates the `apps` command: a listing of every learned app with
// its mode and completion.
func newAppsCmd() *cobra.Command {
	appsCmd := &cobra.Command{
		Use:   "apps",
		Short: "List known apps and their learning progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			memory, _ := cmd.Flags().GetBool("memory")
			asJSON, _ := cmd.Flags().GetBool("json")

			repo, pool, err := openRepository(ctx, appCfg, logger, memory)
			if err != nil {
				return err
			}
			if pool != nil {
				defer pool.Close()
			}

			coord := scrape.New(repo, appCfg.Scraper, logger)
			apps, err := coord.ListApps(ctx)
			if err != nil {
				return err
			}

			if asJSON {
				out, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(apps, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			}

			if len(apps) == 0 {
				fmt.Println("No apps recorded yet.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PACKAGE\tMODE\tLEARNED\tCOMPLETION\tSCREENS\tELEMENTS\tLAST SEEN")
			for _, app := range apps {
				learned := "no"
				if app.FullyLearned {
					learned = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%.1f%%\t%d\t%d\t%s\n",
					app.PackageID, app.Mode, learned, app.Completion*100,
					app.TotalScreens, app.TotalElements,
					app.LastSeen.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}

	appsCmd.Flags().Bool("memory", false, "Use the in-memory repository regardless of database config.")
	appsCmd.Flags().Bool("json", false, "Emit the app records as JSON.")
	return appsCmd
}
