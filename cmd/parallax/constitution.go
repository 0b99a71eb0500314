package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"parallax/internal/config"
	"parallax/internal/constitution"
)

var failuresLimit int

var constitutionCmd = &cobra.Command{
	Use:   "constitution",
	Short: "Inspect persisted constitution violations",
}

var constitutionFailuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "List recent constitution failures and warnings",
	RunE:  runConstitutionFailures,
}

func init() {
	constitutionFailuresCmd.Flags().IntVar(&failuresLimit, "limit", 20, "maximum number of most recent reports to show")
	constitutionCmd.AddCommand(constitutionFailuresCmd)
}

// runConstitutionFailures prints a table of the last N persisted constitution
// reports, newest last (SPEC_FULL.md's constitution_cli-style failure
// inspection).
func runConstitutionFailures(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store := constitution.NewFailureStore(cfg.Output.BaseDir)
	reports := store.Last(failuresLimit)
	if len(reports) == 0 {
		fmt.Println("no constitution failures recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tAGENT\tPASSED\tCRITICAL\tWARNINGS\tFIRST REASON")
	for _, r := range reports {
		reason := ""
		if len(r.Failures) > 0 {
			reason = r.Failures[0].Reason
		} else if len(r.Warnings) > 0 {
			reason = r.Warnings[0].Reason
		}
		fmt.Fprintf(w, "%s\t%s\t%v\t%d\t%d\t%s\n",
			r.Timestamp.Format("2006-01-02T15:04:05"), r.Agent, r.Passed,
			len(r.Failures), len(r.Warnings), reason)
	}
	return w.Flush()
}
