// File: cmd/prioritize.go
package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sast-agent/internal/findings"
	"github.com/xkilldash9x/sast-agent/internal/observability"
	"github.com/xkilldash9x/sast-agent/internal/results"
)

// newPrioritizeCmd creates the `prioritize` command. It scores findings
// offline; no completion service or credential is involved.
func newPrioritizeCmd(_ *rootOptions) *cobra.Command {
	var findingsPath string

	cmd := &cobra.Command{
		Use:   "prioritize",
		Short: "Rank findings by priority score without contacting the completion service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, err := findings.Load(findingsPath)
			if err != nil {
				return err
			}
			observability.GetLogger().Debug("Ranking findings", zap.Int("count", len(batch)))
			return writeRankTable(cmd.OutOrStdout(), results.Rank(batch))
		},
	}

	cmd.Flags().StringVarP(&findingsPath, "findings", "i", "", "Path to the findings JSON file.")
	_ = cmd.MarkFlagRequired("findings")
	return cmd
}

// writeRankTable prints one aligned row per finding, highest score first.
func writeRankTable(out io.Writer, ranked []results.RankedFinding) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tINDEX\tSCORE\tPRIORITY\tSEVERITY\tEXPOSURE\tCRITICAL\tFILE")
	for i, r := range ranked {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t%s\t%s\t%t\t%s\n",
			i+1, r.Index, r.Score, r.Priority,
			r.Finding.Severity,
			r.Finding.Metadata.Exposure,
			r.Finding.Metadata.CriticalAsset,
			r.Finding.FilePath,
		)
	}
	return tw.Flush()
}
