package cmd

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/review-harvester/internal/app"
	"github.com/JakeFAU/review-harvester/internal/store"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-city completion of the venue list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			st, err := app.NewStore(rt.cfg, nil, rt.logger)
			if err != nil {
				return err
			}
			targets, err := st.LoadTargets(cmd.Context())
			if err != nil {
				return err
			}
			renderSummary(cmd, st.Summary(targets))
			return nil
		},
	}
}

func renderSummary(cmd *cobra.Command, rows []store.CitySummary) {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"City", "Total", "Complete", "Pending"})

	var total, complete, pending int
	for _, r := range rows {
		t.AppendRow(table.Row{r.City, r.Total, r.Complete, r.Pending})
		total += r.Total
		complete += r.Complete
		pending += r.Pending
	}
	t.AppendFooter(table.Row{"All", total, complete, pending})
	t.Render()
}
