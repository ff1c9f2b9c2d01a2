package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"truedata-client/pkg/utils"
)

func newMoversCmd(app *App) *cobra.Command {
	var (
		segment string
		topn    int
		losers  bool
	)

	cmd := &cobra.Command{
		Use:   "movers",
		Short: "Show top gainers or losers for a segment",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			client, err := app.client()
			if err != nil {
				return err
			}

			rows, err := client.History().GetGainersLosers(cmd.Context(), segment, topn, !losers)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				output.Warning("no movers for segment %s", segment)
				return nil
			}
			if output.IsJSON() {
				return output.JSON(rows)
			}

			table := NewTable(output, "SYMBOL", "LTP", "PREV CLOSE", "CHANGE", "CHG%", "VOLUME")
			for _, r := range rows {
				table.AddRow(
					r.Symbol,
					utils.FormatPrice(r.LTP),
					utils.FormatPrice(r.PrevClose),
					output.ChangeColor(r.Change, utils.FormatPrice(r.Change)),
					output.ChangeColor(r.ChangePercent, utils.FormatPercent(r.ChangePercent)),
					fmt.Sprintf("%d", r.Volume),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&segment, "segment", "EQ", "market segment (EQ, FO, CDS, MCX)")
	cmd.Flags().IntVar(&topn, "n", 10, "number of rows")
	cmd.Flags().BoolVar(&losers, "losers", false, "show losers instead of gainers")
	return cmd
}
