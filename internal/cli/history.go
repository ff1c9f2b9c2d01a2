package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"truedata-client/internal/hist"
	"truedata-client/internal/models"
	"truedata-client/pkg/utils"
)

const cliTimeLayout = "2006-01-02 15:04"

func newHistoryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Fetch historical bars and ticks",
	}
	cmd.AddCommand(newHistoryBarsCmd(app))
	cmd.AddCommand(newHistoryTicksCmd(app))
	return cmd
}

func newHistoryBarsCmd(app *App) *cobra.Command {
	var (
		barSize string
		nbars   int
		from    string
		to      string
	)

	cmd := &cobra.Command{
		Use:   "bars SYMBOL",
		Short: "Fetch historical bars for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			client, err := app.client()
			if err != nil {
				return err
			}

			opts := hist.Options{BarSize: barSize}
			end := time.Now()
			if to != "" {
				if end, err = time.Parse(cliTimeLayout, to); err != nil {
					return fmt.Errorf("parse --to: %w", err)
				}
			}

			var bars []models.HistoricalBar
			if from != "" {
				start, err := time.Parse(cliTimeLayout, from)
				if err != nil {
					return fmt.Errorf("parse --from: %w", err)
				}
				bars, err = client.History().GetHistoricBars(cmd.Context(), args[0], start, end, opts)
				if err != nil {
					return err
				}
			} else {
				bars, err = client.History().GetNHistoricBars(cmd.Context(), args[0], end, nbars, opts)
				if err != nil {
					return err
				}
			}

			if output.IsJSON() {
				return output.JSON(bars)
			}
			table := NewTable(output, "TIME", "OPEN", "HIGH", "LOW", "CLOSE", "VOLUME", "OI")
			for _, bar := range bars {
				table.AddRow(
					bar.Timestamp.Format("2006-01-02 15:04"),
					utils.FormatPrice(bar.Open),
					utils.FormatPrice(bar.High),
					utils.FormatPrice(bar.Low),
					utils.FormatPrice(bar.Close),
					fmt.Sprintf("%d", bar.Volume),
					fmt.Sprintf("%d", bar.OI),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&barSize, "interval", "", "bar size (1min, 5min, 15min, 30min, 60min, eod)")
	cmd.Flags().IntVar(&nbars, "n", 20, "number of bars when no --from is given")
	cmd.Flags().StringVar(&from, "from", "", "start time (2006-01-02 15:04)")
	cmd.Flags().StringVar(&to, "to", "", "end time (2006-01-02 15:04), default now")
	return cmd
}

func newHistoryTicksCmd(app *App) *cobra.Command {
	var (
		nticks int
		bidask bool
	)

	cmd := &cobra.Command{
		Use:   "ticks SYMBOL",
		Short: "Fetch recent historical ticks for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			client, err := app.client()
			if err != nil {
				return err
			}

			ticks, err := client.History().GetNHistoricTicks(cmd.Context(), args[0],
				time.Now(), nticks, hist.Options{BidAsk: bidask})
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(ticks)
			}

			table := NewTable(output, "TIME", "LTP", "VOLUME", "OI", "BID", "ASK")
			for _, t := range ticks {
				table.AddRow(
					t.Timestamp.Format("15:04:05"),
					utils.FormatPrice(t.LTP),
					fmt.Sprintf("%d", t.Volume),
					fmt.Sprintf("%d", t.OI),
					utils.FormatPrice(t.Bid),
					utils.FormatPrice(t.Ask),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().IntVar(&nticks, "n", 50, "number of ticks")
	cmd.Flags().BoolVar(&bidask, "bidask", false, "include bid/ask columns")
	return cmd
}
