package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"truedata-client/pkg/utils"
)

func newBhavcopyCmd(app *App) *cobra.Command {
	var (
		segment    string
		dateStr    string
		incomplete bool
	)

	cmd := &cobra.Command{
		Use:   "bhavcopy",
		Short: "Fetch an end-of-day bhavcopy file",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			client, err := app.client()
			if err != nil {
				return err
			}

			date := time.Now()
			if dateStr != "" {
				if date, err = time.Parse("2006-01-02", dateStr); err != nil {
					return fmt.Errorf("parse --date: %w", err)
				}
			}

			rows, err := client.History().Bhavcopy(cmd.Context(), segment, date, !incomplete)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				output.Warning("no bhavcopy for %s on %s", segment, date.Format("2006-01-02"))
				return nil
			}
			if output.IsJSON() {
				return output.JSON(rows)
			}

			table := NewTable(output, "SYMBOL", "OPEN", "HIGH", "LOW", "CLOSE", "VOLUME", "OI")
			for _, r := range rows {
				table.AddRow(
					r.Symbol,
					utils.FormatPrice(r.Open),
					utils.FormatPrice(r.High),
					utils.FormatPrice(r.Low),
					utils.FormatPrice(r.Close),
					fmt.Sprintf("%d", r.Volume),
					fmt.Sprintf("%d", r.OI),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&segment, "segment", "EQ", "market segment (EQ, FO, CDS, MCX)")
	cmd.Flags().StringVar(&dateStr, "date", "", "date (2006-01-02), default today")
	cmd.Flags().BoolVar(&incomplete, "allow-incomplete", false, "fetch even if the day's run is not completed")
	return cmd
}

func newSymbolsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "symbols SYMBOL [SYMBOL...]",
		Short: "Resolve symbols against the cached symbol master",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			client, err := app.client()
			if err != nil {
				return err
			}
			cache := client.SymbolCache()
			if cache == nil {
				return fmt.Errorf("symbol cache is disabled in config")
			}
			if err := cache.Load(cmd.Context()); err != nil {
				return err
			}

			table := NewTable(output, "SYMBOL", "ID")
			for _, sym := range args {
				if id, ok := cache.ID(sym); ok {
					table.AddRow(sym, fmt.Sprintf("%d", id))
				} else {
					table.AddRow(sym, output.Red("not found"))
				}
			}
			table.Render()
			return nil
		},
	}
	return cmd
}
