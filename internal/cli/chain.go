package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"truedata-client/internal/chain"
	"truedata-client/pkg/utils"
)

func newChainCmd(app *App) *cobra.Command {
	var (
		expiry      string
		length      int
		futurePrice float64
		strikeStep  float64
		refresh     time.Duration
		afterHours  bool
	)

	cmd := &cobra.Command{
		Use:   "chain ROOT",
		Short: "Stream a live option chain for a root symbol",
		Long: `chain builds a strike ladder around the current future price, subscribes
every CE/PE leg and redraws the chain table as updates arrive.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			exp, err := time.Parse("2006-01-02", expiry)
			if err != nil {
				return fmt.Errorf("parse --expiry: %w", err)
			}

			client, err := app.client()
			if err != nil {
				return err
			}
			if err := client.Connect(cmd.Context()); err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer client.Disconnect()

			chainCfg := chain.Config{
				Root:        args[0],
				Expiry:      exp,
				FuturePrice: futurePrice,
				Length:      length,
				StrikeStep:  strikeStep,
				AfterHours:  afterHours,
			}
			futureContract := fmt.Sprintf("%s%sFUT", args[0], exp.Format("060102"))
			ch, err := client.StartOptionChain(cmd.Context(), chainCfg, futureContract)
			if err != nil {
				return err
			}
			defer ch.Stop()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			ticker := time.NewTicker(refresh)
			defer ticker.Stop()

			for {
				select {
				case <-sig:
					output.Println()
					return nil
				case <-ticker.C:
					rows := ch.Snapshot(false)
					if output.IsJSON() {
						output.JSON(rows)
						continue
					}
					table := NewTable(output, "STRIKE", "TYPE", "LTP", "CHG%", "OI", "OI-CHG%", "BID", "ASK", "IV")
					for _, r := range rows {
						table.AddRow(
							utils.FormatPrice(r.Strike),
							string(r.Right),
							utils.FormatPrice(r.LTP),
							output.ChangeColor(r.ChangePercent, utils.FormatPercent(r.ChangePercent)),
							fmt.Sprintf("%d", r.OI),
							output.ChangeColor(r.OIChangePerc, utils.FormatPercent(r.OIChangePerc)),
							utils.FormatPrice(r.Bid),
							utils.FormatPrice(r.Ask),
							fmt.Sprintf("%.2f", r.IV),
						)
					}
					table.Render()
					output.Println()
				}
			}
		},
	}

	cmd.Flags().StringVar(&expiry, "expiry", "", "option expiry date (2006-01-02), required")
	cmd.Flags().IntVar(&length, "length", 10, "number of strikes in the ladder")
	cmd.Flags().Float64Var(&futurePrice, "future-price", 0, "seed future price (default: last historical close)")
	cmd.Flags().Float64Var(&strikeStep, "strike-step", 0, "strike spacing (default: inferred from chain definition)")
	cmd.Flags().DurationVar(&refresh, "refresh", 2*time.Second, "table redraw interval")
	cmd.Flags().BoolVar(&afterHours, "after-hours", false, "keep updating outside market hours")
	cmd.MarkFlagRequired("expiry")
	return cmd
}
