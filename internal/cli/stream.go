package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"truedata-client/pkg/utils"
)

func newStreamCmd(app *App) *cobra.Command {
	var barsOnly bool

	cmd := &cobra.Command{
		Use:   "stream SYMBOL [SYMBOL...]",
		Short: "Stream live market data for one or more symbols",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			client, err := app.client()
			if err != nil {
				return err
			}
			if err := client.Connect(cmd.Context()); err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer client.Disconnect()

			ids, err := client.StartLiveData(args, nil)
			if err != nil {
				return fmt.Errorf("subscribe: %w", err)
			}
			output.Info("streaming %d symbols (ids %v), Ctrl-C to stop", len(args), ids)
			output.Printf("market: %s\n", output.MarketStatus(string(utils.GetMarketStatus())))

			streamID, ticks := client.StreamTicks(args)
			defer client.CloseStream(streamID)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

			for {
				select {
				case <-sig:
					output.Println()
					output.Info("stopping")
					return nil
				case tick, ok := <-ticks:
					if !ok {
						return nil
					}
					if barsOnly && tick.Volume == 0 {
						continue
					}
					if output.IsJSON() {
						output.JSON(tick)
						continue
					}
					output.Printf("%s  %-24s  ltp=%s  o=%s h=%s l=%s  oi=%d\n",
						tick.Timestamp.Format("15:04:05"),
						tick.Symbol,
						utils.FormatPrice(tick.LTP),
						utils.FormatPrice(tick.Open),
						utils.FormatPrice(tick.High),
						utils.FormatPrice(tick.Low),
						tick.OI)
				}
			}
		},
	}

	cmd.Flags().BoolVar(&barsOnly, "bars-only", false, "print only bar-backed updates")
	return cmd
}
