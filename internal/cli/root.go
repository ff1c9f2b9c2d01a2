package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"truedata-client/internal/config"
	"truedata-client/pkg/truedata"
)

// Version information
const (
	Version = "0.1.0"
)

// App holds the application dependencies shared by all commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	// Client is constructed lazily by commands that need the live session.
	Client *truedata.Client
}

// client builds (once) the facade client from configuration.
func (a *App) client() (*truedata.Client, error) {
	if a.Client != nil {
		return a.Client, nil
	}
	c, err := truedata.New(a.Config)
	if err != nil {
		return nil, err
	}
	a.Client = c
	return c, nil
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	rootCmd := &cobra.Command{
		Use:   "truedata",
		Short: "TrueData market-data client",
		Long: `truedata streams live market data over WebSocket and fetches historical
bars, ticks, top movers and bhavcopy files from the TrueData REST API.

Credentials are read from config (~/.config/truedata-client/config.yaml),
the environment (TD_LOGIN_ID, TD_PASSWORD) or a .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/truedata-client)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newStreamCmd(app))
	rootCmd.AddCommand(newHistoryCmd(app))
	rootCmd.AddCommand(newChainCmd(app))
	rootCmd.AddCommand(newMoversCmd(app))
	rootCmd.AddCommand(newBhavcopyCmd(app))
	rootCmd.AddCommand(newSymbolsCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"version": Version})
				return
			}
			output.Printf("truedata %s\n", Version)
		},
	}
}
