package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cychen2021/walmart-receipt-crawler/lib/telemetry"
)

var verbose *bool

var rootCmd = &cobra.Command{
	Use:   "walmart-receipts",
	Short: "walmart-receipts crawls your Walmart order history and exports receipts to PDF.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(*verbose)
		// missing telemetry.json5 just means spans go nowhere
		tel, err := telemetry.SetupFromEnv(cmd.Context(), "walmart-receipts")
		if err == nil {
			telemetry.InstrumentPerfStats(cmd.Context())
			cobra.OnFinalize(func() {
				tel.Shutdown(context.Background())
			})
		}
	},
}

func init() {
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
