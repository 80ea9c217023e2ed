package commands

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/cychen2021/walmart-receipt-crawler/lib/browser"
	"github.com/cychen2021/walmart-receipt-crawler/lib/configutil"
	"github.com/cychen2021/walmart-receipt-crawler/lib/export"
	"github.com/cychen2021/walmart-receipt-crawler/lib/orders"
	"github.com/cychen2021/walmart-receipt-crawler/lib/probe"
	"github.com/cychen2021/walmart-receipt-crawler/lib/restyutil"
	"github.com/cychen2021/walmart-receipt-crawler/lib/serviceutil"
)

// Config carries the knobs that rarely change between runs. Flags
// override whatever the config file says.
type Config struct {
	OutDir                  string `json:"out_dir"`
	ProfileDir              string `json:"profile_dir"`
	UserAgent               string `json:"user_agent"`
	ScrollStep              int    `json:"scroll_step"`
	StallRetries            int    `json:"stall_retries"`
	ConsecutiveTimeoutLimit int    `json:"consecutive_timeout_limit"`
}

const configFile = "walmart-receipts.json5"

var exportFlags struct {
	start      *string
	end        *string
	outDir     *string
	combined   *bool
	headful    *bool
	profileDir *string
	attach     *bool
	debugPort  *int
	maxCount   *int
	timeout    *int
	fastProbe  *bool
	debugHttp  *bool
}

func init() {
	f := exportCmd.Flags()
	exportFlags.start = f.String("start", "", "Start date (YYYY-MM-DD), default: today - 90 days.")
	exportFlags.end = f.String("end", "", "End date (YYYY-MM-DD), default: today.")
	exportFlags.outDir = f.String("out-dir", "receipts", "Directory to save receipt PDFs to.")
	exportFlags.combined = f.Bool("combined", false, "Combine all receipts into a single PDF instead of one file per order.")
	exportFlags.headful = f.Bool("headful", true, "Run a visible browser (recommended to pass bot checks).")
	exportFlags.profileDir = f.String("profile-dir", "", "Persistent browser profile directory that keeps your Walmart session.")
	exportFlags.attach = f.Bool("attach", false, "Attach to an already-running browser over CDP instead of launching one.")
	exportFlags.debugPort = f.Int("remote-debugging-port", 9222, "CDP port of the browser to attach to.")
	exportFlags.maxCount = f.Int("max", 0, "Max number of receipts to export, 0 means all.")
	exportFlags.timeout = f.Int("timeout", 45, "Per-action navigation/snapshot timeout in seconds.")
	exportFlags.fastProbe = f.Bool("fast-probe", false, "Probe detail address variants over plain HTTP using the browser's cookies.")
	exportFlags.debugHttp = f.Bool("debug-http", false, "Dump probe HTTP exchanges to .dev/resty/probe.")
	rootCmd.AddCommand(exportCmd)
}

func parseDate(value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad date %q, use YYYY-MM-DD, e.g. 2025-01-31", value)
	}
	return t, nil
}

func exportRange() (orders.DateRange, error) {
	rng := orders.DefaultRange(time.Now())
	start, err := parseDate(*exportFlags.start, rng.Start)
	if err != nil {
		return orders.DateRange{}, err
	}
	end, err := parseDate(*exportFlags.end, rng.End)
	if err != nil {
		return orders.DateRange{}, err
	}
	rng = orders.DateRange{Start: start, End: end}
	return rng, rng.Validate()
}

var exportCmd = &cobra.Command{
	Use:   "export [--start YYYY-MM-DD] [--end YYYY-MM-DD] [--combined]",
	Short: "Exports receipts in a date range to PDF.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		cfg, err := configutil.ReadConfig[Config](configFile)
		if err != nil && !os.IsNotExist(err) {
			serviceutil.Fatal("failed to read config", err)
		}

		rng, err := exportRange()
		if err != nil {
			serviceutil.Fatal("invalid date range", err)
		}

		outDir := *exportFlags.outDir
		if !cmd.Flags().Changed("out-dir") && cfg.OutDir != "" {
			outDir = cfg.OutDir
		}
		profileDir := *exportFlags.profileDir
		if profileDir == "" {
			profileDir = cfg.ProfileDir
		}

		slog.Info("crawling walmart receipts",
			"range", rng.String(), "combined", *exportFlags.combined)

		session, err := browser.NewSession(ctx, browser.Options{
			Headful:    *exportFlags.headful,
			ProfileDir: profileDir,
			Attach:     *exportFlags.attach,
			DebugPort:  *exportFlags.debugPort,
			ActionWait: time.Duration(*exportFlags.timeout) * time.Second,
			UserAgent:  cfg.UserAgent,
			ScrollStep: cfg.ScrollStep,
		})
		if err != nil {
			serviceutil.Fatal("failed to start browser session", err)
		}
		defer session.Close()

		err = orders.EnsureOrdersPage(ctx, session, func(message string) {
			fmt.Fprintln(os.Stderr, message)
		})
		if err != nil {
			serviceutil.Fatal("failed to open the orders page", err)
		}

		prober, err := buildProber(cmd, session)
		if err != nil {
			serviceutil.Fatal("failed to build address prober", err)
		}

		runner := export.Runner{
			Source: orders.Enumerator{
				Browser:      session,
				StallRetries: cfg.StallRetries,
			},
			Capturer: orders.Capturer{
				Browser:  session,
				Resolver: orders.Resolver{Prober: prober},
			},
			Sink: export.NewFSSink(outDir),
		}

		pw := progress.NewWriter()
		pw.SetUpdateFrequency(time.Millisecond * 250)
		go pw.Render()
		tracker := &progress.Tracker{Message: "Capturing receipts"}
		pw.AppendTracker(tracker)
		runner.OnOrder = func(order orders.Summary, err error) {
			if err == nil {
				tracker.Increment(1)
			} else {
				tracker.IncrementWithError(1)
			}
		}

		result, runErr := runner.Run(ctx, export.Options{
			Range:                   rng,
			MaxCount:                *exportFlags.maxCount,
			Combined:                *exportFlags.combined,
			ConsecutiveTimeoutLimit: cfg.ConsecutiveTimeoutLimit,
		})
		tracker.MarkAsDone()
		pw.Stop()

		renderResult(result)
		if runErr != nil {
			slog.Error("export did not complete", "err", runErr)
			os.Exit(1)
		}
	},
}

func buildProber(cmd *cobra.Command, session *browser.ChromeSession) (orders.Prober, error) {
	if !*exportFlags.fastProbe {
		return orders.NavigationProber{Browser: session}, nil
	}

	if *exportFlags.debugHttp {
		probe.SetInstrumentOutput(restyutil.NewFilesystemOutput(".dev/resty/probe"))
	}
	cookies, err := session.Cookies(cmd.Context())
	if err != nil {
		return nil, err
	}
	return probe.NewClient(probe.ClientOptions{
		Cookies: cookies,
		Timeout: time.Duration(*exportFlags.timeout) * time.Second,
	})
}

func renderResult(result export.Result) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Attempted", "Captured", "Failed"})
	t.AppendRow(table.Row{result.Attempted, result.Captured, len(result.Failed)})
	t.Render()

	if len(result.Failed) == 0 {
		return
	}
	f := table.NewWriter()
	f.SetStyle(table.StyleRounded)
	f.SetOutputMirror(os.Stdout)
	f.AppendHeader(table.Row{"Order", "Reason"})
	for _, failure := range result.Failed {
		f.AppendRow(table.Row{failure.OrderID, failure.Reason})
	}
	f.Render()
}
