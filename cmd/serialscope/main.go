package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/serialscope/internal/pipeline"
	"github.com/ajitpratap0/serialscope/pkg/config"
	"github.com/ajitpratap0/serialscope/pkg/export"
	"github.com/ajitpratap0/serialscope/pkg/logger"
	"github.com/ajitpratap0/serialscope/pkg/metrics"
	"github.com/ajitpratap0/serialscope/pkg/observability"
	"github.com/ajitpratap0/serialscope/pkg/source"
)

var version = "0.1.0"

// captureFlags is the command line overlay applied on top of the config
// file. Only flags the user actually set override the file.
type captureFlags struct {
	configFile  string
	port        string
	baud        int
	rowLimit    int
	exportPath  string
	format      string
	compression string
	logLevel    string
	metricsAddr string
	trace       bool
	pace        time.Duration
}

func main() {
	root := &cobra.Command{
		Use:   "serialscope",
		Short: "Serialscope - live CSV capture from serial devices",
		Long: `Serialscope captures a CSV byte stream from a serial device, decodes and
parses it incrementally, and keeps a bounded window of the most recent rows
for inspection and export. Capture files can be replayed through the same
pipeline offline.`,
	}

	// Version command
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("serialscope v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	// Ports command to enumerate serial devices
	root.AddCommand(&cobra.Command{
		Use:   "ports",
		Short: "List available serial ports",
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := source.ListPorts()
			if err != nil {
				return err
			}
			if len(ports) == 0 {
				fmt.Println("No serial ports found.")
				return nil
			}
			for _, port := range ports {
				fmt.Println(port)
			}
			return nil
		},
	})

	flags := &captureFlags{}

	// Live capture command
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Capture live data from a serial port",
		Long: `Run opens the serial port and feeds the capture pipeline until the stream
ends or the process receives SIGINT/SIGTERM. On shutdown the table summary
and recent raw lines are printed, and the retained window is exported when
a target is configured.

Example:
  serialscope run --port /dev/ttyUSB0 --baud 115200 --row-limit 500
  serialscope run -p COM3 --export window.csv --compression gzip`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			if cfg.Serial.Port == "" {
				return fmt.Errorf("no serial port configured; pass --port or set serial.port in the config file")
			}
			return capture(cfg, source.NewSerialSource(cfg.Serial))
		},
	}
	addCaptureFlags(runCmd, flags)
	runCmd.Flags().StringVarP(&flags.port, "port", "p", "", "serial device path (e.g. /dev/ttyUSB0, COM3)")
	runCmd.Flags().IntVarP(&flags.baud, "baud", "b", 115200, "baud rate in bits per second")
	root.AddCommand(runCmd)

	// Offline replay command
	replayCmd := &cobra.Command{
		Use:   "replay [file]",
		Short: "Replay a captured byte stream through the pipeline",
		Long: `Replay feeds a previously captured stream through the same decode, framing,
and parsing stages as a live session. Reads the named file, or stdin when no
file (or "-") is given. Compressed captures (.gz, .zst, .lz4, .s2, .snappy,
.zz) are decompressed by extension.

Example:
  serialscope replay capture.csv --pace 5ms
  cat capture.csv.gz | serialscope replay --export window.json --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}

			var src source.Source
			if len(args) == 0 || args[0] == "-" {
				src = source.NewReaderSource("stdin", os.Stdin)
			} else {
				var opts []source.Option
				if flags.pace > 0 {
					opts = append(opts, source.WithPacing(flags.pace))
				}
				src = source.NewFileSource(args[0], opts...)
			}
			return capture(cfg, src)
		},
	}
	addCaptureFlags(replayCmd, flags)
	replayCmd.Flags().DurationVar(&flags.pace, "pace", 0, "delay between chunks to simulate live arrival (e.g. 10ms)")
	root.AddCommand(replayCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// addCaptureFlags registers the flags shared by run and replay.
func addCaptureFlags(cmd *cobra.Command, f *captureFlags) {
	cmd.Flags().StringVarP(&f.configFile, "config", "c", "", "path to a YAML or JSON config file")
	cmd.Flags().IntVar(&f.rowLimit, "row-limit", 1000, "rows retained per table generation")
	cmd.Flags().StringVar(&f.exportPath, "export", "", "write the final window to this file on shutdown")
	cmd.Flags().StringVar(&f.format, "format", "csv", "export format (csv, json)")
	cmd.Flags().StringVar(&f.compression, "compression", "none", "export compression (none, gzip, snappy, lz4, zstd, s2, deflate)")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "prometheus endpoint listen address (e.g. :9090)")
	cmd.Flags().BoolVar(&f.trace, "trace", false, "emit OpenTelemetry spans to stdout")
}

// loadConfig builds the session config: defaults, then the config file,
// then explicit flag overrides, then validation.
func loadConfig(cmd *cobra.Command, f *captureFlags) (*config.Config, error) {
	cfg := config.NewDefaultConfig("serialscope")
	if f.configFile != "" {
		if err := config.Load(f.configFile, cfg); err != nil {
			return nil, err
		}
	}

	set := cmd.Flags().Changed
	if set("port") {
		cfg.Serial.Port = f.port
	}
	if set("baud") {
		cfg.Serial.BaudRate = f.baud
	}
	if set("row-limit") {
		cfg.Pipeline.RowLimit = f.rowLimit
	}
	if set("export") {
		cfg.Export.Path = f.exportPath
	}
	if set("format") {
		cfg.Export.Format = f.format
	}
	if set("compression") {
		cfg.Export.Compression = f.compression
	}
	if set("log-level") {
		cfg.Observability.LogLevel = f.logLevel
	}
	if set("metrics-addr") {
		cfg.Observability.MetricsAddr = f.metricsAddr
	}
	if set("trace") {
		cfg.Observability.EnableTracing = f.trace
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// capture runs one session over the given source: observability up,
// pipeline until signal or end of stream, then summary and export.
func capture(cfg *config.Config, src source.Source) error {
	obs := observability.DefaultConfig()
	obs.ServiceVersion = version
	obs.LogLevel = cfg.Observability.LogLevel
	obs.LogEncoding = cfg.Observability.LogEncoding
	obs.Development = cfg.Observability.Development
	obs.EnableTracing = cfg.Observability.EnableTracing
	obs.SampleRate = cfg.Observability.TracingSampleRate
	obs.MetricsAddr = cfg.Observability.MetricsAddr
	if err := observability.Init(obs); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := observability.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintln(os.Stderr, "shutdown:", err)
		}
	}()

	if addr := observability.MetricsAddr(); addr != "" {
		fmt.Printf("Metrics: http://%s/metrics\n", addr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sampler := metrics.NewResourceSampler(cfg.Observability.ResourceSampleInterval)
	sampler.Start(ctx)
	defer sampler.Stop()

	p, err := pipeline.New(cfg, src)
	if err != nil {
		return err
	}

	log := logger.With(
		zap.String("component", "serialscope-cli"),
		zap.String("session_id", p.SessionID()))
	log.Info("session starting", zap.String("source", src.Name()))

	runErr := p.Run(ctx)
	if runErr != nil {
		log.Error("session failed", zap.Error(runErr))
	}

	printSummary(p)

	if cfg.Export.ExportEnabled() {
		if err := exportWindow(cfg.Export, p); err != nil {
			log.Error("export failed", zap.Error(err))
			if runErr == nil {
				runErr = err
			}
		}
	}

	return runErr
}

func printSummary(p *pipeline.Pipeline) {
	stats := p.Stats()

	fmt.Printf("\nSession %s finished in %s\n", stats.SessionID, stats.Duration.Round(time.Millisecond))
	fmt.Printf("  lines: %d (%d refused), rows: %d data / %d header (%d rejected)\n",
		stats.Lines, stats.Refused, stats.DataRows, stats.HeaderRows, stats.Rejected)
	fmt.Printf("  table: generation %d, %d rows x %d columns, window %s, %d evicted\n",
		stats.Table.Key, stats.Table.Rows, stats.Table.Columns, stats.Table.Range, stats.Table.Evicted)

	if names := p.Table().ColumnNames(); len(names) > 0 {
		fmt.Printf("  columns: %s\n", strings.Join(names, ", "))
	}

	snap := p.Log().Snapshot()
	if len(snap.Head) == 0 && len(snap.Tail) == 0 {
		return
	}
	fmt.Println("\nRaw lines:")
	for _, line := range snap.Head {
		fmt.Printf("  %s\n", line)
	}
	if snap.Dropped > 0 {
		fmt.Printf("  ... %d lines dropped ...\n", snap.Dropped)
	}
	for _, line := range snap.Tail {
		fmt.Printf("  %s\n", line)
	}
}

// exportWindow writes the full retained window to the configured target.
func exportWindow(cfg config.ExportConfig, p *pipeline.Pipeline) error {
	w := p.Table()
	slice, err := w.Slice(w.Range())
	if err != nil {
		return err
	}
	if len(slice.Columns) == 0 {
		fmt.Println("Nothing to export: no table was built.")
		return nil
	}

	exp, err := export.NewExporter(cfg)
	if err != nil {
		return err
	}
	path, err := exp.ExportFile(cfg.Path, slice)
	if err != nil {
		return err
	}
	fmt.Printf("Exported %d rows to %s\n", slice.Range.Len(), path)
	return nil
}
