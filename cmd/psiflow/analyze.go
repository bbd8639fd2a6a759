package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/lucerohealth/psiflow/internal/batch"
	"github.com/lucerohealth/psiflow/internal/config"
	"github.com/lucerohealth/psiflow/internal/ingest"
	"github.com/lucerohealth/psiflow/internal/observability/metrics"
	"github.com/lucerohealth/psiflow/internal/observability/tracing"
	"github.com/lucerohealth/psiflow/internal/psi/engine"
	"github.com/lucerohealth/psiflow/internal/report"
)

type analyzeOptions struct {
	input       string
	appendix    string
	indicators  []string
	output      string
	summaryPath string
	debug       bool
	trace       bool
	workers     int
}

func newAnalyzeCmd() *cobra.Command {
	opts := &analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Classify an encounter file against the selected indicators",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "encounter file (.xlsx or .csv)")
	cmd.Flags().StringVarP(&opts.appendix, "appendix", "a", "", "appendix code set file (.xlsx or .csv)")
	cmd.Flags().StringSliceVarP(&opts.indicators, "psi", "p", nil, "indicators to run (default: all)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "results CSV path (default: stdout)")
	cmd.Flags().StringVar(&opts.summaryPath, "summary", "", "summary CSV path (default: none)")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "include evaluation evidence in the results CSV")
	cmd.Flags().BoolVar(&opts.trace, "trace", false, "export spans for the batch phases to stderr")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "worker count (default: from config)")
	cmd.MarkFlagRequired("input")
	cmd.MarkFlagRequired("appendix")

	return cmd
}

func runAnalyze(ctx context.Context, opts *analyzeOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if opts.debug {
		cfg.Debug = true
	}
	if opts.workers > 0 {
		cfg.Workers = opts.workers
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	tcfg := tracing.DefaultConfig("psiflow")
	tcfg.ServiceVersion = version
	tcfg.Environment = cfg.Env
	tcfg.SampleRate = cfg.TraceSampleRate
	if opts.trace {
		tcfg.Writer = os.Stderr
	}
	provider, err := tracing.Init(ctx, tcfg)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer provider.Shutdown(context.Background())
	tracer := otel.Tracer("psiflow")

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		m = metrics.New()
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Warn("metrics listener stopped", zap.Error(err))
			}
		}()
	}

	_, loadSpan := tracer.Start(ctx, "appendix.load")
	registry, err := ingest.LoadAppendix(opts.appendix)
	loadSpan.End()
	if err != nil {
		return err
	}
	logger.Info("appendix loaded",
		zap.String("path", opts.appendix),
		zap.Int("code_sets", len(registry.Names())))

	eng := engine.New(registry)
	indicators := opts.indicators
	if len(indicators) == 0 {
		indicators = eng.Indicators()
	}

	runner := batch.NewRunner(eng, batch.Config{
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
	}, logger, m)

	source := func(fn ingest.RowFunc) error {
		return ingest.StreamEncounters(opts.input, fn)
	}
	results, summary, err := runner.Run(ctx, source, indicators)
	if err != nil {
		return err
	}

	_, exportSpan := tracer.Start(ctx, "report.export")
	defer exportSpan.End()

	out := os.Stdout
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}
	w := &report.Writer{Debug: cfg.Debug}
	if err := w.WriteResults(out, results); err != nil {
		return err
	}

	if opts.summaryPath != "" {
		f, err := os.Create(opts.summaryPath)
		if err != nil {
			return fmt.Errorf("create summary file: %w", err)
		}
		defer f.Close()
		if err := report.WriteSummary(f, summary); err != nil {
			return err
		}
	}

	logger.Info("analysis complete",
		zap.String("run_id", summary.RunID),
		zap.Int("rows", summary.Rows),
		zap.Int("errors", summary.Errors))
	return nil
}
