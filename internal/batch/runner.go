// Package batch fans encounter rows out over a worker pool and classifies
// each against the requested indicators, collecting per-row results and a
// run summary.
package batch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/lucerohealth/psiflow/internal/ingest"
	"github.com/lucerohealth/psiflow/internal/observability/metrics"
	"github.com/lucerohealth/psiflow/internal/psi/engine"
	"github.com/lucerohealth/psiflow/internal/psi/mapper"
	"github.com/lucerohealth/psiflow/internal/psi/model"
	"github.com/lucerohealth/psiflow/pkg/workerpool"
)

// Source feeds raw encounter rows to the runner. It matches the shape of
// ingest.StreamEncounters so the CLI can pass a file-backed closure and
// tests can pass slices.
type Source func(fn ingest.RowFunc) error

// Result is the outcome of one (encounter, indicator) evaluation. Err is set
// when the row could not be normalized or the evaluation failed, in which
// case Classification is nil.
type Result struct {
	RowNum         int
	EncounterID    string
	Indicator      string
	Record         *model.EncounterRecord
	Classification *model.Classification
	Err            error
}

// IndicatorSummary aggregates one indicator's outcomes across the run.
type IndicatorSummary struct {
	Inclusions int
	Exclusions int
	Errors     int
	// RatePer1000 is inclusions per thousand evaluated encounters.
	RatePer1000 float64
}

// Summary describes a completed run.
type Summary struct {
	RunID        string
	Rows         int
	RowsRejected int
	Results      int
	Errors       int
	ByIndicator  map[string]IndicatorSummary
	Duration     time.Duration
}

// Config holds runner configuration.
type Config struct {
	Workers   int
	QueueSize int
}

// Runner drives batch classification.
type Runner struct {
	engine     *engine.Engine
	normalizer *mapper.RecordNormalizer
	config     Config
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewRunner builds a Runner. Metrics may be nil when no listener is serving
// them.
func NewRunner(eng *engine.Engine, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		engine:     eng,
		normalizer: mapper.NewRecordNormalizer(),
		config:     cfg,
		logger:     logger,
		metrics:    m,
	}
}

type task struct {
	rowNum    int
	indicator string
	record    *model.EncounterRecord
}

// Run streams rows from source, classifies each against every requested
// indicator, and returns the results ordered by row then indicator. A row
// that fails normalization produces one error Result per indicator so the
// report stays row-complete.
func (r *Runner) Run(ctx context.Context, source Source, indicators []string) ([]Result, *Summary, error) {
	runID := uuid.NewString()
	start := time.Now()

	tracer := otel.Tracer("psiflow/batch")
	ctx, span := tracer.Start(ctx, "batch.run")
	span.SetAttributes(
		attribute.String("run.id", runID),
		attribute.StringSlice("run.indicators", indicators),
	)
	defer span.End()

	log := r.logger.With(zap.String("run_id", runID))
	log.Info("batch run starting", zap.Strings("indicators", indicators))

	for _, name := range indicators {
		if _, err := r.engine.RequiredCodeSets(name); err != nil {
			return nil, nil, err
		}
	}

	var (
		mu      sync.Mutex
		results []Result
	)
	collect := func(res Result) {
		mu.Lock()
		results = append(results, res)
		mu.Unlock()
	}

	pool, err := workerpool.New(workerpool.Config{
		Workers:   r.config.Workers,
		QueueSize: r.config.QueueSize,
	}, r.workerFunc(collect), log)
	if err != nil {
		return nil, nil, fmt.Errorf("create worker pool: %w", err)
	}
	pool.Start()

	var drained sync.WaitGroup
	drained.Add(1)
	go func() {
		defer drained.Done()
		for range pool.Results() {
		}
	}()

	rows := 0
	rejected := 0
	streamErr := source(func(rowNum int, row mapper.RawRow) error {
		rows++
		rec, err := r.normalizer.Normalize(row)
		if err != nil {
			rejected++
			if r.metrics != nil {
				r.metrics.RowsRejected.Inc()
			}
			log.Warn("row rejected", zap.Int("row", rowNum), zap.Error(err))
			for _, name := range indicators {
				collect(Result{RowNum: rowNum, Indicator: name, Err: err})
			}
			return nil
		}
		for _, name := range indicators {
			t := &workerpool.Task{
				ID:      fmt.Sprintf("%s/%s", rec.EncounterID, name),
				Payload: task{rowNum: rowNum, indicator: name, record: rec},
			}
			if err := pool.Submit(ctx, t); err != nil {
				return err
			}
		}
		return nil
	})

	pool.Stop()
	drained.Wait()

	if r.metrics != nil {
		r.metrics.BatchRows.Set(float64(rows))
	}

	if streamErr != nil {
		return nil, nil, fmt.Errorf("stream encounters: %w", streamErr)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].RowNum != results[j].RowNum {
			return results[i].RowNum < results[j].RowNum
		}
		return results[i].Indicator < results[j].Indicator
	})

	summary := r.summarize(runID, rows, rejected, results, time.Since(start))
	log.Info("batch run finished",
		zap.Int("rows", summary.Rows),
		zap.Int("rows_rejected", summary.RowsRejected),
		zap.Int("results", summary.Results),
		zap.Int("errors", summary.Errors),
		zap.Duration("duration", summary.Duration))
	return results, summary, nil
}

func (r *Runner) workerFunc(collect func(Result)) workerpool.WorkerFunc {
	return func(ctx context.Context, wt *workerpool.Task) *workerpool.Result {
		t := wt.Payload.(task)

		if r.metrics != nil {
			r.metrics.ActiveWorkers.Inc()
			defer r.metrics.ActiveWorkers.Dec()
		}

		start := time.Now()
		cls, err := func() (c *model.Classification, err error) {
			// A panicking evaluation becomes an Error result for this pair;
			// the rest of the batch keeps going.
			defer func() {
				if rec := recover(); rec != nil {
					c = nil
					err = fmt.Errorf("classification panicked: %v", rec)
				}
			}()
			return r.engine.Classify(t.record, t.indicator)
		}()
		if r.metrics != nil {
			r.metrics.ClassifyDuration.Observe(time.Since(start).Seconds())
		}

		res := Result{
			RowNum:         t.rowNum,
			EncounterID:    t.record.EncounterID,
			Indicator:      t.indicator,
			Record:         t.record,
			Classification: cls,
			Err:            err,
		}
		collect(res)

		if err != nil {
			if r.metrics != nil {
				r.metrics.EncountersErrored.Inc()
			}
			return &workerpool.Result{TaskID: wt.ID, Success: false, Error: err}
		}
		if r.metrics != nil {
			r.metrics.EncountersClassified.
				WithLabelValues(t.indicator, string(cls.Status)).Inc()
		}
		return &workerpool.Result{TaskID: wt.ID, Success: true}
	}
}

func (r *Runner) summarize(runID string, rows, rejected int, results []Result, elapsed time.Duration) *Summary {
	s := &Summary{
		RunID:        runID,
		Rows:         rows,
		RowsRejected: rejected,
		Results:      len(results),
		ByIndicator:  make(map[string]IndicatorSummary),
		Duration:     elapsed,
	}
	for _, res := range results {
		is := s.ByIndicator[res.Indicator]
		switch {
		case res.Err != nil:
			is.Errors++
			s.Errors++
		case res.Classification.Status == model.StatusInclusion:
			is.Inclusions++
		default:
			is.Exclusions++
		}
		s.ByIndicator[res.Indicator] = is
	}
	for name, is := range s.ByIndicator {
		evaluated := is.Inclusions + is.Exclusions
		if evaluated > 0 {
			is.RatePer1000 = float64(is.Inclusions) / float64(evaluated) * 1000
		}
		s.ByIndicator[name] = is
	}
	return s
}
