package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/vn-text-trim/internal/cleaner"
	"github.com/raaihank/vn-text-trim/internal/config"
)

// Pipeline cleans every text of a dataset file
type Pipeline struct {
	engine cleaner.Engine
	config config.BatchConfig
	logger *zap.Logger
}

// NewPipeline creates a new batch pipeline
func NewPipeline(engine cleaner.Engine, cfg config.BatchConfig, logger *zap.Logger) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.TextColumn == "" {
		cfg.TextColumn = "text"
	}

	return &Pipeline{
		engine: engine,
		config: cfg,
		logger: logger,
	}
}

// ProcessFile cleans input and writes one output record per readable input
// record, in input order. Formats follow the file extensions.
func (p *Pipeline) ProcessFile(ctx context.Context, inputPath, outputPath string) (*Result, error) {
	inputFormat := DetectFileFormat(inputPath)
	outputFormat := DetectFileFormat(outputPath)

	p.logger.Info("Starting batch cleaning",
		zap.String("input", inputPath),
		zap.String("input_format", string(inputFormat)),
		zap.String("output", outputPath),
		zap.String("output_format", string(outputFormat)),
		zap.String("text_column", p.config.TextColumn),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Int("workers", p.config.WorkerCount))

	start := time.Now()
	result := &Result{}

	reader, err := openReader(inputPath, inputFormat, p.config.TextColumn, p.logger)
	if err != nil {
		return result, err
	}
	defer reader.Close()

	writer, err := createWriter(outputPath, outputFormat)
	if err != nil {
		return result, err
	}

	err = p.processBatches(ctx, reader, writer, result)
	if closeErr := writer.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to finish output file: %w", closeErr)
	}

	result.Failed = reader.Failed()
	result.Duration = time.Since(start)

	if err != nil {
		return result, err
	}

	p.logger.Info("Batch cleaning completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("changed", result.Changed),
		zap.Int64("unchanged", result.Unchanged),
		zap.Int64("skipped", result.Skipped),
		zap.Int64("failed", result.Failed),
		zap.Duration("duration", result.Duration))

	return result, nil
}

func (p *Pipeline) processBatches(ctx context.Context, reader recordReader, writer recordWriter, result *Result) error {
	nextReport := int64(p.config.ProgressReport)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, err := reader.ReadBatch(p.config.BatchSize)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			return fmt.Errorf("failed to read batch: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}

		outputs, skipped := p.processBatch(batch)
		if err := writer.Write(outputs); err != nil {
			result.Errors = append(result.Errors, err.Error())
			return fmt.Errorf("failed to write batch: %w", err)
		}

		result.TotalRecords += int64(len(outputs))
		result.Skipped += skipped
		for _, out := range outputs {
			if out.Changed {
				result.Changed++
			} else {
				result.Unchanged++
			}
		}

		if nextReport > 0 && result.TotalRecords >= nextReport {
			p.reportProgress(result)
			nextReport += int64(p.config.ProgressReport)
		}
	}
}

// processBatch cleans a batch with WorkerCount goroutines. Each worker
// writes only its own slots, so output order matches input order.
func (p *Pipeline) processBatch(batch []Record) ([]OutputRecord, int64) {
	outputs := make([]OutputRecord, len(batch))
	skipped := make([]bool, len(batch))

	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := p.config.WorkerCount
	if workers > len(batch) {
		workers = len(batch)
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				record := batch[i]
				res := p.engine.Process(record.Text)
				outputs[i] = OutputRecord{
					Index:    record.Index,
					Original: record.Text,
					Cleaned:  res.Text,
					Changed:  res.Changed,
				}
				skipped[i] = res.Skipped
			}
		}()
	}

	for i := range batch {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	var count int64
	for _, s := range skipped {
		if s {
			count++
		}
	}
	return outputs, count
}

func (p *Pipeline) reportProgress(result *Result) {
	p.logger.Info("Processing progress",
		zap.Int64("records_processed", result.TotalRecords),
		zap.Int64("changed", result.Changed),
		zap.Int64("skipped", result.Skipped))
}
