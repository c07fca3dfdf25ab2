package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/raaihank/vn-text-trim/internal/batch"
	"github.com/raaihank/vn-text-trim/internal/cleaner"
	"github.com/raaihank/vn-text-trim/internal/config"
	"github.com/raaihank/vn-text-trim/internal/logger"
	"github.com/raaihank/vn-text-trim/internal/rules"
)

func main() {
	var (
		configPath = flag.String("config", "", "Configuration file path")
		inputFile  = flag.String("input", "", "Input dataset file (CSV, Parquet, or JSON lines)")
		outputFile = flag.String("output", "", "Output file; the extension selects the format")
		batchSize  = flag.Int("batch-size", 0, "Records per batch (default from configuration)")
		workers    = flag.Int("workers", 0, "Number of worker goroutines (default from configuration)")
		column     = flag.String("column", "", "Name of the text column (default from configuration)")
	)
	flag.Parse()

	if *inputFile == "" || *outputFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -input lines.csv -output cleaned.csv\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -input script.parquet -output cleaned.jsonl -workers 8\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	batchConfig := cfg.Batch
	if *batchSize > 0 {
		batchConfig.BatchSize = *batchSize
	}
	if *workers > 0 {
		batchConfig.WorkerCount = *workers
	}
	if *column != "" {
		batchConfig.TextColumn = *column
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling operations...")
		cancel()
	}()

	rs, err := rules.Load(ctx, cfg, log.Logger)
	if err != nil {
		log.Fatal("Failed to build rules", zap.Error(err))
	}

	engine, err := cleaner.New(rs)
	if err != nil {
		log.Fatal("Failed to create cleaner", zap.Error(err))
	}

	if _, err := os.Stat(*inputFile); os.IsNotExist(err) {
		log.Fatal("Input file does not exist", zap.String("file", *inputFile))
	}

	pipeline := batch.NewPipeline(engine, batchConfig, log.WithComponent("batch").Logger)
	result, err := pipeline.ProcessFile(ctx, *inputFile, *outputFile)
	if err != nil {
		log.Fatal("Batch cleaning failed", zap.Error(err))
	}

	fmt.Printf("Processed %d records: %d changed, %d unchanged, %d skipped, %d unreadable (%s)\n",
		result.TotalRecords, result.Changed, result.Unchanged, result.Skipped, result.Failed, result.Duration)
}
