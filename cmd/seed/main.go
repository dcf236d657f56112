package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"saleschat/internal/repository"
	"saleschat/internal/service"
	"saleschat/pkg/config"
	"saleschat/pkg/logger"
	"saleschat/pkg/postgres"

	"github.com/fatih/color"
)

// seed loads a sales transactions CSV into the database and embeds every new
// row. Safe to run repeatedly; existing rows are skipped.
func main() {
	var (
		file    = flag.String("file", "", "path to the sales transactions CSV")
		noEmbed = flag.Bool("no-embed", false, "skip embedding, only load rows")
	)
	flag.Parse()

	if *file == "" {
		color.Red("usage: seed -file transactions.csv [-no-embed]")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		color.Red("failed to load config: %v", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logger.Level); err != nil {
		color.Red("failed to init logger: %v", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Get()

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, &cfg.Database, log)
	if err != nil {
		color.Red("failed to connect to database: %v", err)
		os.Exit(1)
	}
	defer pool.Close()

	saleRepo := repository.NewSaleRepository(pool, log)
	vectorRepo := repository.NewVectorRepository(pool, log)

	var embedder service.BatchEmbedder
	if !*noEmbed {
		embedder = service.NewEmbeddingService(&cfg.LLM, log)
	}

	ingest := service.NewIngestService(saleRepo, vectorRepo, embedder, cfg.RAG.EmbedBatchSize, log)

	f, err := os.Open(*file)
	if err != nil {
		color.Red("failed to open %s: %v", *file, err)
		os.Exit(1)
	}
	defer f.Close()

	color.Cyan("Importing %s ...", *file)

	report, err := ingest.ImportCSV(ctx, f)
	if err != nil {
		color.Red("import failed: %v", err)
		if report != nil {
			fmt.Printf("partial progress: %d inserted, %d embedded\n", report.Inserted, report.Embedded)
		}
		os.Exit(1)
	}

	color.Green("Done: %d row(s) read", report.Rows)
	fmt.Printf("  inserted: %d\n", report.Inserted)
	fmt.Printf("  skipped:  %d\n", report.Skipped)
	fmt.Printf("  embedded: %d\n", report.Embedded)
}
