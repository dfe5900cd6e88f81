// Command ingest publishes one result sheet from the command line, or issues
// an operator token for the HTTP API.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/MangalNathYadav/aakash-lm-student/internal/app"
	"github.com/MangalNathYadav/aakash-lm-student/internal/dto"
	"github.com/MangalNathYadav/aakash-lm-student/internal/importer"
	"github.com/MangalNathYadav/aakash-lm-student/internal/models"
	"github.com/MangalNathYadav/aakash-lm-student/internal/service"
	"github.com/MangalNathYadav/aakash-lm-student/pkg/config"
	"github.com/MangalNathYadav/aakash-lm-student/pkg/logger"
)

func main() {
	var (
		file       = flag.String("file", "", "result sheet (.xlsx or .csv)")
		testID     = flag.String("test-id", "", "test identifier, e.g. FT-01")
		testType   = flag.String("type", "", "test type: FT, NBTS or AIATS")
		testDate   = flag.String("date", "", "test date, e.g. 2025-06-15")
		maxMarks   = flag.Float64("max", 720, "maximum marks for the test")
		dryRun     = flag.Bool("dry-run", false, "parse the sheet and print the records without publishing")
		issueRole  = flag.String("issue-token", "", "print an access token for this role and exit")
		tokenUser  = flag.String("token-user", "cli", "user id embedded in an issued token")
		tokenTTL   = flag.Duration("token-ttl", 12*time.Hour, "lifetime of an issued token")
		rebuildAll = flag.Bool("rebuild", false, "recompute and republish every view from the store")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if *issueRole != "" {
		tokens := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})
		token, err := tokens.IssueToken(*tokenUser, models.UserRole(*issueRole), *tokenTTL)
		if err != nil {
			log.Fatalf("issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	if !*rebuildAll && *file == "" {
		flag.Usage()
		os.Exit(2)
	}

	var req dto.IngestionRequest
	if *file != "" {
		req, err = readSheet(*file)
		if err != nil {
			log.Fatalf("read %s: %v", *file, err)
		}
		req.TestID, req.TestType, req.TestDate, req.MaxMarks = *testID, *testType, *testDate, *maxMarks
		if *dryRun {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(req); err != nil {
				log.Fatalf("encode records: %v", err)
			}
			return
		}
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	logr, err := logger.New(cfg, "ingest")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx := context.Background()
	a, err := app.Open(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("failed to initialise services", zap.Error(err))
	}
	defer a.Close()

	if *rebuildAll {
		version, err := a.Ingestion.Rebuild(ctx)
		if err != nil {
			logr.Fatal("rebuild failed", zap.Error(err))
		}
		fmt.Printf("published version %d\n", version)
		return
	}

	run, err := a.Ingestion.Ingest(ctx, req)
	if run != nil {
		for _, line := range run.Logs {
			fmt.Println(line)
		}
	}
	if err != nil {
		a.Close()
		log.Fatalf("ingestion failed: %v", err)
	}
	fmt.Printf("run %s published version %d\n", run.RunID, run.PublishedVersion)
}

func readSheet(path string) (dto.IngestionRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return dto.IngestionRequest{}, err
	}
	defer f.Close()

	parsed, err := importer.ParseFile(f, path)
	if err != nil {
		return dto.IngestionRequest{}, err
	}
	return dto.IngestionRequest{Source: filepath.Base(path), Records: parsed.Records, Skipped: parsed.Skipped}, nil
}
