package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"crimestats/adapters/datareadiness/coercer"
	"crimestats/adapters/excel"
	"crimestats/adapters/postgres"
	"crimestats/domain/crime"
	"crimestats/internal"
	"crimestats/internal/loader"
	"crimestats/ports"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	_ = godotenv.Load()

	databaseURL := flag.String("db", os.Getenv("DATABASE_URL"), "Postgres connection string (default: DATABASE_URL)")
	table := flag.String("table", "crime_stats", "Destination table")
	source := flag.String("source", os.Getenv("DATA_SOURCE"), "CSV or XLSX file to import (default: DATA_SOURCE)")
	policy := flag.String("policy", "lenient", "Coercion policy: lenient|strict")
	flag.Parse()

	if *databaseURL == "" || *source == "" {
		log.Fatal("Usage: migrate -db <database_url> -source <crime.csv|crime.xlsx> [-table crime_stats]")
	}
	if !excel.IsSpreadsheetPath(*source) {
		log.Fatalf("Source %s is not a CSV or XLSX file", *source)
	}

	coercion := coercer.DefaultCoercionConfig()
	p, err := coercer.ParsePolicy(*policy)
	if err != nil {
		log.Fatalf("Invalid policy: %v", err)
	}
	coercion.Policy = p

	ctx := context.Background()
	logger := internal.NewLogger(internal.LogLevelInfo, false)
	records, err := loader.New(coercion, logger).Load(ctx, excel.NewDataReader(*source))
	if err != nil {
		log.Fatalf("Failed to load %s: %v", *source, err)
	}
	log.Printf("Loaded %d records from %s (%d rows dropped)", len(records.Records), *source, records.Stats.RowsRead-records.Stats.RowsKept)

	db, err := sqlx.Connect("postgres", *databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	repo, err := postgres.NewRecordRepository(db, *table)
	if err != nil {
		log.Fatalf("Invalid table: %v", err)
	}

	inserted, err := migrate(ctx, repo, records.Records)
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Printf("Migration completed: %d inserted, %d already present", inserted, len(records.Records)-inserted)
}

// migrate creates the destination table if needed and inserts the records.
func migrate(ctx context.Context, w ports.RecordWriter, records []crime.Record) (int, error) {
	if err := w.EnsureSchema(ctx); err != nil {
		return 0, fmt.Errorf("failed to create schema: %w", err)
	}
	return w.InsertRecords(ctx, records)
}
