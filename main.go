package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"crimestats/internal/config"
	"crimestats/internal/container"
	"crimestats/ui"
)

func main() {
	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Create dependency injection container
	appContainer, err := container.New(ctx, appConfig)
	if err != nil {
		log.Fatalf("Failed to create application container: %v", err)
	}
	defer appContainer.Close()

	table, err := appContainer.Load(ctx)
	if err != nil {
		log.Fatalf("Failed to load crime data: %v", err)
	}
	if table.IsEmpty() {
		appContainer.Logger.Warn("no data loaded from %s; sections will report no data", appContainer.Source.Describe())
	} else {
		appContainer.Logger.Info("loaded %d records from %s (version %s)", len(table.Records), table.Source, table.Version.Short())
	}

	app, err := ui.NewApp(ui.Config{Port: appConfig.Server.Port}, appContainer.Service, appContainer.Logger)
	if err != nil {
		log.Fatalf("Failed to create UI app: %v", err)
	}

	if err := app.Start(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
