package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/docling/docling-agent/internal/api"
	"github.com/docling/docling-agent/internal/compress"
	"github.com/docling/docling-agent/internal/config"
	"github.com/docling/docling-agent/internal/domain"
	"github.com/docling/docling-agent/internal/logger"
	"github.com/docling/docling-agent/internal/repository"
	"github.com/docling/docling-agent/internal/service"
	"github.com/docling/docling-agent/internal/store"
)

func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "text",
		ServiceName: "docling-scan",
	})
	logger.SetDefault(appLogger)
	defer logger.Sync()

	filePath := flag.String("file", "", "Invoice file to scan (pdf or image)")
	source := flag.String("source", "pc", "Upload source tag (mobile, pc)")
	model := flag.String("model", "", "AI model override")
	save := flag.Bool("save", false, "Commit extracted products to the catalogue")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "usage: scan -file facture.pdf [-save]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	prefs := repository.NewPreferenceRepository(db)
	offline := repository.NewOfflineQueueRepository(db)

	client := api.NewClient(&api.Config{
		BaseURL: cfg.API.BaseURL,
		Token:   cfg.API.Token,
		Timeout: cfg.API.Timeout,
		OnUnauthorized: func() {
			appLogger.Warn("Authentication rejected, check DOCLING_TOKEN")
		},
	})

	st := store.New(prefs, cfg.Models.Default)
	if *model != "" {
		st.SetModel(*model)
	}

	comp := compress.New(cfg.Compress.MaxDimension, cfg.Compress.JPEGQuality)
	queueCfg := service.QueueConfig{
		Concurrency:       cfg.Upload.Concurrency,
		PollMaxAttempts:   cfg.Upload.PollMaxAttempts,
		PollIntervalSmall: cfg.Upload.PollIntervalSmall,
		PollIntervalLarge: cfg.Upload.PollIntervalLarge,
	}
	scanner := service.NewScanService(st, client, comp, offline, client, queueCfg, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		scanner.Abort()
		cancel()
	}()

	file, err := domain.LoadFile(*filePath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to read invoice file")
	}

	result, err := scanner.Scan(ctx, file, domain.Source(*source), func(stage domain.ScanStage, progress int) {
		appLogger.WithFields(logger.Fields{
			"stage":    string(stage),
			"progress": progress,
		}).Info("Scan progress")
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Scan failed")
	}
	if result.QueuedOffline {
		fmt.Println("Offline: invoice queued, it will upload on the next sync.")
		return
	}

	printProducts(result.Products)

	if *save {
		n, err := scanner.SaveValidated(ctx, nil)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to save products")
		}
		fmt.Printf("%d products committed to the catalogue.\n", n)
	}
}

func printProducts(products []domain.ExtractedProduct) {
	if len(products) == 0 {
		fmt.Println("No products extracted.")
		return
	}
	fmt.Printf("%-40s %-20s %-8s %10s\n", "DESIGNATION", "FOURNISSEUR", "UNITE", "PRIX HT")
	for _, p := range products {
		designation := p.DesignationFR
		if designation == "" {
			designation = p.DesignationRaw
		}
		flag := ""
		if p.NeedsReview() {
			flag = " (!)"
		}
		fmt.Printf("%-40.40s %-20.20s %-8.8s %10.2f%s\n", designation, p.Fournisseur, p.Unite, p.PrixRemiseHT, flag)
	}
}
