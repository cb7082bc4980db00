package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/docling/docling-agent/internal/api"
	"github.com/docling/docling-agent/internal/config"
	"github.com/docling/docling-agent/internal/domain"
	"github.com/docling/docling-agent/internal/logger"
	"github.com/docling/docling-agent/internal/repository"
	"github.com/docling/docling-agent/internal/service"
)

func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "text",
		ServiceName: "docling-devis",
	})
	logger.SetDefault(appLogger)
	defer logger.Sync()

	configPath := flag.String("config", "", "Path to config file")
	client := flag.String("client", "", "Client name on the quote")
	search := flag.String("search", "", "Catalogue search filter for quote lines (empty takes the whole catalogue)")
	out := flag.String("out", "devis.pdf", "Output PDF path")
	remise := flag.Float64("remise", 0, "Global discount value")
	remiseType := flag.String("remise-type", "percent", "Global discount type (percent, amount)")
	exportXLSX := flag.String("export-xlsx", "", "Export the catalogue to this XLSX path instead of quoting")
	listSuppliers := flag.Bool("suppliers", false, "List known suppliers and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	apiClient := api.NewClient(&api.Config{
		BaseURL: cfg.API.BaseURL,
		Token:   cfg.API.Token,
		Timeout: cfg.API.Timeout,
		OnUnauthorized: func() {
			appLogger.Warn("Authentication rejected, check DOCLING_TOKEN")
		},
	})
	ctx := context.Background()

	if *listSuppliers {
		suppliers, err := apiClient.Suppliers(ctx)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to fetch suppliers")
		}
		for _, s := range suppliers {
			fmt.Println(s)
		}
		return
	}

	if *exportXLSX != "" {
		catalogue := service.NewCatalogueService(apiClient, appLogger)
		data, err := catalogue.ExportXLSX(ctx)
		if err != nil {
			appLogger.WithError(err).Fatal("Catalogue export failed")
		}
		if err := os.WriteFile(*exportXLSX, data, 0o644); err != nil {
			appLogger.WithError(err).Fatal("Failed to write workbook")
		}
		fmt.Printf("Catalogue exported to %s\n", *exportXLSX)
		return
	}

	var products []domain.ExtractedProduct
	if *search != "" {
		products, err = apiClient.Compare(ctx, *search)
	} else {
		products, err = apiClient.Catalogue(ctx)
	}
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to fetch catalogue products")
	}
	if len(products) == 0 {
		appLogger.Fatal("No catalogue products matched, nothing to quote")
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	prefs := repository.NewPreferenceRepository(db)

	devis := service.NewDevisService(prefs, appLogger)
	num, err := devis.NextNumber(ctx)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to allocate quote number")
	}

	opts := domain.DevisOptions{
		Entreprise:    cfg.Devis.Entreprise,
		Client:        *client,
		DevisNum:      num,
		TVARate:       cfg.Devis.TVARate,
		RemiseGlobale: *remise,
		RemiseType:    domain.RemiseType(*remiseType),
	}
	pdf, err := devis.GeneratePDF(products, opts)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to render quote")
	}
	if err := os.WriteFile(*out, pdf, 0o644); err != nil {
		appLogger.WithError(err).Fatal("Failed to write PDF")
	}

	totals := service.ComputeTotals(products, opts)
	fmt.Printf("%s written to %s (%d lines, net HT %.2f, TTC %.2f)\n",
		num, *out, len(products), totals.NetHT, totals.TotalTTC)
}
