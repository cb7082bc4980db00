package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/docling/docling-agent/internal/api"
	"github.com/docling/docling-agent/internal/compress"
	"github.com/docling/docling-agent/internal/config"
	"github.com/docling/docling-agent/internal/domain"
	"github.com/docling/docling-agent/internal/logger"
	"github.com/docling/docling-agent/internal/repository"
	"github.com/docling/docling-agent/internal/service"
	"github.com/docling/docling-agent/internal/store"
	"github.com/docling/docling-agent/internal/watcher"
)

var scanExts = map[string]struct{}{
	".pdf":  {},
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".webp": {},
}

func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "text",
		ServiceName: "docling-batch",
	})
	logger.SetDefault(appLogger)
	defer logger.Sync()

	configPath := flag.String("config", "", "Path to config file")
	model := flag.String("model", "", "AI model override")
	doSync := flag.Bool("sync", false, "Flush the durable offline queue before processing")
	watch := flag.Bool("watch", false, "Keep watching the given directories for new invoices")
	history := flag.Bool("history", false, "Print the processed-invoice history and exit")
	stats := flag.Bool("stats", false, "Print catalogue statistics and exit")
	flag.Parse()

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

	if *history || *stats {
		ctx := context.Background()
		if *stats {
			printStatsSummary(ctx, client, appLogger)
		}
		if *history {
			printHistory(ctx, client, appLogger)
		}
		return
	}

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
	manager := service.NewQueueManager(st, client, comp, offline, client, queueCfg, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		appLogger.Info("Shutting down")
		cancel()
	}()

	if *doSync {
		syncer := service.NewSyncService(client, comp, offline, appLogger)
		stats, err := syncer.Sync(ctx)
		if err != nil {
			appLogger.WithError(err).Error("Offline sync aborted")
		}
		fmt.Printf("Offline sync: %d pending, %d flushed, %d failed\n", stats.Pending, stats.Flushed, stats.Failed)
	}

	files, err := collectFiles(flag.Args())
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to read input files")
	}
	if len(files) > 0 {
		manager.AddFiles(files, domain.SourcePC)
		manager.StartBatch(ctx)
		printStats(st.QueueStats())
		printErrors(st.Queue())
	}

	if *watch {
		runWatch(ctx, cfg, manager, st, appLogger)
	}
}

// runWatch feeds the queue from the watched folders until interrupted.
func runWatch(ctx context.Context, cfg *config.Config, manager *service.QueueManager, st *store.Store, log *logger.Logger) {
	roots := cfg.Watcher.Roots
	if len(roots) == 0 {
		roots = dirsOf(flag.Args())
	}
	if len(roots) == 0 {
		log.Fatal("Watch mode needs at least one directory (argument or watcher.roots)")
	}

	paths, err := watcher.Watch(ctx, watcher.Config{
		Roots:    roots,
		Debounce: cfg.Watcher.Debounce,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to start folder watcher")
	}
	log.WithField(logger.FieldCount, len(roots)).Info("Watching invoice folders")

	for path := range paths {
		file, err := domain.LoadFile(path)
		if err != nil {
			log.WithField(logger.FieldFile, path).WithError(err).Warn("Skipping unreadable file")
			continue
		}
		if len(manager.AddFiles([]domain.File{file}, domain.SourceFolderScan)) == 0 {
			continue
		}
		manager.StartBatch(ctx)
		printStats(st.QueueStats())
	}
}

// collectFiles expands the positional arguments: plain files are loaded
// directly, directories are walked recursively for invoice extensions.
func collectFiles(args []string) ([]domain.File, error) {
	var files []domain.File
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			f, err := domain.LoadFile(arg)
			if err != nil {
				return nil, err
			}
			files = append(files, f)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil || d.IsDir() {
				return walkErr
			}
			if _, ok := scanExts[strings.ToLower(filepath.Ext(path))]; !ok {
				return nil
			}
			f, err := domain.LoadFile(path)
			if err != nil {
				return err
			}
			files = append(files, f)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func dirsOf(args []string) []string {
	var dirs []string
	for _, arg := range args {
		if info, err := os.Stat(arg); err == nil && info.IsDir() {
			dirs = append(dirs, arg)
		}
	}
	return dirs
}

func printStats(stats domain.QueueStats) {
	fmt.Printf("Batch: %d total, %d done, %d errors, %d products added\n",
		stats.Total, stats.Done, stats.Errors, stats.ProductsAdded)
}

func printStatsSummary(ctx context.Context, client *api.Client, log *logger.Logger) {
	s, err := client.Stats(ctx)
	if err != nil {
		log.WithError(err).Fatal("Failed to fetch catalogue stats")
	}
	fmt.Printf("Catalogue: %d products, %d suppliers, %d families\n", s.TotalProduits, s.TotalFournisseurs, s.TotalFamilles)
	fmt.Printf("Low confidence: %d, from mobile: %d, this week: %d\n", s.LowConfidence, s.DepuisMobile, s.CetteSemaine)
}

func printHistory(ctx context.Context, client *api.Client, log *logger.Logger) {
	entries, err := client.History(ctx)
	if err != nil {
		log.WithError(err).Fatal("Failed to fetch invoice history")
	}
	if len(entries) == 0 {
		fmt.Println("No processed invoices yet.")
		return
	}
	fmt.Printf("%-30s %-10s %-12s %8s %10s\n", "FILE", "STATUS", "SOURCE", "PRODUCTS", "COST USD")
	for _, e := range entries {
		fmt.Printf("%-30.30s %-10.10s %-12.12s %8d %10.4f\n", e.Filename, e.Statut, e.Source, e.NbProduitsExtraits, e.CoutAPIUSD)
	}
}

func printErrors(tasks []domain.UploadTask) {
	for _, t := range tasks {
		if t.Status == domain.TaskStatusError {
			fmt.Printf("  FAILED %s: %s\n", t.File.Name, t.Error)
		}
	}
}
