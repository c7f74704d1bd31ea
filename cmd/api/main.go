package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/app"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/auth"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/cache"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/config"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/events"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/export"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/search"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		config.Config{}.NewLogger(os.Stderr).Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := cfg.NewLogger(os.Stdout)
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.Database.URL, store.PoolOptions{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		log.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Database.Migrate {
		if err := store.ApplyMigrations(ctx, db, store.Migrations); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
	}
	dataStore := store.NewPostgresStore(db)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.Meili.URL) != "" {
		meiliClient = search.NewMeili(cfg.Meili.URL, cfg.Meili.MasterKey, log)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts, log)
	if meiliClient != nil {
		if records, err := pgfts.LoadAllRecords(ctx); err != nil {
			log.Warn("search reindex skipped", "error", err)
		} else if err := searchService.Reindex(ctx, records); err != nil {
			log.Warn("search reindex failed", "error", err)
		}
	}
	defer searchService.Wait()

	var renderCache *cache.RenderCache
	if strings.TrimSpace(cfg.Redis.URL) != "" {
		renderCache, err = cache.NewRenderCache(cfg.Redis.URL, cfg.Redis.RenderTTL)
		if err != nil {
			log.Warn("render cache disabled", "error", err)
		} else {
			defer renderCache.Close()
		}
	}

	var publisher events.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := events.NewSyncProducer(cfg.Kafka.Brokers, cfg.Kafka.ClientID)
		if err != nil {
			log.Warn("note events disabled", "brokers", cfg.Kafka.Brokers, "error", err)
		} else {
			dispatcher := events.NewKafkaDispatcher(producer, cfg.Kafka.Topic, log, cfg.Kafka.Dispatcher)
			defer producer.Close()
			defer dispatcher.Close()
			publisher = dispatcher
		}
	}

	service := app.NewService(dataStore,
		app.WithRenderCache(renderCache),
		app.WithSearch(searchService),
		app.WithPublisher(publisher),
		app.WithLayoutOptions(cfg.Layout),
		app.WithLogger(log),
	)

	exportOpts := []export.Option{
		export.WithBrowser(&export.Chrome{ExecPath: cfg.Export.ChromePath, Timeout: cfg.Export.Timeout}),
		export.WithConverter(export.Pandoc{Path: cfg.Export.PandocPath}),
		export.WithLayoutOptions(cfg.Layout),
		export.WithFlowOptions(cfg.Flow),
		export.WithLogger(log),
	}
	if m := cfg.Export.MinIO; strings.TrimSpace(m.Endpoint) != "" {
		archive, err := export.NewMinIOArchive(ctx, export.MinIOOptions{
			Endpoint:    m.Endpoint,
			AccessKey:   m.AccessKey,
			SecretKey:   m.SecretKey,
			Bucket:      m.Bucket,
			UseSSL:      m.UseSSL,
			URLValidity: cfg.Export.URLValidity,
		})
		if err != nil {
			log.Warn("export archive disabled", "endpoint", m.Endpoint, "error", err)
		} else {
			exportOpts = append(exportOpts, export.WithArchive(archive))
		}
	}
	exports := export.NewService(service, exportOpts...)

	var serverOpts []app.ServerOption
	if secret := strings.TrimSpace(cfg.Auth.JWTSecret); secret != "" {
		verifier, err := auth.NewVerifier(secret, cfg.Auth.Issuer)
		if err != nil {
			log.Error("invalid auth config", "error", err)
			os.Exit(1)
		}
		serverOpts = append(serverOpts, app.WithTokenVerifier(verifier))
		log.Info("bearer token authentication enabled", "issuer", cfg.Auth.Issuer)
	}
	httpServer := app.NewHTTPServer(service, exports, cfg.CORSOrigin, log, serverOpts...)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.Export.Timeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("casebook api listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
}
