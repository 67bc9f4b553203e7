package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"sensortrend/config"
	"sensortrend/internal/dataset"
	"sensortrend/internal/engine"
	"sensortrend/internal/gateway"
	"sensortrend/internal/logger"
	"sensortrend/internal/metrics"
	"sensortrend/internal/model"
	redisstore "sensortrend/internal/store/redis"
	sqlitestore "sensortrend/internal/store/sqlite"
	"sensortrend/internal/tracing"
)

func main() {
	dataFile := flag.String("data", "", "serve a single CSV/XLSX file instead of the manifest")
	column := flag.String("column", "", "default column for -data")
	flag.Parse()

	cfg := config.Load()
	logger.Init("trendserver", logger.ParseLevel(cfg.LogLevel), os.Stdout)
	log.Println("[trendserver] starting...")

	shutdownTracing, err := tracing.Setup("trendserver", cfg.TraceStdout, os.Stdout)
	if err != nil {
		log.Fatalf("[trendserver] tracing init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- Dataset specs ----
	specs, err := loadSpecs(cfg.DatasetsFile, *dataFile, *column)
	if err != nil {
		log.Fatalf("[trendserver] %v", err)
	}
	log.Printf("[trendserver] %d dataset(s) configured", len(specs))

	// ---- Metrics & health ----
	prom := metrics.NewMetrics(prometheus.DefaultRegisterer)
	health := metrics.NewHealthStatus(cfg.RedisEnabled(), cfg.SQLiteEnabled())
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, prometheus.DefaultGatherer, health)
	metricsSrv.Start()

	deps := engine.Deps{Metrics: prom}

	// ---- SQLite: snapshots + run journal ----
	var sqlDB *sql.DB
	if cfg.SQLiteEnabled() {
		store, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath})
		if err != nil {
			log.Printf("[trendserver] WARNING: sqlite init failed: %v (continuing without snapshots)", err)
			health.SetSQLiteOK(false)
		} else {
			defer store.Close()
			deps.Snapshots = store
			deps.Journal = store
			sqlDB = store.DB()
			health.SetSQLiteOK(true)
		}
	}

	// ---- Redis: result cache + param store ----
	var rdb *goredis.Client
	var paramStore model.ParamStore
	if cfg.RedisEnabled() {
		rdb, err = redisstore.NewClient(redisstore.ClientConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Printf("[trendserver] WARNING: redis init failed: %v (continuing without cache)", err)
			health.SetRedisConnected(false)
		} else {
			defer rdb.Close()
			breaker := redisstore.NewCircuitBreaker(5, 10*time.Second)
			breaker.OnStateChange = func(from, to redisstore.State) {
				prom.BreakerChanged(int(to))
			}
			deps.Cache = redisstore.NewCache(rdb, cfg.CacheTTL, breaker)
			paramStore = redisstore.NewParamStore(rdb, breaker)
			health.SetRedisConnected(true)
		}
	}

	// ---- S3 sources ----
	if dataset.HasS3Sources(specs) {
		fetcher, err := dataset.NewS3Fetcher(ctx, dataset.S3Config{
			Region:          cfg.AWSRegion,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretKey,
			UsePathStyle:    cfg.S3PathStyle,
		})
		if err != nil {
			log.Fatalf("[trendserver] s3 init failed: %v", err)
		}
		deps.Fetcher = fetcher
	}

	// ---- Load datasets once ----
	svc := engine.New(specs, deps)
	loaded, err := svc.LoadAll(ctx)
	if err != nil {
		log.Fatalf("[trendserver] %v", err)
	}
	health.SetDatasetsLoaded(loaded)
	health.StartLivenessChecker(ctx, rdb, sqlDB, 10*time.Second)

	// ---- Gateway ----
	start := time.Now()
	hub := gateway.NewHub(svc, gateway.NewConfigStore(paramStore), prom)
	router := gateway.NewPubSubRouter(hub, rdb)
	go router.Run(ctx)
	go hub.StartMetricsBroadcast(ctx, start, 2*time.Second)

	if cfg.AdminTOTPSecret == "" {
		log.Println("[trendserver] WARNING: ADMIN_TOTP_SECRET not set, reload endpoint is unauthenticated")
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: gateway.NewHandler(gateway.Options{
			Hub:       hub,
			Router:    router,
			AdminTOTP: cfg.AdminTOTPSecret,
			Start:     start,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("[trendserver] serving at http://localhost%s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[trendserver] server error: %v", err)
		}
	}()

	<-sigCh
	log.Println("[trendserver] shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("[trendserver] tracing shutdown: %v", err)
	}
}

// loadSpecs returns a single spec for -data, otherwise the manifest entries.
func loadSpecs(manifestPath, dataFile, column string) ([]dataset.Spec, error) {
	if dataFile != "" {
		name := strings.TrimSuffix(filepath.Base(dataFile), filepath.Ext(dataFile))
		return []dataset.Spec{{Name: name, Source: dataFile, DefaultColumn: column}}, nil
	}
	m, err := dataset.LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	return m.Datasets, nil
}
