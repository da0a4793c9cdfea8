package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"capture-relay-api/internal/config"
	"capture-relay-api/internal/handler"
	"capture-relay-api/internal/imaging"
	"capture-relay-api/internal/relay"
	"capture-relay-api/internal/repository"
	"capture-relay-api/internal/router"
	"capture-relay-api/internal/service"
	"capture-relay-api/internal/storage"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting capture-relay-api...")

	// Load configuration
	cfg := config.MustLoad()
	log.Printf("Environment: %s", cfg.App.Environment)

	// Embedded store: accounts, usage counters, upload records
	store, err := repository.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		log.Fatalf("Failed to initialize SQLite store: %v", err)
	}
	defer store.Close()
	log.Println("SQLite store initialized")

	// Account directory: embedded by default, external MySQL when
	// configured. The external directory is read-only, so registration
	// is only wired for the embedded store.
	var accountRepo repository.AccountRepository = store
	var registrar repository.AccountRegistrar = store

	var mysqlDB *sql.DB
	if cfg.AccountDB.Enabled {
		mysqlDB, err = sql.Open("mysql", cfg.AccountDB.DSN())
		if err != nil {
			log.Printf("Warning: MySQL connection failed: %v", err)
		} else {
			mysqlDB.SetMaxOpenConns(10)
			mysqlDB.SetMaxIdleConns(5)
			mysqlDB.SetConnMaxLifetime(5 * time.Minute)

			if err := mysqlDB.Ping(); err != nil {
				log.Printf("Warning: MySQL ping failed: %v", err)
				mysqlDB.Close()
				mysqlDB = nil
			} else {
				accountRepo = repository.NewMySQLAccountRepository(mysqlDB)
				registrar = nil
				log.Println("MySQL account directory initialized")
			}
		}
	}
	if mysqlDB != nil {
		defer mysqlDB.Close()
	}

	// Relay: redis Pub/Sub when reachable, in-process fallback
	// otherwise. The fallback only reaches sessions on this instance.
	var publisher relay.Publisher
	relayMode := "memory"
	if cfg.Relay.RedisHost != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Relay.RedisAddress(),
			Password: cfg.Relay.RedisPassword,
			DB:       cfg.Relay.RedisDB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("Warning: Redis connection failed, relay will not cross instances: %v", err)
		} else {
			publisher = relay.NewRedisRelay(redisClient, "")
			relayMode = "redis"
			log.Println("Redis relay initialized")
		}
		cancel()
	}
	if publisher == nil {
		publisher = relay.NewMemoryRelay()
		log.Println("In-process relay initialized")
	}

	// Object storage: S3 (or S3-compatible) when a bucket is
	// configured, in-memory otherwise. Memory storage loses objects on
	// restart and is only meant for development.
	var objects storage.ObjectStorage
	if cfg.Storage.Bucket != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		s3Store, err := storage.NewS3Storage(ctx, storage.S3Config{
			Region:       cfg.Storage.Region,
			Bucket:       cfg.Storage.Bucket,
			AccessKey:    cfg.Storage.AccessKey,
			SecretKey:    cfg.Storage.SecretKey,
			BaseEndpoint: cfg.Storage.BaseEndpoint,
		})
		cancel()
		if err != nil {
			log.Fatalf("Failed to initialize S3 storage: %v", err)
		}
		objects = s3Store
		log.Printf("S3 storage initialized - Bucket: %s", cfg.Storage.Bucket)
	} else {
		objects = storage.NewMemoryStorage()
		log.Println("Warning: no S3 bucket configured, using in-memory storage")
	}

	// Image processor
	imgCfg := imaging.DefaultConfig()
	if cfg.Image.MaxDimension > 0 {
		imgCfg.MaxDimension = cfg.Image.MaxDimension
	}
	if cfg.Image.ByteBudget > 0 {
		imgCfg.ByteBudget = cfg.Image.ByteBudget
	}
	if cfg.Image.Workers > 0 {
		imgCfg.Workers = int64(cfg.Image.Workers)
	}
	processor := imaging.NewProcessor(imgCfg)

	// Initialize services
	captureService := service.NewCaptureService(
		accountRepo,
		store,
		store,
		objects,
		publisher,
		processor,
		cfg.Retention.TTL,
	)
	accountService := service.NewAccountService(accountRepo, registrar)

	cleanup := service.NewCleanupScheduler(store, objects, service.CleanupConfig{
		SweepInterval: cfg.Retention.SweepInterval,
	})
	cleanup.Start()
	defer cleanup.Stop()

	// Initialize handlers
	healthHandler := handler.New()
	captureHandler := handler.NewCaptureHandler(captureService)
	accountHandler := handler.NewAccountHandler(accountService)
	adminHandler := handler.NewAdminHandler(store, cleanup, relayMode)

	// Create router
	r := router.New(router.Config{
		Handler:        healthHandler,
		CaptureHandler: captureHandler,
		AccountHandler: accountHandler,
		AdminHandler:   adminHandler,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
	fmt.Println("Goodbye!")
}
