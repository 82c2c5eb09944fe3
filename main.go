// cineshorts/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cineshorts/api"
	"cineshorts/cache"
	"cineshorts/config"
	"cineshorts/ffmpeg"
	"cineshorts/storage"
	"cineshorts/task"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. External tool boundary
	runner, err := ffmpeg.NewRunner(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize ffmpeg runner: %v", err)
	}

	// 3. Stores and caches
	store, err := storage.NewStore(cfg.UploadDir, cfg.MaxUploadSize)
	if err != nil {
		log.Fatalf("Failed to initialize upload store: %v", err)
	}
	results, err := cache.NewResultCache(cfg.CacheDir)
	if err != nil {
		log.Fatalf("Failed to initialize result cache: %v", err)
	}
	thumbs, err := cache.NewThumbCache(cfg.ThumbDir, runner)
	if err != nil {
		log.Fatalf("Failed to initialize thumbnail cache: %v", err)
	}

	// 4. Task registry + manager
	registry := task.NewRegistry(cfg.TaskRetention)
	manager := task.NewManager(cfg, registry, runner, results, store)

	// 5. Router and server
	router := api.SetupRouter(manager, store, results, thumbs, cfg)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager.Start(ctx)

	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	<-ctx.Done()

	stop()
	log.Println("Shutting down gracefully, press Ctrl+C again to force")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	log.Println("Server exiting")
}
