package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/joho/godotenv"

	"coview/internal/config"
	"coview/internal/hertzapi"
	"coview/internal/httpapi"
	"coview/internal/rooms"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}
	cfg := config.Load()

	manager := rooms.NewManager()
	caster := rooms.NewBroadcaster(manager)

	if !cfg.AdminEnabled() {
		log.Println("admin credentials not configured, admin endpoints disabled")
	}

	switch cfg.Engine {
	case config.EngineEcho:
		runEcho(cfg, manager, caster)
	default:
		runHertz(cfg, manager, caster)
	}
}

func runHertz(cfg *config.Config, manager *rooms.Manager, caster *rooms.Broadcaster) {
	h := server.Default(server.WithHostPorts(cfg.Addr))
	router := hertzapi.NewRouter(h, manager, caster, cfg)

	go func() {
		log.Printf("starting hertz server on %s", cfg.Addr)
		router.Spin()
	}()

	waitForSignal()
	log.Println("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := router.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
	log.Println("server stopped")
}

func runEcho(cfg *config.Config, manager *rooms.Manager, caster *rooms.Broadcaster) {
	api := httpapi.NewServer(manager, caster, cfg)
	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("starting echo server on %s", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	waitForSignal()
	log.Println("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
	log.Println("server stopped")
}

func waitForSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}
