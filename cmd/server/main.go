package main

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MegaGrindStone/polaris"
	"github.com/MegaGrindStone/polaris/internal/config"
	"github.com/MegaGrindStone/polaris/internal/conversation"
	"github.com/MegaGrindStone/polaris/internal/handlers"
	"github.com/MegaGrindStone/polaris/internal/render"
	"github.com/MegaGrindStone/polaris/internal/services"
	"github.com/MegaGrindStone/polaris/internal/transcript"
)

const errLoggerKey = "error"

func main() {
	cfgPath, err := config.Path()
	if err != nil {
		log.Fatal(err)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	logger.Info("Configuration loaded", slog.String("path", cfgPath),
		slog.String("provider", cfg.LLM.Provider), slog.String("model", cfg.LLM.Model))

	service, err := cfg.LLM.Service(logger)
	if err != nil {
		log.Fatal(err)
	}

	renderer, err := render.New(cfg.Renderer)
	if err != nil {
		log.Fatal(err)
	}

	var opts []transcript.Option
	if cfg.StorePath != "" {
		boltDB, err := services.NewBoltDB(cfg.StorePath)
		if err != nil {
			log.Fatal(fmt.Errorf("error opening transcript store: %w", err))
		}
		defer boltDB.Close()
		opts = append(opts, transcript.WithStore(boltDB))
	}

	tr := transcript.New(logger, opts...)
	if err := tr.Load(context.Background()); err != nil {
		log.Fatal(err)
	}

	ctrl := conversation.New(service, cfg.Persona, tr, logger)
	// A failed initialization is recoverable; the first message retries it.
	ctrl.Initialize(context.Background())

	m, err := handlers.NewMain(ctrl, renderer, handlers.Options{
		Model:         cfg.LLM.Model,
		FrameInterval: cfg.FrameInterval,
	}, logger)
	if err != nil {
		log.Fatal(err)
	}

	// Serve static files
	staticFS, err := fs.Sub(polaris.StaticFS, "static")
	if err != nil {
		log.Fatal(err)
	}
	fileServer := http.FileServer(http.FS(staticFS))

	mux := http.NewServeMux()
	mux.Handle("/static/", http.StripPrefix("/static/", fileServer))
	mux.HandleFunc("/", m.HandleHome)
	mux.HandleFunc("/messages", m.HandleMessages)
	mux.HandleFunc("/focus", m.HandleFocus)
	mux.HandleFunc("/blur", m.HandleBlur)
	mux.HandleFunc("/sse", m.HandleSSE)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv.RegisterOnShutdown(func() {
		if err := m.Shutdown(context.Background()); err != nil {
			logger.Error("Failed to shutdown sse server", slog.String(errLoggerKey, err.Error()))
		}
	})

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	go func() {
		logger.Info("Server starting", slog.String("port", cfg.Port))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("Server error", slog.String(errLoggerKey, err.Error()))

	case sig := <-shutdown:
		logger.Info("Start shutdown", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed", slog.String(errLoggerKey, err.Error()))
			if err := srv.Close(); err != nil {
				logger.Error("Forcing server close", slog.String(errLoggerKey, err.Error()))
			}
		}
	}
}
