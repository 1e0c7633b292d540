// Package main is the entry point for the Chorale streaming client backend.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lbraun/chorale/internal/config"
	"github.com/lbraun/chorale/internal/domain/device"
	"github.com/lbraun/chorale/internal/domain/player"
	"github.com/lbraun/chorale/internal/domain/session"
	"github.com/lbraun/chorale/internal/domain/streaming/catalogapi"
	"github.com/lbraun/chorale/internal/domain/streaming/webplayer"
	"github.com/lbraun/chorale/internal/infra/kvstore"
	"github.com/lbraun/chorale/internal/infra/mpd"
	"github.com/lbraun/chorale/internal/transport/socketio"
	"github.com/lbraun/chorale/internal/version"
)

func main() {
	// Command line flags
	configPath := flag.String("config", "", "Path to config.toml (optional)")
	initConfig := flag.String("init-config", "", "Write an example config to the given path and exit")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	mpdHost := flag.String("mpd-host", "", "MPD host (overrides config)")
	mpdPort := flag.Int("mpd-port", 0, "MPD port (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if *initConfig != "" {
		if err := config.CreateConfigFile(*initConfig); err != nil {
			log.Fatal().Err(err).Msg("Failed to write config file")
		}
		log.Info().Str("path", *initConfig).Msg("Config file written")
		return
	}

	// Load configuration, apply flag overrides
	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load config")
		}
		cfg = loaded
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *mpdHost != "" {
		cfg.MPD.Host = *mpdHost
	}
	if *mpdPort != 0 {
		cfg.MPD.Port = *mpdPort
	}

	// Print startup banner
	versionInfo := version.GetInfo()
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().Msgf("  %s", versionInfo.String())
	log.Info().Msg("  Streaming Music Client Backend")
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().
		Int("port", cfg.Server.Port).
		Str("catalog", cfg.Catalog.BaseURL).
		Str("mpd_host", cfg.MPD.Host).
		Int("mpd_port", cfg.MPD.Port).
		Msg("Configuration")

	dataDir, err := cfg.DataDir()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve data directory")
	}

	// Durable credential store
	kv := kvstore.NewStore(filepath.Join(dataDir, "chorale.db"))
	if err := kv.Open(); err != nil {
		log.Fatal().Err(err).Msg("Failed to open credential store")
	}
	defer kv.Close()
	creds := session.NewStore(kv)

	// Device identity
	dev, err := device.NewService(filepath.Join(dataDir, "device.json"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize device identity")
	}

	// Catalog client
	apiClient := catalogapi.NewClient(cfg.Catalog.BaseURL, creds,
		catalogapi.WithDeviceID(dev.UUID()),
	)
	if apiClient.Ping(context.Background()) {
		log.Info().Msg("Catalog API reachable")
	} else {
		log.Warn().Msg("Catalog API unreachable at startup")
	}

	// Web-player fallback session (interactive browser login)
	var webClient socketio.WebSession
	if cfg.Catalog.WebPlayerURL != "" {
		webClient = webplayer.NewClient(cfg.Catalog.WebPlayerURL)
		log.Info().Str("url", cfg.Catalog.WebPlayerURL).Msg("Web player configured")
	}

	// MPD sink
	sink := mpd.NewSink(cfg.MPD.Host, cfg.MPD.Port, cfg.MPD.Password)
	if err := sink.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MPD")
	}

	// Playback controller
	controller := player.NewController(apiClient, sink)
	defer controller.Destroy()

	// Socket.io server
	socketServer, err := socketio.NewServer(controller, apiClient, webClient, cfg.Server.MaxExternalClients)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Socket.io server")
	}
	defer socketServer.Close()

	// Setup HTTP server
	mux := http.NewServeMux()

	// Socket.io endpoint
	mux.Handle("/socket.io/", socketServer)

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if apiClient.Ping(r.Context()) {
			w.Write([]byte(`{"status":"ok","catalog":"reachable"}`))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"degraded","catalog":"unreachable"}`))
	})

	// Version endpoint
	mux.HandleFunc("/api/v1/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(version.GetInfo())
	})

	// Playback state (REST fallback for the shell tray)
	mux.HandleFunc("/api/v1/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(controller.State())
	})

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      corsMiddleware(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Info().Msg("Shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("HTTP server error")
	}

	log.Info().Msg("Server stopped")
}
