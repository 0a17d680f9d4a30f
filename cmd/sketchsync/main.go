package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/sketchsync/internal/game/client"
	"github.com/mcdev12/sketchsync/internal/game/session"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg := loadClientConfig()

	log.Info().
		Str("endpoint", cfg.Endpoint).
		Str("user_id", cfg.UserID).
		Msg("starting sketchsync client")

	gameClient := client.New(cfg)

	// Log reconciled state changes as they arrive
	gameClient.Subscribe(func(ev session.Event) {
		switch ev.Type {
		case session.EventConnected:
			log.Info().Msg("session connected")
			if lobbyID := getEnv("SKETCH_LOBBY_ID", ""); lobbyID != "" {
				// Defensive re-join on socket resume; duplicate
				// lobby_state deliveries are reconciled idempotently.
				if err := gameClient.Sender().JoinLobby(lobbyID, cfg.UserID); err != nil {
					log.Error().Err(err).Str("lobby_id", lobbyID).Msg("failed to join lobby")
				}
			}
		case session.EventDisconnected:
			log.Warn().Int("code", ev.Code).Str("reason", ev.Reason).Msg("session disconnected")
		case session.EventLobbySnapshot:
			log.Info().
				Str("lobby_id", ev.Lobby.LobbyID).
				Int("players", len(ev.Lobby.Players)).
				Str("host_id", ev.Lobby.HostID).
				Bool("host_unresolved", ev.Lobby.HostUnresolved).
				Msg("lobby snapshot changed")
		case session.EventGameSnapshot:
			log.Info().
				Str("game_id", ev.Game.GameID).
				Str("state", string(ev.Game.State)).
				Int("round", ev.Game.CurrentRound).
				Int("total_rounds", ev.Game.TotalRounds).
				Str("drawer_id", ev.Game.CurrentDrawerID).
				Int("time_remaining_sec", ev.Game.TimeRemainingSec).
				Bool("recovered", ev.Game.Recovered).
				Msg("game snapshot changed")
		case session.EventDrawingChanged:
			log.Debug().Str("game_id", ev.Game.GameID).Msg("drawing updated")
		case session.EventRoundElapsed:
			log.Info().Msg("round countdown elapsed")
		case session.EventReconnectExhausted:
			log.Error().Msg("reconnect attempts exhausted, manual retry required")
		case session.EventConnectionError:
			log.Warn().Err(ev.Err).Msg("connection error")
		case session.EventUnknownEnvelope:
			log.Warn().Str("message_type", string(ev.MessageType)).Msg("unknown envelope type")
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gameClient.Start(ctx)

	if err := gameClient.Connect(); err != nil {
		log.Error().Err(err).Msg("initial connect failed")
	}

	// Local debug endpoint so a browser devtool can poll client state
	debugAddr := fmt.Sprintf(":%s", getEnv("SKETCH_DEBUG_PORT", "8090"))
	debugServer := newDebugServer(debugAddr, gameClient)
	go func() {
		log.Info().Str("addr", debugAddr).Msg("debug server starting")
		if err := debugServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("debug server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := debugServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("debug server shutdown failed")
	}

	gameClient.Disconnect()
	cancel()

	log.Info().Msg("sketchsync client shutdown complete")
}

// loadClientConfig reads the optional YAML config file and applies
// environment overrides.
func loadClientConfig() client.Config {
	cfg := client.DefaultConfig()
	if path := getEnv("SKETCH_CONFIG", ""); path != "" {
		loaded, err := client.LoadConfig(path)
		if err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("failed to load config")
		}
		cfg = *loaded
	}

	cfg.Endpoint = getEnv("SKETCH_ENDPOINT", cfg.Endpoint)
	cfg.AuthToken = getEnv("SKETCH_AUTH_TOKEN", cfg.AuthToken)
	cfg.UserID = getEnv("SKETCH_USER_ID", cfg.UserID)

	if cfg.Endpoint == "" {
		cfg.Endpoint = "ws://localhost:8080/ws/game"
	}
	if cfg.UserID == "" {
		cfg.UserID = uuid.New().String()
	}
	return cfg
}

// newDebugServer serves client state for local inspection, CORS-enabled
// so browser tooling can read it.
func newDebugServer(addr string, gameClient *client.Client) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("/debug/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(gameClient.Stats()); err != nil {
			log.Error().Err(err).Msg("failed to encode debug state")
		}
	})

	return &http.Server{
		Addr:         addr,
		Handler:      cors.Default().Handler(mux),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
