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

	"github.com/joho/godotenv"
	"github.com/jthale/attune/backend/internal/config"
	"github.com/jthale/attune/backend/internal/handler"
	"github.com/jthale/attune/backend/internal/relay"
	chatservice "github.com/jthale/attune/backend/internal/service/chat"
	"github.com/jthale/attune/backend/internal/service/session"
	"github.com/jthale/attune/backend/internal/service/suggest"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	store := session.NewStore(cfg.Relay.SessionCapacity)
	bus := relay.NewChannelBus(cfg.Relay.SubscriberQueueSize)

	// Reply suggestions prefer the configured model and fall back to the
	// deterministic coach replies.
	var suggester suggest.Suggester
	if cfg.AI.Enabled() {
		llm, err := suggest.NewLLMSuggester(ctx, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize LLM suggester: %v", err)
			log.Println("continuing with heuristic reply suggestions")
			suggester = suggest.NewCoachSuggester()
		} else {
			log.Println("LLM reply suggester initialized successfully")
			suggester = llm
		}
	} else {
		log.Println("ark credentials not configured, using heuristic reply suggestions")
		suggester = suggest.NewCoachSuggester()
	}

	coordinator := chatservice.NewCoordinator(store, bus, suggester, cfg.Relay)
	router := handler.NewRouter(coordinator)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Attune relay backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
