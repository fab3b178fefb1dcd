package main

import (
	"context"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/mahaj/dupahar-chat/pkg/api"
	"github.com/mahaj/dupahar-chat/pkg/auth"
	"github.com/mahaj/dupahar-chat/pkg/config"
	"github.com/mahaj/dupahar-chat/pkg/events"
	"github.com/mahaj/dupahar-chat/pkg/logging"
	"github.com/mahaj/dupahar-chat/pkg/presence"
	"github.com/mahaj/dupahar-chat/pkg/store"
	jww "github.com/spf13/jwalterweatherman"
)

func main() {
	cfg, err := config.LoadAPI()
	if err != nil {
		jww.FATAL.Fatalf("Failed to load config: %v", err)
	}
	logFile, err := logging.Setup(cfg.Logging)
	if err != nil {
		jww.FATAL.Fatalf("error opening file: %v", err)
	}

	backend, err := store.Open(cfg.Storage)
	if err != nil {
		jww.FATAL.Fatalf("Failed to connect to storage: %v", err)
	}

	tokens := auth.NewManager(cfg.Auth.Secret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)

	var feed events.Publisher = events.Nop{}
	if cfg.Kafka.Enabled() {
		feed = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	}
	opts := []api.Option{api.WithPublisher(feed)}

	var mirror *presence.RedisMirror
	if cfg.Redis.Enabled() {
		mirror = presence.NewRedisMirror(cfg.Redis.Addr)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := mirror.Ping(ctx); err != nil {
			jww.WARN.Printf("Presence mirror at %s unreachable: %v", cfg.Redis.Addr, err)
		}
		cancel()
		opts = append(opts, api.WithPresence(mirror))
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewServer(backend, tokens, opts...).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		jww.INFO.Printf("API Service Starting on %s...", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			jww.FATAL.Fatalf("API server failed: %v", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.ShutdownTimeout, map[string]gfshutdown.Operation{
		"http": func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
		"events": func(ctx context.Context) error {
			return feed.Close()
		},
		"presence": func(ctx context.Context) error {
			if mirror == nil {
				return nil
			}
			return mirror.Close()
		},
	})

	exitCode := <-wait
	jww.INFO.Printf("API exited with code: %d", exitCode)
	backend.Close()
	logFile.Close()
	os.Exit(exitCode)
}
