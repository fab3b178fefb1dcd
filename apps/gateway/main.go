package main

import (
	"context"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/mahaj/dupahar-chat/pkg/auth"
	"github.com/mahaj/dupahar-chat/pkg/chat"
	"github.com/mahaj/dupahar-chat/pkg/config"
	"github.com/mahaj/dupahar-chat/pkg/events"
	"github.com/mahaj/dupahar-chat/pkg/gateway"
	"github.com/mahaj/dupahar-chat/pkg/logging"
	"github.com/mahaj/dupahar-chat/pkg/presence"
	"github.com/mahaj/dupahar-chat/pkg/registry"
	"github.com/mahaj/dupahar-chat/pkg/store"
	jww "github.com/spf13/jwalterweatherman"
)

func main() {
	cfg, err := config.LoadGateway()
	if err != nil {
		jww.FATAL.Fatalf("Failed to load config: %v", err)
	}
	logFile, err := logging.Setup(cfg.Logging)
	if err != nil {
		jww.FATAL.Fatalf("error opening file: %v", err)
	}

	backend, err := store.Open(cfg.Storage)
	if err != nil {
		jww.FATAL.Fatalf("Failed to open storage: %v", err)
	}

	var opts []chat.Option
	var feed events.Publisher = events.Nop{}
	if cfg.Kafka.Enabled() {
		feed = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		opts = append(opts, chat.WithPublisher(feed))
		jww.INFO.Printf("Publishing chat events to %s", cfg.Kafka.Topic)
	}

	var mirror *presence.RedisMirror
	if cfg.Redis.Enabled() {
		mirror = presence.NewRedisMirror(cfg.Redis.Addr)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		// Presence starts empty on every boot.
		if err := mirror.Reset(ctx); err != nil {
			jww.WARN.Printf("Failed to reset presence mirror: %v", err)
		}
		cancel()
		opts = append(opts, chat.WithPresenceMirror(mirror))
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	svc := chat.NewService(registry.New(), backend.Messages, opts...)
	tokens := auth.NewManager(cfg.Auth.Secret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)
	ws := gateway.NewHandler(ctx, svc, tokens, cfg.Socket)

	mux := http.NewServeMux()
	mux.Handle("/ws", ws)
	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	go func() {
		jww.INFO.Printf("Gateway Service Starting on %s...", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			jww.FATAL.Fatalf("Gateway server failed: %v", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.ShutdownTimeout, map[string]gfshutdown.Operation{
		"http": func(ctx context.Context) error {
			ws.CloseAll()
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
	stop()
	jww.INFO.Printf("Gateway exited with code: %d", exitCode)
	backend.Close()
	logFile.Close()
	os.Exit(exitCode)
}
