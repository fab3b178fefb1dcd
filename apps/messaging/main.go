package main

import (
	"context"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/mahaj/dupahar-chat/pkg/config"
	"github.com/mahaj/dupahar-chat/pkg/conversations"
	"github.com/mahaj/dupahar-chat/pkg/events"
	"github.com/mahaj/dupahar-chat/pkg/logging"
	"github.com/mahaj/dupahar-chat/pkg/store"
	jww "github.com/spf13/jwalterweatherman"
)

// The messaging service keeps the conversation index in step with the
// chat event feed.
func main() {
	cfg, err := config.LoadMessaging()
	if err != nil {
		jww.FATAL.Fatalf("Failed to load config: %v", err)
	}
	logFile, err := logging.Setup(cfg.Logging)
	if err != nil {
		jww.FATAL.Fatalf("error opening file: %v", err)
	}

	backend, err := store.Open(cfg.Storage)
	if err != nil {
		jww.FATAL.Fatalf("Failed to connect to ScyllaDB: %v", err)
	}

	projector := conversations.NewProjector(backend.Conversations)
	consumer := events.NewKafkaConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID)

	ctx, stop := context.WithCancel(context.Background())
	consumed := make(chan error, 1)
	go func() {
		jww.INFO.Printf("Starting Kafka Consumer on %s (group %s)...", cfg.Kafka.Topic, cfg.Kafka.GroupID)
		consumed <- consumer.Consume(ctx, projector.Apply)
	}()

	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.ShutdownTimeout, map[string]gfshutdown.Operation{
		"consumer": func(ctx context.Context) error {
			stop()
			select {
			case err := <-consumed:
				if err != nil {
					return err
				}
			case <-ctx.Done():
				return ctx.Err()
			}
			return consumer.Close()
		},
	})

	exitCode := <-wait
	jww.INFO.Printf("Messaging service exited with code: %d", exitCode)
	backend.Close()
	logFile.Close()
	os.Exit(exitCode)
}
