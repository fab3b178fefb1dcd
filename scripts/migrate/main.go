package main

import (
	"flag"

	"github.com/mahaj/dupahar-chat/pkg/config"
	"github.com/mahaj/dupahar-chat/pkg/db"
	jww "github.com/spf13/jwalterweatherman"
)

// migrate creates the chat tables in the configured keyspace, or drops them
// with -drop.
func main() {
	drop := flag.Bool("drop", false, "drop the chat tables instead of creating them")
	flag.Parse()
	jww.SetStdoutThreshold(jww.LevelInfo)

	var cfg config.Storage
	if err := config.ParseEnv(&cfg); err != nil {
		jww.FATAL.Fatalf("Failed to load config: %v", err)
	}

	if *drop {
		if err := db.Drop(cfg); err != nil {
			jww.FATAL.Fatalf("Failed to drop tables: %v", err)
		}
		jww.INFO.Printf("Tables dropped from keyspace %s", cfg.Keyspace)
		return
	}

	if err := db.Migrate(cfg); err != nil {
		jww.FATAL.Fatalf("Failed to create tables: %v", err)
	}
	jww.INFO.Printf("Tables %v ready in keyspace %s", db.Tables, cfg.Keyspace)
}
