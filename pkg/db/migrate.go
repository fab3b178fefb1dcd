package db

import (
	"fmt"

	"github.com/mahaj/dupahar-chat/pkg/config"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// Tables in creation order.
var Tables = []string{"messages", "messages_by_id", "users", "user_conversations", "conversation_counters"}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		room text,
		id bigint,
		sender text,
		receiver text,
		content text,
		created_at timestamp,
		status text,
		PRIMARY KEY (room, id)
	) WITH CLUSTERING ORDER BY (id ASC)`,

	`CREATE TABLE IF NOT EXISTS messages_by_id (
		id bigint PRIMARY KEY,
		room text
	)`,

	`CREATE TABLE IF NOT EXISTS users (
		username text PRIMARY KEY,
		password_hash text,
		created_at timestamp
	)`,

	`CREATE TABLE IF NOT EXISTS user_conversations (
		user_id text,
		other_user_id text,
		last_updated timestamp,
		PRIMARY KEY (user_id, other_user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS conversation_counters (
		user_id text,
		other_user_id text,
		unread_count counter,
		PRIMARY KEY (user_id, other_user_id)
	)`,
}

// Migrate creates keyspace and tables if they do not exist. Schema changes
// belong to this function only; the services never create tables.
func Migrate(cfg config.Storage) error {
	sys, err := open(cfg, "system")
	if err != nil {
		return err
	}
	err = sys.Query(createKeyspace(cfg.Keyspace, cfg.ReplicationFactor)).Exec()
	sys.Close()
	if err != nil {
		return errors.Wrap(err, "create keyspace")
	}

	session, err := NewSession(cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	for i, stmt := range schema {
		if err := session.Query(stmt).Exec(); err != nil {
			return errors.Wrapf(err, "create table %s", Tables[i])
		}
		jww.INFO.Printf("Table %s ready", Tables[i])
	}
	return nil
}

func createKeyspace(keyspace string, replication int) string {
	return fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : %d }`,
		keyspace, replication)
}

// Drop removes every table created by Migrate.
func Drop(cfg config.Storage) error {
	session, err := NewSession(cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	for _, table := range Tables {
		if err := session.Query("DROP TABLE IF EXISTS " + table).Exec(); err != nil {
			return errors.Wrapf(err, "drop table %s", table)
		}
		jww.INFO.Printf("Table %s dropped", table)
	}
	return nil
}
