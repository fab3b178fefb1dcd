// Package db connects to the Scylla cluster holding chat history and owns
// its schema.
package db

import (
	"strings"

	"github.com/gocql/gocql"
	"github.com/mahaj/dupahar-chat/pkg/config"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

type Session struct {
	*gocql.Session
}

// NewSession opens a session on cfg.Keyspace.
func NewSession(cfg config.Storage) (*Session, error) {
	return open(cfg, cfg.Keyspace)
}

func open(cfg config.Storage, keyspace string) (*Session, error) {
	cluster, err := clusterConfig(cfg, keyspace)
	if err != nil {
		return nil, err
	}
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, errors.Wrapf(err, "connect to scylla keyspace %q", keyspace)
	}

	jww.INFO.Printf("Connected to ScyllaDB %s (keyspace %s, %s)", strings.Join(cfg.ScyllaHosts, ","), keyspace, cluster.Consistency)
	return &Session{Session: session}, nil
}

// clusterConfig maps cfg onto a gocql cluster. Message status changes are
// compare-and-set updates, so serial consistency stays LOCAL_SERIAL.
func clusterConfig(cfg config.Storage, keyspace string) (*gocql.ClusterConfig, error) {
	consistency, err := gocql.ParseConsistencyWrapper(cfg.Consistency)
	if err != nil {
		return nil, errors.Wrap(err, "SCYLLA_CONSISTENCY")
	}

	cluster := gocql.NewCluster(cfg.ScyllaHosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = consistency
	cluster.SerialConsistency = gocql.LocalSerial
	cluster.Timeout = cfg.Timeout
	cluster.ConnectTimeout = cfg.Timeout
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: cfg.Retries,
		Min:        cfg.RetryMin,
		Max:        cfg.RetryMax,
	}
	return cluster, nil
}
