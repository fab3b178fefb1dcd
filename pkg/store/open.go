package store

import (
	"github.com/mahaj/dupahar-chat/pkg/config"
	"github.com/mahaj/dupahar-chat/pkg/db"
	"github.com/mahaj/dupahar-chat/pkg/snowflake"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// Backend bundles the stores of one storage driver.
type Backend struct {
	Messages      MessageStore
	Users         UserStore
	Conversations ConversationIndex
	close         func()
}

func (b *Backend) Close() {
	if b.close != nil {
		b.close()
	}
}

// Open connects the driver named by cfg.
func Open(cfg config.Storage) (*Backend, error) {
	ids, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, errors.Wrap(err, "init snowflake node")
	}

	switch cfg.Driver {
	case config.DriverMemory:
		jww.WARN.Println("Using in-memory storage; nothing survives a restart")
		m := NewMemory(ids)
		return &Backend{Messages: m, Users: m, Conversations: m}, nil
	case config.DriverScylla:
		session, err := db.NewSession(cfg)
		if err != nil {
			return nil, err
		}
		s := NewScylla(session, ids)
		return &Backend{Messages: s, Users: s, Conversations: s, close: session.Close}, nil
	}
	return nil, errors.Errorf("unknown storage driver %q", cfg.Driver)
}
