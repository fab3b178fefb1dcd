package chat

import (
	"sort"
	"sync"

	"github.com/mahaj/dupahar-chat/pkg/registry"
)

// subscriptions is the room -> connection subscriber table. Only attached
// connections may join rooms, so a join racing a disconnect cannot leave a
// dead connection subscribed.
type subscriptions struct {
	mu      sync.Mutex
	members map[string]map[string]registry.Conn
	joined  map[string]map[string]struct{}
	// retired holds replaced connections until their transport goes away.
	retired map[string]struct{}
}

func newSubscriptions() *subscriptions {
	return &subscriptions{
		members: make(map[string]map[string]registry.Conn),
		joined:  make(map[string]map[string]struct{}),
		retired: make(map[string]struct{}),
	}
}

func (s *subscriptions) attach(conn registry.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.joined[conn.ID()]; !ok {
		s.joined[conn.ID()] = make(map[string]struct{})
	}
}

// detach drops every subscription of connID.
func (s *subscriptions) detach(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked(connID)
}

// retire detaches connID and keeps it from registering again.
func (s *subscriptions) retire(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked(connID)
	s.retired[connID] = struct{}{}
}

func (s *subscriptions) isRetired(connID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.retired[connID]
	return ok
}

// forget detaches connID and clears its retired mark.
func (s *subscriptions) forget(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked(connID)
	delete(s.retired, connID)
}

func (s *subscriptions) dropLocked(connID string) {
	for key := range s.joined[connID] {
		delete(s.members[key], connID)
		if len(s.members[key]) == 0 {
			delete(s.members, key)
		}
	}
	delete(s.joined, connID)
}

// join subscribes conn to key. It reports false when conn is not attached.
func (s *subscriptions) join(key string, conn registry.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rooms, ok := s.joined[conn.ID()]
	if !ok {
		return false
	}
	rooms[key] = struct{}{}
	if s.members[key] == nil {
		s.members[key] = make(map[string]registry.Conn)
	}
	s.members[key][conn.ID()] = conn
	return true
}

func (s *subscriptions) subscribers(key string) []registry.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]registry.Conn, 0, len(s.members[key]))
	for _, c := range s.members[key] {
		out = append(out, c)
	}
	return out
}

func (s *subscriptions) roomsOf(connID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.joined[connID]))
	for key := range s.joined[connID] {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
