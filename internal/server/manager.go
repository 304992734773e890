package server

import (
	"context"

	"golang.org/x/sync/errgroup"

	"smart-stick/tracker/internal/log"
)

// Server is anything that runs until ctx is cancelled: listeners, relays
// and background writers alike.
type Server interface {
	Start(ctx context.Context) error
}

// Manager runs its servers together. The first one to fail cancels the rest.
type Manager struct {
	servers []Server
}

func NewManager(servers ...Server) *Manager {
	return &Manager{servers: servers}
}

func (m *Manager) Add(s Server) {
	m.servers = append(m.servers, s)
}

func (m *Manager) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, srv := range m.servers {
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}

	log.Info("All servers starting...", "count", len(m.servers))
	return g.Wait()
}
