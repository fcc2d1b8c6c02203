package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomgate/internal/docstore"
	"github.com/vovakirdan/roomgate/internal/identity"
	"github.com/vovakirdan/roomgate/internal/room"
)

// Client is everything one browser session owns.
type Client struct {
	ID      string
	Auth    *identity.Auth
	Manager *Manager
	Rooms   *room.Registry

	mu       sync.Mutex
	lastSeen time.Time
}

func (c *Client) touch(now time.Time) {
	c.mu.Lock()
	c.lastSeen = now
	c.mu.Unlock()
}

func (c *Client) idleSince(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.lastSeen)
}

// Pool keeps browser sessions in memory keyed by session id.
type Pool struct {
	newAuth func() *identity.Auth
	store   docstore.Store
	idle    time.Duration
	log     *zerolog.Logger
	now     func() time.Time

	mu      sync.Mutex
	clients map[string]*Client
}

// NewPool creates an empty pool. newAuth is called once per new session.
// Sessions unused for longer than idle are evicted by Run; idle <= 0 disables eviction.
func NewPool(newAuth func() *identity.Auth, st docstore.Store, idle time.Duration, logger *zerolog.Logger) *Pool {
	return &Pool{
		newAuth: newAuth,
		store:   st,
		idle:    idle,
		log:     logger,
		now:     time.Now,
		clients: make(map[string]*Client),
	}
}

// Get returns the session for id and marks it as used.
func (p *Pool) Get(id string) (*Client, bool) {
	p.mu.Lock()
	c, ok := p.clients[id]
	p.mu.Unlock()
	if !ok {
		return nil, false
	}
	c.touch(p.now())
	return c, true
}

// NewClient starts an anonymous session under a fresh id without registering it.
// The caller either hands it to Add or closes its Manager.
func (p *Pool) NewClient(ctx context.Context) *Client {
	auth := p.newAuth()
	c := &Client{
		ID:      uuid.NewString(),
		Auth:    auth,
		Manager: NewManager(auth, p.store, p.log),
		Rooms:   room.NewRegistry(p.store, auth, p.log),
	}
	c.Manager.Start(ctx)
	return c
}

// Add registers c so later requests can find it with Get.
func (p *Pool) Add(c *Client) {
	c.touch(p.now())

	p.mu.Lock()
	p.clients[c.ID] = c
	n := len(p.clients)
	p.mu.Unlock()

	p.log.Debug().Str("session_id", c.ID).Int("sessions", n).Msg("session created")
}

// Create starts and registers a new anonymous session.
func (p *Pool) Create(ctx context.Context) *Client {
	c := p.NewClient(ctx)
	p.Add(c)
	return c
}

// Len returns the number of live sessions.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// Run evicts idle sessions until ctx is canceled, then closes every session.
func (p *Pool) Run(ctx context.Context) {
	interval := p.idle / 2
	if interval <= 0 || interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.closeAll()
			return
		case <-ticker.C:
			p.evictIdle()
		}
	}
}

func (p *Pool) evictIdle() int {
	if p.idle <= 0 {
		return 0
	}
	now := p.now()

	var evicted []*Client
	p.mu.Lock()
	for id, c := range p.clients {
		if c.idleSince(now) > p.idle {
			delete(p.clients, id)
			evicted = append(evicted, c)
		}
	}
	remaining := len(p.clients)
	p.mu.Unlock()

	for _, c := range evicted {
		c.Manager.Close()
	}
	if len(evicted) > 0 {
		p.log.Info().Int("evicted", len(evicted)).Int("sessions", remaining).Msg("idle sessions evicted")
	}
	return len(evicted)
}

func (p *Pool) closeAll() {
	p.mu.Lock()
	clients := p.clients
	p.clients = make(map[string]*Client)
	p.mu.Unlock()

	for _, c := range clients {
		c.Manager.Close()
	}
	p.log.Info().Int("sessions", len(clients)).Msg("session pool closed")
}
