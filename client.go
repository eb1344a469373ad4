package wsess

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/wsess/internal/async"
	"github.com/danmuck/wsess/internal/observability"
)

// Client owns the supporting infrastructure sessions run on: the scheduler
// pool, the subscriber registry, and the shared id counter. Sessions are
// created from a Client and refuse new work once it has closed.
type Client struct {
	cfg   Config
	queue *async.Queue

	mu      sync.RWMutex
	sub     Subscriber
	drained chan struct{}

	inflight sync.WaitGroup
	lastID   atomic.Uint64
}

// New builds a Client. The transport factory is required; everything else
// falls back to defaults.
func New(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()
	observability.RegisterMetrics()
	return &Client{cfg: cfg, queue: async.NewQueue(cfg.Workers)}, nil
}

// Subscribe registers the subscriber receiving inbound messages and close
// events for every session of this client. A later call replaces the
// previous subscriber.
func (c *Client) Subscribe(sub Subscriber) error {
	if sub == nil {
		return ErrSubscriberRequired
	}
	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()
	return nil
}

// NewSession allocates an idle session bound to this client. Connect
// establishes its transport.
func (c *Client) NewSession() *Session {
	s := &Session{client: c, id: c.nextID()}
	log.Debug().Uint64("session", s.id).Msg("session created")
	return s
}

// Close stops intake and waits until every scheduled unit of work has run
// and released its ownership share, bounded by ctx. Concurrent and repeated
// calls join the same drain; none of them reports done before it finishes.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.drained == nil {
		c.drained = make(chan struct{})
		go func(done chan struct{}) {
			c.queue.Close()
			c.inflight.Wait()
			close(done)
		}(c.drained)
	}
	drained := c.drained
	c.mu.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) subscriber() Subscriber {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sub
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.drained != nil
}

// nextID serves both session and message identifiers, keeping every id
// unique and strictly increasing across the client's lifetime.
func (c *Client) nextID() uint64 { return c.lastID.Add(1) }

// submit schedules one unit of session work, holding an ownership share on
// the client for the item's lifetime. The share is released by the
// scheduler's cleanup hook regardless of how the work ends, and Close waits
// for every share. Shares are acquired only while intake is open, so a drain
// in progress never races a late acquisition.
func (c *Client) submit(work func()) error {
	c.mu.RLock()
	if c.drained != nil {
		c.mu.RUnlock()
		return async.ErrClosed
	}
	c.inflight.Add(1)
	c.mu.RUnlock()

	if err := c.queue.Submit(work, func() { c.inflight.Done() }); err != nil {
		c.inflight.Done()
		return err
	}
	return nil
}
