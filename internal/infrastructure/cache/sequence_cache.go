// Package cache provides a by-code cache of sequence definitions with
// PostgreSQL LISTEN/NOTIFY invalidation.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"seqnum/internal/core/id"
	"seqnum/internal/core/numerator"
	"seqnum/pkg/logger"
)

// Channel is the NOTIFY channel the seq_sequences trigger publishes on.
// The payload is the affected code; an empty payload invalidates everything.
const Channel = "seq_sequences_changed"

// InvalidationListener is called after an invalidation has been applied.
type InvalidationListener func(code string)

// SequenceCache wraps a numerator.Store and answers FindByCode from memory.
// Writes made through it invalidate the affected code; writes made by other
// processes arrive as notifications once Start is called.
//
// Stale reset tokens are harmless: the token swap and the row lock always
// consult the database.
type SequenceCache struct {
	numerator.Store

	pool *pgxpool.Pool

	mu     sync.RWMutex
	byCode map[string][]*numerator.Sequence
	codeOf map[id.ID]string

	listeners   []InvalidationListener
	listenersMu sync.RWMutex

	// Lifecycle
	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

var _ numerator.Store = (*SequenceCache)(nil)

// NewSequenceCache wraps store. pool may be nil, in which case only local
// writes invalidate the cache.
func NewSequenceCache(store numerator.Store, pool *pgxpool.Pool) *SequenceCache {
	return &SequenceCache{
		Store:  store,
		pool:   pool,
		byCode: make(map[string][]*numerator.Sequence),
		codeOf: make(map[id.ID]string),
	}
}

func clone(s *numerator.Sequence) *numerator.Sequence {
	cp := *s
	return &cp
}

// FindByCode implements numerator.Store.
func (c *SequenceCache) FindByCode(ctx context.Context, code string) ([]*numerator.Sequence, error) {
	c.mu.RLock()
	cached, ok := c.byCode[code]
	c.mu.RUnlock()
	if ok {
		out := make([]*numerator.Sequence, len(cached))
		for i, s := range cached {
			out[i] = clone(s)
		}
		return out, nil
	}

	found, err := c.Store.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	stored := make([]*numerator.Sequence, len(found))
	for i, s := range found {
		stored[i] = clone(s)
	}
	c.mu.Lock()
	c.byCode[code] = stored
	for _, s := range stored {
		c.codeOf[s.ID] = code
	}
	c.mu.Unlock()

	return found, nil
}

// Create implements numerator.Store.
func (c *SequenceCache) Create(ctx context.Context, seq *numerator.Sequence) error {
	if err := c.Store.Create(ctx, seq); err != nil {
		return err
	}
	c.Invalidate(seq.Code)
	return nil
}

// UpdateReset implements numerator.Store.
func (c *SequenceCache) UpdateReset(ctx context.Context, seq *numerator.Sequence) error {
	if err := c.Store.UpdateReset(ctx, seq); err != nil {
		return err
	}
	c.Invalidate(seq.Code)
	return nil
}

// SwapResetToken implements numerator.Store. It is only reached when the
// cached token looked out of date, so the entry is dropped either way.
func (c *SequenceCache) SwapResetToken(ctx context.Context, seqID id.ID, token string) (bool, error) {
	won, err := c.Store.SwapResetToken(ctx, seqID, token)
	c.invalidateID(seqID)
	return won, err
}

// ResetRow implements numerator.Store.
func (c *SequenceCache) ResetRow(ctx context.Context, seqID id.ID, token string, numberNext int64) error {
	err := c.Store.ResetRow(ctx, seqID, token, numberNext)
	c.invalidateID(seqID)
	return err
}

func (c *SequenceCache) invalidateID(seqID id.ID) {
	c.mu.RLock()
	code, ok := c.codeOf[seqID]
	c.mu.RUnlock()
	if ok {
		c.Invalidate(code)
	}
}

// Invalidate drops code from the cache; an empty code drops everything.
func (c *SequenceCache) Invalidate(code string) {
	c.mu.Lock()
	if code == "" {
		c.byCode = make(map[string][]*numerator.Sequence)
		c.codeOf = make(map[id.ID]string)
	} else {
		for _, s := range c.byCode[code] {
			delete(c.codeOf, s.ID)
		}
		delete(c.byCode, code)
	}
	c.mu.Unlock()

	c.listenersMu.RLock()
	defer c.listenersMu.RUnlock()
	for _, l := range c.listeners {
		l(code)
	}
}

// OnInvalidation registers a callback for cache invalidation events.
func (c *SequenceCache) OnInvalidation(listener func(code string)) {
	c.listenersMu.Lock()
	c.listeners = append(c.listeners, listener)
	c.listenersMu.Unlock()
}

// Len returns the number of cached codes.
func (c *SequenceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byCode)
}

// Start begins listening for NOTIFY events. Without a pool it does nothing.
func (c *SequenceCache) Start(ctx context.Context) error {
	if c.pool == nil {
		return nil
	}

	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	if c.started {
		return nil
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.started = true

	c.wg.Add(1)
	go c.listenLoop()
	logger.Info(c.ctx, "sequence cache started", "channel", Channel)
	return nil
}

// Stop gracefully stops the cache listener.
func (c *SequenceCache) Stop() {
	c.lifecycleMu.Lock()
	if !c.started {
		c.lifecycleMu.Unlock()
		return
	}
	cancel := c.cancel
	c.started = false
	c.cancel = nil
	c.lifecycleMu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	logger.Info(context.Background(), "sequence cache stopped")
}

// listenLoop keeps a dedicated connection subscribed to Channel.
func (c *SequenceCache) listenLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		conn, err := c.pool.Acquire(c.ctx)
		if err != nil {
			logger.Error(c.ctx, "failed to acquire connection for LISTEN", "error", err)
			c.sleep(time.Second)
			continue
		}

		if _, err := conn.Exec(c.ctx, "LISTEN "+Channel); err != nil {
			logger.Error(c.ctx, "failed to LISTEN", "error", err)
			conn.Release()
			c.sleep(time.Second)
			continue
		}

		// Changes made while we were not listening are unknown.
		c.Invalidate("")
		c.waitForNotifications(conn)
		conn.Release()
	}
}

func (c *SequenceCache) waitForNotifications(conn *pgxpool.Conn) {
	for {
		notification, err := conn.Conn().WaitForNotification(c.ctx)
		if err != nil {
			if c.ctx.Err() == nil {
				logger.Warn(c.ctx, "LISTEN connection lost", "error", err)
			}
			return
		}

		logger.Debug(c.ctx, "received notification",
			"channel", notification.Channel,
			"payload", notification.Payload)
		c.handleNotification(notification.Channel, notification.Payload)
	}
}

func (c *SequenceCache) handleNotification(channel, payload string) {
	if channel != Channel {
		return
	}
	c.Invalidate(strings.TrimSpace(payload))
}

func (c *SequenceCache) sleep(d time.Duration) {
	select {
	case <-c.ctx.Done():
	case <-time.After(d):
	}
}
