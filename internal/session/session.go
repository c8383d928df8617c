package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/kvstore"
	"github.com/sirupsen/logrus"
)

const (
	PhoneKey   = "userPhone"
	UserIDKey  = "userId"
	AddressKey = "deliveryAddress"
)

// Session is the server-side stand-in for one browser's local storage.
type Session struct {
	ID   string
	Cart *cart.Store

	store    kvstore.Store
	log      logrus.FieldLogger
	mu       sync.Mutex
	lastSeen time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) getString(ctx context.Context, key string) string {
	v, err := s.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			s.log.WithError(err).WithField("key", key).Warn("read profile failed")
		}
		return ""
	}
	return string(v)
}

func (s *Session) Phone(ctx context.Context) string  { return s.getString(ctx, PhoneKey) }
func (s *Session) UserID(ctx context.Context) string { return s.getString(ctx, UserIDKey) }

// SetIdentity stores the phone as typed and the normalised user id.
func (s *Session) SetIdentity(ctx context.Context, phone, userID string) error {
	if err := s.store.Set(ctx, PhoneKey, []byte(phone), 0); err != nil {
		return fmt.Errorf("save phone failed: %w", err)
	}
	if err := s.store.Set(ctx, UserIDKey, []byte(userID), 0); err != nil {
		return fmt.Errorf("save user id failed: %w", err)
	}
	return nil
}

// DeliveryAddress returns nil when none is stored or it cannot be read.
func (s *Session) DeliveryAddress(ctx context.Context) *domain.DeliveryAddress {
	raw, err := s.store.Get(ctx, AddressKey)
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			s.log.WithError(err).Warn("read delivery address failed")
		}
		return nil
	}
	var addr domain.DeliveryAddress
	if err := json.Unmarshal(raw, &addr); err != nil {
		s.log.WithError(err).Warn("corrupted delivery address")
		return nil
	}
	return &addr
}

func (s *Session) SetDeliveryAddress(ctx context.Context, addr domain.DeliveryAddress) error {
	data, err := json.Marshal(addr)
	if err != nil {
		return fmt.Errorf("marshal delivery address failed: %w", err)
	}
	if err := s.store.Set(ctx, AddressKey, data, 0); err != nil {
		return fmt.Errorf("save delivery address failed: %w", err)
	}
	return nil
}

// Manager hands out sessions by id, loading each cart from the store the
// first time it is seen. A session whose cart could not be read is not kept.
// Two server instances sharing a store do not see each other's in-memory
// carts; the last write wins.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	store    kvstore.Store
	cartOpts []cart.Option
	now      func() time.Time
	log      logrus.FieldLogger
}

type Option func(*Manager)

func WithCartOptions(opts ...cart.Option) Option {
	return func(m *Manager) { m.cartOpts = append(m.cartOpts, opts...) }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(store kvstore.Store, log logrus.FieldLogger, opts ...Option) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		store:    store,
		now:      time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func keyPrefix(id string) string {
	return fmt.Sprintf("session:%s:", id)
}

func (m *Manager) Get(ctx context.Context, id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		s.touch(m.now())
		return s
	}

	log := m.log.WithField("session", id)
	store := kvstore.Namespace(m.store, keyPrefix(id))
	s := &Session{
		ID:    id,
		Cart:  cart.NewStore(store, log, m.cartOpts...),
		store: store,
		log:   log,
	}
	s.touch(m.now())
	if err := s.Cart.Load(ctx); err != nil {
		// Not cached, so the next request retries the load.
		log.WithError(err).Warn("load cart failed")
		return s
	}
	m.sessions[id] = s
	return s
}

// Len is the number of sessions held in memory.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Evict forgets sessions idle for longer than maxIdle. Their persisted state
// stays in the store and is reloaded on the next request.
func (m *Manager) Evict(maxIdle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-maxIdle)
	n := 0
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// RunEviction calls Evict every interval until ctx is done.
func (m *Manager) RunEviction(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.Evict(maxIdle); n > 0 {
				m.log.WithField("evicted", n).Debug("evicted idle sessions")
			}
		case <-ctx.Done():
			return
		}
	}
}
