package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/kvstore"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultTTL is how long a cart survives after its last write.
	DefaultTTL = 24 * time.Hour

	DataKey   = "cart_data"
	ExpiryKey = "cart_expiry"
)

var ErrLineNotFound = errors.New("line not found in cart")

// errStale marks persisted state that must be discarded: a missing or passed
// expiry, or data that cannot be decoded.
var errStale = errors.New("stale cart")

// Store is one session's cart. Lines keep insertion order and never share a
// LineKey. Every mutation rewrites the persisted cart and pushes its expiry
// to now+TTL; persistence failures are logged and the in-memory cart stays
// authoritative.
type Store struct {
	mu        sync.Mutex
	lines     []domain.CartLine
	expiresAt time.Time

	store kvstore.Store
	ttl   time.Duration
	now   func() time.Time
	log   logrus.FieldLogger
}

type Option func(*Store)

func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(store kvstore.Store, log logrus.FieldLogger, opts ...Option) *Store {
	s := &Store{
		store: store,
		ttl:   DefaultTTL,
		now:   time.Now,
		log:   log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory cart with the persisted one. A missing or
// passed expiry or unreadable data yields an empty cart and removes the
// persisted copy. A storage error also yields an empty cart but leaves the
// store untouched and is returned.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = nil
	s.expiresAt = time.Time{}
	lines, expiresAt, err := s.readPersisted(ctx)
	if errors.Is(err, errStale) {
		s.discardPersisted(ctx)
		return nil
	}
	if err != nil {
		return err
	}
	s.lines = lines
	s.expiresAt = expiresAt
	return nil
}

func (s *Store) readPersisted(ctx context.Context) ([]domain.CartLine, time.Time, error) {
	rawExpiry, err := s.store.Get(ctx, ExpiryKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, time.Time{}, errStale
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("read cart expiry: %w", err)
	}
	ms, err := strconv.ParseInt(string(rawExpiry), 10, 64)
	if err != nil {
		s.log.WithError(err).Warn("invalid cart expiry")
		return nil, time.Time{}, errStale
	}
	expiresAt := time.UnixMilli(ms)
	if !s.now().Before(expiresAt) {
		return nil, time.Time{}, errStale
	}

	data, err := s.store.Get(ctx, DataKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, time.Time{}, errStale
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("read cart data: %w", err)
	}
	var lines []domain.CartLine
	if err := json.Unmarshal(data, &lines); err != nil {
		s.log.WithError(err).Warn("corrupted cart data")
		return nil, time.Time{}, errStale
	}
	return lines, expiresAt, nil
}

// expired drops the in-memory lines once the cart has outlived its TTL and
// reports whether it did. Must be called with mu held.
func (s *Store) expired() bool {
	if s.expiresAt.IsZero() || s.now().Before(s.expiresAt) {
		return false
	}
	s.lines = nil
	s.expiresAt = time.Time{}
	return true
}

// dropExpired is expired plus removal of the persisted copy.
func (s *Store) dropExpired(ctx context.Context) {
	if s.expired() {
		s.discardPersisted(ctx)
	}
}

func (s *Store) discardPersisted(ctx context.Context) {
	if err := s.store.Delete(ctx, DataKey, ExpiryKey); err != nil {
		s.log.WithError(err).Warn("discard cart failed")
	}
}

// persist must be called with mu held.
func (s *Store) persist(ctx context.Context) {
	data, err := json.Marshal(s.lines)
	if err != nil {
		s.log.WithError(err).Error("marshal cart failed")
		return
	}
	s.expiresAt = s.now().Add(s.ttl)
	expiry := s.expiresAt.UnixMilli()

	// The store-level ttl only reclaims abandoned carts; cart_expiry decides.
	if err := s.store.Set(ctx, DataKey, data, s.ttl); err != nil {
		s.log.WithError(err).Warn("save cart failed")
		return
	}
	if err := s.store.Set(ctx, ExpiryKey, []byte(strconv.FormatInt(expiry, 10)), s.ttl); err != nil {
		s.log.WithError(err).Warn("save cart expiry failed")
	}
}

// AddLine merges line into an existing line with the same key by summing
// quantities, or appends it. Callers clamp the per-add quantity to
// [MinLineQuantity, MaxLineQuantity]; the merged total is not clamped.
func (s *Store) AddLine(ctx context.Context, line domain.CartLine) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropExpired(ctx)
	key := line.Key()
	if i := s.indexOf(key); i >= 0 {
		s.lines[i].Quantity += line.Quantity
	} else {
		s.lines = append(s.lines, line)
	}
	s.persist(ctx)
}

// UpdateQuantity sets the quantity of the line with key. Zero or less removes
// the line; values above MaxLineQuantity are clamped.
func (s *Store) UpdateQuantity(ctx context.Context, key domain.LineKey, quantity int) error {
	if quantity <= 0 {
		return s.RemoveLine(ctx, key)
	}
	if quantity > domain.MaxLineQuantity {
		quantity = domain.MaxLineQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropExpired(ctx)
	i := s.indexOf(key)
	if i < 0 {
		return ErrLineNotFound
	}
	s.lines[i].Quantity = quantity
	s.persist(ctx)
	return nil
}

func (s *Store) RemoveLine(ctx context.Context, key domain.LineKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropExpired(ctx)
	i := s.indexOf(key)
	if i < 0 {
		return ErrLineNotFound
	}
	s.lines = append(s.lines[:i], s.lines[i+1:]...)
	s.persist(ctx)
	return nil
}

// Clear empties the cart and deletes the persisted copy along with its
// expiry. When the delete fails an already passed expiry is written instead
// so the old lines cannot be loaded again. Clearing an empty cart is a no-op.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = nil
	s.expiresAt = time.Time{}
	if err := s.store.Delete(ctx, DataKey, ExpiryKey); err != nil {
		s.log.WithError(err).Warn("discard cart failed")
		past := strconv.FormatInt(s.now().Add(-time.Millisecond).UnixMilli(), 10)
		if err := s.store.Set(ctx, ExpiryKey, []byte(past), s.ttl); err != nil {
			s.log.WithError(err).Warn("expire cleared cart failed")
		}
	}
}

// Lines returns a copy of the cart in insertion order.
func (s *Store) Lines() []domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expired()
	out := make([]domain.CartLine, len(s.lines))
	copy(out, s.lines)
	return out
}

// Lookup finds a line by its LineKey.ID.
func (s *Store) Lookup(lineID string) (domain.CartLine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expired()
	for _, l := range s.lines {
		if l.Key().ID() == lineID {
			return l, true
		}
	}
	return domain.CartLine{}, false
}

func (s *Store) TotalItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expired()
	n := 0
	for _, l := range s.lines {
		n += l.Quantity
	}
	return n
}

// TotalPrice is the exact sum of unit price times quantity.
func (s *Store) TotalPrice() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expired()
	total := decimal.Zero
	for _, l := range s.lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

func (s *Store) indexOf(key domain.LineKey) int {
	for i := range s.lines {
		if s.lines[i].Key() == key {
			return i
		}
	}
	return -1
}
