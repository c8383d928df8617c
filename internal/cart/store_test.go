package cart

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/kvstore"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type brokenStore struct {
	kvstore.Store
	err error
}

func (b brokenStore) Get(context.Context, string) ([]byte, error) { return nil, b.err }
func (b brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return b.err
}
func (b brokenStore) Delete(context.Context, ...string) error { return b.err }

// flakyStore fails the next failures reads, then delegates.
type flakyStore struct {
	kvstore.Store
	failures int
}

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("connection reset")
	}
	return f.Store.Get(ctx, key)
}

type undeletableStore struct {
	kvstore.Store
}

func (undeletableStore) Delete(context.Context, ...string) error {
	return errors.New("read-only replica")
}

func setupStore(t *testing.T) (*Store, *kvstore.MemoryStore, *fakeClock) {
	mem := kvstore.NewMemoryStore()
	t.Cleanup(func() { mem.Close() })
	clock := &fakeClock{now: time.Date(2026, 5, 10, 8, 30, 0, 0, time.UTC)}
	return NewStore(mem, logger.Discard(), WithClock(clock.Now)), mem, clock
}

func line(productID, size string, qty int, price string) domain.CartLine {
	return domain.CartLine{
		ProductID:      productID,
		Name:           "Item " + productID,
		UnitPrice:      decimal.RequireFromString(price),
		Quantity:       qty,
		Customizations: domain.Customizations{Size: size},
	}
}

func TestAddLine_MergesIdenticalSignature(t *testing.T) {
	s, _, _ := setupStore(t)
	ctx := context.Background()

	quantities := []int{1, 100, 3, 100}
	for _, q := range quantities {
		s.AddLine(ctx, line("A", "Large", q, "2.0"))
	}

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 204, lines[0].Quantity, "merge path sums without clamping")
}

func TestAddLine_EmptyAndAbsentCustomizationsMatch(t *testing.T) {
	s, _, _ := setupStore(t)
	ctx := context.Background()

	s.AddLine(ctx, domain.CartLine{ProductID: "A", Quantity: 1})
	s.AddLine(ctx, domain.CartLine{ProductID: "A", Quantity: 2, Customizations: domain.Customizations{Milk: ""}})

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Quantity)
}

func TestAddLine_DistinctSignatures(t *testing.T) {
	s, _, _ := setupStore(t)
	ctx := context.Background()

	large := line("A", "Large", 1, "2.0")
	small := line("A", "Small", 1, "1.5")
	s.AddLine(ctx, large)
	s.AddLine(ctx, small)

	lines := s.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "Large", lines[0].Customizations.Size)
	assert.Equal(t, "Small", lines[1].Customizations.Size)

	require.NoError(t, s.UpdateQuantity(ctx, small.Key(), 5))
	lines = s.Lines()
	assert.Equal(t, 1, lines[0].Quantity)
	assert.Equal(t, 5, lines[1].Quantity)

	require.NoError(t, s.RemoveLine(ctx, large.Key()))
	lines = s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "Small", lines[0].Customizations.Size)
}

func TestScenario_AddMergeAndTotals(t *testing.T) {
	s, _, _ := setupStore(t)
	ctx := context.Background()

	s.AddLine(ctx, line("A", "Large", 1, "2.0"))
	s.AddLine(ctx, line("A", "Large", 2, "2.0"))
	s.AddLine(ctx, line("A", "Small", 1, "1.5"))

	lines := s.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, domain.LineKey{ProductID: "A", Size: "Large"}, lines[0].Key())
	assert.Equal(t, 3, lines[0].Quantity)
	assert.Equal(t, domain.LineKey{ProductID: "A", Size: "Small"}, lines[1].Key())
	assert.Equal(t, 1, lines[1].Quantity)

	assert.True(t, s.TotalPrice().Equal(decimal.RequireFromString("7.5")), s.TotalPrice().String())
	assert.Equal(t, 4, s.TotalItemCount())
}

func TestTotals(t *testing.T) {
	s, _, _ := setupStore(t)
	ctx := context.Background()

	s.AddLine(ctx, line("X", "", 3, "2.5"))
	s.AddLine(ctx, line("Y", "", 2, "1.2"))

	assert.Equal(t, 5, s.TotalItemCount())
	assert.True(t, s.TotalPrice().Equal(decimal.RequireFromString("9.9")), s.TotalPrice().String())
	assert.Equal(t, "9.900", domain.FormatPrice(s.TotalPrice()))
}

func TestTotals_NoFloatDrift(t *testing.T) {
	s, _, _ := setupStore(t)
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		s.AddLine(ctx, line(strconv.Itoa(i), "", 1, "0.1"))
	}
	assert.True(t, s.TotalPrice().Equal(decimal.RequireFromString("3")), s.TotalPrice().String())
}

func TestUpdateQuantity(t *testing.T) {
	s, _, _ := setupStore(t)
	ctx := context.Background()
	l := line("A", "Large", 2, "2.0")
	s.AddLine(ctx, l)

	require.NoError(t, s.UpdateQuantity(ctx, l.Key(), 7))
	assert.Equal(t, 7, s.Lines()[0].Quantity)

	require.NoError(t, s.UpdateQuantity(ctx, l.Key(), 250))
	assert.Equal(t, domain.MaxLineQuantity, s.Lines()[0].Quantity)

	require.NoError(t, s.UpdateQuantity(ctx, l.Key(), 0))
	assert.Empty(t, s.Lines())

	err := s.UpdateQuantity(ctx, l.Key(), 3)
	assert.ErrorIs(t, err, ErrLineNotFound)
	err = s.UpdateQuantity(ctx, l.Key(), -1)
	assert.ErrorIs(t, err, ErrLineNotFound)
}

func TestRemoveLine_NotFound(t *testing.T) {
	s, _, _ := setupStore(t)
	err := s.RemoveLine(context.Background(), domain.LineKey{ProductID: "ghost"})
	assert.ErrorIs(t, err, ErrLineNotFound)
}

func TestLookup(t *testing.T) {
	s, _, _ := setupStore(t)
	l := line("A", "Large", 1, "2.0")
	s.AddLine(context.Background(), l)

	got, ok := s.Lookup(l.Key().ID())
	require.True(t, ok)
	assert.Equal(t, "A", got.ProductID)

	_, ok = s.Lookup("nope")
	assert.False(t, ok)
}

func TestLines_ReturnsCopy(t *testing.T) {
	s, _, _ := setupStore(t)
	s.AddLine(context.Background(), line("A", "", 1, "1"))

	lines := s.Lines()
	lines[0].Quantity = 99
	assert.Equal(t, 1, s.Lines()[0].Quantity)
}

func TestPersistence_ReloadWithinTTL(t *testing.T) {
	s, mem, clock := setupStore(t)
	ctx := context.Background()

	s.AddLine(ctx, line("A", "Large", 3, "2.0"))
	s.AddLine(ctx, line("B", "", 1, "1.2"))

	raw, err := mem.Get(ctx, ExpiryKey)
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatInt(clock.Now().Add(DefaultTTL).UnixMilli(), 10), string(raw))

	clock.Advance(DefaultTTL - time.Millisecond)
	reloaded := NewStore(mem, logger.Discard(), WithClock(clock.Now))
	require.NoError(t, reloaded.Load(ctx))

	want, got := s.Lines(), reloaded.Lines()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Key(), got[i].Key())
		assert.Equal(t, want[i].Quantity, got[i].Quantity)
		assert.Equal(t, want[i].Name, got[i].Name)
		assert.True(t, want[i].UnitPrice.Equal(got[i].UnitPrice))
	}
	assert.True(t, reloaded.TotalPrice().Equal(decimal.RequireFromString("7.2")))
}

func TestPersistence_ExpiredAfterTTL(t *testing.T) {
	s, mem, clock := setupStore(t)
	ctx := context.Background()

	s.AddLine(ctx, line("A", "Large", 3, "2.0"))
	clock.Advance(DefaultTTL)

	reloaded := NewStore(mem, logger.Discard(), WithClock(clock.Now))
	require.NoError(t, reloaded.Load(ctx))
	assert.Empty(t, reloaded.Lines())

	_, err := mem.Get(ctx, DataKey)
	assert.ErrorIs(t, err, kvstore.ErrNotFound, "stale cart should be discarded on load")
}

func TestExpiry_AppliesToLiveCart(t *testing.T) {
	s, mem, clock := setupStore(t)
	ctx := context.Background()

	s.AddLine(ctx, line("A", "", 2, "1"))
	clock.Advance(DefaultTTL - time.Millisecond)
	require.Len(t, s.Lines(), 1)

	clock.Advance(time.Millisecond)
	assert.Empty(t, s.Lines())
	assert.Equal(t, 0, s.TotalItemCount())
	assert.True(t, s.TotalPrice().IsZero())
	_, found := s.Lookup(line("A", "", 1, "1").Key().ID())
	assert.False(t, found)

	s.AddLine(ctx, line("B", "", 1, "3"))
	reloaded := NewStore(mem, logger.Discard(), WithClock(clock.Now))
	require.NoError(t, reloaded.Load(ctx))
	lines := reloaded.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "B", lines[0].ProductID)
	assert.Equal(t, 1, lines[0].Quantity)
}

func TestExpiry_UpdateOnExpiredCartIsNotFound(t *testing.T) {
	s, mem, clock := setupStore(t)
	ctx := context.Background()

	l := line("A", "", 1, "1")
	s.AddLine(ctx, l)
	clock.Advance(DefaultTTL)

	assert.ErrorIs(t, s.UpdateQuantity(ctx, l.Key(), 3), ErrLineNotFound)
	_, err := mem.Get(ctx, DataKey)
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestPersistence_EveryWriteRefreshesExpiry(t *testing.T) {
	s, mem, clock := setupStore(t)
	ctx := context.Background()

	l := line("A", "", 1, "1")
	s.AddLine(ctx, l)
	clock.Advance(20 * time.Hour)
	require.NoError(t, s.UpdateQuantity(ctx, l.Key(), 2))
	clock.Advance(20 * time.Hour)

	reloaded := NewStore(mem, logger.Discard(), WithClock(clock.Now))
	require.NoError(t, reloaded.Load(ctx))
	require.Len(t, reloaded.Lines(), 1)
	assert.Equal(t, 2, reloaded.Lines()[0].Quantity)
}

func TestLoad_ReadErrorKeepsPersistedCart(t *testing.T) {
	s, mem, clock := setupStore(t)
	ctx := context.Background()
	s.AddLine(ctx, line("A", "Large", 2, "1.5"))

	flaky := &flakyStore{Store: mem, failures: 1}
	first := NewStore(flaky, logger.Discard(), WithClock(clock.Now))
	assert.Error(t, first.Load(ctx))
	assert.Empty(t, first.Lines())

	_, err := mem.Get(ctx, DataKey)
	require.NoError(t, err, "a failed read must not delete the saved cart")

	second := NewStore(flaky, logger.Discard(), WithClock(clock.Now))
	require.NoError(t, second.Load(ctx))
	require.Len(t, second.Lines(), 1)
	assert.Equal(t, 2, second.Lines()[0].Quantity)
}

func TestLoad_MissingExpiry(t *testing.T) {
	s, mem, _ := setupStore(t)
	ctx := context.Background()
	require.NoError(t, mem.Set(ctx, DataKey, []byte(`[{"productId":"A","quantity":1}]`), 0))

	require.NoError(t, s.Load(ctx))
	assert.Empty(t, s.Lines())
}

func TestLoad_CorruptedData(t *testing.T) {
	s, mem, clock := setupStore(t)
	ctx := context.Background()
	expiry := clock.Now().Add(time.Hour).UnixMilli()
	require.NoError(t, mem.Set(ctx, ExpiryKey, []byte(strconv.FormatInt(expiry, 10)), 0))
	require.NoError(t, mem.Set(ctx, DataKey, []byte(`[{"productId":`), 0))

	require.NoError(t, s.Load(ctx))
	assert.Empty(t, s.Lines())

	_, err := mem.Get(ctx, ExpiryKey)
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestLoad_GarbageExpiry(t *testing.T) {
	s, mem, _ := setupStore(t)
	ctx := context.Background()
	require.NoError(t, mem.Set(ctx, ExpiryKey, []byte("tomorrow"), 0))
	require.NoError(t, mem.Set(ctx, DataKey, []byte(`[]`), 0))

	require.NoError(t, s.Load(ctx))
	assert.Empty(t, s.Lines())
}

func TestClear_RemovesPersistedStateAndIsIdempotent(t *testing.T) {
	s, mem, clock := setupStore(t)
	ctx := context.Background()

	s.AddLine(ctx, line("A", "", 1, "1"))
	s.Clear(ctx)
	assert.Empty(t, s.Lines())
	assert.Equal(t, 0, mem.Len(), "clear must not write a fresh expiry")

	s.Clear(ctx)
	assert.Empty(t, s.Lines())
	assert.Equal(t, 0, s.TotalItemCount())
	assert.True(t, s.TotalPrice().IsZero())

	clock.Advance(time.Minute)
	reloaded := NewStore(mem, logger.Discard(), WithClock(clock.Now))
	require.NoError(t, reloaded.Load(ctx))
	assert.Empty(t, reloaded.Lines())
}

func TestClear_DeleteFailureStillHidesOldLines(t *testing.T) {
	mem := kvstore.NewMemoryStore()
	t.Cleanup(func() { mem.Close() })
	clock := &fakeClock{now: time.Date(2026, 5, 10, 8, 30, 0, 0, time.UTC)}
	store := undeletableStore{Store: mem}
	s := NewStore(store, logger.Discard(), WithClock(clock.Now))
	ctx := context.Background()

	s.AddLine(ctx, line("A", "", 1, "1"))
	s.Clear(ctx)
	assert.Empty(t, s.Lines())

	reloaded := NewStore(store, logger.Discard(), WithClock(clock.Now))
	require.NoError(t, reloaded.Load(ctx))
	assert.Empty(t, reloaded.Lines())
}

func TestStorageFailure_KeepsWorkingInMemory(t *testing.T) {
	s := NewStore(brokenStore{err: errors.New("quota exceeded")}, logger.Discard())
	ctx := context.Background()

	assert.NotPanics(t, func() { s.Load(ctx) })
	assert.Empty(t, s.Lines())

	l := line("A", "", 2, "1.5")
	s.AddLine(ctx, l)
	require.Len(t, s.Lines(), 1)
	require.NoError(t, s.UpdateQuantity(ctx, l.Key(), 4))
	assert.True(t, s.TotalPrice().Equal(decimal.RequireFromString("6")))
	s.Clear(ctx)
	assert.Empty(t, s.Lines())
}

func TestConcurrentAdds(t *testing.T) {
	s, _, _ := setupStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AddLine(ctx, line("A", "Large", 1, "2.0"))
		}()
	}
	wg.Wait()

	require.Len(t, s.Lines(), 1)
	assert.Equal(t, 50, s.TotalItemCount())
}
