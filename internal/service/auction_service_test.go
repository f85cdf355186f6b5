package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/auctionhouse/internal/auction"
	"github.com/alanyoungcy/auctionhouse/internal/bank"
	"github.com/alanyoungcy/auctionhouse/internal/domain"
	"github.com/alanyoungcy/auctionhouse/internal/registry"
)

var (
	custody = common.HexToAddress("0x00000000000000000000000000000000000000CC")
	owner   = common.HexToAddress("0x00000000000000000000000000000000000000EE")
	seller  = common.HexToAddress("0x0000000000000000000000000000000000000001")
	alice   = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

// --- In-memory test doubles for the store, bus, and lock interfaces ---

type memListingStore struct {
	mu       sync.Mutex
	listings map[domain.AssetID]domain.Listing
	bids     map[domain.AssetID]*domain.Bid
}

func newMemListingStore() *memListingStore {
	return &memListingStore{
		listings: make(map[domain.AssetID]domain.Listing),
		bids:     make(map[domain.AssetID]*domain.Bid),
	}
}

func (s *memListingStore) Upsert(ctx context.Context, l domain.Listing, bid *domain.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[l.AssetID] = l
	s.bids[l.AssetID] = bid
	return nil
}

func (s *memListingStore) Get(ctx context.Context, asset domain.AssetID) (domain.Listing, *domain.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[asset]
	if !ok {
		return domain.Listing{}, nil, domain.ErrNotFound
	}
	return l, s.bids[asset], nil
}

func (s *memListingStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Listing, 0, len(s.listings))
	for _, l := range s.listings {
		out = append(out, l)
	}
	return out, nil
}

func (s *memListingStore) Delete(ctx context.Context, asset domain.AssetID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listings, asset)
	delete(s.bids, asset)
	return nil
}

type memCreditStore struct {
	mu      sync.Mutex
	credits map[common.Address]*big.Int
}

func newMemCreditStore() *memCreditStore {
	return &memCreditStore{credits: make(map[common.Address]*big.Int)}
}

func (s *memCreditStore) Set(ctx context.Context, account common.Address, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credits[account] = new(big.Int).Set(amount)
	return nil
}

func (s *memCreditStore) Get(ctx context.Context, account common.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	amt, ok := s.credits[account]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return new(big.Int).Set(amt), nil
}

func (s *memCreditStore) List(ctx context.Context, opts domain.ListOpts) (map[common.Address]*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[common.Address]*big.Int, len(s.credits))
	for acct, amt := range s.credits {
		out[acct] = new(big.Int).Set(amt)
	}
	return out, nil
}

type memSettlementStore struct {
	mu   sync.Mutex
	recs []domain.SettlementRecord
}

func (s *memSettlementStore) Insert(ctx context.Context, rec domain.SettlementRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

func (s *memSettlementStore) GetByID(ctx context.Context, id string) (domain.SettlementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.recs {
		if rec.ID == id {
			return rec, nil
		}
	}
	return domain.SettlementRecord{}, domain.ErrNotFound
}

func (s *memSettlementStore) ListRecent(ctx context.Context, limit int) ([]domain.SettlementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SettlementRecord, len(s.recs))
	copy(out, s.recs)
	return out, nil
}

func (s *memSettlementStore) ListBefore(ctx context.Context, before time.Time) ([]domain.SettlementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.SettlementRecord
	for _, rec := range s.recs {
		if rec.SettledAt.Before(before) {
			out = append(out, rec)
		}
	}
	return out, nil
}

type published struct {
	channel string
	event   domain.Event
}

type memBus struct {
	mu   sync.Mutex
	msgs []published
}

func (b *memBus) Publish(ctx context.Context, channel string, payload []byte) error {
	var ev domain.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, published{channel: channel, event: ev})
	return nil
}

func (b *memBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

type countingLocks struct {
	mu       sync.Mutex
	acquired int
	released int
}

func (l *countingLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	l.acquired++
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		l.released++
		l.mu.Unlock()
	}, nil
}

// --- Fixture ---

type fixture struct {
	svc         *AuctionService
	bank        *bank.Memory
	reg         *registry.Memory
	listings    *memListingStore
	credits     *memCreditStore
	settlements *memSettlementStore
	bus         *memBus
	locks       *countingLocks
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		bank:        bank.NewMemory(custody),
		reg:         registry.NewMemory(),
		listings:    newMemListingStore(),
		credits:     newMemCreditStore(),
		settlements: &memSettlementStore{},
		bus:         &memBus{},
		locks:       &countingLocks{},
	}
	collector := NewEventCollector()
	engine, err := auction.NewEngine(auction.Config{
		Custody: custody,
		Owner:   owner,
		Policy:  auction.DefaultPolicy(),
	}, f.reg, f.bank, collector, slog.Default())
	require.NoError(t, err)

	f.svc = NewAuctionService(engine, collector, Stores{
		Listings:    f.listings,
		Credits:     f.credits,
		Settlements: f.settlements,
	}, f.bus, f.locks, slog.Default())
	return f
}

func (f *fixture) mint(t *testing.T, funded ...common.Address) domain.AssetID {
	t.Helper()
	asset, err := f.reg.Mint(context.Background(), seller)
	require.NoError(t, err)
	for _, acct := range funded {
		f.bank.Mint(acct, big.NewInt(1_000_000))
	}
	return asset
}

// --- Tests ---

func TestListWritesThroughAndPublishes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	asset := f.mint(t)

	require.NoError(t, f.svc.List(ctx, asset, seller, big.NewInt(100), nil))

	stored, _, err := f.listings.Get(ctx, asset)
	require.NoError(t, err)
	require.Equal(t, seller, stored.Seller)

	require.Len(t, f.bus.msgs, 1)
	require.Equal(t, "ch:auction:listed", f.bus.msgs[0].channel)
	require.Equal(t, domain.EventListed, f.bus.msgs[0].event.Kind)

	require.Equal(t, 1, f.locks.acquired)
	require.Equal(t, 1, f.locks.released)
}

func TestBidWritesThroughBidSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	asset := f.mint(t, alice)
	require.NoError(t, f.svc.List(ctx, asset, seller, big.NewInt(100), nil))

	require.NoError(t, f.svc.PlaceBid(ctx, asset, alice, big.NewInt(100)))

	_, bid, err := f.listings.Get(ctx, asset)
	require.NoError(t, err)
	require.NotNil(t, bid)
	require.Equal(t, alice, bid.Bidder)
	require.Zero(t, bid.Amount.Cmp(big.NewInt(100)))
}

func TestFailedOperationPersistsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	asset := f.mint(t)

	err := f.svc.List(ctx, asset, alice, big.NewInt(100), nil)
	require.ErrorIs(t, err, domain.ErrNotOwner)

	_, _, err = f.listings.Get(ctx, asset)
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.Empty(t, f.bus.msgs)

	// The lock is still released on failure.
	require.Equal(t, f.locks.acquired, f.locks.released)
}

func TestBuyNowDeletesListingAndPersistsSettlement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	asset := f.mint(t, alice)
	require.NoError(t, f.svc.List(ctx, asset, seller, big.NewInt(100), big.NewInt(10_000)))
	require.NoError(t, f.svc.PlaceBid(ctx, asset, alice, big.NewInt(10_000)))

	_, _, err := f.listings.Get(ctx, asset)
	require.ErrorIs(t, err, domain.ErrNotFound, "settled listing row is deleted")

	recs, err := f.svc.RecentSettlements(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, domain.SettlementBuyNow, recs[0].Kind)
	require.Equal(t, alice, recs[0].Winner)
}

func TestCreditEventsWriteThrough(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	asset := f.mint(t, alice)
	require.NoError(t, f.svc.List(ctx, asset, seller, big.NewInt(100), nil))
	require.NoError(t, f.svc.PlaceBid(ctx, asset, alice, big.NewInt(100)))

	// A griefing hook forces alice's refund into a credit when bob outbids.
	bob := common.HexToAddress("0x0000000000000000000000000000000000000003")
	f.bank.Mint(bob, big.NewInt(1_000_000))
	f.bank.SetHook(alice, func(ctx context.Context, m *bank.GasMeter, from common.Address, amount *big.Int) error {
		return m.Consume(domain.Gas(1_000_000))
	})
	require.NoError(t, f.svc.PlaceBid(ctx, asset, bob, big.NewInt(200)))

	stored, err := f.credits.Get(ctx, alice)
	require.NoError(t, err)
	require.Zero(t, stored.Cmp(big.NewInt(100)))

	// Withdrawal clears the mirrored balance too.
	f.bank.SetHook(alice, nil)
	amount, err := f.svc.Withdraw(ctx, alice)
	require.NoError(t, err)
	require.Zero(t, amount.Cmp(big.NewInt(100)))

	stored, err = f.credits.Get(ctx, alice)
	require.NoError(t, err)
	require.Zero(t, stored.Sign())
}

func TestCreditEventsRouteToCreditChannel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	asset := f.mint(t, alice)
	require.NoError(t, f.svc.List(ctx, asset, seller, big.NewInt(100), nil))
	require.NoError(t, f.svc.PlaceBid(ctx, asset, alice, big.NewInt(100)))

	bob := common.HexToAddress("0x0000000000000000000000000000000000000003")
	f.bank.Mint(bob, big.NewInt(1_000_000))
	f.bank.SetHook(alice, func(ctx context.Context, m *bank.GasMeter, from common.Address, amount *big.Int) error {
		return m.Consume(domain.Gas(1_000_000))
	})
	require.NoError(t, f.svc.PlaceBid(ctx, asset, bob, big.NewInt(200)))

	var creditChannels []string
	for _, msg := range f.bus.msgs {
		if msg.event.Kind == domain.EventCreditIssued {
			creditChannels = append(creditChannels, msg.channel)
		}
	}
	require.Equal(t, []string{"ch:credit:credit_issued"}, creditChannels)
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	asset := f.mint(t, alice)
	require.NoError(t, f.svc.List(ctx, asset, seller, big.NewInt(100), big.NewInt(10_000)))
	require.NoError(t, f.svc.PlaceBid(ctx, asset, alice, big.NewInt(10_000)))

	st := f.svc.Status(ctx)
	require.True(t, st.Solvent)
	require.Zero(t, st.AccruedFees.Cmp(big.NewInt(250)))
	require.Zero(t, st.Obligations.Cmp(big.NewInt(250)))
}

func TestGetListingNotFound(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.GetListing(context.Background(), 42)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEventChannel(t *testing.T) {
	require.Equal(t, "ch:auction:listed", EventChannel(domain.EventListed))
	require.Equal(t, "ch:auction:bid_placed", EventChannel(domain.EventBidPlaced))
	require.Equal(t, "ch:auction:auction_settled", EventChannel(domain.EventAuctionSettled))
	require.Equal(t, "ch:credit:credit_issued", EventChannel(domain.EventCreditIssued))
	require.Equal(t, "ch:credit:credit_withdrawn", EventChannel(domain.EventCreditWithdrawn))
}
