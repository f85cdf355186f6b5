package auction

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/auctionhouse/internal/bank"
	"github.com/alanyoungcy/auctionhouse/internal/domain"
	"github.com/alanyoungcy/auctionhouse/internal/registry"
)

var (
	custody = common.HexToAddress("0x00000000000000000000000000000000000000CC")
	owner   = common.HexToAddress("0x00000000000000000000000000000000000000EE")
	seller  = common.HexToAddress("0x0000000000000000000000000000000000000001")
	alice   = common.HexToAddress("0x0000000000000000000000000000000000000002")
	bob     = common.HexToAddress("0x0000000000000000000000000000000000000003")
	carol   = common.HexToAddress("0x0000000000000000000000000000000000000004")
)

// fakeClock is a manually advanced engine clock.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	engine *Engine
	bank   *bank.Memory
	reg    *registry.Memory
	clock  *fakeClock
	events []domain.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		bank:  bank.NewMemory(custody),
		reg:   registry.NewMemory(),
		clock: &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
	}
	sink := domain.EventSinkFunc(func(ev domain.Event) {
		f.events = append(f.events, ev)
	})
	engine, err := NewEngine(Config{
		Custody: custody,
		Owner:   owner,
		Policy:  DefaultPolicy(),
	}, f.reg, f.bank, sink, slog.Default())
	require.NoError(t, err)
	engine.WithClock(f.clock.Now)
	f.engine = engine
	return f
}

// mint issues a fresh asset to seller and funds the named bidders.
func (f *fixture) mint(t *testing.T, funded ...common.Address) domain.AssetID {
	t.Helper()
	asset, err := f.reg.Mint(context.Background(), seller)
	require.NoError(t, err)
	for _, acct := range funded {
		f.bank.Mint(acct, big.NewInt(1_000_000))
	}
	return asset
}

func (f *fixture) balance(t *testing.T, acct common.Address) *big.Int {
	t.Helper()
	bal, err := f.bank.BalanceOf(context.Background(), acct)
	require.NoError(t, err)
	return bal
}

func (f *fixture) requireSolvent(t *testing.T) {
	t.Helper()
	require.NoError(t, f.engine.CheckSolvency(context.Background()))
}

func (f *fixture) lastEvent(t *testing.T, kind domain.EventKind) domain.Event {
	t.Helper()
	for i := len(f.events) - 1; i >= 0; i-- {
		if f.events[i].Kind == kind {
			return f.events[i]
		}
	}
	t.Fatalf("no %q event emitted", kind)
	return domain.Event{}
}

// placeBid drops the settlement record for bids not expected to hit the
// buy-now price.
func (f *fixture) placeBid(ctx context.Context, asset domain.AssetID, bidder common.Address, amount *big.Int) error {
	_, err := f.engine.PlaceBid(ctx, asset, bidder, amount)
	return err
}

func (f *fixture) eventKinds() []domain.EventKind {
	kinds := make([]domain.EventKind, len(f.events))
	for i, ev := range f.events {
		kinds[i] = ev.Kind
	}
	return kinds
}

func TestList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	asset := f.mint(t)

	err := f.engine.List(ctx, asset, seller, big.NewInt(100), nil)
	require.NoError(t, err)

	holder, err := f.reg.OwnerOf(ctx, asset)
	require.NoError(t, err)
	require.Equal(t, custody, holder, "listed asset must move into custody")

	l, ok := f.engine.Listing(asset)
	require.True(t, ok)
	require.Equal(t, seller, l.Seller)
	require.Zero(t, l.MinPrice.Cmp(big.NewInt(100)))
	require.False(t, l.HasBuyNow())
	require.False(t, l.Started(), "no deadline before the first bid")

	ev := f.lastEvent(t, domain.EventListed)
	require.Equal(t, asset, ev.AssetID)
	require.Equal(t, seller, ev.Seller)
	f.requireSolvent(t)
}

func TestListRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	asset := f.mint(t)

	err := f.engine.List(ctx, asset, alice, big.NewInt(100), nil)
	require.ErrorIs(t, err, domain.ErrNotOwner)

	err = f.engine.List(ctx, asset, seller, big.NewInt(0), nil)
	require.ErrorIs(t, err, domain.ErrBelowMinPrice)

	err = f.engine.List(ctx, domain.AssetID(999), seller, big.NewInt(100), nil)
	require.ErrorIs(t, err, domain.ErrUnknownAsset)

	require.NoError(t, f.engine.List(ctx, asset, seller, big.NewInt(100), nil))
	err = f.engine.List(ctx, asset, seller, big.NewInt(100), nil)
	require.ErrorIs(t, err, domain.ErrAlreadyListed)
}

func TestFirstBid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	asset := f.mint(t, alice)
	require.NoError(t, f.engine.List(ctx, asset, seller, big.NewInt(100), nil))

	// Below the floor.
	err := f.placeBid(ctx, asset, alice, big.NewInt(99))
	require.ErrorIs(t, err, domain.ErrBidTooLow)

	// The floor itself is acceptable; a regular bid settles nothing.
	rec, err := f.engine.PlaceBid(ctx, asset, alice, big.NewInt(100))
	require.NoError(t, err)
	require.Nil(t, rec)

	bid, ok := f.engine.HighestBid(asset)
	require.True(t, ok)
	require.Equal(t, alice, bid.Bidder)
	require.Zero(t, bid.Amount.Cmp(big.NewInt(100)))

	l, _ := f.engine.Listing(asset)
	require.True(t, l.Started())
	require.Equal(t, f.clock.now.Add(DefaultPolicy().FloorDuration), l.AuctionEnd,
		"deadline runs the full floor duration from the first bid")

	require.Zero(t, f.balance(t, alice).Cmp(big.NewInt(999_900)), "bid escrowed from bidder")
	require.Zero(t, f.balance(t, custody).Cmp(big.NewInt(100)), "escrow held in custody")
	f.requireSolvent(t)
}

func TestBidRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	asset := f.mint(t, alice)

	err := f.placeBid(ctx, asset, alice, big.NewInt(100))
	require.ErrorIs(t, err, domain.ErrNotListed)

	require.NoError(t, f.engine.List(ctx, asset, seller, big.NewInt(100), nil))

	err = f.placeBid(ctx, asset, alice, nil)
	require.ErrorIs(t, err, domain.ErrBidTooLow)

	err = f.placeBid(ctx, asset, bob, big.NewInt(100))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds, "unfunded bidder cannot escrow")
}

func TestMinNextBid(t *testing.T) {
	tests := []struct {
		prev, want string
		pct        int64
	}{
		{"100", "105", 5},
		{"101", "106", 5}, // 106.05 truncates down, still above a 5% increment floor of 106
		{"1", "1", 5},     // 1.05 truncates to 1; tiny bids rely on the strict Cmp in PlaceBid
		{"1200000000000099999", "1260000000000104998", 5},
		{"200", "220", 10},
	}
	for _, tt := range tests {
		prev, ok := new(big.Int).SetString(tt.prev, 10)
		require.True(t, ok)
		want, ok := new(big.Int).SetString(tt.want, 10)
		require.True(t, ok)
		require.Zero(t, minNextBid(prev, tt.pct).Cmp(want), "minNextBid(%s, %d)", tt.prev, tt.pct)
	}
}

func TestMinIncrement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	asset := f.mint(t)
	require.NoError(t, f.engine.List(ctx, asset, seller, big.NewInt(1), nil))

	prev, _ := new(big.Int).SetString("1200000000000099999", 10)
	required, _ := new(big.Int).SetString("1260000000000104998", 10)

	f.bank.Mint(alice, new(big.Int).Set(prev))
	f.bank.Mint(bob, new(big.Int).Set(required))
	require.NoError(t, f.placeBid(ctx, asset, alice, prev))

	short := new(big.Int).Sub(required, big.NewInt(1))
	err := f.placeBid(ctx, asset, bob, short)
	require.ErrorIs(t, err, domain.ErrBidTooLow)

	require.NoError(t, f.placeBid(ctx, asset, bob, required))

	bid, _ := f.engine.HighestBid(asset)
	require.Equal(t, bob, bid.Bidder)
	require.Zero(t, f.balance(t, alice).Cmp(prev), "displaced bidder refunded in full")
	f.requireSolvent(t)
}

func TestSameBidderGuard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	asset := f.mint(t, alice)
	require.NoError(t, f.engine.List(ctx, asset, seller, big.NewInt(100), big.NewInt(500)))
	require.NoError(t, f.placeBid(ctx, asset, alice, big.NewInt(100)))

	err := f.placeBid(ctx, asset, alice, big.NewInt(200))
	require.ErrorIs(t, err, domain.ErrAlreadyHighestBidder)

	// Buy-now bypasses the guard: the highest bidder may still buy outright.
	require.NoError(t, f.placeBid(ctx, asset, alice, big.NewInt(500)))

	holder, err := f.reg.OwnerOf(ctx, asset)
	require.NoError(t, err)
	require.Equal(t, alice, holder)
	f.requireSolvent(t)
}

func TestAntiSnipeExtension(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	asset := f.mint(t, alice, bob, carol)
	require.NoError(t, f.engine.List(ctx, asset, seller, big.NewInt(100), nil))
	require.NoError(t, f.placeBid(ctx, asset, alice, big.NewInt(100)))

	l, _ := f.engine.Listing(asset)
	originalEnd := l.AuctionEnd

	// Plenty of time left: no extension.
	f.clock.Advance(1 * time.Hour)
	require.NoError(t, f.placeBid(ctx, asset, bob, big.NewInt(110)))
	l, _ = f.engine.Listing(asset)
	require.Equal(t, originalEnd, l.AuctionEnd)

	// Inside the snipe window: the deadline is pushed out.
	f.clock.now = originalEnd.Add(-5 * time.Minute)
	require.NoError(t, f.placeBid(ctx, asset, carol, big.NewInt(130)))
	l, _ = f.engine.Listing(asset)
	require.Equal(t, originalEnd.Add(DefaultPolicy().Extension), l.AuctionEnd)

	ev := f.lastEvent(t, domain.EventAuctionExtended)
	require.Equal(t, l.AuctionEnd, ev.NewEnd)
	f.requireSolvent(t)
}

func TestBuyNow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	asset := f.mint(t, alice, bob)
	require.NoError(t, f.engine.List(ctx, asset, seller, big.NewInt(100), big.NewInt(10_000)))
	require.NoError(t, f.placeBid(ctx, asset, alice, big.NewInt(100)))

	rec, err := f.engine.PlaceBid(ctx, asset, bob, big.NewInt(10_000))
	require.NoError(t, err)
	require.NotNil(t, rec, "meeting the buy-now price settles and reports the sale")
	require.Equal(t, domain.SettlementBuyNow, rec.Kind)
	require.Equal(t, bob, rec.Winner)
	require.Zero(t, rec.Price.Cmp(big.NewInt(10_000)))

	// 2.5% of 10000 = 250.
	require.Zero(t, f.engine.AccruedFees().Cmp(big.NewInt(250)))
	require.Zero(t, f.balance(t, seller).Cmp(big.NewInt(9_750)), "seller receives price minus fee")
	require.Zero(t, f.balance(t, alice).Cmp(big.NewInt(1_000_000)), "displaced bid refunded")

	holder, err := f.reg.OwnerOf(ctx, asset)
	require.NoError(t, err)
	require.Equal(t, bob, holder)

	_, ok := f.engine.Listing(asset)
	require.False(t, ok, "settlement tears the listing down")

	// The purchase still produces a bid signal before the settlement signal.
	kinds := f.eventKinds()
	require.Equal(t, []domain.EventKind{
		domain.EventListed,
		domain.EventBidPlaced,
		domain.EventBidPlaced,
		domain.EventAuctionSettled,
	}, kinds)
	f.requireSolvent(t)
}

func TestBuyNowRefundsBuyerOnCustodyFault(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	asset := f.mint(t, alice)
	require.NoError(t, f.engine.List(ctx, asset, seller, big.NewInt(100), big.NewInt(500)))

	// Registry state diverges from the engine's view of custody.
	require.NoError(t, f.reg.Transfer(ctx, asset, custody, carol))

	err := f.placeBid(ctx, asset, alice, big.NewInt(500))
	require.ErrorIs(t, err, domain.ErrTransferFailed)

	require.Zero(t, f.balance(t, alice).Cmp(big.NewInt(1_000_000)), "failed purchase returns the buyer's funds")
	for _, ev := range f.events {
		require.NotEqual(t, domain.EventBidPlaced, ev.Kind, "a rejected purchase must not signal an accepted bid")
	}
	l, ok := f.engine.Listing(asset)
	require.True(t, ok)
	require.True(t, l.Listed)
	f.requireSolvent(t)
}

func TestUnlist(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	asset := f.mint(t, alice)
	require.NoError(t, f.engine.List(ctx, asset, seller, big.NewInt(100), nil))
	require.NoError(t, f.placeBid(ctx, asset, alice, big.NewInt(100)))

	err := f.engine.Unlist(ctx, asset, alice)
	require.ErrorIs(t, err, domain.ErrNotSeller)

	require.NoError(t, f.engine.Unlist(ctx, asset, seller))

	holder, err := f.reg.OwnerOf(ctx, asset)
	require.NoError(t, err)
	require.Equal(t, seller, holder)
	require.Zero(t, f.balance(t, alice).Cmp(big.NewInt(1_000_000)), "outstanding bid refunded on unlist")

	_, ok := f.engine.Listing(asset)
	require.False(t, ok)

	err = f.engine.Unlist(ctx, asset, seller)
	require.ErrorIs(t, err, domain.ErrNotListed)

	// A fresh cycle starts clean: relisting works and has no deadline.
	require.NoError(t, f.engine.List(ctx, asset, seller, big.NewInt(200), nil))
	l, _ := f.engine.Listing(asset)
	require.False(t, l.Started())
	f.requireSolvent(t)
}

func TestSettle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	asset := f.mint(t, alice)
	require.NoError(t, f.engine.List(ctx, asset, seller, big.NewInt(100), nil))

	_, err := f.engine.Settle(ctx, asset, carol)
	require.ErrorIs(t, err, domain.ErrAuctionNotStarted)

	require.NoError(t, f.placeBid(ctx, asset, alice, big.NewInt(1_000)))

	_, err = f.engine.Settle(ctx, asset, carol)
	require.ErrorIs(t, err, domain.ErrAuctionNotEnded)

	f.clock.Advance(DefaultPolicy().FloorDuration)

	// Settlement is permissionless once the deadline has passed.
	rec, err := f.engine.Settle(ctx, asset, carol)
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)
	require.Equal(t, asset, rec.AssetID)
	require.Equal(t, seller, rec.Seller)
	require.Equal(t, alice, rec.Winner)
	require.Zero(t, rec.Price.Cmp(big.NewInt(1_000)))
	require.Zero(t, rec.Fee.Cmp(big.NewInt(25)))
	require.Zero(t, rec.Proceeds.Cmp(big.NewInt(975)))
	require.Equal(t, domain.SettlementTimed, rec.Kind)
	require.False(t, rec.ClaimPending)

	holder, err := f.reg.OwnerOf(ctx, asset)
	require.NoError(t, err)
	require.Equal(t, alice, holder)
	require.Zero(t, f.balance(t, seller).Cmp(big.NewInt(975)))

	_, err = f.engine.Settle(ctx, asset, carol)
	require.ErrorIs(t, err, domain.ErrNotListed, "settlement is not repeatable")
	f.requireSolvent(t)
}

func TestTakeHighestBid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	asset := f.mint(t, alice)
	require.NoError(t, f.engine.List(ctx, asset, seller, big.NewInt(100), nil))

	_, err := f.engine.TakeHighestBid(ctx, asset, seller)
	require.ErrorIs(t, err, domain.ErrAuctionNotStarted)

	require.NoError(t, f.placeBid(ctx, asset, alice, big.NewInt(400)))

	_, err = f.engine.TakeHighestBid(ctx, asset, bob)
	require.ErrorIs(t, err, domain.ErrNotSeller)

	// The seller may settle early, well before the deadline.
	rec, err := f.engine.TakeHighestBid(ctx, asset, seller)
	require.NoError(t, err)
	require.Equal(t, domain.SettlementSellerTake, rec.Kind)
	require.Equal(t, alice, rec.Winner)
	require.Zero(t, rec.Fee.Cmp(big.NewInt(10)))

	holder, err := f.reg.OwnerOf(ctx, asset)
	require.NoError(t, err)
	require.Equal(t, alice, holder)
	f.requireSolvent(t)
}

func TestClaimFallback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	asset := f.mint(t, alice)
	require.NoError(t, f.engine.List(ctx, asset, seller, big.NewInt(100), nil))
	require.NoError(t, f.placeBid(ctx, asset, alice, big.NewInt(1_000)))

	// The winner rejects safe delivery.
	f.reg.SetReceiver(alice, func(ctx context.Context, asset domain.AssetID, from common.Address) error {
		return errors.New("receiver rejects everything")
	})

	f.clock.Advance(DefaultPolicy().FloorDuration)
	rec, err := f.engine.Settle(ctx, asset, bob)
	require.NoError(t, err, "failed delivery does not fail the settlement")
	require.True(t, rec.ClaimPending)

	holder, err := f.reg.OwnerOf(ctx, asset)
	require.NoError(t, err)
	require.Equal(t, custody, holder, "asset stays in custody until claimed")

	winner, ok := f.engine.PendingClaim(asset)
	require.True(t, ok)
	require.Equal(t, alice, winner)
	f.lastEvent(t, domain.EventAssetClaimPending)

	err = f.engine.ClaimAsset(ctx, asset, bob)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	// The pull path uses a plain transfer, so the rejecting hook is not
	// consulted again.
	require.NoError(t, f.engine.ClaimAsset(ctx, asset, alice))

	holder, err = f.reg.OwnerOf(ctx, asset)
	require.NoError(t, err)
	require.Equal(t, alice, holder)

	err = f.engine.ClaimAsset(ctx, asset, alice)
	require.ErrorIs(t, err, domain.ErrNoPendingClaim)
	f.requireSolvent(t)
}

func TestWithdrawFees(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.engine.WithdrawFees(ctx, owner)
	require.ErrorIs(t, err, domain.ErrNoCredits)

	asset := f.mint(t, alice)
	require.NoError(t, f.engine.List(ctx, asset, seller, big.NewInt(100), big.NewInt(10_000)))
	require.NoError(t, f.placeBid(ctx, asset, alice, big.NewInt(10_000)))
	require.Zero(t, f.engine.AccruedFees().Cmp(big.NewInt(250)))

	_, err = f.engine.WithdrawFees(ctx, seller)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	got, err := f.engine.WithdrawFees(ctx, owner)
	require.NoError(t, err)
	require.Zero(t, got.Cmp(big.NewInt(250)))
	require.Zero(t, f.engine.AccruedFees().Sign())
	require.Zero(t, f.balance(t, owner).Cmp(big.NewInt(250)))
	f.requireSolvent(t)
}

// TestAuctionLifecycle walks a full auction: mint, list with buy-now, two
// bids with a full refund in between, timed settlement, final ownership and
// fund positions.
func TestAuctionLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	eth := func(milli int64) *big.Int {
		return new(big.Int).Mul(big.NewInt(milli), big.NewInt(1e15))
	}

	asset, err := f.reg.Mint(ctx, seller)
	require.NoError(t, err)
	f.bank.Mint(alice, eth(2_000))
	f.bank.Mint(bob, eth(2_000))

	require.NoError(t, f.engine.List(ctx, asset, seller, eth(1_000), eth(5_000)))
	require.NoError(t, f.placeBid(ctx, asset, alice, eth(1_200)))

	// 20% over the previous bid clears the 5% floor.
	require.NoError(t, f.placeBid(ctx, asset, bob, eth(1_440)))
	require.Zero(t, f.balance(t, alice).Cmp(eth(2_000)), "alice refunded exactly 1.2")

	f.clock.Advance(DefaultPolicy().FloorDuration)
	rec, err := f.engine.Settle(ctx, asset, alice)
	require.NoError(t, err)
	require.Equal(t, bob, rec.Winner)
	require.Zero(t, rec.Price.Cmp(eth(1_440)))

	holder, err := f.reg.OwnerOf(ctx, asset)
	require.NoError(t, err)
	require.Equal(t, bob, holder)

	fee := new(big.Int).Div(new(big.Int).Mul(eth(1_440), big.NewInt(250)), big.NewInt(10_000))
	require.Zero(t, f.balance(t, seller).Cmp(new(big.Int).Sub(eth(1_440), fee)))
	require.Zero(t, f.engine.AccruedFees().Cmp(fee))
	f.requireSolvent(t)
}

func TestObligationsTrackEscrowAndCredits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	asset := f.mint(t, alice, bob)
	require.NoError(t, f.engine.List(ctx, asset, seller, big.NewInt(100), nil))
	require.NoError(t, f.placeBid(ctx, asset, alice, big.NewInt(100)))

	require.Zero(t, f.engine.Obligations().Cmp(big.NewInt(100)))

	// A griefing refund hook turns the displaced escrow into a credit; the
	// obligation total is unchanged.
	f.bank.SetHook(alice, func(ctx context.Context, m *bank.GasMeter, from common.Address, amount *big.Int) error {
		return m.Consume(DefaultPolicy().RefundGas + 1)
	})
	require.NoError(t, f.placeBid(ctx, asset, bob, big.NewInt(200)))

	require.Zero(t, f.engine.Obligations().Cmp(big.NewInt(300)), "bob's bid plus alice's credit")
	require.Zero(t, f.engine.CreditOf(alice).Cmp(big.NewInt(100)))
	f.requireSolvent(t)
}
