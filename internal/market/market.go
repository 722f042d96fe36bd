// Package market implements the listing registry and purchase orchestration
// for a single-collection token marketplace with a time-decaying price curve.
// All mutating operations run under one global fail-fast guard; pricing is
// delegated to the pure engine in internal/pricing.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/collect9/c9market/internal/domain"
	"github.com/collect9/c9market/internal/pricing"
)

// Event bus channels. Stream names mirror the channel names.
const (
	ChannelPurchases = "purchases"
	ChannelListings  = "listings"
)

// Config bounds the admissible listing price range. A listing's floor must
// sit strictly above MinFloorCents and its ceiling strictly below
// MaxCeilingCents.
type Config struct {
	MinFloorCents   domain.USDCents
	MaxCeilingCents domain.USDCents
}

// Market owns the listing registry and orchestrates purchases against the
// external collaborators (asset registry, rate oracle, fund bank).
type Market struct {
	cfg       Config
	listings  domain.ListingStore
	purchases domain.PurchaseStore
	state     domain.StateStore
	oracle    domain.RateOracle
	registry  domain.AssetRegistry
	bank      domain.FundBank
	auth      domain.Authorizer
	bus       domain.SignalBus // optional
	logger    *slog.Logger
	now       func() time.Time
	guard     guard
}

// Option customizes a Market at construction time.
type Option func(*Market)

// WithClock overrides the market's time source. Tests use this to walk the
// decay curve deterministically.
func WithClock(now func() time.Time) Option {
	return func(m *Market) { m.now = now }
}

// WithSignalBus attaches an event bus; purchase and listing events are
// published to it best-effort.
func WithSignalBus(bus domain.SignalBus) Option {
	return func(m *Market) { m.bus = bus }
}

// WithBank attaches the fund bank used by administrator withdrawals.
func WithBank(bank domain.FundBank) Option {
	return func(m *Market) { m.bank = bank }
}

// New creates a Market over the given stores and collaborators.
func New(
	cfg Config,
	listings domain.ListingStore,
	purchases domain.PurchaseStore,
	state domain.StateStore,
	oracle domain.RateOracle,
	registry domain.AssetRegistry,
	auth domain.Authorizer,
	logger *slog.Logger,
	opts ...Option,
) *Market {
	m := &Market{
		cfg:       cfg,
		listings:  listings,
		purchases: purchases,
		state:     state,
		oracle:    oracle,
		registry:  registry,
		auth:      auth,
		logger:    logger.With(slog.String("component", "market")),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StaticAuthorizer recognizes exactly one administrator address.
type StaticAuthorizer struct {
	Admin common.Address
}

// IsAdministrator reports whether caller is the configured administrator.
func (a StaticAuthorizer) IsAdministrator(caller common.Address) bool {
	return caller == a.Admin
}

var _ domain.Authorizer = StaticAuthorizer{}

// ---------------------------------------------------------------------------
// Listing registry
// ---------------------------------------------------------------------------

// List creates a listing for a token that is not currently listed. The decay
// origin is the moment of creation. Administrator only.
func (m *Market) List(ctx context.Context, caller common.Address, id domain.TokenID, floor, ceiling domain.USDCents) error {
	if err := m.authorize(caller); err != nil {
		return err
	}
	if err := m.validRange(floor, ceiling); err != nil {
		return err
	}
	if err := m.guard.enter(); err != nil {
		return err
	}
	defer m.guard.exit()

	l := domain.Listing{
		TokenID:      id,
		FloorCents:   floor,
		CeilingCents: ceiling,
		ListedAt:     m.now(),
	}
	if err := m.listings.Create(ctx, l); err != nil {
		return fmt.Errorf("market: list token %d: %w", id, err)
	}

	m.publishListing(ctx, "listed", l)
	m.logger.InfoContext(ctx, "token listed",
		slog.Uint64("token_id", uint64(id)),
		slog.Int64("floor_cents", int64(floor)),
		slog.Int64("ceiling_cents", int64(ceiling)),
	)
	return nil
}

// Update overwrites a listing's bounds and resets the decay origin to now.
// Administrator only.
func (m *Market) Update(ctx context.Context, caller common.Address, id domain.TokenID, floor, ceiling domain.USDCents) error {
	if err := m.authorize(caller); err != nil {
		return err
	}
	if err := m.validRange(floor, ceiling); err != nil {
		return err
	}
	if err := m.guard.enter(); err != nil {
		return err
	}
	defer m.guard.exit()

	l, err := m.listings.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("market: update token %d: %w", id, err)
	}
	l.FloorCents = floor
	l.CeilingCents = ceiling
	l.ListedAt = m.now()
	if err := m.listings.Update(ctx, l); err != nil {
		return fmt.Errorf("market: update token %d: %w", id, err)
	}

	m.publishListing(ctx, "updated", l)
	return nil
}

// Remove delists a token. Administrator only.
func (m *Market) Remove(ctx context.Context, caller common.Address, id domain.TokenID) error {
	if err := m.authorize(caller); err != nil {
		return err
	}
	if err := m.guard.enter(); err != nil {
		return err
	}
	defer m.guard.exit()

	l, err := m.listings.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("market: remove token %d: %w", id, err)
	}
	if err := m.listings.Delete(ctx, id); err != nil {
		return fmt.Errorf("market: remove token %d: %w", id, err)
	}

	m.publishListing(ctx, "removed", l)
	return nil
}

// ResetDecayOrigin restarts a listing's decay window without touching its
// bounds. Administrator only.
func (m *Market) ResetDecayOrigin(ctx context.Context, caller common.Address, id domain.TokenID) error {
	if err := m.authorize(caller); err != nil {
		return err
	}
	if err := m.guard.enter(); err != nil {
		return err
	}
	defer m.guard.exit()

	l, err := m.listings.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("market: reset token %d: %w", id, err)
	}
	l.ListedAt = m.now()
	if err := m.listings.Update(ctx, l); err != nil {
		return fmt.Errorf("market: reset token %d: %w", id, err)
	}

	m.publishListing(ctx, "reset", l)
	return nil
}

// Get returns a listing together with its current quote. Read-only; safe to
// call concurrently with mutations.
func (m *Market) Get(ctx context.Context, id domain.TokenID) (domain.Listing, domain.Quote, error) {
	l, err := m.listings.Get(ctx, id)
	if err != nil {
		return domain.Listing{}, domain.Quote{}, fmt.Errorf("market: get token %d: %w", id, err)
	}
	q, err := m.quote(ctx, l)
	if err != nil {
		return domain.Listing{}, domain.Quote{}, err
	}
	return l, q, nil
}

// Listings enumerates every active listing.
func (m *Market) Listings(ctx context.Context) ([]domain.Listing, error) {
	ls, err := m.listings.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("market: list listings: %w", err)
	}
	return ls, nil
}

// ---------------------------------------------------------------------------
// Purchase
// ---------------------------------------------------------------------------

// Purchase executes a sale. The buyer must pay the quoted settlement amount
// exactly, and must name the counterparty they expect to be buying from. On
// success the listing is gone, the payment has accrued to the market balance,
// and the asset has moved to the buyer. Every failure leaves state untouched.
func (m *Market) Purchase(ctx context.Context, buyer common.Address, id domain.TokenID, paymentWei *big.Int, expectedCounterparty common.Address) (domain.Purchase, error) {
	if paymentWei == nil || paymentWei.Sign() < 0 {
		return domain.Purchase{}, fmt.Errorf("market: purchase token %d: negative payment: %w", id, domain.ErrIncorrectPayment)
	}
	if err := m.guard.enter(); err != nil {
		return domain.Purchase{}, err
	}
	defer m.guard.exit()

	l, err := m.listings.Get(ctx, id)
	if err != nil {
		return domain.Purchase{}, fmt.Errorf("market: purchase token %d: %w", id, err)
	}

	q, err := m.quote(ctx, l)
	if err != nil {
		return domain.Purchase{}, err
	}

	min, err := m.state.MinimumPrice(ctx)
	if err != nil {
		return domain.Purchase{}, fmt.Errorf("market: purchase token %d: minimum price: %w", id, err)
	}
	if min != nil && q.SettlementWei.Cmp(min) < 0 {
		return domain.Purchase{}, fmt.Errorf("market: purchase token %d: quoted %s wei below minimum %s: %w",
			id, q.SettlementWei, min, domain.ErrPriceBelowMinimum)
	}

	// Exact match, no tolerance in either direction.
	if paymentWei.Cmp(q.SettlementWei) != 0 {
		return domain.Purchase{}, fmt.Errorf("market: purchase token %d: paid %s wei, price is %s: %w",
			id, paymentWei, q.SettlementWei, domain.ErrIncorrectPayment)
	}

	owner, err := m.registry.OwnerOf(ctx, id)
	if err != nil {
		return domain.Purchase{}, fmt.Errorf("market: purchase token %d: owner lookup: %w", id, errors.Join(domain.ErrTransferFailed, err))
	}
	if owner != expectedCounterparty {
		return domain.Purchase{}, fmt.Errorf("market: purchase token %d: owner %s is not expected counterparty %s: %w",
			id, owner, expectedCounterparty, domain.ErrTransferFailed)
	}

	// Delist first so any nested call observes ErrNotListed, then accrue the
	// payment, then move the asset. Each later step compensates the earlier
	// ones on failure so the whole request stays all-or-nothing.
	if err := m.listings.Delete(ctx, id); err != nil {
		return domain.Purchase{}, fmt.Errorf("market: purchase token %d: delist: %w", id, err)
	}
	if err := m.state.AddBalance(ctx, paymentWei); err != nil {
		m.restoreListing(ctx, l)
		return domain.Purchase{}, fmt.Errorf("market: purchase token %d: accrue payment: %w", id, err)
	}
	if err := m.registry.Transfer(ctx, owner, buyer, id); err != nil {
		m.refundBalance(ctx, paymentWei)
		m.restoreListing(ctx, l)
		return domain.Purchase{}, fmt.Errorf("market: purchase token %d: asset transfer: %w", id, errors.Join(domain.ErrTransferFailed, err))
	}

	p := domain.Purchase{
		ID:            uuid.New().String(),
		Buyer:         buyer,
		Counterparty:  owner,
		TokenID:       id,
		FiatCents:     q.FiatCents,
		SettlementWei: new(big.Int).Set(paymentWei),
		CreatedAt:     m.now(),
	}

	// The asset has moved; recording and fanout are best-effort from here.
	if err := m.purchases.Insert(ctx, p); err != nil {
		m.logger.ErrorContext(ctx, "purchase record insert failed",
			slog.String("purchase_id", p.ID),
			slog.String("error", err.Error()),
		)
	}
	m.publishPurchase(ctx, p)

	m.logger.InfoContext(ctx, "token bought",
		slog.Uint64("token_id", uint64(id)),
		slog.String("buyer", buyer.Hex()),
		slog.String("counterparty", owner.Hex()),
		slog.String("settlement_wei", p.SettlementWei.String()),
		slog.Int64("fiat_cents", int64(p.FiatCents)),
	)
	return p, nil
}

// ---------------------------------------------------------------------------
// Internal helpers
// ---------------------------------------------------------------------------

func (m *Market) quote(ctx context.Context, l domain.Listing) (domain.Quote, error) {
	rate, err := m.oracle.LatestRate(ctx)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("market: quote token %d: oracle: %w", l.TokenID, err)
	}
	q, err := pricing.MakeQuote(l, rate, m.now())
	if err != nil {
		return domain.Quote{}, fmt.Errorf("market: quote token %d: %w", l.TokenID, err)
	}
	return q, nil
}

func (m *Market) authorize(caller common.Address) error {
	if m.auth == nil || !m.auth.IsAdministrator(caller) {
		return fmt.Errorf("market: caller %s: %w", caller.Hex(), domain.ErrUnauthorized)
	}
	return nil
}

func (m *Market) validRange(floor, ceiling domain.USDCents) error {
	if ceiling <= floor {
		return fmt.Errorf("market: ceiling %d <= floor %d: %w", ceiling, floor, domain.ErrInvalidPriceRange)
	}
	if floor <= m.cfg.MinFloorCents {
		return fmt.Errorf("market: floor %d not above minimum %d: %w", floor, m.cfg.MinFloorCents, domain.ErrInvalidPriceRange)
	}
	if ceiling >= m.cfg.MaxCeilingCents {
		return fmt.Errorf("market: ceiling %d not below maximum %d: %w", ceiling, m.cfg.MaxCeilingCents, domain.ErrInvalidPriceRange)
	}
	return nil
}

// restoreListing undoes a delist on a failed purchase.
func (m *Market) restoreListing(ctx context.Context, l domain.Listing) {
	if err := m.listings.Create(ctx, l); err != nil {
		m.logger.ErrorContext(ctx, "listing restore failed",
			slog.Uint64("token_id", uint64(l.TokenID)),
			slog.String("error", err.Error()),
		)
	}
}

// refundBalance undoes a payment accrual on a failed purchase.
func (m *Market) refundBalance(ctx context.Context, wei *big.Int) {
	if err := m.state.AddBalance(ctx, new(big.Int).Neg(wei)); err != nil {
		m.logger.ErrorContext(ctx, "balance refund failed",
			slog.String("wei", wei.String()),
			slog.String("error", err.Error()),
		)
	}
}

// purchaseEvent is the JSON payload published on ChannelPurchases.
type purchaseEvent struct {
	Event         string `json:"event"`
	PurchaseID    string `json:"purchase_id"`
	Buyer         string `json:"buyer"`
	Counterparty  string `json:"counterparty"`
	TokenID       uint64 `json:"token_id"`
	FiatCents     int64  `json:"fiat_cents"`
	SettlementWei string `json:"settlement_wei"`
	Timestamp     string `json:"timestamp"`
}

func (m *Market) publishPurchase(ctx context.Context, p domain.Purchase) {
	if m.bus == nil {
		return
	}
	evt, _ := json.Marshal(purchaseEvent{
		Event:         "token_bought",
		PurchaseID:    p.ID,
		Buyer:         p.Buyer.Hex(),
		Counterparty:  p.Counterparty.Hex(),
		TokenID:       uint64(p.TokenID),
		FiatCents:     int64(p.FiatCents),
		SettlementWei: p.SettlementWei.String(),
		Timestamp:     p.CreatedAt.Format(time.RFC3339Nano),
	})
	if err := m.bus.Publish(ctx, ChannelPurchases, evt); err != nil {
		m.logger.WarnContext(ctx, "publish purchase event failed",
			slog.String("error", err.Error()),
		)
	}
	if err := m.bus.StreamAppend(ctx, ChannelPurchases, evt); err != nil {
		m.logger.WarnContext(ctx, "append purchase stream failed",
			slog.String("error", err.Error()),
		)
	}
}

func (m *Market) publishListing(ctx context.Context, action string, l domain.Listing) {
	if m.bus == nil {
		return
	}
	evt, _ := json.Marshal(map[string]any{
		"event":         "listing_" + action,
		"token_id":      uint64(l.TokenID),
		"floor_cents":   int64(l.FloorCents),
		"ceiling_cents": int64(l.CeilingCents),
		"listed_at":     l.ListedAt.Format(time.RFC3339Nano),
	})
	if err := m.bus.Publish(ctx, ChannelListings, evt); err != nil {
		m.logger.WarnContext(ctx, "publish listing event failed",
			slog.String("action", action),
			slog.String("error", err.Error()),
		)
	}
}
