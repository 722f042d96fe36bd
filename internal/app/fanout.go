package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/collect9/c9market/internal/domain"
	"github.com/collect9/c9market/internal/market"
	"github.com/collect9/c9market/internal/notify"
)

// purchaseFanout subscribes to the purchase channel on the signal bus and
// forwards completed sales to the notifier. Keeping the bridge here means the
// market core publishes once and every consumer (WebSocket hub, Telegram,
// Discord) hangs off the same bus.
type purchaseFanout struct {
	bus      domain.SignalBus
	notifier *notify.Notifier
	logger   *slog.Logger
}

func newPurchaseFanout(bus domain.SignalBus, notifier *notify.Notifier, logger *slog.Logger) *purchaseFanout {
	return &purchaseFanout{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "fanout")),
	}
}

// busPurchase mirrors the purchase event payload published by the market.
type busPurchase struct {
	Event         string `json:"event"`
	PurchaseID    string `json:"purchase_id"`
	Buyer         string `json:"buyer"`
	Counterparty  string `json:"counterparty"`
	TokenID       uint64 `json:"token_id"`
	FiatCents     int64  `json:"fiat_cents"`
	SettlementWei string `json:"settlement_wei"`
	Timestamp     string `json:"timestamp"`
}

// Run consumes purchase events until the context is cancelled.
func (f *purchaseFanout) Run(ctx context.Context) error {
	msgCh, err := f.bus.Subscribe(ctx, market.ChannelPurchases)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-msgCh:
			if !ok {
				f.logger.Warn("purchase subscription closed")
				return nil
			}
			f.handle(ctx, data)
		}
	}
}

func (f *purchaseFanout) handle(ctx context.Context, data []byte) {
	var evt busPurchase
	if err := json.Unmarshal(data, &evt); err != nil {
		f.logger.Warn("undecodable purchase event", slog.String("error", err.Error()))
		return
	}
	if evt.Event != "token_bought" {
		return
	}

	wei, ok := new(big.Int).SetString(evt.SettlementWei, 10)
	if !ok {
		wei = new(big.Int)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, evt.Timestamp)
	if err != nil {
		createdAt = time.Now().UTC()
	}

	f.notifier.AnnouncePurchase(ctx, domain.Purchase{
		ID:            evt.PurchaseID,
		Buyer:         common.HexToAddress(evt.Buyer),
		Counterparty:  common.HexToAddress(evt.Counterparty),
		TokenID:       domain.TokenID(evt.TokenID),
		FiatCents:     domain.USDCents(evt.FiatCents),
		SettlementWei: wei,
		CreatedAt:     createdAt,
	})
}
