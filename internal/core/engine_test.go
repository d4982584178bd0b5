package core

import (
	"context"
	"math/rand"
	"regexp"
	"testing"

	"github.com/olyamironova/matching-core/internal/adapter/in_memory"
	"github.com/olyamironova/matching-core/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessOrderPartialFillAtMakerPrice(t *testing.T) {
	f := newFixture()
	buy := limit(1, domain.Buy, "50000", "1.0")
	sell := limit(2, domain.Sell, "49900", "0.4")

	require.NoError(t, f.engine.ProcessOrder(buy))
	require.NoError(t, f.engine.ProcessOrder(sell))

	require.Len(t, f.settler.trades, 1)
	tr := f.settler.trades[0]
	assert.True(t, tr.Price.Equal(d("50000")), "maker price wins")
	assert.True(t, tr.Amount.Equal(d("0.4")))
	assert.True(t, tr.Value.Equal(d("20000")))
	assert.True(t, tr.MakerFee.Equal(d("20")))
	assert.True(t, tr.TakerFee.Equal(d("20")))
	assert.Equal(t, buy.ID, tr.MakerOrderID)
	assert.Equal(t, sell.ID, tr.TakerOrderID)
	assert.Equal(t, buy.UserID, tr.MakerUserID)
	assert.Equal(t, sell.UserID, tr.TakerUserID)
	assert.Equal(t, domain.Sell, tr.TakerSide)

	assert.True(t, buy.Remaining().Equal(d("0.6")))
	assert.Equal(t, domain.PartiallyFilled, buy.Status)
	assert.True(t, buy.Fee.Equal(d("20")))
	assert.Equal(t, domain.FullyFilled, sell.Status)
	assert.True(t, sell.Remaining().IsZero())
	assert.True(t, sell.ExecutedValue.Equal(d("20000")))

	ob, ok := f.engine.OrderBook(symbol)
	require.True(t, ok)
	assert.Same(t, buy, ob.BestBuy())
	assert.Nil(t, ob.BestSell())

	price, ok := f.engine.GetLatestPrice(symbol)
	assert.True(t, ok)
	assert.True(t, price.Equal(d("50000")))
	assert.Equal(t, []string{"O2"}, f.listener.closed)
}

func TestProcessOrderTimePriority(t *testing.T) {
	f := newFixture()
	first := limit(1, domain.Sell, "50000", "1")
	second := limit(2, domain.Sell, "50000", "1")
	require.NoError(t, f.engine.ProcessOrder(first))
	require.NoError(t, f.engine.ProcessOrder(second))

	require.NoError(t, f.engine.ProcessOrder(limit(3, domain.Buy, "50000", "1.5")))

	require.Len(t, f.settler.trades, 2)
	assert.Equal(t, first.ID, f.settler.trades[0].MakerOrderID)
	assert.True(t, f.settler.trades[0].Amount.Equal(d("1")))
	assert.Equal(t, second.ID, f.settler.trades[1].MakerOrderID)
	assert.True(t, f.settler.trades[1].Amount.Equal(d("0.5")))
	assert.Equal(t, domain.FullyFilled, first.Status)
	assert.Equal(t, domain.PartiallyFilled, second.Status)
}

func TestProcessOrderWalksPriceLevels(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.engine.ProcessOrder(limit(1, domain.Sell, "101", "1")))
	require.NoError(t, f.engine.ProcessOrder(limit(2, domain.Sell, "100", "1")))
	require.NoError(t, f.engine.ProcessOrder(limit(3, domain.Sell, "103", "1")))

	buy := limit(4, domain.Buy, "102", "5")
	require.NoError(t, f.engine.ProcessOrder(buy))

	require.Len(t, f.settler.trades, 2)
	assert.True(t, f.settler.trades[0].Price.Equal(d("100")))
	assert.True(t, f.settler.trades[1].Price.Equal(d("101")))
	assert.True(t, buy.Remaining().Equal(d("3")))
	assert.Equal(t, domain.PartiallyFilled, buy.Status)

	ob, _ := f.engine.OrderBook(symbol)
	assert.Same(t, buy, ob.BestBuy(), "remainder rests at its limit")
	assert.True(t, ob.BestSell().Price.Equal(d("103")))
}

func TestProcessOrderNoCross(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.engine.ProcessOrder(limit(1, domain.Sell, "101", "1")))
	buy := limit(2, domain.Buy, "100", "1")
	require.NoError(t, f.engine.ProcessOrder(buy))

	assert.Empty(t, f.settler.trades)
	assert.Equal(t, domain.Pending, buy.Status)
	ob, _ := f.engine.OrderBook(symbol)
	assert.Same(t, buy, ob.BestBuy())
}

func TestProcessOrderMarket(t *testing.T) {
	t.Run("market order on empty book is cancelled", func(t *testing.T) {
		f := newFixture()
		o := market(1, domain.Buy, "1")
		require.NoError(t, f.engine.ProcessOrder(o))
		assert.Equal(t, domain.Cancelled, o.Status)
		assert.Empty(t, f.settler.trades)
		ob, _ := f.engine.OrderBook(symbol)
		assert.Nil(t, ob.BestBuy())
	})

	t.Run("market order sweeps any price and never rests", func(t *testing.T) {
		f := newFixture()
		require.NoError(t, f.engine.ProcessOrder(limit(1, domain.Buy, "90", "1")))
		require.NoError(t, f.engine.ProcessOrder(limit(2, domain.Buy, "10", "1")))

		o := market(3, domain.Sell, "3")
		require.NoError(t, f.engine.ProcessOrder(o))
		require.Len(t, f.settler.trades, 2)
		assert.True(t, f.settler.trades[1].Price.Equal(d("10")))
		assert.True(t, o.ExecutedAmount.Equal(d("2")))
		assert.Equal(t, domain.Cancelled, o.Status)
		ob, _ := f.engine.OrderBook(symbol)
		assert.Nil(t, ob.BestSell())
		assert.Nil(t, ob.BestBuy())
	})
}

func TestProcessOrderTimeInForce(t *testing.T) {
	t.Run("ioc fills what it can and cancels the rest", func(t *testing.T) {
		f := newFixture()
		require.NoError(t, f.engine.ProcessOrder(limit(1, domain.Sell, "100", "1")))
		o := limit(2, domain.Buy, "100", "3")
		o.TimeInForce = domain.IOC
		require.NoError(t, f.engine.ProcessOrder(o))

		assert.Len(t, f.settler.trades, 1)
		assert.Equal(t, domain.Cancelled, o.Status)
		assert.True(t, o.ExecutedAmount.Equal(d("1")))
		ob, _ := f.engine.OrderBook(symbol)
		assert.Nil(t, ob.BestBuy())
	})

	t.Run("fok without enough liquidity trades nothing", func(t *testing.T) {
		f := newFixture()
		resting := limit(1, domain.Sell, "100", "1")
		require.NoError(t, f.engine.ProcessOrder(resting))
		o := limit(2, domain.Buy, "100", "3")
		o.TimeInForce = domain.FOK
		require.NoError(t, f.engine.ProcessOrder(o))

		assert.Empty(t, f.settler.trades)
		assert.Equal(t, domain.Cancelled, o.Status)
		assert.True(t, o.ExecutedAmount.IsZero())
		assert.Equal(t, domain.Pending, resting.Status)
	})

	t.Run("fok with enough liquidity fills completely", func(t *testing.T) {
		f := newFixture()
		require.NoError(t, f.engine.ProcessOrder(limit(1, domain.Sell, "100", "1")))
		require.NoError(t, f.engine.ProcessOrder(limit(2, domain.Sell, "101", "2")))
		o := limit(3, domain.Buy, "101", "3")
		o.TimeInForce = domain.FOK
		require.NoError(t, f.engine.ProcessOrder(o))

		assert.Len(t, f.settler.trades, 2)
		assert.Equal(t, domain.FullyFilled, o.Status)
	})
}

func TestProcessOrderRejectsMalformed(t *testing.T) {
	f := newFixture()
	noPrice := limit(1, domain.Buy, "0", "1")
	done := limit(2, domain.Buy, "100", "1")
	done.Status = domain.Cancelled
	noSymbol := limit(3, domain.Buy, "100", "1")
	noSymbol.Symbol = ""

	for _, o := range []*domain.Order{nil, noPrice, done, noSymbol} {
		assert.ErrorIs(t, f.engine.ProcessOrder(o), ErrInvalidOrder)
	}
	assert.Empty(t, f.settler.trades)
	assert.Equal(t, []string{noPrice.OrderNo, done.OrderNo, noSymbol.OrderNo}, f.listener.closed,
		"rejected orders are released by the listener")
	assert.Equal(t, domain.Cancelled, noPrice.Status)
	assert.Equal(t, domain.Cancelled, noSymbol.Status)
}

func TestFeeRounding(t *testing.T) {
	t.Run("half up at eight places", func(t *testing.T) {
		f := newFixture()
		require.NoError(t, f.engine.ProcessOrder(limit(1, domain.Sell, "0.125", "0.001")))
		require.NoError(t, f.engine.ProcessOrder(limit(2, domain.Buy, "0.125", "0.001")))

		require.Len(t, f.settler.trades, 1)
		// 0.000125 * 0.001 = 0.000000125
		assert.Equal(t, "0.00000013", f.settler.trades[0].MakerFee.StringFixed(8))
	})

	t.Run("pair fee rate overrides the default", func(t *testing.T) {
		pair := in_memory.DefaultPair(symbol, d("0.002"))
		f := newFixture(pair)
		require.NoError(t, f.engine.ProcessOrder(limit(1, domain.Sell, "100", "2")))
		require.NoError(t, f.engine.ProcessOrder(limit(2, domain.Buy, "100", "2")))
		assert.True(t, f.settler.trades[0].TakerFee.Equal(d("0.4")))
	})

	t.Run("unknown pair falls back to the default", func(t *testing.T) {
		f := newFixture(in_memory.DefaultPair("ETHUSDT", d("0.5")))
		require.NoError(t, f.engine.ProcessOrder(limit(1, domain.Sell, "100", "1")))
		require.NoError(t, f.engine.ProcessOrder(limit(2, domain.Buy, "100", "1")))
		assert.True(t, f.settler.trades[0].TakerFee.Equal(d("0.1")))
	})
}

func TestTradeNumbers(t *testing.T) {
	f := newFixture()
	for i := int64(0); i < 5; i++ {
		require.NoError(t, f.engine.ProcessOrder(limit(2*i+1, domain.Sell, "100", "1")))
		require.NoError(t, f.engine.ProcessOrder(limit(2*i+2, domain.Buy, "100", "1")))
	}
	format := regexp.MustCompile(`^T\d{13}\d{6}$`)
	seen := map[string]bool{}
	for _, tr := range f.settler.trades {
		assert.Regexp(t, format, tr.TradeNo)
		assert.False(t, seen[tr.TradeNo], "duplicate %s", tr.TradeNo)
		seen[tr.TradeNo] = true
	}
	assert.Len(t, seen, 5)
}

func TestCancelOrder(t *testing.T) {
	t.Run("resting order is removed and cancelled", func(t *testing.T) {
		f := newFixture()
		o := limit(1, domain.Buy, "100", "1")
		require.NoError(t, f.engine.ProcessOrder(o))
		published := len(f.publisher.snaps)

		assert.True(t, f.engine.CancelOrder(o))
		assert.Equal(t, domain.Cancelled, o.Status)
		ob, _ := f.engine.OrderBook(symbol)
		assert.Nil(t, ob.BestBuy())
		assert.Len(t, f.publisher.snaps, published+1)
		assert.Empty(t, f.publisher.last().Bids)
		assert.Contains(t, f.listener.closed, "O1")
	})

	t.Run("order not in the book is a no-op", func(t *testing.T) {
		f := newFixture()
		resting := limit(1, domain.Buy, "100", "1")
		require.NoError(t, f.engine.ProcessOrder(resting))
		ob, _ := f.engine.OrderBook(symbol)
		seq := ob.Sequence()

		filled := limit(2, domain.Sell, "100", "1")
		filled.Status = domain.FullyFilled
		filled.ExecutedAmount = d("1")
		assert.False(t, f.engine.CancelOrder(filled))
		assert.Equal(t, domain.FullyFilled, filled.Status)

		other := limit(3, domain.Sell, "100", "1")
		other.Symbol = "DOGEUSDT"
		assert.False(t, f.engine.CancelOrder(other))
		assert.Equal(t, domain.Pending, other.Status)

		assert.Equal(t, seq, ob.Sequence())
		assert.Same(t, resting, ob.BestBuy())
	})
}

func TestModifyOrder(t *testing.T) {
	t.Run("replacement rests at the new price", func(t *testing.T) {
		f := newFixture()
		old := limit(1, domain.Buy, "100", "1")
		require.NoError(t, f.engine.ProcessOrder(old))

		repl := limit(2, domain.Buy, "101", "2")
		repl.OrderNo = old.OrderNo
		require.NoError(t, f.engine.ModifyOrder(old, repl))

		assert.Equal(t, domain.Cancelled, old.Status)
		ob, _ := f.engine.OrderBook(symbol)
		assert.Same(t, repl, ob.BestBuy())
		assert.Equal(t, 1, ob.OrderCount(domain.Buy))
	})

	t.Run("replacement can cross immediately", func(t *testing.T) {
		f := newFixture()
		require.NoError(t, f.engine.ProcessOrder(limit(1, domain.Sell, "105", "1")))
		old := limit(2, domain.Buy, "100", "1")
		require.NoError(t, f.engine.ProcessOrder(old))

		repl := limit(3, domain.Buy, "105", "1")
		require.NoError(t, f.engine.ModifyOrder(old, repl))
		assert.Len(t, f.settler.trades, 1)
		assert.Equal(t, domain.FullyFilled, repl.Status)
	})

	t.Run("filled order is not replaced", func(t *testing.T) {
		f := newFixture()
		old := limit(1, domain.Buy, "100", "1")
		require.NoError(t, f.engine.ProcessOrder(old))
		require.NoError(t, f.engine.ProcessOrder(limit(2, domain.Sell, "100", "1")))
		require.Equal(t, domain.FullyFilled, old.Status)

		repl := limit(3, domain.Buy, "99", "1")
		require.NoError(t, f.engine.ModifyOrder(old, repl))
		assert.Equal(t, domain.FullyFilled, old.Status)
		assert.Equal(t, domain.Cancelled, repl.Status)
		ob, _ := f.engine.OrderBook(symbol)
		assert.Nil(t, ob.BestBuy())
	})
}

func TestClearOrderBook(t *testing.T) {
	f := newFixture()
	resting := limit(1, domain.Buy, "100", "1")
	require.NoError(t, f.engine.ProcessOrder(resting))
	require.NoError(t, f.engine.ProcessOrder(limit(2, domain.Sell, "101", "1")))

	require.NoError(t, f.engine.ClearOrderBook(symbol))
	assert.Equal(t, domain.Cancelled, resting.Status)
	ob, _ := f.engine.OrderBook(symbol)
	assert.Zero(t, ob.Sequence())
	assert.Nil(t, ob.BestBuy())
	assert.Nil(t, ob.BestSell())
	assert.Equal(t, []string{symbol}, f.engine.ActiveSymbols(), "book survives a clear")

	assert.ErrorIs(t, f.engine.ClearOrderBook("NOPE"), ErrSymbolNotFound)
}

func TestRegistryAndQueries(t *testing.T) {
	f := newFixture()
	f.engine.InitializeOrderBook("ETHUSDT")
	f.engine.InitializeOrderBook(symbol)
	f.engine.InitializeOrderBook("ETHUSDT")
	assert.Equal(t, []string{symbol, "ETHUSDT"}, f.engine.ActiveSymbols())

	_, ok := f.engine.GetLatestPrice("ETHUSDT")
	assert.False(t, ok)
	_, ok = f.engine.GetLatestPrice("NOPE")
	assert.False(t, ok)

	ctx := context.Background()
	snap, err := f.engine.GetOrderBookSnapshot(ctx, "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", snap.Symbol)

	_, err = f.engine.GetOrderBookSnapshot(ctx, "NOPE")
	assert.ErrorIs(t, err, ErrSymbolNotFound)

	cached := domain.EmptySnapshot("SOLUSDT", f.engine.now())
	cached.Sequence = 42
	require.NoError(t, f.cache.WriteSnapshot(ctx, cached))
	snap, err = f.engine.GetOrderBookSnapshot(ctx, "SOLUSDT")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), snap.Sequence)
}

func TestClearAll(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.engine.ProcessOrder(limit(1, domain.Buy, "100", "1")))
	eth := limit(2, domain.Sell, "10", "1")
	eth.Symbol = "ETHUSDT"
	require.NoError(t, f.engine.ProcessOrder(eth))

	f.engine.ClearAll()
	for _, s := range f.engine.ActiveSymbols() {
		ob, _ := f.engine.OrderBook(s)
		assert.Zero(t, ob.OrderCount(domain.Buy)+ob.OrderCount(domain.Sell), s)
	}
	assert.Equal(t, domain.Cancelled, eth.Status)
}

func TestSnapshotPublishedAfterEveryMutation(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.engine.ProcessOrder(limit(1, domain.Buy, "100", "1")))
	require.NoError(t, f.engine.ProcessOrder(limit(2, domain.Sell, "100", "0.25")))

	require.Len(t, f.publisher.snaps, 2)
	first, second := f.publisher.snaps[0], f.publisher.snaps[1]
	assert.Less(t, first.Sequence, second.Sequence)
	require.Len(t, second.Bids, 1)
	assert.True(t, second.Bids[0].Amount.Equal(d("0.75")))
	require.Len(t, second.RecentTrades, 1)
	assert.True(t, second.LatestPrice.Decimal.Equal(d("100")))
}

// Random order flow never leaves a crossed book, never overfills an order,
// and every trade deducts exactly its amount from both sides.
func TestMatchingInvariantsUnderRandomFlow(t *testing.T) {
	f := newFixture()
	rng := rand.New(rand.NewSource(7))
	var orders []*domain.Order
	filled := map[int64]decimal.Decimal{}

	for i := int64(1); i <= 2000; i++ {
		side := domain.Buy
		if rng.Intn(2) == 0 {
			side = domain.Sell
		}
		price := decimal.NewFromInt(int64(95 + rng.Intn(11)))
		amount := decimal.New(int64(1+rng.Intn(50)), -1)
		var o *domain.Order
		switch rng.Intn(10) {
		case 0:
			o = market(i, side, amount.String())
		default:
			o = limit(i, side, price.String(), amount.String())
			if rng.Intn(8) == 0 {
				o.TimeInForce = domain.IOC
			}
		}
		require.NoError(t, f.engine.ProcessOrder(o))
		orders = append(orders, o)

		if rng.Intn(6) == 0 && len(orders) > 0 {
			f.engine.CancelOrder(orders[rng.Intn(len(orders))])
		}

		ob, _ := f.engine.OrderBook(symbol)
		if bb, bs := ob.BestBuy(), ob.BestSell(); bb != nil && bs != nil {
			require.True(t, bb.Price.LessThan(bs.Price), "crossed book after order %d", i)
		}
	}

	for _, tr := range f.settler.trades {
		require.True(t, tr.Amount.IsPositive())
		require.True(t, tr.Price.IsPositive())
		filled[tr.MakerOrderID] = filled[tr.MakerOrderID].Add(tr.Amount)
		filled[tr.TakerOrderID] = filled[tr.TakerOrderID].Add(tr.Amount)
	}
	for _, o := range orders {
		assert.False(t, o.Remaining().IsNegative(), "order %d overfilled", o.ID)
		assert.True(t, o.ExecutedAmount.Equal(filled[o.ID]), "order %d executed %s, trades %s", o.ID, o.ExecutedAmount, filled[o.ID])
		if o.Remaining().IsZero() {
			assert.Equal(t, domain.FullyFilled, o.Status)
		}
	}
}
