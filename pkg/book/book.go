package book

import (
	"container/heap"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/uhyunpark/tradesim/pkg/orderbook"
)

type Side int

const (
	Bid Side = iota
	Ask
)

// ParseSide accepts "bid"/"buy" and "ask"/"sell".
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bid", "buy":
		return Bid, nil
	case "ask", "sell":
		return Ask, nil
	default:
		return 0, fmt.Errorf("unknown book side %q", s)
	}
}

func (s Side) String() string {
	if s == Ask {
		return "ask"
	}
	return "bid"
}

// Book is the live L2 book for one symbol: total size per price level, fed
// by a market-data source and read as sorted snapshots by the API.
// Safe for concurrent use.
type Book struct {
	mu sync.RWMutex

	symbol string

	// Heap-based best price tracking (O(1) peek)
	bidHeap *maxPriceHeap
	askHeap *minPriceHeap

	// price -> total size
	bids map[float64]float64
	asks map[float64]float64

	updatedAt int64 // Unix milliseconds of the last change
}

func New(symbol string) *Book {
	b := &Book{symbol: symbol}
	b.reset()
	return b
}

func (b *Book) reset() {
	b.bidHeap = &maxPriceHeap{}
	b.askHeap = &minPriceHeap{}
	b.bids = make(map[float64]float64)
	b.asks = make(map[float64]float64)
}

func (b *Book) Symbol() string { return b.symbol }

// Set replaces the size resting at price. A size of 0 removes the level.
func (b *Book) Set(side Side, price, size float64, ts int64) error {
	if price <= 0 {
		return fmt.Errorf("invalid %s price %v", side, price)
	}
	if size < 0 {
		return fmt.Errorf("invalid %s size %v at price %v", side, size, price)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.set(side, price, size)
	b.updatedAt = ts
	return nil
}

func (b *Book) set(side Side, price, size float64) {
	levels, h := b.bids, heap.Interface(b.bidHeap)
	if side == Ask {
		levels, h = b.asks, b.askHeap
	}

	_, exists := levels[price]
	switch {
	case size == 0 && exists:
		delete(levels, price)
		removeFromHeap(h, price)
	case size > 0 && !exists:
		levels[price] = size
		heap.Push(h, price)
	case size > 0:
		levels[price] = size
	}
}

// removeFromHeap removes a price level (O(N) worst case, but rare)
func removeFromHeap(h heap.Interface, price float64) {
	var prices []float64
	switch hh := h.(type) {
	case *maxPriceHeap:
		prices = *hh
	case *minPriceHeap:
		prices = *hh
	}
	for i, p := range prices {
		if p == price {
			heap.Remove(h, i)
			return
		}
	}
}

// Replace discards the current state and loads a full snapshot.
// Levels with zero size or non-positive price are skipped.
func (b *Book) Replace(raw orderbook.RawBook) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.reset()
	for _, lvl := range raw.Bids {
		if lvl.Price > 0 && lvl.Size > 0 {
			b.set(Bid, lvl.Price, b.bids[lvl.Price]+lvl.Size)
		}
	}
	for _, lvl := range raw.Asks {
		if lvl.Price > 0 && lvl.Size > 0 {
			b.set(Ask, lvl.Price, b.asks[lvl.Price]+lvl.Size)
		}
	}
	b.updatedAt = raw.Timestamp
}

// BestBid returns the highest bid price (O(1) with heap)
func (b *Book) BestBid() (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.bidHeap.Len() == 0 {
		return 0, false
	}
	return (*b.bidHeap)[0], true
}

// BestAsk returns the lowest ask price (O(1) with heap)
func (b *Book) BestAsk() (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.askHeap.Len() == 0 {
		return 0, false
	}
	return (*b.askHeap)[0], true
}

// Depth returns the number of price levels on each side.
func (b *Book) Depth() (bids, asks int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.bids), len(b.asks)
}

// Snapshot returns up to depth levels per side, bids sorted high to low and
// asks low to high, which is the ordering orderbook.Aggregate expects.
// depth <= 0 returns every level.
func (b *Book) Snapshot(depth int) orderbook.RawBook {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return orderbook.RawBook{
		Bids:      sortedLevels(b.bids, depth, true),
		Asks:      sortedLevels(b.asks, depth, false),
		Timestamp: b.updatedAt,
	}
}

func sortedLevels(levels map[float64]float64, depth int, descending bool) []orderbook.PriceLevel {
	prices := make([]float64, 0, len(levels))
	for p := range levels {
		prices = append(prices, p)
	}
	slices.Sort(prices)
	if descending {
		slices.Reverse(prices)
	}
	if depth > 0 && len(prices) > depth {
		prices = prices[:depth]
	}

	out := make([]orderbook.PriceLevel, len(prices))
	for i, p := range prices {
		out[i] = orderbook.PriceLevel{Price: p, Size: levels[p]}
	}
	return out
}
