package simulator

import (
	"github.com/shopspring/decimal"

	"github.com/shubham-shewale/stock-watchlist/pkg/models"
)

// PriceSimulator produces snapshots whose quotes either carry over from the
// previous snapshot or are re-randomized, independently per symbol.
//
// It keeps the previous snapshot as instance state and is not safe for
// concurrent use; the hub serializes every call to Next.
type PriceSimulator struct {
	rand     Rand
	clock    Clock
	maxPrice float64
	holdOver float64
	previous models.Snapshot
}

func NewPriceSimulator(maxPrice, holdOverProbability float64, rnd Rand, clock Clock) *PriceSimulator {
	return &PriceSimulator{
		rand:     rnd,
		clock:    clock,
		maxPrice: maxPrice,
		holdOver: holdOverProbability,
	}
}

// Next computes the snapshot for the currently watched symbols.
//
// A quote is held over only when the draw exceeds 1-holdOver, the symbol was
// quoted last time, and the watched set kept its size. Any change in size
// refreshes every quote.
func (s *PriceSimulator) Next(symbols []string) models.Snapshot {
	prev := s.previous.Lookup()
	sameSize := len(s.previous) == len(symbols)
	now := s.clock.Now()

	out := make(models.Snapshot, 0, len(symbols))
	for _, sym := range symbols {
		r := s.rand.Float64()
		if q, ok := prev[sym]; ok && sameSize && r > 1-s.holdOver {
			out = append(out, q)
			continue
		}
		out = append(out, models.PriceQuote{
			Symbol:    sym,
			Price:     s.randomPrice(),
			UpdatedAt: now,
		})
	}
	out.Sort()

	s.previous = append(models.Snapshot(nil), out...)
	return out
}

// Previous returns a copy of the last computed snapshot.
func (s *PriceSimulator) Previous() models.Snapshot {
	return append(models.Snapshot{}, s.previous...)
}

func (s *PriceSimulator) randomPrice() decimal.Decimal {
	return decimal.NewFromFloat(s.rand.Float64() * s.maxPrice).Round(2)
}
