package trade

import (
	"errors"
	"math"

	"github.com/gtoxlili/echoBand/entity"
)

var ErrEmptyBook = errors.New("order book side is empty")

// BookQuote estimates a market order against the visible book.
type BookQuote struct {
	// Complete is false when the book could not absorb the whole quantity.
	Complete    bool
	Volume      float64
	TopPrice    float64
	AvgPrice    float64
	SlippagePct float64
}

// WalkBook consumes levels from the side a market order of the given side
// would hit, until quantity is covered.
func WalkBook(book entity.OrderBook, side entity.Side, quantity float64) (BookQuote, error) {
	levels := book.Asks
	if side == entity.Sell {
		levels = book.Bids
	}
	if len(levels) == 0 {
		return BookQuote{}, ErrEmptyBook
	}

	q := BookQuote{TopPrice: levels[0].Price}
	var notional float64
	for _, l := range levels {
		take := math.Min(l.Quantity, quantity-q.Volume)
		q.Volume += take
		notional += take * l.Price
		if q.Volume >= quantity {
			q.Complete = true
			break
		}
	}
	if q.Volume > 0 {
		q.AvgPrice = notional / q.Volume
		q.SlippagePct = math.Abs(q.AvgPrice-q.TopPrice) / q.TopPrice * 100
	}
	return q, nil
}

// Acceptable reports whether the whole quantity fits under maxSlippagePct.
func (q BookQuote) Acceptable(maxSlippagePct float64) bool {
	return q.Complete && q.SlippagePct < maxSlippagePct
}
