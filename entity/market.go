package entity

type Level struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// OrderBook levels are best first.
type OrderBook struct {
	Bids []Level `json:"bids"`
	Asks []Level `json:"asks"`
}

type FeeRate struct {
	Maker float64 `json:"maker"`
	Taker float64 `json:"taker"`
}

// SymbolRules holds the exchange precision filters as decimal strings.
type SymbolRules struct {
	StepSize    string `json:"step_size"`
	MinQuantity string `json:"min_quantity"`
	TickSize    string `json:"tick_size"`
}
