package domain

// Direction is the movement of a symbol's price between two published quotes.
type Direction int

const (
	DirectionSame Direction = 0
	DirectionUp   Direction = +1
	DirectionDown Direction = -1
)

// PriceState tracks the last published price of one symbol.
type PriceState struct {
	Number    float64
	HasValue  bool
	Direction Direction
}

// Update records price and reports whether it differs from the previous one.
// Non-positive prices are ignored.
func (ps *PriceState) Update(price float64) bool {
	if price <= 0 {
		return false
	}
	if !ps.HasValue {
		ps.HasValue = true
		ps.Number = price
		ps.Direction = DirectionSame
		return false
	}

	prev := ps.Number
	switch {
	case price > prev:
		ps.Direction = DirectionUp
	case price < prev:
		ps.Direction = DirectionDown
	default:
		ps.Direction = DirectionSame
	}
	ps.Number = price
	return price != prev
}
