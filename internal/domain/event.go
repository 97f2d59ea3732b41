package domain

// EventPriceUpdate is the event type consumers receive for each quote.
const EventPriceUpdate = "price_update"

// QuoteEvent is the payload delivered to a room.
type QuoteEvent struct {
	Type string `json:"type"`
	Room string `json:"room"`
	Data Quote  `json:"data"`
}

func NewPriceUpdate(room string, q Quote) QuoteEvent {
	return QuoteEvent{Type: EventPriceUpdate, Room: room, Data: q}
}
