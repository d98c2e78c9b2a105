package domain

import (
	"fmt"
	"time"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Opposite returns the side that closes a position opened with s.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderKind is the execution style of an order.
type OrderKind string

const (
	OrderKindMarket OrderKind = "market"
	OrderKindLimit  OrderKind = "limit"
)

// OrderIntent records why the control loop created an order.
type OrderIntent string

const (
	IntentEntry  OrderIntent = "entry"
	IntentUnwind OrderIntent = "unwind"
)

// Order is an intent to trade on one venue. Once dispatched only Completed
// and Ref may change.
type Order struct {
	ClientID   string // idempotency key, uuid
	GroupID    string // shared by both legs of one entry or unwind
	Intent     OrderIntent
	Venue      string
	Symbol     string // venue-native symbol
	Side       OrderSide
	Kind       OrderKind
	Quantity   float64
	Price      float64 // 0 for market orders
	ReduceOnly bool
	CloseOnly  bool
	CreatedAt  time.Time

	Completed bool
	Ref       string // venue-assigned order id
}

// Validate checks the invariants every dispatched order must satisfy.
func (o Order) Validate() error {
	if o.ClientID == "" {
		return fmt.Errorf("%w: missing client id", ErrInvalidOrder)
	}
	if o.Venue == "" || o.Symbol == "" {
		return fmt.Errorf("%w: missing venue or symbol", ErrInvalidOrder)
	}
	if o.Side != OrderSideBuy && o.Side != OrderSideSell {
		return fmt.Errorf("%w: side %q", ErrInvalidOrder, o.Side)
	}
	if o.Quantity <= 0 {
		return fmt.Errorf("%w: quantity %v must be > 0", ErrInvalidOrder, o.Quantity)
	}
	switch o.Kind {
	case OrderKindMarket:
		if o.Price != 0 {
			return fmt.Errorf("%w: market order with price %v", ErrInvalidOrder, o.Price)
		}
	case OrderKindLimit:
		if o.Price <= 0 {
			return fmt.Errorf("%w: limit price %v must be > 0", ErrInvalidOrder, o.Price)
		}
	default:
		return fmt.Errorf("%w: kind %q", ErrInvalidOrder, o.Kind)
	}
	return nil
}

// OrderAck is the venue's acknowledgement of a placed order.
type OrderAck struct {
	Ref         string
	FilledQty   float64
	FilledPrice float64
	At          time.Time
}

// DispatchResult is emitted once per dispatched order, whether it succeeded
// or not.
type DispatchResult struct {
	Order Order
	Ack   OrderAck
	Err   error
}

// OK reports whether the venue accepted the order.
func (r DispatchResult) OK() bool { return r.Err == nil }
