package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrUnknownSymbol = errors.New("unknown symbol")
	ErrInvalidOrder  = errors.New("invalid order parameters")
	ErrInvalidPrice  = errors.New("invalid price")
	ErrStaleData     = errors.New("stale market data")
	ErrWSDisconnect  = errors.New("websocket disconnected")
	ErrTradingHalted = errors.New("trading halted")
	ErrLockHeld      = errors.New("lock already held")
	ErrNotAlive      = errors.New("not alive")
	// ErrRestartRequired rejects a hot reload that changes the venue pair.
	ErrRestartRequired = errors.New("change requires restart")
)
