package broker

import "errors"

// Failure modes named in spec 4.A.
var (
	// ErrExchangeMissing is fatal to the caller's operation: the broker
	// does not have the exchange the caller addressed.
	ErrExchangeMissing = errors.New("broker: exchange missing")

	// ErrConnectionLost is retried internally; it only reaches a caller
	// after the bounded retry budget is exhausted.
	ErrConnectionLost = errors.New("broker: connection lost")

	// ErrChannelClosed is retried internally up to a bounded attempt count.
	ErrChannelClosed = errors.New("broker: channel closed")
)
