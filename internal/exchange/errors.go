package exchange

import "fmt"

// ErrorKind classifies exchange failures at the client boundary so that
// callers never inspect message text to decide retry behavior.
type ErrorKind uint8

const (
	KindUnknown ErrorKind = iota
	KindInsufficientBalance
	KindInvalidMarket
	KindMarketClosed
	KindInvalidPrice
	KindRateLimited
	KindTimeout
	KindConnection
)

func (k ErrorKind) String() string {
	switch k {
	case KindInsufficientBalance:
		return "insufficient_balance"
	case KindInvalidMarket:
		return "invalid_market"
	case KindMarketClosed:
		return "market_closed"
	case KindInvalidPrice:
		return "invalid_price"
	case KindRateLimited:
		return "rate_limited"
	case KindTimeout:
		return "timeout"
	case KindConnection:
		return "connection"
	default:
		return "unknown"
	}
}

// Retryable reports whether a failure of this kind may succeed on a
// later attempt. Business rejections never do.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindInsufficientBalance, KindInvalidMarket, KindMarketClosed, KindInvalidPrice:
		return false
	default:
		return true
	}
}

// Error is a classified exchange failure.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError builds a classified exchange error.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// KindOf extracts the classification from an error chain. Unclassified
// errors are treated as KindUnknown, which is retryable.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	for {
		if ee, ok := err.(*Error); ok {
			return ee.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return KindUnknown
		}
		err = u.Unwrap()
		if err == nil {
			return KindUnknown
		}
	}
}
