package schema

// ParseSide maps a stored side string back to its enum.
func ParseSide(s string) Side {
	switch s {
	case "BUY":
		return SideBuy
	case "SELL":
		return SideSell
	default:
		return SideUnknown
	}
}

// ParseOrderKind maps a stored kind string back to its enum.
func ParseOrderKind(s string) OrderKind {
	switch s {
	case "LIMIT":
		return OrderKindLimit
	case "MARKET":
		return OrderKindMarket
	default:
		return OrderKindUnknown
	}
}
