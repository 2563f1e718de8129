package domain

// Strategy discriminates the family that produced an opportunity.
type Strategy string

const (
	StrategyFunding      Strategy = "FUNDING"
	StrategyStatArb      Strategy = "STAT_ARB"
	StrategyDeltaNeutral Strategy = "DELTA_NEUTRAL"
	StrategyTriangle     Strategy = "TRIANGLE"
	StrategySpotP2P      Strategy = "SPOT_P2P"
	StrategyCrossFiat    Strategy = "CROSS_FIAT"
)

// AllStrategies lists every strategy family in scan dispatch order.
var AllStrategies = []Strategy{
	StrategyFunding,
	StrategyStatArb,
	StrategyDeltaNeutral,
	StrategyTriangle,
	StrategySpotP2P,
	StrategyCrossFiat,
}

func (s Strategy) String() string { return string(s) }

// Valid reports whether s is one of the six known families.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyFunding, StrategyStatArb, StrategyDeltaNeutral,
		StrategyTriangle, StrategySpotP2P, StrategyCrossFiat:
		return true
	}
	return false
}

// Venue identifies where a leg executes.
type Venue string

const (
	VenueSpot     Venue = "SPOT"
	VenuePerp     Venue = "PERP"
	VenueP2P      Venue = "P2P"
	VenueFiatRail Venue = "FIAT_RAIL"
)

// Action is the operation a leg performs at its venue.
type Action string

const (
	ActionBuy      Action = "BUY"
	ActionSell     Action = "SELL"
	ActionBorrow   Action = "BORROW"
	ActionRepay    Action = "REPAY"
	ActionTransfer Action = "TRANSFER"
)
