package draw

// Prize levels. Zero means no prize.
const (
	NoPrize     = 0
	FirstPrize  = 1
	SecondPrize = 2
	ThirdPrize  = 3
	FourthPrize = 4
	FifthPrize  = 5
	SixthPrize  = 6
)

// EntryCost is the price of one entry at multiplier 1.
const EntryCost = 2

// PrizeLevel scores a pick against a published result.
func PrizeLevel(pick, result Numbers) int {
	reds := pick.RedMatches(result)
	blue := pick.Blue == result.Blue
	switch {
	case reds == 6 && blue:
		return FirstPrize
	case reds == 6:
		return SecondPrize
	case reds == 5 && blue:
		return ThirdPrize
	case reds == 5, reds == 4 && blue:
		return FourthPrize
	case reds == 4, reds == 3 && blue:
		return FifthPrize
	case blue:
		return SixthPrize
	default:
		return NoPrize
	}
}

// PrizeAmount is the nominal payout for a level at multiplier 1. The first
// two tiers are pool-based; the figures used here are their usual caps.
func PrizeAmount(level int) int64 {
	switch level {
	case FirstPrize:
		return 10_000_000
	case SecondPrize:
		return 200_000
	case ThirdPrize:
		return 3000
	case FourthPrize:
		return 200
	case FifthPrize:
		return 10
	case SixthPrize:
		return 5
	default:
		return 0
	}
}

// PrizeName describes a level for display.
func PrizeName(level int) string {
	switch level {
	case FirstPrize:
		return "first"
	case SecondPrize:
		return "second"
	case ThirdPrize:
		return "third"
	case FourthPrize:
		return "fourth"
	case FifthPrize:
		return "fifth"
	case SixthPrize:
		return "sixth"
	default:
		return "none"
	}
}
