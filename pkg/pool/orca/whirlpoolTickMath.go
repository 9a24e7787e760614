package orca

import (
	"fmt"
	"math"

	"github.com/holiman/uint256"
	"lukechampine.com/uint128"
)

// Positive ticks multiply Q96 factors 1.0001^(2^i/2) and drop 32 bits at the end.
var positiveTickFactors = [19]*uint256.Int{
	uint256.MustFromDecimal("79232123823359799118286999567"),
	uint256.MustFromDecimal("79236085330515764027303304731"),
	uint256.MustFromDecimal("79244008939048815603706035061"),
	uint256.MustFromDecimal("79259858533276714757314932305"),
	uint256.MustFromDecimal("79291567232598584799939703904"),
	uint256.MustFromDecimal("79355022692464371645785046466"),
	uint256.MustFromDecimal("79482085999252804386437311141"),
	uint256.MustFromDecimal("79736823300114093921829183326"),
	uint256.MustFromDecimal("80248749790819932309965073892"),
	uint256.MustFromDecimal("81282483887344747381513967011"),
	uint256.MustFromDecimal("83390072131320151908154831281"),
	uint256.MustFromDecimal("87770609709833776024991924138"),
	uint256.MustFromDecimal("97234110755111693312479820773"),
	uint256.MustFromDecimal("119332217159966728226237229890"),
	uint256.MustFromDecimal("179736315981702064433883588727"),
	uint256.MustFromDecimal("407748233172238350107850275304"),
	uint256.MustFromDecimal("2098478828474011932436660412517"),
	uint256.MustFromDecimal("55581415166113811149459800483533"),
	uint256.MustFromDecimal("38992368544603139932233054999993551"),
}

// Negative ticks multiply Q64 factors 1.0001^(-2^i/2).
var negativeTickFactors = [19]*uint256.Int{
	uint256.MustFromDecimal("18445821805675392311"),
	uint256.MustFromDecimal("18444899583751176498"),
	uint256.MustFromDecimal("18443055278223354162"),
	uint256.MustFromDecimal("18439367220385604838"),
	uint256.MustFromDecimal("18431993317065449817"),
	uint256.MustFromDecimal("18417254355718160513"),
	uint256.MustFromDecimal("18387811781193591352"),
	uint256.MustFromDecimal("18329067761203520168"),
	uint256.MustFromDecimal("18212142134806087854"),
	uint256.MustFromDecimal("17980523815641551639"),
	uint256.MustFromDecimal("17526086738831147013"),
	uint256.MustFromDecimal("16651378430235024244"),
	uint256.MustFromDecimal("15030750278693429944"),
	uint256.MustFromDecimal("12247334978882834399"),
	uint256.MustFromDecimal("8131365268884726200"),
	uint256.MustFromDecimal("3584323654723342297"),
	uint256.MustFromDecimal("696457651847595233"),
	uint256.MustFromDecimal("26294789957452057"),
	uint256.MustFromDecimal("37481735321082"),
}

// SqrtPriceFromTickIndex returns sqrt(1.0001^tick) as Q64.64, bit-exact with the on-chain program.
func SqrtPriceFromTickIndex(tick int32) (uint128.Uint128, error) {
	if tick < MIN_TICK || tick > MAX_TICK {
		return uint128.Zero, fmt.Errorf("%w: %d", ErrInvalidTickIndex, tick)
	}
	if tick >= 0 {
		return sqrtPricePositiveTick(uint32(tick)), nil
	}
	return sqrtPriceNegativeTick(uint32(-tick)), nil
}

func sqrtPricePositiveTick(tick uint32) uint128.Uint128 {
	ratio := new(uint256.Int).Lsh(uint256.NewInt(1), 96)
	if tick&1 != 0 {
		ratio.Set(positiveTickFactors[0])
	}
	for i := 1; i < len(positiveTickFactors); i++ {
		if tick&(1<<i) != 0 {
			ratio.Mul(ratio, positiveTickFactors[i])
			ratio.Rsh(ratio, 96)
		}
	}
	ratio.Rsh(ratio, 32)
	return uint128.New(ratio[0], ratio[1])
}

func sqrtPriceNegativeTick(tick uint32) uint128.Uint128 {
	ratio := new(uint256.Int).Lsh(uint256.NewInt(1), 64)
	if tick&1 != 0 {
		ratio.Set(negativeTickFactors[0])
	}
	for i := 1; i < len(negativeTickFactors); i++ {
		if tick&(1<<i) != 0 {
			ratio.Mul(ratio, negativeTickFactors[i])
			ratio.Rsh(ratio, 64)
		}
	}
	return uint128.New(ratio[0], ratio[1])
}

// TickIndexFromSqrtPrice returns the greatest tick whose sqrt price does not exceed sqrtPrice.
func TickIndexFromSqrtPrice(sqrtPrice uint128.Uint128) (int32, error) {
	if sqrtPrice.Cmp(MIN_SQRT_PRICE_X64) < 0 || sqrtPrice.Cmp(MAX_SQRT_PRICE_X64) > 0 {
		return 0, fmt.Errorf("%w: %s", ErrSqrtPriceOutOfBounds, sqrtPrice)
	}
	lo, hi := int32(MIN_TICK), int32(MAX_TICK)
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		p, _ := SqrtPriceFromTickIndex(mid)
		if p.Cmp(sqrtPrice) <= 0 {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo, nil
}

// GetInitializableTickIndex snaps tick to a multiple of tickSpacing, toward negative infinity
// unless roundUp is set.
func GetInitializableTickIndex(tick int32, tickSpacing uint16, roundUp bool) int32 {
	spacing := int32(tickSpacing)
	snapped := floorDivision(tick, spacing) * spacing
	if roundUp && snapped != tick {
		snapped += spacing
	}
	return snapped
}

// IsInitializableTick reports whether tick lies on the pool's spacing grid and inside bounds.
func IsInitializableTick(tick int32, tickSpacing uint16) bool {
	if tick < MIN_TICK || tick > MAX_TICK || tickSpacing == 0 {
		return false
	}
	return tick%int32(tickSpacing) == 0
}

// TickOffsetForPriceRatio converts a price multiplier into a tick distance, rounded away from zero.
func TickOffsetForPriceRatio(ratio float64) int32 {
	offset := math.Log(ratio) / math.Log(1.0001)
	if offset < 0 {
		return int32(math.Floor(offset))
	}
	return int32(math.Ceil(offset))
}
