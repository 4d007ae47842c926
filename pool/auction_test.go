package pool

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"poolcore/crypto"
	"poolcore/fixedpoint"
)

func TestCurveFractionsRamp(t *testing.T) {
	half := uint256.NewInt(5_000_000)

	lot, bid := curveFractions(1000, 1000)
	require.True(t, lot.IsZero())
	require.True(t, bid.Eq(fixedpoint.Scalar7))

	lot, bid = curveFractions(1000, 1100) // halfway through the lot ramp
	require.True(t, lot.Eq(half))
	require.True(t, bid.Eq(fixedpoint.Scalar7))

	lot, bid = curveFractions(1000, 1200) // lot saturated, bid starts ramping down
	require.True(t, lot.Eq(fixedpoint.Scalar7))
	require.True(t, bid.Eq(fixedpoint.Scalar7))

	lot, bid = curveFractions(1000, 1300)
	require.True(t, lot.Eq(fixedpoint.Scalar7))
	require.True(t, bid.Eq(half))

	lot, bid = curveFractions(1000, 1400)
	require.True(t, lot.Eq(fixedpoint.Scalar7))
	require.True(t, bid.IsZero())
}

func TestFillPortion(t *testing.T) {
	full := uint256.NewInt(1000)
	require.Equal(t, uint256.NewInt(500), fillPortion(full, 50))
	require.Equal(t, uint256.NewInt(1000), fillPortion(full, 100))
	require.Equal(t, uint256.NewInt(10), fillPortion(full, 1))
}

func TestLiquidationIncentiveFormula(t *testing.T) {
	// Equal risk factors: avg_cf/avg_lf = 1, so the gap term vanishes and the
	// incentive is exactly 1.0x.
	require.Equal(t, fixedpoint.Scalar7, liquidationIncentive(uint256.NewInt(9_000_000), uint256.NewInt(9_000_000)))

	// avg_cf = 0 against a full avg_lf: the gap is the whole unit, so the
	// incentive caps at the 1.5x ceiling implied by the /2 term.
	require.Equal(t, uint256.NewInt(15_000_000), liquidationIncentive(new(uint256.Int), fixedpoint.Scalar7))

	// avg_lf = 0 is degenerate (no liability risk weighting to divide by);
	// falls back to a neutral 1.0x rather than dividing by zero.
	require.Equal(t, fixedpoint.Scalar7, liquidationIncentive(fixedpoint.Scalar7, new(uint256.Int)))
}

func TestRequireSaneLiquidationSizeBand(t *testing.T) {
	rawLiabilityValue := uint256.NewInt(1_000_000)
	avgCf := fixedpoint.Scalar7
	incentive := fixedpoint.Scalar7

	underwater := &PositionData{CollateralBase: uint256.NewInt(1_010_000), LiabilityBase: uint256.NewInt(1_000_000)}

	err := requireSaneLiquidationSize(underwater, avgCf, rawLiabilityValue, incentive, 1)
	require.Error(t, err)
	require.Equal(t, CodeInvalidLiqTooSmall, CodeOf(err))

	require.NoError(t, requireSaneLiquidationSize(underwater, avgCf, rawLiabilityValue, incentive, 70))

	err = requireSaneLiquidationSize(underwater, avgCf, rawLiabilityValue, incentive, 95)
	require.Error(t, err)
	require.Equal(t, CodeInvalidLiqTooLarge, CodeOf(err))

	// Requesting a full (100%) liquidation simulates at 95% instead; here
	// that still overshoots the band, so a full liquidation is rejected too.
	err = requireSaneLiquidationSize(underwater, avgCf, rawLiabilityValue, incentive, 100)
	require.Error(t, err)
	require.Equal(t, CodeInvalidLiqTooLarge, CodeOf(err))

	// A position sitting exactly at par (collateral_base == liability_base)
	// simulates to HF'=1.0 at 95%, comfortably inside the full-liquidation
	// ceiling, so the full liquidation succeeds.
	atPar := &PositionData{CollateralBase: uint256.NewInt(1_000_000), LiabilityBase: uint256.NewInt(1_000_000)}
	require.NoError(t, requireSaneLiquidationSize(atPar, avgCf, rawLiabilityValue, incentive, 100))
}

// stubBackstop is a BackstopView whose PoolData return values are
// configurable, unlike pipeline_test.go's fakeBackstop which always reports
// zero LP tokens. Used to exercise NewBadDebtAuction's coverage-capping path
// against a backstop that is undercapitalized but not empty.
type stubBackstop struct {
	tokens *uint256.Int
	spot   *uint256.Int
}

func (s stubBackstop) PoolData(crypto.Address) (*uint256.Int, *uint256.Int, *uint256.Int, error) {
	return s.tokens, s.spot, new(uint256.Int), nil
}
func (stubBackstop) Draw(crypto.Address, *uint256.Int, crypto.Address) error   { return nil }
func (stubBackstop) Donate(crypto.Address, crypto.Address, *uint256.Int) error { return nil }
func (stubBackstop) BackstopToken() crypto.Address                            { return crypto.Address{} }
func (stubBackstop) TransferBadDebt(crypto.Address, crypto.Address, *uint256.Int) error {
	return nil
}
func (stubBackstop) DrawLPToken(crypto.Address, *uint256.Int, crypto.Address) error { return nil }

func TestFillUserLiquidationRejectsBackstopAsFiller(t *testing.T) {
	p, _, _, _ := newTestPool(t)
	cfg, err := p.Store.GetPoolConfig()
	require.NoError(t, err)

	err = p.Submit(1000, cfg.BackstopAddress, []Request{
		{Type: RequestFillUserLiquidation, Address: testAddr(3), Amount: uint256.NewInt(50)},
	})
	require.Error(t, err)
	require.Equal(t, CodeBadRequest, CodeOf(err))
}

func TestFillBadDebtRejectsBackstopAsFiller(t *testing.T) {
	p, _, _, _ := newTestPool(t)
	cfg, err := p.Store.GetPoolConfig()
	require.NoError(t, err)

	err = p.Submit(1000, cfg.BackstopAddress, []Request{
		{Type: RequestFillBadDebt, Amount: uint256.NewInt(50)},
	})
	require.Error(t, err)
	require.Equal(t, CodeBadRequest, CodeOf(err))
}

func TestFillInterestRejectsBackstopAsFiller(t *testing.T) {
	p, _, _, _ := newTestPool(t)
	cfg, err := p.Store.GetPoolConfig()
	require.NoError(t, err)

	err = p.Submit(1000, cfg.BackstopAddress, []Request{
		{Type: RequestFillInterest, Amount: uint256.NewInt(50)},
	})
	require.Error(t, err)
	require.Equal(t, CodeBadRequest, CodeOf(err))
}

// TestFillUserLiquidationFullFillHandsOffResidualBadDebt covers spec.md
// §4.5's UserLiquidation fill semantics: once an auction's own bid/lot are
// fully consumed, any liability the auction never covered but the liquidatee
// still owes -- with zero collateral left to sell -- becomes the backstop's
// liability rather than being left stranded on an empty auction.
func TestFillUserLiquidationFullFillHandsOffResidualBadDebt(t *testing.T) {
	p, token, _, assetB := newTestPool(t)
	cfg, err := p.Store.GetPoolConfig()
	require.NoError(t, err)

	liquidatee := testAddr(3)
	filler := testAddr(4)

	rb, err := p.Store.GetReserve(1)
	require.NoError(t, err)
	rb.LastTime = 1000
	rb.DSupply = uint256.NewInt(100_000_000)
	rb.BSupply = uint256.NewInt(200_000_000)
	require.NoError(t, p.Store.PutReserve(rb))

	liquidateePos := NewPositions(liquidatee)
	liquidateePos.Liabilities[1] = uint256.NewInt(100_000_000)
	require.NoError(t, p.Store.PutPositions(liquidateePos))

	// The auction only ever put half the liquidatee's debt up for bid; a
	// 100% fill of the auction still leaves the other half owed.
	require.NoError(t, p.Store.PutAuction(&Auction{
		Kind:    AuctionUserLiquidation,
		Subject: liquidatee,
		Bid:     map[uint32]*uint256.Int{1: uint256.NewInt(50_000_000)},
		Lot:     map[uint32]*uint256.Int{},
		Block:   1000,
	}))

	token.setBal(assetB, filler, uint256.NewInt(200_000_000))

	err = p.Submit(1000, filler, []Request{
		{Type: RequestFillUserLiquidation, Address: liquidatee, Amount: uint256.NewInt(100)},
	})
	require.NoError(t, err)

	remaining, err := p.Store.GetAuction(AuctionKey{Kind: AuctionUserLiquidation, Subject: liquidatee})
	require.NoError(t, err)
	require.Nil(t, remaining, "auction should be deleted once its bid/lot are fully filled")

	liquidateeAfter, err := p.Store.GetPositions(liquidatee)
	require.NoError(t, err)
	require.Empty(t, liquidateeAfter.Liabilities, "liquidatee's residual debt should have moved to the backstop")

	backstopAfter, err := p.Store.GetPositions(cfg.BackstopAddress)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(50_000_000), backstopAfter.Liabilities[1])
}

// TestNewBadDebtAuctionCapsBidToBackstopCoverage covers spec.md §4.5's
// BadDebtAuction origination: when the backstop's own LP balance cannot
// cover the full debt at the 1.2x bonus rate, the auction's bid is capped to
// the coverable fraction rather than offering debt no filler could ever be
// paid for.
func TestNewBadDebtAuctionCapsBidToBackstopCoverage(t *testing.T) {
	p, _, _, _ := newTestPool(t)
	cfg, err := p.Store.GetPoolConfig()
	require.NoError(t, err)

	r0, err := p.Store.GetReserve(0)
	require.NoError(t, err)
	r0.LastTime = 1000
	r0.DSupply = uint256.NewInt(8_000_000)
	r0.BSupply = uint256.NewInt(10_000_000)
	require.NoError(t, p.Store.PutReserve(r0))

	r1, err := p.Store.GetReserve(1)
	require.NoError(t, err)
	r1.LastTime = 1000
	r1.DSupply = uint256.NewInt(4_000_000)
	r1.BSupply = uint256.NewInt(6_000_000)
	require.NoError(t, p.Store.PutReserve(r1))

	backstopPos := NewPositions(cfg.BackstopAddress)
	backstopPos.Liabilities[0] = uint256.NewInt(8_000_000)
	backstopPos.Liabilities[1] = uint256.NewInt(4_000_000)
	require.NoError(t, p.Store.PutPositions(backstopPos))

	// needed LP at the 1.2x bonus = 14_400_000/1_200_000 = 12; the backstop
	// only holds 6, so coverage is capped to exactly half the debt.
	p.Backstop = stubBackstop{tokens: uint256.NewInt(6), spot: uint256.NewInt(1_200_000)}

	require.NoError(t, p.NewBadDebtAuction(1000))

	auction, err := p.Store.GetAuction(AuctionKey{Kind: AuctionBadDebt, Subject: cfg.BackstopAddress})
	require.NoError(t, err)
	require.NotNil(t, auction)
	require.Equal(t, uint256.NewInt(4_000_000), auction.Bid[0])
	require.Equal(t, uint256.NewInt(2_000_000), auction.Bid[1])
	require.Equal(t, uint256.NewInt(6), auction.LPToken)
}

// TestFillBadDebtSocializesUncoveredResidual is the S6 scenario end to end:
// a BadDebt auction capped below the backstop's full liability is filled in
// full, and the uncoverable residual is canceled -- d_supply shrinks and
// b_rate is marked down pro-rata on every affected reserve -- rather than
// left stranded on the backstop's position forever.
func TestFillBadDebtSocializesUncoveredResidual(t *testing.T) {
	p, token, assetA, assetB := newTestPool(t)
	cfg, err := p.Store.GetPoolConfig()
	require.NoError(t, err)

	r0, err := p.Store.GetReserve(0)
	require.NoError(t, err)
	r0.LastTime = 1000
	r0.DSupply = uint256.NewInt(8_000_000)
	r0.BSupply = uint256.NewInt(10_000_000)
	require.NoError(t, p.Store.PutReserve(r0))

	r1, err := p.Store.GetReserve(1)
	require.NoError(t, err)
	r1.LastTime = 1000
	r1.DSupply = uint256.NewInt(4_000_000)
	r1.BSupply = uint256.NewInt(6_000_000)
	require.NoError(t, p.Store.PutReserve(r1))

	backstopPos := NewPositions(cfg.BackstopAddress)
	backstopPos.Liabilities[0] = uint256.NewInt(8_000_000)
	backstopPos.Liabilities[1] = uint256.NewInt(4_000_000)
	require.NoError(t, p.Store.PutPositions(backstopPos))

	p.Backstop = stubBackstop{tokens: uint256.NewInt(6), spot: uint256.NewInt(1_200_000)}
	require.NoError(t, p.NewBadDebtAuction(1000))

	filler := testAddr(5)
	token.setBal(assetA, filler, uint256.NewInt(10_000_000))
	token.setBal(assetB, filler, uint256.NewInt(10_000_000))

	err = p.Submit(1000, filler, []Request{
		{Type: RequestFillBadDebt, Amount: uint256.NewInt(100)},
	})
	require.NoError(t, err)

	remaining, err := p.Store.GetAuction(AuctionKey{Kind: AuctionBadDebt, Subject: cfg.BackstopAddress})
	require.NoError(t, err)
	require.Nil(t, remaining, "auction should be deleted once its bid and LP leg are fully filled")

	backstopAfter, err := p.Store.GetPositions(cfg.BackstopAddress)
	require.NoError(t, err)
	require.Empty(t, backstopAfter.Liabilities, "the uncovered residual should be canceled, not left outstanding")

	r0After, err := p.Store.GetReserve(0)
	require.NoError(t, err)
	require.True(t, r0After.DSupply.IsZero())
	require.Equal(t, uint256.NewInt(600_000_000_000), r0After.BRate, "b_rate marked down by the 4_000_000/10_000_000 socialized loss")

	r1After, err := p.Store.GetReserve(1)
	require.NoError(t, err)
	require.True(t, r1After.DSupply.IsZero())
	require.Equal(t, uint256.NewInt(666_666_666_666), r1After.BRate, "b_rate marked down by the 2_000_000/6_000_000 socialized loss")
}
