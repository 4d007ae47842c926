package pool

import (
	"github.com/holiman/uint256"

	"poolcore/crypto"
	"poolcore/fixedpoint"
)

// curveHalfBlocks is half of AuctionDurationBlocks: the lot leg ramps from 0
// to full value over the first half, the bid leg ramps from full to zero
// over the second half (spec.md §4.5's linear bid/lot price curve).
const curveHalfBlocks = AuctionDurationBlocks / 2

// curveFractions returns the SCALAR_7-scaled lot and bid multipliers for an
// auction created at createdBlock, evaluated at now. At or before
// createdBlock the curve is at its start (lot 0, bid 1.0); past
// AuctionDurationBlocks the lot multiplier saturates at 1.0 and the bid
// multiplier at 0.
func curveFractions(createdBlock, now uint64) (lotFrac, bidFrac *uint256.Int) {
	var elapsed uint64
	if now > createdBlock {
		elapsed = now - createdBlock
	}
	if elapsed >= AuctionDurationBlocks {
		return cloneInt(fixedpoint.Scalar7), new(uint256.Int)
	}
	if elapsed <= curveHalfBlocks {
		lotFrac = fixedpoint.MulFloor(uint256.NewInt(elapsed), fixedpoint.Scalar7, uint256.NewInt(curveHalfBlocks))
		bidFrac = cloneInt(fixedpoint.Scalar7)
		return
	}
	lotFrac = cloneInt(fixedpoint.Scalar7)
	remaining := AuctionDurationBlocks - elapsed
	bidFrac = fixedpoint.MulFloor(uint256.NewInt(remaining), fixedpoint.Scalar7, uint256.NewInt(curveHalfBlocks))
	return
}

// fillPortion returns floor(full * percent / 100), the pre-curve notional
// consumed by a partial fill. percent must already be validated in [1,100].
func fillPortion(full *uint256.Int, percent uint64) *uint256.Int {
	return fixedpoint.MulFloor(full, uint256.NewInt(percent), uint256.NewInt(100))
}

// auctionRemainingEmpty reports whether an auction has nothing left to fill
// on either leg.
func auctionRemainingEmpty(a *Auction) bool {
	for _, v := range a.Bid {
		if !v.IsZero() {
			return false
		}
	}
	for _, v := range a.Lot {
		if !v.IsZero() {
			return false
		}
	}
	return a.LPToken == nil || a.LPToken.IsZero()
}

// minPostLiquidationHF and maxPostLiquidationHF are spec.md §4.5 step 5's
// simulated size-sanity band `(1.03, 1.15)`, SCALAR_7-scaled.
var (
	minPostLiquidationHF = uint256.NewInt(10_300_000)
	maxPostLiquidationHF = uint256.NewInt(11_500_000)
)

// liquidationIncentive implements spec.md §4.5 step 3: `inc = 1 +
// (1 - avg_cf/avg_lf)/2`, where avg_cf and avg_lf are the risk-weighted over
// raw value ratios for the included collateral and liability assets.
func liquidationIncentive(avgCf, avgLf *uint256.Int) *uint256.Int {
	if avgLf.IsZero() {
		return cloneInt(fixedpoint.Scalar7)
	}
	ratio := fixedpoint.MulFloor(avgCf, fixedpoint.Scalar7, avgLf)
	gap := fixedpoint.SaturatingSub(fixedpoint.Scalar7, ratio)
	half := fixedpoint.DivFloor(gap, uint256.NewInt(2))
	return new(uint256.Int).Add(fixedpoint.Scalar7, half)
}

// simulatedPostLiquidationHF estimates the health factor after a liquidation
// of simPercent with the given incentive, assuming liabilities are repaid
// uniformly (spec.md §4.5 step 5) and collateral is withdrawn proportional
// to value (so the weighted value withdrawn is withdrawnRaw*avgCf). Returns
// nil when the simulated liability_base is zero (fully repaid, no ratio).
func simulatedPostLiquidationHF(data *PositionData, avgCf *uint256.Int, rawLiabilityValue, incentive *uint256.Int, simPercent uint64) *uint256.Int {
	newLiabilityBase := fixedpoint.MulFloor(data.LiabilityBase, uint256.NewInt(100-simPercent), uint256.NewInt(100))
	withdrawnRaw := fixedpoint.MulFloor(fixedpoint.MulFloor(rawLiabilityValue, uint256.NewInt(simPercent), uint256.NewInt(100)), incentive, fixedpoint.Scalar7)
	withdrawnBase := fixedpoint.MulFloor(withdrawnRaw, avgCf, fixedpoint.Scalar7)
	newCollateralBase := fixedpoint.SaturatingSub(data.CollateralBase, withdrawnBase)
	if newLiabilityBase.IsZero() {
		return nil
	}
	return fixedpoint.MulFloor(newCollateralBase, fixedpoint.Scalar7, newLiabilityBase)
}

// requireSaneLiquidationSize enforces spec.md §4.5 step 5: simulating the
// fill at the requested percent (or at 95% for a requested full liquidation)
// must land the resulting health factor in `(1.03, 1.15)`. A full
// liquidation (percent > 95) instead only requires the 95% simulation to
// satisfy `HF' <= 1.15`.
func requireSaneLiquidationSize(data *PositionData, avgCf *uint256.Int, rawLiabilityValue, incentive *uint256.Int, percent uint64) error {
	fullLiquidation := percent > 95
	simPercent := percent
	if fullLiquidation {
		simPercent = 95
	}
	hf := simulatedPostLiquidationHF(data, avgCf, rawLiabilityValue, incentive, simPercent)

	if fullLiquidation {
		if hf != nil && hf.Gt(maxPostLiquidationHF) {
			return coded(CodeInvalidLiqTooLarge, ErrInvalidLiqTooLarge)
		}
		return nil
	}
	if hf == nil {
		return nil
	}
	if !hf.Gt(minPostLiquidationHF) {
		return coded(CodeInvalidLiqTooSmall, ErrInvalidLiqTooSmall)
	}
	if !hf.Lt(maxPostLiquidationHF) {
		return coded(CodeInvalidLiqTooLarge, ErrInvalidLiqTooLarge)
	}
	return nil
}

// NewUserLiquidationAuction originates a liquidation auction against an
// unhealthy user (spec.md §4.5). Anyone may call this; it does not move any
// funds itself, it only starts the Dutch-auction clock that FillUserLiquidation
// requests later settle against.
func (p *Pool) NewUserLiquidationAuction(now uint64, liquidatee crypto.Address, percent uint64) error {
	if percent < 1 || percent > 100 {
		return coded(CodeBadRequest, ErrBadRequest)
	}
	existing, err := p.Store.GetAuction(AuctionKey{Kind: AuctionUserLiquidation, Subject: liquidatee})
	if err != nil {
		return err
	}
	if existing != nil {
		return coded(CodeAuctionInProgress, ErrAuctionInProgress)
	}

	cfg, err := p.Store.GetPoolConfig()
	if err != nil {
		return err
	}
	pos, err := p.loadPositions(liquidatee)
	if err != nil {
		return err
	}
	reserves, err := p.loadReservesFor(pos, now, cfg.BstopRate)
	if err != nil {
		return err
	}
	prices := NewPriceCache(p.Oracle)
	data, err := LoadPositionData(pos, reserves, prices)
	if err != nil {
		return err
	}
	if !data.IsHFUnder(fixedpoint.Scalar7) {
		return coded(CodeInvalidLiquidation, ErrInvalidLiquidation)
	}

	// spec.md §4.5 step 2: per-included-asset raw (unweighted) totals, used
	// both for avg_cf/avg_lf and for the est_withdrawn_collateral sizing
	// formula. This pool always includes every reserve a user touches, so
	// "included" here is simply "all".
	owedAssets := map[uint32]*uint256.Int{}
	rawLiabilityValue := new(uint256.Int)
	for idx, shares := range pos.Liabilities {
		if shares.IsZero() {
			continue
		}
		r := reserves[idx]
		owed := ToAssetFromDToken(shares, r.DRate)
		owedAssets[idx] = owed
		price, err := prices.Price(r.Asset)
		if err != nil {
			return err
		}
		value := fixedpoint.MulFloor(owed, price, decimalsScale(r.Config.Decimals))
		rawLiabilityValue = new(uint256.Int).Add(rawLiabilityValue, value)
	}
	if rawLiabilityValue.IsZero() {
		return coded(CodeInvalidLiqTooSmall, ErrInvalidLiqTooSmall)
	}

	collateralValues := map[uint32]*uint256.Int{}
	rawCollateralValue := new(uint256.Int)
	for idx, shares := range pos.Collateral {
		if shares.IsZero() {
			continue
		}
		r := reserves[idx]
		avail := ToAssetFromBToken(shares, r.BRate)
		price, err := prices.Price(r.Asset)
		if err != nil {
			return err
		}
		value := fixedpoint.MulFloor(avail, price, decimalsScale(r.Config.Decimals))
		collateralValues[idx] = value
		rawCollateralValue = new(uint256.Int).Add(rawCollateralValue, value)
	}
	if rawCollateralValue.IsZero() {
		return coded(CodeInvalidLiquidation, ErrInvalidLiquidation)
	}

	avgCf := fixedpoint.MulFloor(data.CollateralBase, fixedpoint.Scalar7, rawCollateralValue)
	avgLf := fixedpoint.MulFloor(data.LiabilityBase, fixedpoint.Scalar7, rawLiabilityValue)
	incentive := liquidationIncentive(avgCf, avgLf)
	if err := requireSaneLiquidationSize(data, avgCf, rawLiabilityValue, incentive, percent); err != nil {
		return err
	}

	auction := &Auction{
		Kind:    AuctionUserLiquidation,
		Subject: liquidatee,
		Bid:     map[uint32]*uint256.Int{},
		Lot:     map[uint32]*uint256.Int{},
		Block:   now,
	}

	totalBidValue := new(uint256.Int)
	for idx, owed := range owedAssets {
		amt := fillPortion(owed, percent)
		if amt.IsZero() {
			continue
		}
		auction.Bid[idx] = amt
		r := reserves[idx]
		price, err := prices.Price(r.Asset)
		if err != nil {
			return err
		}
		value := fixedpoint.MulFloor(amt, price, decimalsScale(r.Config.Decimals))
		totalBidValue = new(uint256.Int).Add(totalBidValue, value)
	}
	if len(auction.Bid) == 0 {
		return coded(CodeInvalidLiqTooSmall, ErrInvalidLiqTooSmall)
	}

	totalLotValue := fixedpoint.MulFloor(totalBidValue, incentive, fixedpoint.Scalar7)
	for idx, value := range collateralValues {
		r := reserves[idx]
		shareOfLot := fixedpoint.MulFloor(totalLotValue, value, rawCollateralValue)
		price, err := prices.Price(r.Asset)
		if err != nil {
			return err
		}
		lotAmt := fixedpoint.DivFloor(new(uint256.Int).Mul(shareOfLot, decimalsScale(r.Config.Decimals)), price)
		avail := ToAssetFromBToken(nonZero(pos.Collateral, idx), r.BRate)
		lotAmt = fixedpoint.Min(lotAmt, avail)
		if !lotAmt.IsZero() {
			auction.Lot[idx] = lotAmt
		}
	}

	return p.Store.PutAuction(auction)
}

// NewBadDebtAuction originates a BadDebt auction against the backstop's own
// inherited liabilities (spec.md §4.5/§4.6). cfg.BackstopAddress's position
// ledger is used as the bad-debt ledger.
func (p *Pool) NewBadDebtAuction(now uint64) error {
	cfg, err := p.Store.GetPoolConfig()
	if err != nil {
		return err
	}
	existing, err := p.Store.GetAuction(AuctionKey{Kind: AuctionBadDebt, Subject: cfg.BackstopAddress})
	if err != nil {
		return err
	}
	if existing != nil {
		return coded(CodeAuctionInProgress, ErrAuctionInProgress)
	}
	pos, err := p.loadPositions(cfg.BackstopAddress)
	if err != nil {
		return err
	}
	hasDebt := false
	for _, v := range pos.Liabilities {
		if !v.IsZero() {
			hasDebt = true
			break
		}
	}
	if !hasDebt {
		return coded(CodeInvalidLiquidation, ErrInvalidLiquidation)
	}
	reserves, err := p.loadReservesFor(pos, now, cfg.BstopRate)
	if err != nil {
		return err
	}
	prices := NewPriceCache(p.Oracle)

	auction := &Auction{Kind: AuctionBadDebt, Subject: cfg.BackstopAddress, Bid: map[uint32]*uint256.Int{}, Lot: map[uint32]*uint256.Int{}, Block: now}
	owed := map[uint32]*uint256.Int{}
	totalValue := new(uint256.Int)
	for idx, shares := range pos.Liabilities {
		if shares.IsZero() {
			continue
		}
		r := reserves[idx]
		amt := ToAssetFromDToken(shares, r.DRate)
		owed[idx] = amt
		price, err := prices.Price(r.Asset)
		if err != nil {
			return err
		}
		value := fixedpoint.MulFloor(amt, price, decimalsScale(r.Config.Decimals))
		totalValue = new(uint256.Int).Add(totalValue, value)
	}

	backstopTokens, spot, _, err := p.Backstop.PoolData(p.Address)
	if err != nil {
		return err
	}
	auction.LPToken = new(uint256.Int)
	// coverageFrac tracks what fraction of the debt the backstop's LP
	// balance can actually cover at the 1.2x bonus rate; when it is short,
	// the bid is capped to that fraction and the uncovered remainder is left
	// on the backstop's position (spec.md §4.5 BadDebtAuction / §8 S6) for
	// fillBadDebt to socialize once this (smaller) auction fully fills.
	coverageFrac := cloneInt(fixedpoint.Scalar7)
	if !spot.IsZero() && !totalValue.IsZero() {
		bonusValue := fixedpoint.MulBpsFloor(totalValue, 12_000)
		needed := fixedpoint.DivFloor(bonusValue, spot)
		auction.LPToken = fixedpoint.Min(needed, backstopTokens)
		if auction.LPToken.Lt(needed) {
			coveredValue := fixedpoint.MulFloor(new(uint256.Int).Mul(auction.LPToken, spot), uint256.NewInt(5), uint256.NewInt(6))
			coverageFrac = fixedpoint.MulFloor(coveredValue, fixedpoint.Scalar7, totalValue)
			if coverageFrac.Gt(fixedpoint.Scalar7) {
				coverageFrac = cloneInt(fixedpoint.Scalar7)
			}
		}
	}
	for idx, amt := range owed {
		bid := amt
		if coverageFrac.Lt(fixedpoint.Scalar7) {
			bid = fixedpoint.MulFloor(amt, coverageFrac, fixedpoint.Scalar7)
		}
		if !bid.IsZero() {
			auction.Bid[idx] = bid
		}
	}
	return p.Store.PutAuction(auction)
}

// NewInterestAuction originates an Interest auction over the accrued,
// unclaimed backstop_credit across the named reserves (spec.md §4.5/§4.6).
func (p *Pool) NewInterestAuction(now uint64, reserveIdxs []uint32) error {
	cfg, err := p.Store.GetPoolConfig()
	if err != nil {
		return err
	}
	existing, err := p.Store.GetAuction(AuctionKey{Kind: AuctionInterest, Subject: cfg.BackstopAddress})
	if err != nil {
		return err
	}
	if existing != nil {
		return coded(CodeAuctionInProgress, ErrAuctionInProgress)
	}
	prices := NewPriceCache(p.Oracle)
	auction := &Auction{Kind: AuctionInterest, Subject: cfg.BackstopAddress, Bid: map[uint32]*uint256.Int{}, Lot: map[uint32]*uint256.Int{}, Block: now}
	totalValue := new(uint256.Int)
	for _, idx := range reserveIdxs {
		r, err := p.loadReserve(idx, now, cfg.BstopRate)
		if err != nil {
			return err
		}
		if r.BackstopCredit.IsZero() {
			continue
		}
		auction.Lot[idx] = cloneInt(r.BackstopCredit)
		price, err := prices.Price(r.Asset)
		if err != nil {
			return err
		}
		value := fixedpoint.MulFloor(r.BackstopCredit, price, decimalsScale(r.Config.Decimals))
		totalValue = new(uint256.Int).Add(totalValue, value)
	}
	if len(auction.Lot) == 0 {
		return coded(CodeInterestTooSmall, ErrInterestTooSmall)
	}
	_, spot, _, err := p.Backstop.PoolData(p.Address)
	if err != nil {
		return err
	}
	auction.LPToken = new(uint256.Int)
	if !spot.IsZero() {
		auction.LPToken = fixedpoint.DivFloor(totalValue, spot)
	}
	return p.Store.PutAuction(auction)
}

// fillUserLiquidation settles percent% of an in-progress UserLiquidation
// auction: the filler repays a slice of the liquidatee's debt and receives a
// curve-adjusted slice of their collateral as their own new collateral.
func (p *Pool) fillUserLiquidation(now uint64, filler crypto.Address, req Request, cfg PoolConfig,
	getReserve func(uint32) (*Reserve, error), getPositions func(crypto.Address) (*Positions, error),
	acc *batchAccumulator) error {

	if filler == cfg.BackstopAddress {
		return coded(CodeBadRequest, ErrBadRequest)
	}
	percent := req.Amount.Uint64()
	if percent < 1 || percent > 100 {
		return coded(CodeBadRequest, ErrBadRequest)
	}
	liquidatee := req.Address
	auction, err := p.Store.GetAuction(AuctionKey{Kind: AuctionUserLiquidation, Subject: liquidatee})
	if err != nil {
		return err
	}
	if auction == nil {
		return coded(CodeInvalidLiquidation, ErrNoSuchAuction)
	}
	liquidateePos, err := getPositions(liquidatee)
	if err != nil {
		return err
	}
	fillerPos, err := getPositions(filler)
	if err != nil {
		return err
	}
	lotFrac, bidFrac := curveFractions(auction.Block, now)

	for idx, fullBid := range auction.Bid {
		portion := fillPortion(fullBid, percent)
		if portion.IsZero() {
			continue
		}
		r, err := getReserve(idx)
		if err != nil {
			return err
		}
		paid := fixedpoint.MulFloor(portion, bidFrac, fixedpoint.Scalar7)
		owedShares := nonZero(liquidateePos.Liabilities, idx)
		dShares := fixedpoint.Min(ToDTokenDownRepay(paid, r.DRate), owedShares)
		RemoveLiabilities(r, liquidateePos, dShares)
		acc.spenderTransfer(r.Asset, filler, paid)
		auction.Bid[idx] = fixedpoint.SaturatingSub(fullBid, portion)
		acc.touchReserve(idx)
	}
	for idx, fullLot := range auction.Lot {
		portion := fillPortion(fullLot, percent)
		if portion.IsZero() {
			continue
		}
		r, err := getReserve(idx)
		if err != nil {
			return err
		}
		received := fixedpoint.MulFloor(portion, lotFrac, fixedpoint.Scalar7)
		bal := nonZero(liquidateePos.Collateral, idx)
		shares := fixedpoint.Min(ToBTokenUp(received, r.BRate), bal)
		RemoveCollateral(r, liquidateePos, shares)
		AddCollateral(r, fillerPos, shares)
		auction.Lot[idx] = fixedpoint.SaturatingSub(fullLot, portion)
		acc.touchReserve(idx)
	}

	acc.requirePositionCheck(filler)
	acc.requirePositionCheck(liquidatee)

	if auctionRemainingEmpty(auction) {
		if err := p.handOffBadDebt(liquidatee, liquidateePos, cfg, getReserve, getPositions, acc); err != nil {
			return err
		}
		return p.Store.DeleteAuction(AuctionKey{Kind: AuctionUserLiquidation, Subject: liquidatee})
	}
	return p.Store.PutAuction(auction)
}

// handOffBadDebt implements spec.md §4.5 UserLiquidation fill semantics: on
// full fill, if the liquidatee has no collateral left but liabilities
// remain, those residual liabilities become the backstop's liabilities. The
// debt shares themselves move (RemoveLiabilities+AddLiabilities nets to no
// change in any reserve's d_supply); TransferBadDebt only records the
// handoff for the backstop's own bookkeeping.
func (p *Pool) handOffBadDebt(liquidatee crypto.Address, liquidateePos *Positions, cfg PoolConfig,
	getReserve func(uint32) (*Reserve, error), getPositions func(crypto.Address) (*Positions, error),
	acc *batchAccumulator) error {

	for _, shares := range liquidateePos.Collateral {
		if !shares.IsZero() {
			return nil
		}
	}
	idxs := make([]uint32, 0, len(liquidateePos.Liabilities))
	for idx, shares := range liquidateePos.Liabilities {
		if !shares.IsZero() {
			idxs = append(idxs, idx)
		}
	}
	if len(idxs) == 0 {
		return nil
	}
	if liquidatee == cfg.BackstopAddress {
		return nil
	}
	backstopPos, err := getPositions(cfg.BackstopAddress)
	if err != nil {
		return err
	}
	for _, idx := range idxs {
		shares := nonZero(liquidateePos.Liabilities, idx)
		if shares.IsZero() {
			continue
		}
		r, err := getReserve(idx)
		if err != nil {
			return err
		}
		amount := ToAssetFromDToken(shares, r.DRate)
		RemoveLiabilities(r, liquidateePos, shares)
		AddLiabilities(r, backstopPos, shares)
		if err := p.Backstop.TransferBadDebt(p.Address, r.Asset, amount); err != nil {
			return err
		}
		acc.touchReserve(idx)
	}
	return nil
}

// fillBadDebt settles percent% of an in-progress BadDebt auction: the
// filler repays a slice of the backstop's inherited liabilities and is paid
// in backstop LP tokens.
func (p *Pool) fillBadDebt(now uint64, filler crypto.Address, req Request, cfg PoolConfig,
	getReserve func(uint32) (*Reserve, error), getPositions func(crypto.Address) (*Positions, error),
	acc *batchAccumulator) error {

	if filler == cfg.BackstopAddress {
		return coded(CodeBadRequest, ErrBadRequest)
	}
	percent := req.Amount.Uint64()
	if percent < 1 || percent > 100 {
		return coded(CodeBadRequest, ErrBadRequest)
	}
	auction, err := p.Store.GetAuction(AuctionKey{Kind: AuctionBadDebt, Subject: cfg.BackstopAddress})
	if err != nil {
		return err
	}
	if auction == nil {
		return coded(CodeInvalidLiquidation, ErrNoSuchAuction)
	}
	backstopPos, err := getPositions(cfg.BackstopAddress)
	if err != nil {
		return err
	}
	_, bidFrac := curveFractions(auction.Block, now)

	for idx, fullBid := range auction.Bid {
		portion := fillPortion(fullBid, percent)
		if portion.IsZero() {
			continue
		}
		r, err := getReserve(idx)
		if err != nil {
			return err
		}
		paid := fixedpoint.MulFloor(portion, bidFrac, fixedpoint.Scalar7)
		owedShares := nonZero(backstopPos.Liabilities, idx)
		dShares := fixedpoint.Min(ToDTokenDownRepay(paid, r.DRate), owedShares)
		RemoveLiabilities(r, backstopPos, dShares)
		acc.spenderTransfer(r.Asset, filler, paid)
		auction.Bid[idx] = fixedpoint.SaturatingSub(fullBid, portion)
		acc.touchReserve(idx)
	}
	if auction.LPToken != nil && !auction.LPToken.IsZero() {
		lotFrac, _ := curveFractions(auction.Block, now)
		portion := fillPortion(auction.LPToken, percent)
		received := fixedpoint.MulFloor(portion, lotFrac, fixedpoint.Scalar7)
		acc.draw(filler, received)
		auction.LPToken = fixedpoint.SaturatingSub(auction.LPToken, portion)
	}

	if auctionRemainingEmpty(auction) {
		if err := p.socializeBadDebt(backstopPos, getReserve, acc); err != nil {
			return err
		}
		return p.Store.DeleteAuction(AuctionKey{Kind: AuctionBadDebt, Subject: cfg.BackstopAddress})
	}
	return p.Store.PutAuction(auction)
}

// socializeBadDebt implements spec.md §4.5 BadDebtAuction / §8 S6: once a
// BadDebt auction's bid (capped to what the backstop's LP could ever cover)
// is fully filled, any liabilities still left on the backstop's position
// were never auctionable and are uncollectable. They're canceled outright —
// the corresponding d_supply shrinks and each affected reserve's b_rate is
// reduced pro-rata so existing b-token holders absorb the loss.
func (p *Pool) socializeBadDebt(backstopPos *Positions, getReserve func(uint32) (*Reserve, error), acc *batchAccumulator) error {
	idxs := make([]uint32, 0, len(backstopPos.Liabilities))
	for idx, shares := range backstopPos.Liabilities {
		if !shares.IsZero() {
			idxs = append(idxs, idx)
		}
	}
	for _, idx := range idxs {
		shares := nonZero(backstopPos.Liabilities, idx)
		if shares.IsZero() {
			continue
		}
		r, err := getReserve(idx)
		if err != nil {
			return err
		}
		loss := ToAssetFromDToken(shares, r.DRate)
		RemoveLiabilities(r, backstopPos, shares)
		totalBefore := r.TotalSupply()
		if !totalBefore.IsZero() {
			totalAfter := fixedpoint.SaturatingSub(totalBefore, loss)
			r.BRate = fixedpoint.MulFloor(r.BRate, totalAfter, totalBefore)
		}
		acc.touchReserve(idx)
	}
	return nil
}

// fillInterest settles percent% of an in-progress Interest auction: the
// filler donates backstop LP tokens and is paid a slice of the reserves'
// accrued backstop_credit.
func (p *Pool) fillInterest(now uint64, filler crypto.Address, req Request, cfg PoolConfig,
	getReserve func(uint32) (*Reserve, error), acc *batchAccumulator) error {

	if filler == cfg.BackstopAddress {
		return coded(CodeBadRequest, ErrBadRequest)
	}
	percent := req.Amount.Uint64()
	if percent < 1 || percent > 100 {
		return coded(CodeBadRequest, ErrBadRequest)
	}
	auction, err := p.Store.GetAuction(AuctionKey{Kind: AuctionInterest, Subject: cfg.BackstopAddress})
	if err != nil {
		return err
	}
	if auction == nil {
		return coded(CodeInvalidLiquidation, ErrNoSuchAuction)
	}
	lotFrac, bidFrac := curveFractions(auction.Block, now)

	if auction.LPToken != nil && !auction.LPToken.IsZero() {
		portion := fillPortion(auction.LPToken, percent)
		owed := fixedpoint.MulFloor(portion, bidFrac, fixedpoint.Scalar7)
		acc.donate(filler, owed)
		auction.LPToken = fixedpoint.SaturatingSub(auction.LPToken, portion)
	}
	for idx, fullLot := range auction.Lot {
		portion := fillPortion(fullLot, percent)
		if portion.IsZero() {
			continue
		}
		r, err := getReserve(idx)
		if err != nil {
			return err
		}
		received := fixedpoint.MulFloor(portion, lotFrac, fixedpoint.Scalar7)
		r.BackstopCredit = fixedpoint.SaturatingSub(r.BackstopCredit, received)
		acc.poolTransfer(r.Asset, filler, received)
		auction.Lot[idx] = fixedpoint.SaturatingSub(fullLot, portion)
		acc.touchReserve(idx)
	}

	if auctionRemainingEmpty(auction) {
		return p.Store.DeleteAuction(AuctionKey{Kind: AuctionInterest, Subject: cfg.BackstopAddress})
	}
	return p.Store.PutAuction(auction)
}

// deleteLiquidationAuction cancels a UserLiquidation auction once the
// subject's health has recovered above the 1.0 threshold without being
// liquidated (e.g. a direct repay elsewhere), per spec.md §4.5.
func (p *Pool) deleteLiquidationAuction(now uint64, req Request, cfg PoolConfig,
	getReserve func(uint32) (*Reserve, error), getPositions func(crypto.Address) (*Positions, error),
	prices *PriceCache) error {

	subject := req.Address
	auction, err := p.Store.GetAuction(AuctionKey{Kind: AuctionUserLiquidation, Subject: subject})
	if err != nil {
		return err
	}
	if auction == nil {
		return coded(CodeInvalidLiquidation, ErrNoSuchAuction)
	}
	pos, err := getPositions(subject)
	if err != nil {
		return err
	}
	reserves, err := p.loadReservesForAccrued(pos, now, cfg.BstopRate, getReserve)
	if err != nil {
		return err
	}
	data, err := LoadPositionData(pos, reserves, prices)
	if err != nil {
		return err
	}
	if data.IsHFUnder(fixedpoint.Scalar7) {
		return coded(CodeInvalidLiquidation, ErrInvalidLiquidation)
	}
	return p.Store.DeleteAuction(AuctionKey{Kind: AuctionUserLiquidation, Subject: subject})
}

// loadReservesForAccrued is loadReservesFor, but routes reserve loads
// through an already-open batch's getReserve cache instead of hitting the
// store directly.
func (p *Pool) loadReservesForAccrued(pos *Positions, now uint64, bstopRate *uint256.Int, getReserve func(uint32) (*Reserve, error)) (map[uint32]*Reserve, error) {
	out := map[uint32]*Reserve{}
	add := func(idx uint32) error {
		if _, ok := out[idx]; ok {
			return nil
		}
		r, err := getReserve(idx)
		if err != nil {
			return err
		}
		out[idx] = r
		return nil
	}
	for idx := range pos.Collateral {
		if err := add(idx); err != nil {
			return nil, err
		}
	}
	for idx := range pos.Liabilities {
		if err := add(idx); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// loadReservesFor accrues and returns every reserve referenced by pos's
// collateral, liability, or supply maps.
func (p *Pool) loadReservesFor(pos *Positions, now uint64, bstopRate *uint256.Int) (map[uint32]*Reserve, error) {
	out := map[uint32]*Reserve{}
	for idx := range pos.Collateral {
		if _, ok := out[idx]; ok {
			continue
		}
		r, err := p.loadReserve(idx, now, bstopRate)
		if err != nil {
			return nil, err
		}
		out[idx] = r
	}
	for idx := range pos.Liabilities {
		if _, ok := out[idx]; ok {
			continue
		}
		r, err := p.loadReserve(idx, now, bstopRate)
		if err != nil {
			return nil, err
		}
		out[idx] = r
	}
	for idx := range pos.Supply {
		if _, ok := out[idx]; ok {
			continue
		}
		r, err := p.loadReserve(idx, now, bstopRate)
		if err != nil {
			return nil, err
		}
		out[idx] = r
	}
	return out, nil
}
