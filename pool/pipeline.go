package pool

import (
	"github.com/holiman/uint256"

	"poolcore/crypto"
	"poolcore/fixedpoint"
)

// AmountAll is the sentinel withdrawal/repay amount meaning "as much as the
// position holds", matching the teacher's pattern of a reserved max value
// standing in for "all" rather than requiring callers to look their own
// balance up first.
var AmountAll = new(uint256.Int).Not(new(uint256.Int))

// Submit processes a batch of requests from one caller atomically (spec.md
// §4.4): every request mutates an in-memory working set, end-of-batch
// validation runs once all requests have applied, and only on success are
// reserves, positions, and auctions committed and transfers executed.
func (p *Pool) Submit(now uint64, from crypto.Address, requests []Request) error {
	cfg, err := p.Store.GetPoolConfig()
	if err != nil {
		return err
	}
	if cfg.Status == PoolStatusFrozen || cfg.Status == PoolStatusAdminFrozen {
		return coded(CodePoolDisabled, ErrPoolDisabled)
	}

	reserves := map[uint32]*Reserve{}
	positionsByOwner := map[crypto.Address]*Positions{}
	acc := newBatchAccumulator()
	prices := NewPriceCache(p.Oracle)

	getReserve := func(idx uint32) (*Reserve, error) {
		if r, ok := reserves[idx]; ok {
			return r, nil
		}
		r, err := p.loadReserve(idx, now, cfg.BstopRate)
		if err != nil {
			return nil, err
		}
		reserves[idx] = r
		return r, nil
	}
	getReserveByAsset := func(asset crypto.Address) (*Reserve, error) {
		idx, ok, err := p.Store.GetReserveIndexByAsset(asset)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, coded(CodeInvalidReserveMeta, ErrNoSuchReserve)
		}
		return getReserve(idx)
	}
	getPositions := func(owner crypto.Address) (*Positions, error) {
		if pos, ok := positionsByOwner[owner]; ok {
			return pos, nil
		}
		pos, err := p.loadPositions(owner)
		if err != nil {
			return nil, err
		}
		positionsByOwner[owner] = pos
		return pos, nil
	}

	fromPos, err := getPositions(from)
	if err != nil {
		return err
	}

	for _, req := range requests {
		switch req.Type {
		case RequestSupply:
			r, err := getReserveByAsset(req.Address)
			if err != nil {
				return err
			}
			if err := RequireActionAllowed(r.Config, req.Type); err != nil {
				return err
			}
			shares := ToBTokenDown(req.Amount, r.BRate)
			AddSupply(r, fromPos, shares)
			acc.spenderTransfer(r.Asset, from, req.Amount)
			acc.touchReserve(r.Index)

		case RequestWithdraw:
			r, err := getReserveByAsset(req.Address)
			if err != nil {
				return err
			}
			bal := nonZero(fromPos.Supply, r.Index)
			available := ToAssetFromBToken(bal, r.BRate)
			actual := fixedpoint.Min(req.Amount, available)
			if actual.IsZero() {
				continue
			}
			shares := fixedpoint.Min(ToBTokenUp(actual, r.BRate), bal)
			RemoveSupply(r, fromPos, shares)
			acc.poolTransfer(r.Asset, from, actual)
			acc.touchReserve(r.Index)

		case RequestSupplyCollateral:
			r, err := getReserveByAsset(req.Address)
			if err != nil {
				return err
			}
			if err := RequireActionAllowed(r.Config, req.Type); err != nil {
				return err
			}
			shares := ToBTokenDown(req.Amount, r.BRate)
			AddCollateral(r, fromPos, shares)
			acc.spenderTransfer(r.Asset, from, req.Amount)
			acc.touchReserve(r.Index)
			acc.requirePositionCheck(from)

		case RequestWithdrawCollateral:
			r, err := getReserveByAsset(req.Address)
			if err != nil {
				return err
			}
			bal := nonZero(fromPos.Collateral, r.Index)
			available := ToAssetFromBToken(bal, r.BRate)
			actual := fixedpoint.Min(req.Amount, available)
			if actual.IsZero() {
				continue
			}
			shares := fixedpoint.Min(ToBTokenUp(actual, r.BRate), bal)
			RemoveCollateral(r, fromPos, shares)
			acc.poolTransfer(r.Asset, from, actual)
			acc.touchReserve(r.Index)
			acc.requireHealthCheck(from)

		case RequestBorrow:
			r, err := getReserveByAsset(req.Address)
			if err != nil {
				return err
			}
			if err := RequireActionAllowed(r.Config, req.Type); err != nil {
				return err
			}
			dShares := ToDTokenUp(req.Amount, r.DRate)
			AddLiabilities(r, fromPos, dShares)
			acc.poolTransfer(r.Asset, from, req.Amount)
			acc.touchReserve(r.Index)
			acc.requireHealthCheck(from)
			acc.requirePositionCheck(from)

		case RequestRepay:
			r, err := getReserveByAsset(req.Address)
			if err != nil {
				return err
			}
			owedShares := nonZero(fromPos.Liabilities, r.Index)
			owedAsset := ToAssetFromDToken(owedShares, r.DRate)
			actual := fixedpoint.Min(req.Amount, owedAsset)
			if actual.IsZero() {
				continue
			}
			dShares := fixedpoint.Min(ToDTokenDownRepay(actual, r.DRate), owedShares)
			RemoveLiabilities(r, fromPos, dShares)
			acc.spenderTransfer(r.Asset, from, actual)
			acc.touchReserve(r.Index)

		case RequestFillUserLiquidation:
			if err := p.fillUserLiquidation(now, from, req, cfg, getReserve, getPositions, acc); err != nil {
				return err
			}

		case RequestFillBadDebt:
			if err := p.fillBadDebt(now, from, req, cfg, getReserve, getPositions, acc); err != nil {
				return err
			}

		case RequestFillInterest:
			if err := p.fillInterest(now, from, req, cfg, getReserve, acc); err != nil {
				return err
			}

		case RequestDeleteLiquidationAuction:
			if err := p.deleteLiquidationAuction(now, req, cfg, getReserve, getPositions, prices); err != nil {
				return err
			}

		default:
			return coded(CodeBadRequest, ErrBadRequest)
		}
	}

	// End-of-batch validation, in the fixed order spec.md §4.4 requires.
	for owner := range acc.checkPositions {
		pos, err := getPositions(owner)
		if err != nil {
			return err
		}
		if err := RequireMaxPositions(pos, cfg.MaxPositions); err != nil {
			return err
		}
	}
	if active, err := p.Store.GetAuction(AuctionKey{Kind: AuctionUserLiquidation, Subject: from}); err != nil {
		return err
	} else if active != nil {
		for _, req := range requests {
			if req.Type == RequestBorrow || req.Type == RequestWithdraw || req.Type == RequestWithdrawCollateral {
				return coded(CodeAuctionInProgress, ErrAuctionInProgress)
			}
		}
	}
	for idx := range acc.touchedReserves {
		r := reserves[idx]
		if err := RequireUtilizationBelow100(r); err != nil {
			return err
		}
		if err := RequireUtilizationBelowMax(r); err != nil {
			return err
		}
		if err := RequireSupplyCapRespected(r); err != nil {
			return err
		}
	}
	for owner := range acc.checkHealth {
		pos, err := getPositions(owner)
		if err != nil {
			return err
		}
		reservesFor, err := p.loadReservesForFromCache(pos, reserves, now, cfg.BstopRate)
		if err != nil {
			return err
		}
		data, err := LoadPositionData(pos, reservesFor, prices)
		if err != nil {
			return err
		}
		if err := RequireHealthy(data, cfg.MinCollateral); err != nil {
			return err
		}
	}

	return p.commit(reserves, positionsByOwner, acc)
}

// loadReservesForFromCache is loadReservesFor but prefers already-loaded
// (and possibly mutated) reserves from the current batch's cache.
func (p *Pool) loadReservesForFromCache(pos *Positions, cache map[uint32]*Reserve, now uint64, bstopRate *uint256.Int) (map[uint32]*Reserve, error) {
	out := map[uint32]*Reserve{}
	need := func(idx uint32) error {
		if _, ok := out[idx]; ok {
			return nil
		}
		if r, ok := cache[idx]; ok {
			out[idx] = r
			return nil
		}
		r, err := p.loadReserve(idx, now, bstopRate)
		if err != nil {
			return err
		}
		cache[idx] = r
		out[idx] = r
		return nil
	}
	for idx := range pos.Collateral {
		if err := need(idx); err != nil {
			return nil, err
		}
	}
	for idx := range pos.Liabilities {
		if err := need(idx); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// commit persists every mutated reserve/position/auction and executes the
// accumulated transfers. Called only once the whole batch has validated.
func (p *Pool) commit(reserves map[uint32]*Reserve, positions map[crypto.Address]*Positions, acc *batchAccumulator) error {
	for _, r := range reserves {
		if err := p.Store.PutReserve(r); err != nil {
			return err
		}
	}
	for _, pos := range positions {
		if err := p.Store.PutPositions(pos); err != nil {
			return err
		}
	}
	for _, t := range acc.spenderTransfers {
		if err := p.Token.TransferFrom(t.Asset, p.Address, t.From, p.Address, t.Amount); err != nil {
			return err
		}
	}
	for _, t := range acc.poolTransfers {
		if err := p.Token.Transfer(t.Asset, p.Address, t.To, t.Amount); err != nil {
			return err
		}
	}
	for _, d := range acc.backstopDonations {
		if err := p.Backstop.Donate(d.From, p.Address, d.Amount); err != nil {
			return err
		}
	}
	for _, w := range acc.backstopDraws {
		if err := p.Backstop.DrawLPToken(p.Address, w.Amount, w.To); err != nil {
			return err
		}
	}
	return nil
}
