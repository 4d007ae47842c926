package pool

import (
	"github.com/holiman/uint256"

	"poolcore/crypto"
)

// spenderTransfer is a pending asset movement from a user into the pool,
// executed via TokenClient.TransferFrom once the whole batch has validated.
type spenderTransfer struct {
	Asset  crypto.Address
	From   crypto.Address
	Amount *uint256.Int
}

// poolTransfer is a pending asset movement from the pool out to a user,
// executed via TokenClient.Transfer once the whole batch has validated.
type poolTransfer struct {
	Asset  crypto.Address
	To     crypto.Address
	Amount *uint256.Int
}

// batchAccumulator gathers the side effects of one submit() call so they can
// be validated as a whole before anything is committed (spec.md §4.4: end-
// of-batch checks run in a fixed order, and a failure anywhere rolls back
// every request already processed in the batch).
// backstopDonation and backstopDraw are the LP-token legs of BadDebt and
// Interest auction fills, settled against the pool's BackstopView rather
// than its TokenClient.
type backstopDonation struct {
	From   crypto.Address
	Amount *uint256.Int
}

type backstopDraw struct {
	To     crypto.Address
	Amount *uint256.Int
}

type batchAccumulator struct {
	spenderTransfers  []spenderTransfer
	poolTransfers     []poolTransfer
	backstopDonations []backstopDonation
	backstopDraws     []backstopDraw
	checkHealth       map[crypto.Address]struct{}
	checkPositions    map[crypto.Address]struct{}
	touchedReserves   map[uint32]struct{}
}

func newBatchAccumulator() *batchAccumulator {
	return &batchAccumulator{
		checkHealth:     map[crypto.Address]struct{}{},
		checkPositions:  map[crypto.Address]struct{}{},
		touchedReserves: map[uint32]struct{}{},
	}
}

func (a *batchAccumulator) spenderTransfer(asset, from crypto.Address, amount *uint256.Int) {
	if amount.IsZero() {
		return
	}
	a.spenderTransfers = append(a.spenderTransfers, spenderTransfer{Asset: asset, From: from, Amount: amount})
}

func (a *batchAccumulator) poolTransfer(asset, to crypto.Address, amount *uint256.Int) {
	if amount.IsZero() {
		return
	}
	a.poolTransfers = append(a.poolTransfers, poolTransfer{Asset: asset, To: to, Amount: amount})
}

func (a *batchAccumulator) requireHealthCheck(user crypto.Address) {
	a.checkHealth[user] = struct{}{}
}

func (a *batchAccumulator) requirePositionCheck(user crypto.Address) {
	a.checkPositions[user] = struct{}{}
}

func (a *batchAccumulator) touchReserve(idx uint32) {
	a.touchedReserves[idx] = struct{}{}
}

func (a *batchAccumulator) donate(from crypto.Address, amount *uint256.Int) {
	if amount.IsZero() {
		return
	}
	a.backstopDonations = append(a.backstopDonations, backstopDonation{From: from, Amount: amount})
}

func (a *batchAccumulator) draw(to crypto.Address, amount *uint256.Int) {
	if amount.IsZero() {
		return
	}
	a.backstopDraws = append(a.backstopDraws, backstopDraw{To: to, Amount: amount})
}
