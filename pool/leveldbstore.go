package pool

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/holiman/uint256"
	"lukechampine.com/blake3"

	"poolcore/crypto"
	"poolcore/storage"
)

// LevelDBStore is a PoolStore backed by storage.Database (the teacher's
// storage/db.go, goleveldb-backed in production, in-memory in tests). Values
// are encoded with a small fixed-width binary codec rather than a
// third-party serialization library: no library in the example pack covers
// generic struct<->bytes codecs (go-ethereum's RLP was dropped along with
// the rest of the host-chain tree), so this one boundary is stdlib-only by
// necessity (encoding/binary).
type LevelDBStore struct {
	db     storage.Database
	prefix []byte
}

// NewLevelDBStore namespaces db under prefix so multiple pools can share one
// underlying database.
func NewLevelDBStore(db storage.Database, prefix string) *LevelDBStore {
	return &LevelDBStore{db: db, prefix: []byte(prefix)}
}

func (s *LevelDBStore) key(parts ...string) []byte {
	buf := append([]byte{}, s.prefix...)
	for _, p := range parts {
		buf = append(buf, '/')
		buf = append(buf, p...)
	}
	return buf
}

// auctionKeyHash derives a fixed-width, collision-resistant key component
// from an auction's (kind, subject) pair so the on-disk key doesn't grow
// with subject address encoding choices.
func auctionKeyHash(kind AuctionKind, subject crypto.Address) string {
	var buf bytes.Buffer
	buf.WriteByte(byte(kind))
	buf.Write(subject.Bytes())
	sum := blake3.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

func putInt(buf *bytes.Buffer, v *uint256.Int) {
	b := v.Bytes32()
	buf.Write(b[:])
}

func getInt(r *bytes.Reader) (*uint256.Int, error) {
	var b [32]byte
	if _, err := r.Read(b[:]); err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes(b[:]), nil
}

func putUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func getUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func putShareMap(buf *bytes.Buffer, m map[uint32]*uint256.Int) {
	keys := make([]uint32, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	putUint64(buf, uint64(len(keys)))
	for _, k := range keys {
		putUint64(buf, uint64(k))
		putInt(buf, m[k])
	}
}

func getShareMap(r *bytes.Reader) (map[uint32]*uint256.Int, error) {
	n, err := getUint64(r)
	if err != nil {
		return nil, err
	}
	m := make(map[uint32]*uint256.Int, n)
	for i := uint64(0); i < n; i++ {
		idx, err := getUint64(r)
		if err != nil {
			return nil, err
		}
		v, err := getInt(r)
		if err != nil {
			return nil, err
		}
		m[uint32(idx)] = v
	}
	return m, nil
}

func encodeReserveConfig(buf *bytes.Buffer, c ReserveConfig) {
	buf.WriteByte(c.Decimals)
	putInt(buf, c.CFactor)
	putInt(buf, c.LFactor)
	putInt(buf, c.Util)
	putInt(buf, c.MaxUtil)
	putInt(buf, c.RBase)
	putInt(buf, c.ROne)
	putInt(buf, c.RTwo)
	putInt(buf, c.RThree)
	putInt(buf, c.Reactivity)
	putInt(buf, c.SupplyCap)
	if c.Enabled {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func decodeReserveConfig(r *bytes.Reader) (ReserveConfig, error) {
	var c ReserveConfig
	dec, err := r.ReadByte()
	if err != nil {
		return c, err
	}
	c.Decimals = dec
	for _, dst := range []**uint256.Int{&c.CFactor, &c.LFactor, &c.Util, &c.MaxUtil, &c.RBase, &c.ROne, &c.RTwo, &c.RThree, &c.Reactivity, &c.SupplyCap} {
		v, err := getInt(r)
		if err != nil {
			return c, err
		}
		*dst = v
	}
	enabled, err := r.ReadByte()
	if err != nil {
		return c, err
	}
	c.Enabled = enabled == 1
	return c, nil
}

func (s *LevelDBStore) GetReserve(idx uint32) (*Reserve, error) {
	raw, err := s.db.Get(s.key("reserve", fmt.Sprint(idx)))
	if err != nil {
		return nil, coded(CodeInvalidReserveMeta, ErrNoSuchReserve)
	}
	r := bytes.NewReader(raw)
	var assetBytes [crypto.AddressLen]byte
	if _, err := r.Read(assetBytes[:]); err != nil {
		return nil, err
	}
	asset, err := crypto.NewAddress(assetBytes[:])
	if err != nil {
		return nil, err
	}
	cfg, err := decodeReserveConfig(r)
	if err != nil {
		return nil, err
	}
	rv := &Reserve{Asset: asset, Index: idx, Config: cfg}
	for _, dst := range []**uint256.Int{&rv.BRate, &rv.DRate, &rv.IRMod, &rv.BSupply, &rv.DSupply, &rv.BackstopCredit} {
		v, err := getInt(r)
		if err != nil {
			return nil, err
		}
		*dst = v
	}
	rv.LastTime, err = getUint64(r)
	if err != nil {
		return nil, err
	}
	return rv, nil
}

func (s *LevelDBStore) PutReserve(rv *Reserve) error {
	var buf bytes.Buffer
	buf.Write(rv.Asset.Bytes())
	encodeReserveConfig(&buf, rv.Config)
	for _, v := range []*uint256.Int{rv.BRate, rv.DRate, rv.IRMod, rv.BSupply, rv.DSupply, rv.BackstopCredit} {
		putInt(&buf, v)
	}
	putUint64(&buf, rv.LastTime)
	if err := s.db.Put(s.key("reserve", fmt.Sprint(rv.Index)), buf.Bytes()); err != nil {
		return err
	}
	var idxBuf bytes.Buffer
	putUint64(&idxBuf, uint64(rv.Index))
	return s.db.Put(s.key("assetidx", rv.Asset.String()), idxBuf.Bytes())
}

func (s *LevelDBStore) GetReserveIndexByAsset(asset crypto.Address) (uint32, bool, error) {
	has, err := s.db.Has(s.key("assetidx", asset.String()))
	if err != nil || !has {
		return 0, false, err
	}
	raw, err := s.db.Get(s.key("assetidx", asset.String()))
	if err != nil {
		return 0, false, err
	}
	idx, err := getUint64(bytes.NewReader(raw))
	if err != nil {
		return 0, false, err
	}
	return uint32(idx), true, nil
}

func (s *LevelDBStore) ListReserves() ([]*Reserve, error) {
	// storage.Database exposes no prefix iterator and this store keeps no
	// index of registered reserves, so this relies on the caller knowing its
	// reserve indices.
	return nil, fmt.Errorf("pool: ListReserves unsupported on LevelDBStore, callers must track their reserve indices")
}

func (s *LevelDBStore) GetPositions(owner crypto.Address) (*Positions, error) {
	has, err := s.db.Has(s.key("pos", owner.String()))
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, nil
	}
	raw, err := s.db.Get(s.key("pos", owner.String()))
	if err != nil {
		return nil, err
	}
	r := bytes.NewReader(raw)
	p := NewPositions(owner)
	for _, dst := range []*map[uint32]*uint256.Int{&p.Collateral, &p.Supply, &p.Liabilities} {
		m, err := getShareMap(r)
		if err != nil {
			return nil, err
		}
		*dst = m
	}
	return p, nil
}

func (s *LevelDBStore) PutPositions(p *Positions) error {
	var buf bytes.Buffer
	putShareMap(&buf, p.Collateral)
	putShareMap(&buf, p.Supply)
	putShareMap(&buf, p.Liabilities)
	return s.db.Put(s.key("pos", p.Owner.String()), buf.Bytes())
}

func (s *LevelDBStore) GetPoolConfig() (PoolConfig, error) {
	raw, err := s.db.Get(s.key("config"))
	if err != nil {
		return PoolConfig{}, err
	}
	r := bytes.NewReader(raw)
	var oracleBytes [crypto.AddressLen]byte
	if _, err := r.Read(oracleBytes[:]); err != nil {
		return PoolConfig{}, err
	}
	oracle, err := crypto.NewAddress(oracleBytes[:])
	if err != nil {
		return PoolConfig{}, err
	}
	var backstopBytes [crypto.AddressLen]byte
	if _, err := r.Read(backstopBytes[:]); err != nil {
		return PoolConfig{}, err
	}
	backstop, err := crypto.NewAddress(backstopBytes[:])
	if err != nil {
		return PoolConfig{}, err
	}
	bstopRate, err := getInt(r)
	if err != nil {
		return PoolConfig{}, err
	}
	maxPositions, err := getUint64(r)
	if err != nil {
		return PoolConfig{}, err
	}
	minCollateral, err := getInt(r)
	if err != nil {
		return PoolConfig{}, err
	}
	status, err := r.ReadByte()
	if err != nil {
		return PoolConfig{}, err
	}
	return PoolConfig{
		Oracle:          oracle,
		BackstopAddress: backstop,
		BstopRate:       bstopRate,
		MaxPositions:    uint32(maxPositions),
		MinCollateral:   minCollateral,
		Status:          PoolStatus(status),
	}, nil
}

func (s *LevelDBStore) PutPoolConfig(cfg PoolConfig) error {
	var buf bytes.Buffer
	buf.Write(cfg.Oracle.Bytes())
	buf.Write(cfg.BackstopAddress.Bytes())
	putInt(&buf, cfg.BstopRate)
	putUint64(&buf, uint64(cfg.MaxPositions))
	putInt(&buf, cfg.MinCollateral)
	buf.WriteByte(byte(cfg.Status))
	return s.db.Put(s.key("config"), buf.Bytes())
}

func (s *LevelDBStore) GetQueuedReserveConfig(idx uint32) (*QueuedReserveConfig, error) {
	has, err := s.db.Has(s.key("queued", fmt.Sprint(idx)))
	if err != nil || !has {
		return nil, err
	}
	raw, err := s.db.Get(s.key("queued", fmt.Sprint(idx)))
	if err != nil {
		return nil, err
	}
	r := bytes.NewReader(raw)
	cfg, err := decodeReserveConfig(r)
	if err != nil {
		return nil, err
	}
	unlock, err := getUint64(r)
	if err != nil {
		return nil, err
	}
	return &QueuedReserveConfig{ReserveIndex: idx, NewConfig: cfg, UnlockTime: unlock}, nil
}

func (s *LevelDBStore) PutQueuedReserveConfig(q *QueuedReserveConfig) error {
	var buf bytes.Buffer
	encodeReserveConfig(&buf, q.NewConfig)
	putUint64(&buf, q.UnlockTime)
	return s.db.Put(s.key("queued", fmt.Sprint(q.ReserveIndex)), buf.Bytes())
}

func (s *LevelDBStore) DeleteQueuedReserveConfig(idx uint32) error {
	return s.db.Delete(s.key("queued", fmt.Sprint(idx)))
}

func (s *LevelDBStore) GetAuction(key AuctionKey) (*Auction, error) {
	dbKey := s.key("auction", auctionKeyHash(key.Kind, key.Subject))
	has, err := s.db.Has(dbKey)
	if err != nil || !has {
		return nil, err
	}
	raw, err := s.db.Get(dbKey)
	if err != nil {
		return nil, err
	}
	r := bytes.NewReader(raw)
	a := &Auction{Kind: key.Kind, Subject: key.Subject}
	bid, err := getShareMap(r)
	if err != nil {
		return nil, err
	}
	lot, err := getShareMap(r)
	if err != nil {
		return nil, err
	}
	a.Bid, a.Lot = bid, lot
	a.LPToken, err = getInt(r)
	if err != nil {
		return nil, err
	}
	a.Block, err = getUint64(r)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *LevelDBStore) PutAuction(a *Auction) error {
	var buf bytes.Buffer
	putShareMap(&buf, a.Bid)
	putShareMap(&buf, a.Lot)
	if a.LPToken == nil {
		a.LPToken = new(uint256.Int)
	}
	putInt(&buf, a.LPToken)
	putUint64(&buf, a.Block)
	return s.db.Put(s.key("auction", auctionKeyHash(a.Kind, a.Subject)), buf.Bytes())
}

func (s *LevelDBStore) DeleteAuction(key AuctionKey) error {
	return s.db.Delete(s.key("auction", auctionKeyHash(key.Kind, key.Subject)))
}

func (s *LevelDBStore) ListAuctionsByKind(kind AuctionKind) ([]*Auction, error) {
	return nil, fmt.Errorf("pool: ListAuctionsByKind unsupported on LevelDBStore, storage.Database has no prefix iterator")
}
