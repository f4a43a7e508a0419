package sim

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"math/big"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/p2pswap/swapd/pkg/swap"
)

// PebbleStore persists sim ledger state so a devnet survives restarts.
// Storage errors panic: a half-written ledger is worse than a dead one.
type PebbleStore struct {
	mu sync.Mutex
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// keys: o:<8-byte-id>, b:<token><owner>, a:<token><owner>, seq
func kOrder(id swap.OrderID) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], uint64(id))
	return append([]byte("o:"), k[:]...)
}

func kHolding(prefix string, token, owner common.Address) []byte {
	k := append([]byte(prefix), token[:]...)
	return append(k, owner[:]...)
}

func kSeq() []byte { return []byte("seq") }

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}

func (s *PebbleStore) Order(id swap.OrderID) (swap.Order, bool) {
	val, closer, err := s.db.Get(kOrder(id))
	if err != nil {
		if err == pebble.ErrNotFound {
			return swap.Order{}, false
		}
		panic(err)
	}
	defer closer.Close()
	var out swap.Order
	if err := decodeGob(val, &out); err != nil {
		panic(err)
	}
	return out, true
}

func (s *PebbleStore) PutOrder(o swap.Order) {
	val, err := encodeGob(o)
	if err != nil {
		panic(fmt.Errorf("encode order: %w", err))
	}
	if err := s.db.Set(kOrder(o.ID), val, pebble.Sync); err != nil {
		panic(err)
	}
}

func (s *PebbleStore) NextOrderID() swap.OrderID {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next uint64 = 1
	val, closer, err := s.db.Get(kSeq())
	if err == nil {
		next = binary.BigEndian.Uint64(val) + 1
		closer.Close()
	} else if err != pebble.ErrNotFound {
		panic(err)
	}

	var k [8]byte
	binary.BigEndian.PutUint64(k[:], next)
	if err := s.db.Set(kSeq(), k[:], pebble.Sync); err != nil {
		panic(err)
	}
	return swap.OrderID(next)
}

func (s *PebbleStore) getAmount(key []byte) *big.Int {
	val, closer, err := s.db.Get(key)
	if err != nil {
		if err == pebble.ErrNotFound {
			return new(big.Int)
		}
		panic(err)
	}
	defer closer.Close()
	return new(big.Int).SetBytes(val)
}

func (s *PebbleStore) setAmount(key []byte, amount *big.Int) {
	if err := s.db.Set(key, amount.Bytes(), pebble.Sync); err != nil {
		panic(err)
	}
}

func (s *PebbleStore) Balance(token, owner common.Address) *big.Int {
	return s.getAmount(kHolding("b:", token, owner))
}

func (s *PebbleStore) SetBalance(token, owner common.Address, amount *big.Int) {
	s.setAmount(kHolding("b:", token, owner), amount)
}

func (s *PebbleStore) Allowance(token, owner common.Address) *big.Int {
	return s.getAmount(kHolding("a:", token, owner))
}

func (s *PebbleStore) SetAllowance(token, owner common.Address, amount *big.Int) {
	s.setAmount(kHolding("a:", token, owner), amount)
}
