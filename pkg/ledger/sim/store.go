package sim

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/p2pswap/swapd/pkg/swap"
)

// Store holds the sim ledger's authoritative state: the order table plus
// per-token balances and allowances (spender is always the ledger itself).
type Store interface {
	Order(id swap.OrderID) (swap.Order, bool)
	PutOrder(o swap.Order)
	NextOrderID() swap.OrderID

	Balance(token, owner common.Address) *big.Int
	SetBalance(token, owner common.Address, amount *big.Int)
	Allowance(token, owner common.Address) *big.Int
	SetAllowance(token, owner common.Address, amount *big.Int)

	Close() error
}

type holding struct {
	token common.Address
	owner common.Address
}

// MemoryStore keeps everything in maps. Used by tests and the CLI.
type MemoryStore struct {
	mu         sync.Mutex
	orders     map[swap.OrderID]swap.Order
	balances   map[holding]*big.Int
	allowances map[holding]*big.Int
	nextID     uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:     make(map[swap.OrderID]swap.Order),
		balances:   make(map[holding]*big.Int),
		allowances: make(map[holding]*big.Int),
	}
}

func (s *MemoryStore) Order(id swap.OrderID) (swap.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	return o, ok
}

func (s *MemoryStore) PutOrder(o swap.Order) {
	s.mu.Lock()
	s.orders[o.ID] = o
	s.mu.Unlock()
}

func (s *MemoryStore) NextOrderID() swap.OrderID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return swap.OrderID(s.nextID)
}

func (s *MemoryStore) Balance(token, owner common.Address) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.balances[holding{token, owner}]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (s *MemoryStore) SetBalance(token, owner common.Address, amount *big.Int) {
	s.mu.Lock()
	s.balances[holding{token, owner}] = new(big.Int).Set(amount)
	s.mu.Unlock()
}

func (s *MemoryStore) Allowance(token, owner common.Address) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.allowances[holding{token, owner}]; ok {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

func (s *MemoryStore) SetAllowance(token, owner common.Address, amount *big.Int) {
	s.mu.Lock()
	s.allowances[holding{token, owner}] = new(big.Int).Set(amount)
	s.mu.Unlock()
}

func (s *MemoryStore) Close() error { return nil }
