package api

import (
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Order is one entry of the order book.
type Order struct {
	ID        string    `json:"id"`
	Item      string    `json:"item"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store is an in-memory order book safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	seq    int
	orders map[string]Order
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{orders: make(map[string]Order)}
}

// Create adds an order and returns it.
func (s *Store) Create(item string, quantity int) Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	o := Order{
		ID:        strconv.Itoa(s.seq),
		Item:      item,
		Quantity:  quantity,
		CreatedAt: time.Now().UTC(),
	}
	s.orders[o.ID] = o
	return o
}

// Get returns the order with the given ID.
func (s *Store) Get(id string) (Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	return o, ok
}

// List returns all orders, oldest first.
func (s *Store) List() []Order {
	s.mu.RLock()
	orders := lo.Values(s.orders)
	s.mu.RUnlock()

	slices.SortFunc(orders, func(a, b Order) int {
		if c := len(a.ID) - len(b.ID); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return orders
}

// Delete removes an order and reports whether it existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[id]; !ok {
		return false
	}
	delete(s.orders, id)
	return true
}
