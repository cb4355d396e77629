package wallet

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/congo-pay/vault/internal/custody"
)

type memoryRepository struct {
	mu        sync.RWMutex
	storage   map[string]Wallet
	byAddress map[common.Address]string
	spenders  map[common.Address]map[common.Address]custody.SpenderAuthorization
	order     []string
}

// NewMemoryRepository constructs an in-memory repository for tests and
// development.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		storage:   make(map[string]Wallet),
		byAddress: make(map[common.Address]string),
		spenders:  make(map[common.Address]map[common.Address]custody.SpenderAuthorization),
	}
}

func (r *memoryRepository) Create(_ context.Context, wallet Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[wallet.ID]; exists {
		return errors.New("wallet exists")
	}
	if _, exists := r.byAddress[wallet.Address]; exists {
		return errors.New("wallet address in use")
	}
	r.storage[wallet.ID] = wallet
	r.byAddress[wallet.Address] = wallet.ID
	r.order = append(r.order, wallet.ID)
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wallet, ok := r.storage[id]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return wallet, nil
}

func (r *memoryRepository) ListByOwner(_ context.Context, owner common.Address) ([]Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []Wallet{}
	for _, id := range r.order {
		if w := r.storage[id]; w.Owner == owner {
			out = append(out, w)
		}
	}
	return out, nil
}

func (r *memoryRepository) CountByCreator(_ context.Context, creator common.Address) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n uint64
	for _, w := range r.storage {
		if w.Creator == creator {
			n++
		}
	}
	return n, nil
}

func (r *memoryRepository) SaveOwner(_ context.Context, vault, owner common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byAddress[vault]
	if !ok {
		return ErrWalletNotFound
	}
	w := r.storage[id]
	w.Owner = owner
	r.storage[id] = w
	return nil
}

func (r *memoryRepository) SaveSpender(_ context.Context, vault common.Address, auth custody.SpenderAuthorization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	table, ok := r.spenders[vault]
	if !ok {
		table = make(map[common.Address]custody.SpenderAuthorization)
		r.spenders[vault] = table
	}
	table[auth.Spender] = auth
	return nil
}

func (r *memoryRepository) LoadSpenders(_ context.Context, vault common.Address) ([]custody.SpenderAuthorization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]custody.SpenderAuthorization, 0, len(r.spenders[vault]))
	for _, auth := range r.spenders[vault] {
		out = append(out, auth)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Spender.Hex() < out[j].Spender.Hex()
	})
	return out, nil
}
