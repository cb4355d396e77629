package token

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type memoryRepository struct {
	mu        sync.RWMutex
	byAddress map[common.Address]Record
	byCreator map[common.Address][]common.Address
}

// NewMemoryRepository constructs an in-memory repository for tests and
// development.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		byAddress: make(map[common.Address]Record),
		byCreator: make(map[common.Address][]common.Address),
	}
}

func (r *memoryRepository) Create(_ context.Context, record Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byAddress[record.Address]; exists {
		return errors.New("token exists")
	}
	r.byAddress[record.Address] = record
	r.byCreator[record.Creator] = append(r.byCreator[record.Creator], record.Address)
	return nil
}

func (r *memoryRepository) Get(_ context.Context, address common.Address) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.byAddress[address]
	if !ok {
		return Record{}, ErrTokenNotFound
	}
	return record, nil
}

func (r *memoryRepository) ListByCreator(_ context.Context, creator common.Address) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addresses := r.byCreator[creator]
	records := make([]Record, 0, len(addresses))
	for _, addr := range addresses {
		records = append(records, r.byAddress[addr])
	}
	return records, nil
}

func (r *memoryRepository) Count(context.Context) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return uint64(len(r.byAddress)), nil
}

func (r *memoryRepository) Delete(_ context.Context, address common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.byAddress[address]
	if !ok {
		return nil
	}
	delete(r.byAddress, address)
	list := r.byCreator[record.Creator]
	for i, addr := range list {
		if addr == address {
			r.byCreator[record.Creator] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	return nil
}
