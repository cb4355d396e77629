package token

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const maxSymbolLength = 11

var (
	// ErrInvalidTokenParameters rejects malformed token definitions.
	ErrInvalidTokenParameters = errors.New("invalid token parameters")
	// ErrTokenNotFound is returned when no token exists at an address.
	ErrTokenNotFound = errors.New("token not found")
)

// Record describes an issued token. Records never change once created.
type Record struct {
	Address     common.Address
	Name        string
	Symbol      string
	Decimals    uint8
	TotalSupply *uint256.Int
	Creator     common.Address
	CreatedAt   time.Time
}

// CreateInput captures the caller supplied token definition.
type CreateInput struct {
	Name          string
	Symbol        string
	Decimals      uint8
	InitialSupply *uint256.Int
}
