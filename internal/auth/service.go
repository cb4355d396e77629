package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/congo-pay/vault/internal/config"
)

const (
	tokenUseAccess  = "access"
	tokenUseRefresh = "refresh"
)

var (
	// ErrInvalidSignature is returned when a login signature does not recover
	// to the claimed address.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrChallengeNotFound is returned when no unexpired challenge is pending.
	ErrChallengeNotFound = errors.New("challenge not found or expired")
	// ErrInvalidToken is returned for malformed, expired or misused tokens.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims are the JWT claims issued to an authenticated address.
type Claims struct {
	TokenUse string `json:"token_use"`
	jwt.RegisteredClaims
}

// TokenPair is returned on login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Service authenticates addresses by signed challenge and issues sessions.
type Service struct {
	cfg   config.Config
	store ChallengeStore
	now   func() time.Time
}

// NewService builds an auth service.
func NewService(cfg config.Config, store ChallengeStore) *Service {
	return &Service{cfg: cfg, store: store, now: time.Now}
}

// Challenge issues a fresh message the address must sign to log in.
func (s *Service) Challenge(ctx context.Context, address common.Address) (string, time.Time, error) {
	if address == (common.Address{}) {
		return "", time.Time{}, fmt.Errorf("address is required")
	}
	issued := s.now().UTC()
	expires := issued.Add(s.cfg.ChallengeTTL)
	message := fmt.Sprintf("Sign in to %s\nAddress: %s\nNonce: %s\nIssued At: %s",
		s.cfg.AppName, address.Hex(), uuid.NewString(), issued.Format(time.RFC3339))
	if err := s.store.Put(ctx, address, message, s.cfg.ChallengeTTL); err != nil {
		return "", time.Time{}, fmt.Errorf("store challenge: %w", err)
	}
	return message, expires, nil
}

// Login verifies a personal_sign signature over the pending challenge and
// returns a session for the address. The challenge is consumed either way.
func (s *Service) Login(ctx context.Context, address common.Address, signature string) (TokenPair, error) {
	message, err := s.store.Take(ctx, address)
	if err != nil {
		return TokenPair{}, err
	}
	signer, err := RecoverSigner(message, signature)
	if err != nil {
		return TokenPair{}, err
	}
	if signer != address {
		return TokenPair{}, ErrInvalidSignature
	}

	access, err := s.sign(address, tokenUseAccess, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(address, tokenUseRefresh, s.cfg.RefreshSecret, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(s.cfg.AccessTokenTTL.Seconds())}, nil
}

// Refresh exchanges a refresh token for a new access token.
func (s *Service) Refresh(_ context.Context, refreshToken string) (string, int64, error) {
	address, err := s.parse(refreshToken, tokenUseRefresh, s.cfg.RefreshSecret)
	if err != nil {
		return "", 0, err
	}
	access, err := s.sign(address, tokenUseAccess, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return "", 0, err
	}
	return access, int64(s.cfg.AccessTokenTTL.Seconds()), nil
}

// Verify validates an access token and returns the address it was issued to.
func (s *Service) Verify(accessToken string) (common.Address, error) {
	return s.parse(accessToken, tokenUseAccess, s.cfg.JWTSecret)
}

func (s *Service) sign(address common.Address, use, secret string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		TokenUse: use,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   address.Hex(),
			Issuer:    s.cfg.AppName,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func (s *Service) parse(raw, use, secret string) (common.Address, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now), jwt.WithIssuer(s.cfg.AppName))
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.TokenUse != use {
		return common.Address{}, fmt.Errorf("%w: expected %s token", ErrInvalidToken, use)
	}
	if !common.IsHexAddress(claims.Subject) {
		return common.Address{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return common.HexToAddress(claims.Subject), nil
}

// RecoverSigner returns the address that produced an EIP-191 personal_sign
// signature over message. Both 0/1 and 27/28 recovery ids are accepted.
func RecoverSigner(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return common.Address{}, ErrInvalidSignature
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, ErrInvalidSignature
	}
	return crypto.PubkeyToAddress(*pub), nil
}
