package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

var (
	ErrInvalidAddress    = errors.New("invalid address")
	ErrChallengeNotFound = errors.New("challenge not found or expired")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrSignatureMismatch = errors.New("signature does not match address")
	ErrInvalidToken      = errors.New("invalid token")
)

const (
	defaultAccessTTL    = 15 * time.Minute
	defaultChallengeTTL = 5 * time.Minute
)

// Options configures the sign-in service.
type Options struct {
	Issuer       string
	Secret       string
	AccessTTL    time.Duration
	ChallengeTTL time.Duration
	Store        ChallengeStore
}

// Service proves control of an account address by signature and issues
// bearer tokens for it.
type Service struct {
	issuer       string
	secret       []byte
	accessTTL    time.Duration
	challengeTTL time.Duration
	store        ChallengeStore
	now          func() time.Time
}

func NewService(opts Options) (*Service, error) {
	if opts.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if opts.Store == nil {
		opts.Store = NewMemoryChallengeStore()
	}
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = defaultAccessTTL
	}
	if opts.ChallengeTTL <= 0 {
		opts.ChallengeTTL = defaultChallengeTTL
	}
	if opts.Issuer == "" {
		opts.Issuer = "fundme"
	}
	return &Service{
		issuer:       opts.Issuer,
		secret:       []byte(opts.Secret),
		accessTTL:    opts.AccessTTL,
		challengeTTL: opts.ChallengeTTL,
		store:        opts.Store,
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

// Challenge is a message the caller must sign with the key behind Address.
type Challenge struct {
	Address   common.Address
	Message   string
	ExpiresAt time.Time
}

// TokenPair mirrors the access token response.
type TokenPair struct {
	AccessToken string
	ExpiresIn   int64
	Address     common.Address
}

// Challenge issues a single-use sign-in message for address.
func (s *Service) Challenge(ctx context.Context, address string) (Challenge, error) {
	addr, err := parseAddress(address)
	if err != nil {
		return Challenge{}, err
	}
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return Challenge{}, fmt.Errorf("generate nonce: %w", err)
	}
	now := s.now()
	message := fmt.Sprintf("Sign in to %s\nAddress: %s\nNonce: %s\nIssued At: %s",
		s.issuer, addr.Hex(), hexutil.Encode(nonce), now.Format(time.RFC3339))

	if err := s.store.Put(ctx, addr.Hex(), message, s.challengeTTL); err != nil {
		return Challenge{}, fmt.Errorf("store challenge: %w", err)
	}
	return Challenge{Address: addr, Message: message, ExpiresAt: now.Add(s.challengeTTL)}, nil
}

// Login checks that signature is an EIP-191 personal signature of the
// outstanding challenge by address and returns an access token.
func (s *Service) Login(ctx context.Context, address, signature string) (TokenPair, error) {
	addr, err := parseAddress(address)
	if err != nil {
		return TokenPair{}, err
	}
	sig, err := hexutil.Decode(strings.TrimSpace(signature))
	if err != nil || len(sig) != crypto.SignatureLength {
		return TokenPair{}, ErrInvalidSignature
	}
	message, err := s.store.Take(ctx, addr.Hex())
	if err != nil {
		return TokenPair{}, err
	}

	// wallets emit V as 27/28
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	if crypto.PubkeyToAddress(*pub) != addr {
		return TokenPair{}, ErrSignatureMismatch
	}

	token, err := s.sign(addr)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: token, ExpiresIn: int64(s.accessTTL.Seconds()), Address: addr}, nil
}

// Verify validates an access token and returns the address it was issued to.
func (s *Service) Verify(token string) (common.Address, error) {
	claims := new(jwt.RegisteredClaims)
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return common.Address{}, ErrInvalidToken
	}
	if !common.IsHexAddress(claims.Subject) {
		return common.Address{}, ErrInvalidToken
	}
	return common.HexToAddress(claims.Subject), nil
}

func (s *Service) sign(addr common.Address) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   addr.Hex(),
		ID:        ulid.Make().String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func parseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}
