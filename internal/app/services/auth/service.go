// Package auth implements wallet challenge-response authentication: single
// use nonces, ed25519 signature verification against the wallet's public key
// and stateless bearer tokens.
package auth

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/roastrush/game-server/internal/app/domain/player"
	"github.com/roastrush/game-server/internal/app/storage"
	"github.com/roastrush/game-server/internal/chain"
	"github.com/roastrush/game-server/pkg/logger"
)

var (
	// ErrNonceNotFound is returned when no challenge is stored for the
	// identity attempting to log in.
	ErrNonceNotFound = errors.New("nonce not found")
	// ErrInvalidSignature is returned when the signature does not verify
	// against the stored nonce and the identity's public key.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrInvalidToken is returned for missing, malformed or expired tokens.
	ErrInvalidToken = errors.New("invalid token")
)

// TokenTTL is the validity window of minted session tokens.
const TokenTTL = 600 * time.Hour

const statusOK = "ok"

// Service issues nonces and session tokens.
type Service struct {
	store  storage.PlayerStore
	secret []byte
	log    *logger.Logger
}

// New constructs the authenticator. secret signs session tokens and must be
// non-empty.
func New(store storage.PlayerStore, secret []byte, log *logger.Logger) (*Service, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("jwt secret required")
	}
	if log == nil {
		log = logger.NewDefault("auth")
	}
	return &Service{store: store, secret: secret, log: log}, nil
}

// NonceResult is the outcome of a nonce request. Either Nonce is set and the
// caller must complete the challenge, or Token is set because a still-valid
// bearer token short-circuited into a session refresh.
type NonceResult struct {
	Nonce     string
	Token     string
	Record    *player.Record
	Refreshed bool
}

// LoginResult carries the minted session token and the player's record.
type LoginResult struct {
	Token  string
	Record player.Record
}

// IssueNonce handles the first leg of the challenge. A valid bearer token
// whose embedded identity matches an existing record refreshes the session
// without consuming a nonce; otherwise a fresh nonce is generated and stored
// on the (lazily created) record.
func (s *Service) IssueNonce(ctx context.Context, identity, bearer string) (NonceResult, error) {
	identity = strings.TrimSpace(identity)
	if _, err := chain.DecodeAddress(identity); err != nil {
		return NonceResult{}, fmt.Errorf("invalid identity: %w", err)
	}

	if bearer != "" {
		if tokenIdentity, err := s.VerifyToken(bearer); err == nil && tokenIdentity == identity {
			if rec, err := s.store.Get(ctx, identity); err == nil {
				token, err := s.mintToken(identity)
				if err != nil {
					return NonceResult{}, err
				}
				return NonceResult{Token: token, Record: &rec, Refreshed: true}, nil
			}
		}
		// Fall through to a fresh challenge when the token or record is no
		// longer usable.
	}

	nonce, err := generateNonce()
	if err != nil {
		return NonceResult{}, fmt.Errorf("generate nonce: %w", err)
	}

	res, err := s.store.RunAtomic(ctx, identity, func(rec player.Record, exists bool) storage.Result {
		if !exists {
			rec = player.NewRecord(identity)
		}
		rec.Nonce = nonce
		return storage.Result{Record: rec, Commit: true, Status: statusOK}
	})
	if err != nil {
		return NonceResult{}, err
	}

	return NonceResult{Nonce: nonce, Record: &res.Record}, nil
}

// VerifyLogin completes the challenge: the signature must verify against the
// exact stored nonce bytes using the identity's public key. On success a
// session token is minted and the stored nonce rotated so it cannot be
// replayed.
func (s *Service) VerifyLogin(ctx context.Context, identity string, signature []byte, nonce string) (LoginResult, error) {
	identity = strings.TrimSpace(identity)
	pub, err := chain.DecodeAddress(identity)
	if err != nil {
		return LoginResult{}, fmt.Errorf("invalid identity: %w", err)
	}

	rec, err := s.store.Get(ctx, identity)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return LoginResult{}, ErrNonceNotFound
		}
		return LoginResult{}, err
	}
	if rec.Nonce == "" || nonce != rec.Nonce {
		return LoginResult{}, ErrNonceNotFound
	}

	if len(signature) != ed25519.SignatureSize ||
		!ed25519.Verify(ed25519.PublicKey(pub), []byte(rec.Nonce), signature) {
		return LoginResult{}, ErrInvalidSignature
	}

	token, err := s.mintToken(identity)
	if err != nil {
		return LoginResult{}, err
	}

	// Rotate the consumed nonce. The login already succeeded, so a rotation
	// failure is logged rather than surfaced.
	next, err := generateNonce()
	if err == nil {
		res, rerr := s.store.RunAtomic(ctx, identity, func(cur player.Record, exists bool) storage.Result {
			if !exists {
				return storage.Result{Record: cur, Commit: false, Status: "no_account"}
			}
			cur.Nonce = next
			return storage.Result{Record: cur, Commit: true, Status: statusOK}
		})
		if rerr != nil {
			s.log.WithError(rerr).WithField("identity", identity).Warn("nonce rotation failed")
		} else {
			rec = res.Record
		}
	}

	return LoginResult{Token: token, Record: rec}, nil
}

// VerifyToken checks a bearer token's signature and expiry and returns the
// embedded identity.
func (s *Service) VerifyToken(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func (s *Service) mintToken(identity string) (string, error) {
	now := time.Now()
	claims := &jwt.RegisteredClaims{
		Subject:   identity,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		Issuer:    "game-server",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func generateNonce() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
