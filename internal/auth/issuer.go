package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	mware "github.com/sudo-init-do/skillmarket/internal/middleware"
	"github.com/sudo-init-do/skillmarket/internal/wallet"
)

// Issuer mints bearer tokens for wallet identities. Identities listed as
// admin wallets get the admin role.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	admins map[string]struct{}
	now    func() time.Time
}

func NewIssuer(secret []byte, ttl time.Duration, adminWallets []string) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth.NewIssuer: secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("auth.NewIssuer: ttl must be positive")
	}
	admins := make(map[string]struct{}, len(adminWallets))
	for _, w := range adminWallets {
		addr, err := wallet.NormalizeAddress(w)
		if err != nil {
			return nil, fmt.Errorf("auth.NewIssuer: admin wallet %q: %w", w, err)
		}
		admins[addr] = struct{}{}
	}
	return &Issuer{
		secret: secret,
		ttl:    ttl,
		admins: admins,
		now:    time.Now,
	}, nil
}

type Token struct {
	Token     string    `json:"token"`
	Identity  string    `json:"identity"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Issue normalizes identity to its checksummed form and signs a token for it.
func (i *Issuer) Issue(identity string) (*Token, error) {
	addr, err := wallet.NormalizeAddress(identity)
	if err != nil {
		return nil, err
	}

	role := mware.RoleMember
	if i.IsAdmin(addr) {
		role = mware.RoleAdmin
	}
	now := i.now()
	exp := now.Add(i.ttl)
	claims := mware.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   addr,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("auth.Issuer.Issue: %w", err)
	}
	return &Token{Token: signed, Identity: addr, Role: role, ExpiresAt: exp.UTC()}, nil
}

func (i *Issuer) IsAdmin(identity string) bool {
	_, ok := i.admins[identity]
	return ok
}
