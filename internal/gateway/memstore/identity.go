package memstore

import (
	"context"
	"fmt"
	"strings"

	"devplan/internal/gateway"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type account struct {
	id   string
	hash []byte
}

// Identity keeps accounts in the owning Store.
type Identity struct {
	s    *Store
	cost int
}

var _ gateway.Identity = (*Identity)(nil)

// Identity returns the account provider bound to s.
func (s *Store) Identity() *Identity {
	return &Identity{s: s, cost: bcrypt.MinCost}
}

// SignUp creates an account.
func (i *Identity) SignUp(_ context.Context, email, password string) (gateway.Account, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	hash, err := bcrypt.GenerateFromPassword([]byte(password), i.cost)
	if err != nil {
		return gateway.Account{}, fmt.Errorf("hash password: %w", err)
	}

	i.s.mu.Lock()
	defer i.s.mu.Unlock()
	if _, ok := i.s.accounts[email]; ok {
		return gateway.Account{}, gateway.ErrAccountExists
	}
	acc := account{id: uuid.NewString(), hash: hash}
	i.s.accounts[email] = acc
	return gateway.Account{ID: acc.id, Email: email}, nil
}

// SignIn checks email and password.
func (i *Identity) SignIn(_ context.Context, email, password string) (gateway.Account, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	i.s.mu.RLock()
	acc, ok := i.s.accounts[email]
	i.s.mu.RUnlock()
	if !ok {
		return gateway.Account{}, gateway.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acc.hash, []byte(password)); err != nil {
		return gateway.Account{}, gateway.ErrInvalidCredentials
	}
	return gateway.Account{ID: acc.id, Email: email}, nil
}
