package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/geocoder89/hotchoc/internal/domain/user"
	"github.com/google/uuid"
)

type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(hash, plain string) (bool, error)
}

type TokenIssuer interface {
	Issue(userID, email string) (string, error)
}

type Auth struct {
	users  UserStore
	hasher PasswordHasher
	tokens TokenIssuer
	now    func() time.Time

	// dummyHash is compared against when the email is unknown, so a miss
	// costs as much as a wrong password.
	dummyHash func() (string, error)
}

func NewAuth(users UserStore, hasher PasswordHasher, tokens TokenIssuer) *Auth {
	return &Auth{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		now:    time.Now,
		dummyHash: sync.OnceValues(func() (string, error) {
			return hasher.Hash("hotchoc-dummy-password")
		}),
	}
}

// Register creates a user. The store's unique email constraint is the real
// guard; the lookup here only fails fast.
func (a *Auth) Register(ctx context.Context, req user.RegisterRequest) (user.Public, error) {
	ctx, span := tracer.Start(ctx, "auth.register")
	defer span.End()

	if req.Name == "" || req.Email == "" || req.Password == "" {
		return user.Public{}, user.ErrMissingFields
	}
	if len(req.Password) > user.MaxPasswordBytes {
		return user.Public{}, user.ErrPasswordTooLong
	}

	// a client that hangs up must not leave a half-done registration behind
	ctx = context.WithoutCancel(ctx)

	_, err := a.users.GetUserByEmail(ctx, req.Email)
	switch {
	case err == nil:
		return user.Public{}, user.ErrEmailTaken
	case !errors.Is(err, user.ErrNotFound):
		return user.Public{}, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := a.hasher.Hash(req.Password)
	if err != nil {
		return user.Public{}, fmt.Errorf("hash password: %w", err)
	}

	u, err := a.users.CreateUser(ctx, user.User{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		CreatedAt:    a.now().UTC().Truncate(time.Millisecond),
	})
	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			return user.Public{}, user.ErrEmailTaken
		}
		return user.Public{}, fmt.Errorf("create user: %w", err)
	}

	return u.Public(), nil
}

func (a *Auth) Login(ctx context.Context, req user.LoginRequest) (user.LoginResult, error) {
	ctx, span := tracer.Start(ctx, "auth.login")
	defer span.End()

	u, err := a.users.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			return user.LoginResult{}, fmt.Errorf("lookup user: %w", err)
		}

		if hash, herr := a.dummyHash(); herr == nil {
			_, _ = a.hasher.Verify(hash, req.Password)
		}
		return user.LoginResult{}, user.ErrInvalidCredentials
	}

	ok, err := a.hasher.Verify(u.PasswordHash, req.Password)
	if err != nil {
		return user.LoginResult{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return user.LoginResult{}, user.ErrInvalidCredentials
	}

	token, err := a.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return user.LoginResult{}, fmt.Errorf("issue token: %w", err)
	}

	return user.LoginResult{Token: token, User: u.Public()}, nil
}
