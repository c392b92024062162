package auth

import (
	"errors"
	"fmt"
	"invitetrack/entity"
	"invitetrack/lib/errx"
)

type Database interface {
	GetUser(token string) (*entity.User, error)
}

// Auth resolves API tokens to users.
type Auth struct {
	db Database
}

func New(db Database) *Auth {
	return &Auth{db: db}
}

func (a *Auth) UserByToken(token string) (*entity.User, error) {
	if a.db == nil {
		return nil, errx.E("auth.UserByToken", errx.Unavailable, errors.New("database not connected"))
	}
	if token == "" {
		return nil, errx.E("auth.UserByToken", errx.Forbidden, errors.New("empty token"))
	}
	user, err := a.db.GetUser(token)
	if err != nil {
		return nil, errx.E("auth.UserByToken", errx.Forbidden, fmt.Errorf("token lookup: %w", err))
	}
	if user == nil {
		return nil, errx.E("auth.UserByToken", errx.Forbidden, errors.New("unknown token"))
	}
	return user, nil
}
