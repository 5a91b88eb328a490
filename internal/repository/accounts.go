package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned by Authenticate for both an unknown
// login and a wrong password — the caller must not distinguish the two
// in anything that reaches the client.
var ErrInvalidCredentials = errors.New("repository: invalid credentials")

// Authenticate checks login/password against the stored bcrypt hash and
// returns the account's id and admin flag on success.
func (r *Repository) Authenticate(ctx context.Context, login, password string) (accountID int64, isAdmin bool, err error) {
	err = r.Query(ctx, func(rows pgx.Rows) error {
		if !rows.Next() {
			return ErrInvalidCredentials
		}
		var hash string
		if scanErr := rows.Scan(&accountID, &hash, &isAdmin); scanErr != nil {
			return fmt.Errorf("repository: scan account: %w", scanErr)
		}
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
			return ErrInvalidCredentials
		}
		return nil
	}, `SELECT id, password_hash, is_admin FROM accounts WHERE login = $1`, login)

	if err != nil {
		return 0, false, err
	}
	return accountID, isAdmin, nil
}

// CreateAccount hashes password and inserts a new account row, returning
// its id.
func (r *Repository) CreateAccount(ctx context.Context, login, password string) (int64, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("repository: hash password: %w", err)
	}

	var id int64
	err = r.Query(ctx, func(rows pgx.Rows) error {
		if !rows.Next() {
			return fmt.Errorf("repository: create account: no row returned")
		}
		return rows.Scan(&id)
	}, `INSERT INTO accounts (login, password_hash) VALUES ($1, $2) RETURNING id`, login, string(hash))
	if err != nil {
		return 0, err
	}
	return id, nil
}
