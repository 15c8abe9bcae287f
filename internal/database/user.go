// internal/database/user.go
package database

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"bingo-service/internal/auth"
	"bingo-service/internal/models"
)

// ErrDuplicateAccount indicates the email or username is already taken.
var ErrDuplicateAccount = errors.New("email or username already registered")

const playerIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// newPlayerID generates the stable shareable identity, "BNG-" plus six
// characters from a fixed alphabet.
func newPlayerID() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	id := make([]byte, 6)
	for i, b := range buf {
		id[i] = playerIDAlphabet[int(b)%len(playerIDAlphabet)]
	}
	return "BNG-" + string(id), nil
}

// CreateUser registers an account: argon2id-hashes the password, assigns a
// database id and a player id, and seeds one default 5x5 loadout in the
// same transaction so a fresh account can enter a match immediately.
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	hash, err := auth.CreateHash(user.Password, auth.Params)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.Password = hash

	playerID, err := newPlayerID()
	if err != nil {
		return fmt.Errorf("failed to generate player id: %w", err)
	}
	user.PlayerID = playerID

	defaultArrangement := make([]int, 25)
	for i := range defaultArrangement {
		defaultArrangement[i] = i + 1
	}

	err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		userQ := `
		INSERT INTO users (id, email, password, username, player_id)
		VALUES ($1, $2, $3, $4, $5)
		`
		if _, err := tx.Exec(ctx, userQ, user.ID, user.Email, user.Password, user.Username, user.PlayerID); err != nil {
			return err
		}
		loadoutQ := `
		INSERT INTO loadouts (id, user_id, name, grid_size, arrangement, created_at)
		VALUES ($1, $2, 'Alpha Squad', 5, $3, NOW())
		`
		_, err := tx.Exec(ctx, loadoutQ, uuid.New(), user.ID, defaultArrangement)
		return err
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateAccount
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	q := `
	SELECT id, email, password, username, player_id
	FROM users
	WHERE email = $1
	`
	err := s.pool.QueryRow(ctx, q, email).Scan(&u.ID, &u.Email, &u.Password, &u.Username, &u.PlayerID)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	q := `
	SELECT id, email, password, username, player_id
	FROM users
	WHERE id = $1
	`
	err := s.pool.QueryRow(ctx, q, id).Scan(&u.ID, &u.Email, &u.Password, &u.Username, &u.PlayerID)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// AuthenticateUser verifies credentials and returns a signed JWT.
func (s *Store) AuthenticateUser(ctx context.Context, email, password string) (string, error) {
	user, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("user not found or db error: %w", err)
	}

	match, err := auth.ComparePasswordAndHash(password, user.Password)
	if err != nil || !match {
		return "", fmt.Errorf("invalid credentials")
	}

	token, err := auth.CreateJWT(user.ID.String())
	if err != nil {
		return "", fmt.Errorf("failed to create jwt: %w", err)
	}

	return token, nil
}
