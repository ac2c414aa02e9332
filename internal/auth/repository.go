package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

type UserRepository struct {
	DB *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{DB: db}
}

func (r *UserRepository) Create(ctx context.Context, email string, passwordHash *string) (*User, error) {
	id := uuid.NewString()

	row := r.DB.QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, email, password_hash, created_at, updated_at
	`, id, email, passwordHash)

	user, err := scanUser(row)
	if err != nil {
		return nil, mapUniqueViolation(err)
	}
	return user, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := r.DB.QueryRow(ctx, `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users
		WHERE email=$1
	`, email)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return user, err
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*User, error) {
	row := r.DB.QueryRow(ctx, `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users
		WHERE id=$1
	`, id)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return user, err
}

func (r *UserRepository) UpdatePassword(ctx context.Context, userID, hashed string) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE users
		SET password_hash=$1, updated_at=NOW()
		WHERE id=$2
	`, hashed, userID)
	return err
}

func (r *UserRepository) FindBySocial(ctx context.Context, provider, providerID string) (*User, error) {
	row := r.DB.QueryRow(ctx, `
		SELECT u.id, u.email, u.password_hash, u.created_at, u.updated_at
		FROM users u
		INNER JOIN user_social_accounts sa ON sa.user_id = u.id
		WHERE sa.provider=$1 AND sa.provider_id=$2
	`, provider, providerID)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return user, err
}

func (r *UserRepository) LinkSocial(ctx context.Context, userID, provider, providerID, email string) error {
	var mail *string
	if email != "" {
		mail = &email
	}
	_, err := r.DB.Exec(ctx, `
		INSERT INTO user_social_accounts (id, user_id, provider, provider_id, email)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider, provider_id) DO UPDATE SET email=EXCLUDED.email, updated_at=NOW()
	`, uuid.NewString(), userID, provider, providerID, mail)
	return err
}

// CreateWithSocialLink inserts the user and its social account link in one
// transaction so a crash cannot leave a social user without its link.
func (r *UserRepository) CreateWithSocialLink(ctx context.Context, email, provider, providerID string) (*User, error) {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash)
		VALUES ($1, $2, NULL)
		RETURNING id, email, password_hash, created_at, updated_at
	`, uuid.NewString(), email)
	user, err := scanUser(row)
	if err != nil {
		return nil, mapUniqueViolation(err)
	}

	// Two concurrent callbacks for the same provider identity race here;
	// the loser trips the (provider, provider_id) unique index.
	if _, err := tx.Exec(ctx, `
		INSERT INTO user_social_accounts (id, user_id, provider, provider_id, email)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), user.ID, provider, providerID, email); err != nil {
		return nil, mapSocialUniqueViolation(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return user, nil
}

type TwoFactorRepository struct {
	DB *pgxpool.Pool
}

func NewTwoFactorRepository(db *pgxpool.Pool) *TwoFactorRepository {
	return &TwoFactorRepository{DB: db}
}

func (r *TwoFactorRepository) Get(ctx context.Context, userID string) (*TwoFactorSecret, error) {
	row := r.DB.QueryRow(ctx, `
		SELECT user_id, secret_encrypted, enabled, created_at, updated_at
		FROM user_2fa_secrets
		WHERE user_id=$1
	`, userID)

	var sec TwoFactorSecret
	if err := row.Scan(&sec.UserID, &sec.SecretEncrypted, &sec.Enabled, &sec.CreatedAt, &sec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &sec, nil
}

// SavePending stores a fresh enrollment, replacing any earlier pending one.
func (r *TwoFactorRepository) SavePending(ctx context.Context, userID string, secretEncrypted []byte) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO user_2fa_secrets (user_id, secret_encrypted, enabled)
		VALUES ($1, $2, FALSE)
		ON CONFLICT (user_id) DO UPDATE SET secret_encrypted=EXCLUDED.secret_encrypted, enabled=FALSE, updated_at=NOW()
	`, userID, secretEncrypted)
	return err
}

func (r *TwoFactorRepository) Enable(ctx context.Context, userID string) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE user_2fa_secrets
		SET enabled=TRUE, updated_at=NOW()
		WHERE user_id=$1
	`, userID)
	return err
}

func (r *TwoFactorRepository) Delete(ctx context.Context, userID string) error {
	_, err := r.DB.Exec(ctx, `DELETE FROM user_2fa_secrets WHERE user_id=$1`, userID)
	return err
}

type ResetTokenRepository struct {
	DB *pgxpool.Pool
}

func NewResetTokenRepository(db *pgxpool.Pool) *ResetTokenRepository {
	return &ResetTokenRepository{DB: db}
}

func (r *ResetTokenRepository) Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*PasswordResetToken, error) {
	id := uuid.NewString()
	row := r.DB.QueryRow(ctx, `
		INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, user_id, token_hash, expires_at, used_at, created_at
	`, id, userID, tokenHash, expiresAt)
	return scanResetToken(row)
}

func (r *ResetTokenRepository) FindByHash(ctx context.Context, tokenHash string) (*PasswordResetToken, error) {
	row := r.DB.QueryRow(ctx, `
		SELECT id, user_id, token_hash, expires_at, used_at, created_at
		FROM password_reset_tokens
		WHERE token_hash=$1
	`, tokenHash)
	tok, err := scanResetToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return tok, err
}

// MarkUsed flips used_at exactly once. The used_at IS NULL guard makes two
// concurrent redemptions race for a single winner.
func (r *ResetTokenRepository) MarkUsed(ctx context.Context, id string) (bool, error) {
	tag, err := r.DB.Exec(ctx, `
		UPDATE password_reset_tokens
		SET used_at=NOW()
		WHERE id=$1 AND used_at IS NULL
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ResetTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.DB.Exec(ctx, `
		DELETE FROM password_reset_tokens
		WHERE expires_at < NOW() OR used_at IS NOT NULL
	`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanUser(row pgx.Row) (*User, error) {
	var (
		id           string
		email        string
		passwordHash sql.NullString
		createdAt    time.Time
		updatedAt    time.Time
	)
	if err := row.Scan(&id, &email, &passwordHash, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	return &User{
		ID:           id,
		Email:        email,
		PasswordHash: nullStringPtr(passwordHash),
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

func scanResetToken(row pgx.Row) (*PasswordResetToken, error) {
	var (
		tok    PasswordResetToken
		usedAt sql.NullTime
	)
	if err := row.Scan(&tok.ID, &tok.UserID, &tok.TokenHash, &tok.ExpiresAt, &usedAt, &tok.CreatedAt); err != nil {
		return nil, err
	}
	tok.UsedAt = nullTimePtr(usedAt)
	return &tok, nil
}

func nullStringPtr(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrEmailExists
	}
	return err
}

func mapSocialUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrSocialLinkExists
	}
	return err
}
