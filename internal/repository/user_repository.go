package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/workspace-service/internal/domain"
	apperrors "github.com/spec-kit/workspace-service/pkg/util"
)

// UserRepository defines persistence access for workspace owners.
type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByAPIPublic(ctx context.Context, apiPublic string) (*domain.User, error)
	FindByDockerIP(ctx context.Context, ip string) ([]*domain.User, error)
	UpdateDocker(ctx context.Context, username string, docker domain.DockerInfo, expectedVersion int64) error
	ClearDockerIP(ctx context.Context, userID, ip string) error
	ClearDockerOld(ctx context.Context, userID, oldID string) error
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `id, username, email, display_name, role, api_public, api_secret,
        password_hash, docker, docker_version, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.DisplayName,
		&user.Role,
		&user.APIPublic,
		&user.APISecret,
		&user.PasswordHash,
		&user.Docker,
		&user.DockerVersion,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE username=$1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", map[string]any{"username": username})
		}
		return nil, apperrors.NewStoreError(err)
	}
	return user, nil
}

func (r *userRepository) GetByAPIPublic(ctx context.Context, apiPublic string) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE api_public=$1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, apiPublic))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", nil)
		}
		return nil, apperrors.NewStoreError(err)
	}
	return user, nil
}

// FindByDockerIP returns every user record currently claiming the given IP.
// An empty result is not an error.
func (r *userRepository) FindByDockerIP(ctx context.Context, ip string) ([]*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE docker->>'ip' = $1`

	rows, err := r.pool.Query(ctx, query, ip)
	if err != nil {
		return nil, apperrors.NewStoreError(err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, apperrors.NewStoreError(err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreError(err)
	}
	return users, nil
}

// UpdateDocker replaces the docker sub-document, guarded by the version the
// caller last observed. A stale version surfaces CONFLICT so the caller can
// re-read and retry.
func (r *userRepository) UpdateDocker(ctx context.Context, username string, docker domain.DockerInfo, expectedVersion int64) error {
	const query = `
        UPDATE users SET docker=$1, docker_version=docker_version+1, updated_at=NOW()
        WHERE username=$2 AND docker_version=$3`

	cmd, err := r.pool.Exec(ctx, query, docker, username, expectedVersion)
	if err != nil {
		return apperrors.NewStoreError(err)
	}
	if cmd.RowsAffected() == 0 {
		return apperrors.NewConflict("workspace record changed since read", map[string]any{
			"username": username,
		})
	}
	return nil
}

// ClearDockerIP drops the ip field only if the record still claims that IP.
// Zero rows affected means another pass already cleared it.
func (r *userRepository) ClearDockerIP(ctx context.Context, userID, ip string) error {
	const query = `
        UPDATE users SET docker = docker - 'ip', docker_version=docker_version+1, updated_at=NOW()
        WHERE id=$1 AND docker->>'ip' = $2`

	if _, err := r.pool.Exec(ctx, query, userID, ip); err != nil {
		return apperrors.NewStoreError(err)
	}
	return nil
}

// ClearDockerOld drops the old container identity once its teardown is
// confirmed, only if it still names the identity that was removed.
func (r *userRepository) ClearDockerOld(ctx context.Context, userID, oldID string) error {
	const query = `
        UPDATE users SET docker = docker - 'old', docker_version=docker_version+1, updated_at=NOW()
        WHERE id=$1 AND docker->>'old' = $2`

	if _, err := r.pool.Exec(ctx, query, userID, oldID); err != nil {
		return apperrors.NewStoreError(err)
	}
	return nil
}
