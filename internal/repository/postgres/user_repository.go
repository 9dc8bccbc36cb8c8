package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloud-wave-best-zizon/commerce-service/internal/domain"
)

const userColumns = `id, name, email, created_at, updated_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.UserID, &u.Name, &u.Email, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (r *UserRepository) CreateUser(ctx context.Context, user *domain.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, name, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		user.UserID, user.Name, user.Email, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return domain.ErrUserExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
	if isNoRows(err) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

func (r *UserRepository) ListUsers(ctx context.Context, page domain.Page) (domain.UserPage, error) {
	page = page.Normalize()
	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE id > $1 ORDER BY id LIMIT $2`,
		page.Cursor, page.Limit+1)
	if err != nil {
		return domain.UserPage{}, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var res domain.UserPage
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return domain.UserPage{}, fmt.Errorf("scan user: %w", err)
		}
		res.Items = append(res.Items, u)
	}
	if err := rows.Err(); err != nil {
		return domain.UserPage{}, err
	}

	if len(res.Items) > page.Limit {
		res.Items = res.Items[:page.Limit]
		res.NextCursor = res.Items[page.Limit-1].UserID
	}
	return res, nil
}

func (r *UserRepository) UpdateUser(ctx context.Context, userID string, req domain.UpdateUserRequest) (*domain.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `
		UPDATE users
		SET name = COALESCE($2, name),
			email = COALESCE($3, email),
			updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns,
		userID, req.Name, req.Email,
	))
	switch {
	case isNoRows(err):
		return nil, domain.ErrUserNotFound
	case pgCode(err) == codeUniqueViolation:
		return nil, domain.ErrUserExists
	case err != nil:
		return nil, fmt.Errorf("update user: %w", err)
	}
	return &u, nil
}

func (r *UserRepository) DeleteUser(ctx context.Context, userID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return domain.ErrUserHasOrders
		}
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}
