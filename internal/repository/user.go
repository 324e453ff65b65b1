package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/starterkit/starterkit/internal/model"
)

// Common errors for user repository operations.
var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUserConflict  = errors.New("user conflicts with an existing record")
	ErrInvalidCursor = errors.New("invalid pagination cursor")
)

// UserFilter defines filters for listing users.
type UserFilter struct {
	// Email matches exactly when non-empty.
	Email string
}

// PaginationCursor represents decoded cursor for pagination.
type PaginationCursor struct {
	ID int64 `json:"id"`
}

const userColumns = `id, email, created_at`

// CreateUser inserts a user with the given email.
// The id and created_at are assigned by the database and returned on the new record.
func (r *Repository) CreateUser(ctx context.Context, email string) (*model.User, error) {
	query := `
		INSERT INTO users (email)
		VALUES ($1)
		RETURNING ` + userColumns

	user, err := scanUser(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUserConflict
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// GetUserByID retrieves a user by their ID.
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1
	`

	user, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}

	return user, nil
}

// ListUsers retrieves a page of users in insertion (id) order.
// The returned cursor is empty when there are no further pages.
func (r *Repository) ListUsers(ctx context.Context, filter UserFilter, cursor string, limit int) ([]*model.User, string, error) {
	var cursorData *PaginationCursor
	if cursor != "" {
		var err error
		cursorData, err = decodeCursor(cursor)
		if err != nil {
			return nil, "", ErrInvalidCursor
		}
	}

	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE TRUE
	`
	args := []any{}
	argIndex := 1

	if cursorData != nil {
		query += fmt.Sprintf(" AND id > $%d", argIndex)
		args = append(args, cursorData.ID)
		argIndex++
	}

	if filter.Email != "" {
		query += fmt.Sprintf(" AND email = $%d", argIndex)
		args = append(args, filter.Email)
		argIndex++
	}

	query += fmt.Sprintf(" ORDER BY id ASC LIMIT $%d", argIndex)
	args = append(args, limit+1) // Fetch one extra to determine hasMore

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, "", fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("error iterating users: %w", err)
	}

	var nextCursor string
	if len(users) > limit {
		users = users[:limit]
		nextCursor = encodeCursor(&PaginationCursor{ID: users[len(users)-1].ID})
	}

	return users, nextCursor, nil
}

// CountUsers returns the number of stored users.
func (r *Repository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// scanUser scans a single row into a User model.
func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	if err := row.Scan(&user.ID, &user.Email, &user.CreatedAt); err != nil {
		return nil, err
	}
	// The cache stores UTC; keep both read paths byte-identical.
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

// encodeCursor encodes pagination cursor to base64.
func encodeCursor(cursor *PaginationCursor) string {
	data, _ := json.Marshal(cursor)
	return base64.URLEncoding.EncodeToString(data)
}

// decodeCursor decodes base64 pagination cursor.
func decodeCursor(s string) (*PaginationCursor, error) {
	data, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}

	var cursor PaginationCursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, err
	}
	if cursor.ID <= 0 {
		return nil, ErrInvalidCursor
	}

	return &cursor, nil
}
