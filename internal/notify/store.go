package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-po/internal/shared"
)

// ErrNotificationNotFound indicates a missing notification.
var ErrNotificationNotFound = fmt.Errorf("notify: notification %w", shared.ErrNotFound)

// PgStore persists notifications in PostgreSQL.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore constructs PgStore.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Insert writes a notification row.
func (s *PgStore) Insert(ctx context.Context, n Notification) error {
	details, err := json.Marshal(n.Details)
	if err != nil {
		return err
	}
	roles := make([]string, 0, len(n.TargetRoles))
	for _, r := range n.TargetRoles {
		roles = append(roles, string(r))
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO notifications (id, type, title, message, target_roles, details, is_read, created_at)
VALUES ($1, $2, $3, $4, $5, $6, false, $7)`, n.ID, string(n.Type), n.Title, n.Message, roles, details, n.CreatedAt)
	return err
}

// List returns notifications newest first.
func (s *PgStore) List(ctx context.Context, filter ListFilter) ([]Notification, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Role != "" {
		args = append(args, string(filter.Role))
		clauses = append(clauses, fmt.Sprintf("$%d = ANY(target_roles)", len(args)))
	}
	if filter.UnreadOnly {
		clauses = append(clauses, "is_read = false")
	}
	query := `SELECT id, type, title, message, target_roles, details, is_read, created_at, read_at FROM notifications`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	args = append(args, filter.Limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Notification
	for rows.Next() {
		var (
			n       Notification
			typ     string
			roles   []string
			details []byte
		)
		if err := rows.Scan(&n.ID, &typ, &n.Title, &n.Message, &roles, &details, &n.Read, &n.CreatedAt, &n.ReadAt); err != nil {
			return nil, err
		}
		n.Type = Type(typ)
		for _, r := range roles {
			n.TargetRoles = append(n.TargetRoles, shared.Role(r))
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &n.Details); err != nil {
				return nil, err
			}
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead sets is_read and read_at.
func (s *PgStore) MarkRead(ctx context.Context, id string, at time.Time) error {
	var got string
	err := s.pool.QueryRow(ctx, `UPDATE notifications SET is_read = true, read_at = $2 WHERE id = $1 RETURNING id`, id, at).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotificationNotFound
	}
	return err
}
