package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type Session struct {
	ID        string
	Token     string
	UserID    string
	Email     string
	UserType  int64
	CreatedAt int64
	ExpiresAt int64
}

type ActivityLog struct {
	ID         string
	Kind       string
	UserID     string
	Email      string
	Quantity   int64
	Price      float64
	Month      int64
	Year       int64
	OccurredAt int64
	ExportedAt sql.NullInt64
}

const upsertSession = `-- name: UpsertSession :exec
INSERT INTO sessions (id, token, user_id, email, user_type, created_at, expires_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    token = excluded.token,
    user_id = excluded.user_id,
    email = excluded.email,
    user_type = excluded.user_type,
    expires_at = excluded.expires_at
`

func (q *Queries) UpsertSession(ctx context.Context, arg Session) error {
	_, err := q.db.ExecContext(ctx, upsertSession,
		arg.ID,
		arg.Token,
		arg.UserID,
		arg.Email,
		arg.UserType,
		arg.CreatedAt,
		arg.ExpiresAt,
	)
	return err
}

const getSession = `-- name: GetSession :one
SELECT id, token, user_id, email, user_type, created_at, expires_at
FROM sessions
WHERE id = ?
`

func (q *Queries) GetSession(ctx context.Context, id string) (Session, error) {
	row := q.db.QueryRowContext(ctx, getSession, id)
	var i Session
	err := row.Scan(
		&i.ID,
		&i.Token,
		&i.UserID,
		&i.Email,
		&i.UserType,
		&i.CreatedAt,
		&i.ExpiresAt,
	)
	return i, err
}

const deleteSession = `-- name: DeleteSession :exec
DELETE FROM sessions WHERE id = ?
`

func (q *Queries) DeleteSession(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, deleteSession, id)
	return err
}

const deleteExpiredSessions = `-- name: DeleteExpiredSessions :execrows
DELETE FROM sessions WHERE expires_at <= ?
`

func (q *Queries) DeleteExpiredSessions(ctx context.Context, now int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteExpiredSessions, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const insertActivity = `-- name: InsertActivity :exec
INSERT OR IGNORE INTO activity_log (id, kind, user_id, email, quantity, price, month, year, occurred_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) InsertActivity(ctx context.Context, arg ActivityLog) error {
	_, err := q.db.ExecContext(ctx, insertActivity,
		arg.ID,
		arg.Kind,
		arg.UserID,
		arg.Email,
		arg.Quantity,
		arg.Price,
		arg.Month,
		arg.Year,
		arg.OccurredAt,
	)
	return err
}

const activityColumns = `id, kind, user_id, email, quantity, price, month, year, occurred_at, exported_at`

const listRecentActivity = `-- name: ListRecentActivity :many
SELECT ` + activityColumns + `
FROM activity_log
ORDER BY occurred_at DESC
LIMIT ?
`

func (q *Queries) ListRecentActivity(ctx context.Context, limit int64) ([]ActivityLog, error) {
	return q.listActivity(ctx, listRecentActivity, limit)
}

const listUnexportedActivity = `-- name: ListUnexportedActivity :many
SELECT ` + activityColumns + `
FROM activity_log
WHERE exported_at IS NULL
ORDER BY occurred_at ASC
LIMIT ?
`

func (q *Queries) ListUnexportedActivity(ctx context.Context, limit int64) ([]ActivityLog, error) {
	return q.listActivity(ctx, listUnexportedActivity, limit)
}

const getActivityExportedAt = `-- name: GetActivityExportedAt :one
SELECT exported_at FROM activity_log WHERE id = ?
`

func (q *Queries) GetActivityExportedAt(ctx context.Context, id string) (sql.NullInt64, error) {
	row := q.db.QueryRowContext(ctx, getActivityExportedAt, id)
	var exportedAt sql.NullInt64
	err := row.Scan(&exportedAt)
	return exportedAt, err
}

const markActivityExported = `-- name: MarkActivityExported :exec
UPDATE activity_log SET exported_at = ? WHERE id = ?
`

func (q *Queries) MarkActivityExported(ctx context.Context, exportedAt int64, id string) error {
	_, err := q.db.ExecContext(ctx, markActivityExported, exportedAt, id)
	return err
}

func (q *Queries) listActivity(ctx context.Context, query string, limit int64) ([]ActivityLog, error) {
	rows, err := q.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ActivityLog
	for rows.Next() {
		var i ActivityLog
		if err := rows.Scan(
			&i.ID,
			&i.Kind,
			&i.UserID,
			&i.Email,
			&i.Quantity,
			&i.Price,
			&i.Month,
			&i.Year,
			&i.OccurredAt,
			&i.ExportedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
