package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/termbridge/termbridge/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG creates a Postgres-backed audit repository.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *repoPG) Append(ctx context.Context, rec *Record) error {
	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO audit_logs (id, actor, action, resource_type, resource_id, detail)
		 VALUES ($1,$2,$3,NULLIF($4,''),NULLIF($5,''),$6)
		 RETURNING timestamp`,
		rec.ID, rec.Actor, rec.Action, rec.ResourceType, rec.ResourceID, rec.Detail).
		Scan(&rec.Timestamp)
	if err != nil {
		return fmt.Errorf("audit append: %w", err)
	}
	return nil
}

func (r *repoPG) Query(ctx context.Context, f Filter) ([]*Record, error) {
	where := []string{}
	args := []interface{}{}
	idx := 1

	add := func(clause, value string) {
		where = append(where, fmt.Sprintf(clause, idx))
		args = append(args, value)
		idx++
	}
	if f.Actor != "" {
		add("actor = $%d", f.Actor)
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	if f.ResourceType != "" {
		add("resource_type = $%d", f.ResourceType)
	}
	if f.ResourceID != "" {
		add("resource_id = $%d", f.ResourceID)
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	q := fmt.Sprintf(
		`SELECT id, actor, action, COALESCE(resource_type,''), COALESCE(resource_id,''), detail, timestamp
		 FROM audit_logs %s ORDER BY timestamp DESC LIMIT $%d`, whereClause, idx)
	args = append(args, limit)

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("audit query: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Actor, &rec.Action, &rec.ResourceType, &rec.ResourceID, &rec.Detail, &rec.Timestamp); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

func (r *repoPG) CountByAction(ctx context.Context) (map[string]int, error) {
	rows, err := r.conn(ctx).Query(ctx, "SELECT action, COUNT(*) FROM audit_logs GROUP BY action")
	if err != nil {
		return nil, fmt.Errorf("audit counts: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var action string
		var n int
		if err := rows.Scan(&action, &n); err != nil {
			return nil, err
		}
		counts[action] = n
	}
	return counts, rows.Err()
}

func (r *repoPG) CountActors(ctx context.Context) (int, error) {
	var n int
	if err := r.conn(ctx).QueryRow(ctx, "SELECT COUNT(DISTINCT actor) FROM audit_logs").Scan(&n); err != nil {
		return 0, fmt.Errorf("audit actor count: %w", err)
	}
	return n, nil
}
