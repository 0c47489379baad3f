package concept

import (
	"context"
	"errors"
	"fmt"

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

// NewRepoPG creates a Postgres-backed concept repository.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const conceptCols = `id, system, code, display, COALESCE(definition,''), language,
	COALESCE(source,''), COALESCE(version,''), metadata, created_at`

func scanConcept(row pgx.Row) (*Concept, error) {
	var c Concept
	err := row.Scan(&c.ID, &c.System, &c.Code, &c.Display, &c.Definition,
		&c.Language, &c.Source, &c.Version, &c.Metadata, &c.CreatedAt)
	return &c, err
}

func (r *repoPG) FindBySystemCode(ctx context.Context, system, code string) (*Concept, error) {
	q := fmt.Sprintf("SELECT %s FROM concepts WHERE system = $1 AND code = $2", conceptCols)
	c, err := scanConcept(r.conn(ctx).QueryRow(ctx, q, system, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("concept get %s|%s: %w", system, code, err)
	}
	return c, nil
}

func (r *repoPG) Search(ctx context.Context, system, query string, limit int) ([]*Concept, error) {
	if limit <= 0 {
		limit = 10
	}
	pattern := "%" + query + "%"

	where := `(code ILIKE $1 OR display ILIKE $1 OR definition ILIKE $1
	           OR (system = 'namaste' AND (metadata->>'sanskrit_name' ILIKE $1
	               OR metadata->>'english_name' ILIKE $1
	               OR metadata->>'category' ILIKE $1
	               OR metadata->>'subcategory' ILIKE $1)))`
	args := []interface{}{pattern}
	if system != "" {
		where += " AND system = $2"
		args = append(args, system)
	}
	args = append(args, limit)

	q := fmt.Sprintf("SELECT %s FROM concepts WHERE %s ORDER BY id LIMIT $%d",
		conceptCols, where, len(args))
	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("concept search: %w", err)
	}
	defer rows.Close()

	var results []*Concept
	for rows.Next() {
		c, err := scanConcept(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

func (r *repoPG) ListBySystem(ctx context.Context, system string, limit, offset int) ([]*Concept, error) {
	if limit <= 0 {
		limit = 100
	}
	q := fmt.Sprintf("SELECT %s FROM concepts WHERE system = $1 ORDER BY code LIMIT $2 OFFSET $3", conceptCols)
	rows, err := r.conn(ctx).Query(ctx, q, system, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("concept list: %w", err)
	}
	defer rows.Close()

	var results []*Concept
	for rows.Next() {
		c, err := scanConcept(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

func (r *repoPG) CountBySystem(ctx context.Context, system string) (int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx, "SELECT COUNT(*) FROM concepts WHERE system = $1", system).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("concept count: %w", err)
	}
	return total, nil
}

func (r *repoPG) ListSystems(ctx context.Context) ([]*SystemSummary, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT system, COUNT(*), COALESCE(MAX(source),''), COALESCE(MAX(version),''), COALESCE(MAX(language),'en')
		 FROM concepts GROUP BY system ORDER BY system`)
	if err != nil {
		return nil, fmt.Errorf("concept systems: %w", err)
	}
	defer rows.Close()

	var systems []*SystemSummary
	for rows.Next() {
		var s SystemSummary
		if err := rows.Scan(&s.System, &s.Count, &s.Source, &s.Version, &s.Language); err != nil {
			return nil, err
		}
		systems = append(systems, &s)
	}
	return systems, rows.Err()
}

func (r *repoPG) Insert(ctx context.Context, c *Concept) error {
	if c.Language == "" {
		c.Language = "en"
	}
	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO concepts (system, code, display, definition, language, source, version, metadata)
		 VALUES ($1,$2,$3,NULLIF($4,''),$5,NULLIF($6,''),NULLIF($7,''),$8)
		 RETURNING id, created_at`,
		c.System, c.Code, c.Display, c.Definition, c.Language, c.Source, c.Version, c.Metadata).
		Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("concept insert %s|%s: %w", c.System, c.Code, err)
	}
	return nil
}
