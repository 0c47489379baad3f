package mapping

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

// NewRepoPG creates a Postgres-backed mapping repository.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const mappingCols = `id, source_system, source_code, target_system, target_code,
	equivalence, confidence, COALESCE(method,''), evidence, COALESCE(curator,''), created_at`

func scanMapping(row pgx.Row) (*Mapping, error) {
	var m Mapping
	err := row.Scan(&m.ID, &m.SourceSystem, &m.SourceCode, &m.TargetSystem, &m.TargetCode,
		&m.Equivalence, &m.Confidence, &m.Method, &m.Evidence, &m.Curator, &m.CreatedAt)
	return &m, err
}

func (r *repoPG) queryMappings(ctx context.Context, q string, args ...interface{}) ([]*Mapping, error) {
	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("mapping query: %w", err)
	}
	defer rows.Close()

	var mappings []*Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

func (r *repoPG) FindBySource(ctx context.Context, system, code string) ([]*Mapping, error) {
	q := fmt.Sprintf(
		"SELECT %s FROM mappings WHERE source_system = $1 AND source_code = $2 ORDER BY id", mappingCols)
	return r.queryMappings(ctx, q, system, code)
}

func (r *repoPG) FindByPair(ctx context.Context, system, code string) ([]*Mapping, error) {
	q := fmt.Sprintf(
		`SELECT %s FROM mappings
		 WHERE (source_system = $1 AND source_code = $2)
		    OR (target_system = $1 AND target_code = $2)
		 ORDER BY id`, mappingCols)
	return r.queryMappings(ctx, q, system, code)
}

func (r *repoPG) FindByTuple(ctx context.Context, sourceSystem, sourceCode, targetSystem, targetCode string) (*Mapping, error) {
	q := fmt.Sprintf(
		`SELECT %s FROM mappings
		 WHERE source_system = $1 AND source_code = $2 AND target_system = $3 AND target_code = $4`, mappingCols)
	m, err := scanMapping(r.conn(ctx).QueryRow(ctx, q, sourceSystem, sourceCode, targetSystem, targetCode))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mapping get: %w", err)
	}
	return m, nil
}

func (r *repoPG) Insert(ctx context.Context, m *Mapping) error {
	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO mappings (source_system, source_code, target_system, target_code,
		                       equivalence, confidence, method, evidence, curator)
		 VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),$8,NULLIF($9,''))
		 RETURNING id, created_at`,
		m.SourceSystem, m.SourceCode, m.TargetSystem, m.TargetCode,
		m.Equivalence, m.Confidence, m.Method, m.Evidence, m.Curator).
		Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("mapping insert: %w", err)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f ListFilter) ([]*Mapping, int, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	where := "WHERE ($1 = '' OR source_system = $1) AND ($2 = '' OR target_system = $2)"

	var total int
	err := r.conn(ctx).QueryRow(ctx, "SELECT COUNT(*) FROM mappings "+where,
		f.SourceSystem, f.TargetSystem).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("mapping count: %w", err)
	}

	q := fmt.Sprintf("SELECT %s FROM mappings %s ORDER BY id LIMIT $3 OFFSET $4", mappingCols, where)
	mappings, err := r.queryMappings(ctx, q, f.SourceSystem, f.TargetSystem, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, err
	}
	return mappings, total, nil
}

func (r *repoPG) Statistics(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByEquivalence: map[string]int{}, BySourceSystem: map[string]int{}}

	err := r.conn(ctx).QueryRow(ctx,
		"SELECT COUNT(*), COALESCE(AVG(confidence),0) FROM mappings").
		Scan(&stats.Total, &stats.AvgConfidence)
	if err != nil {
		return nil, fmt.Errorf("mapping stats: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, "SELECT equivalence, COUNT(*) FROM mappings GROUP BY equivalence")
	if err != nil {
		return nil, fmt.Errorf("mapping stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var eq string
		var n int
		if err := rows.Scan(&eq, &n); err != nil {
			return nil, err
		}
		stats.ByEquivalence[eq] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.conn(ctx).Query(ctx, "SELECT source_system, COUNT(*) FROM mappings GROUP BY source_system")
	if err != nil {
		return nil, fmt.Errorf("mapping stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sys string
		var n int
		if err := rows.Scan(&sys, &n); err != nil {
			return nil, err
		}
		stats.BySourceSystem[sys] = n
	}
	return stats, rows.Err()
}
