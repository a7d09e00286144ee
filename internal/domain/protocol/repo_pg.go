package protocol

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trialcal/trialcal/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const visitCols = `id, study, pathway, day, visit_name, site_for_visit, payment,
	tolerance_before, tolerance_after, interval_unit, interval_value, visit_type,
	created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, v *Visit) error {
	v.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO protocol_visits (
			id, study, pathway, day, visit_name, site_for_visit, payment,
			tolerance_before, tolerance_after, interval_unit, interval_value, visit_type
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		v.ID, v.Study, v.Pathway, v.Day, v.VisitName, v.SiteForVisit, v.Payment,
		v.ToleranceBefore, v.ToleranceAfter, v.IntervalUnit, v.IntervalValue, v.VisitType,
	)
	return err
}

func (r *repoPG) CreateBatch(ctx context.Context, visits []*Visit) error {
	batch := &pgx.Batch{}
	for _, v := range visits {
		v.ID = uuid.New()
		batch.Queue(`
			INSERT INTO protocol_visits (
				id, study, pathway, day, visit_name, site_for_visit, payment,
				tolerance_before, tolerance_after, interval_unit, interval_value, visit_type
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			v.ID, v.Study, v.Pathway, v.Day, v.VisitName, v.SiteForVisit, v.Payment,
			v.ToleranceBefore, v.ToleranceAfter, v.IntervalUnit, v.IntervalValue, v.VisitType,
		)
	}
	res := r.pool.SendBatch(ctx, batch)
	defer res.Close()
	for range visits {
		if _, err := res.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return scanVisit(r.conn(ctx).QueryRow(ctx, `SELECT `+visitCols+` FROM protocol_visits WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, v *Visit) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE protocol_visits SET
			study=$2, pathway=$3, day=$4, visit_name=$5, site_for_visit=$6, payment=$7,
			tolerance_before=$8, tolerance_after=$9, interval_unit=$10, interval_value=$11,
			visit_type=$12, updated_at=NOW()
		WHERE id = $1`,
		v.ID, v.Study, v.Pathway, v.Day, v.VisitName, v.SiteForVisit, v.Payment,
		v.ToleranceBefore, v.ToleranceAfter, v.IntervalUnit, v.IntervalValue, v.VisitType,
	)
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM protocol_visits WHERE id = $1`, id)
	return err
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Visit, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM protocol_visits`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+visitCols+` FROM protocol_visits ORDER BY study, pathway, day, visit_name LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	visits, err := collectVisits(rows)
	return visits, total, err
}

func (r *repoPG) ListAll(ctx context.Context) ([]*Visit, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+visitCols+` FROM protocol_visits ORDER BY study, pathway, day, visit_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectVisits(rows)
}

func (r *repoPG) ListByStudy(ctx context.Context, study string) ([]*Visit, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+visitCols+` FROM protocol_visits WHERE study = $1 ORDER BY pathway, day, visit_name`, study)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectVisits(rows)
}

func (r *repoPG) Studies(ctx context.Context) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT DISTINCT study FROM protocol_visits ORDER BY study`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var studies []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		studies = append(studies, s)
	}
	return studies, nil
}

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	err := row.Scan(
		&v.ID, &v.Study, &v.Pathway, &v.Day, &v.VisitName, &v.SiteForVisit, &v.Payment,
		&v.ToleranceBefore, &v.ToleranceAfter, &v.IntervalUnit, &v.IntervalValue, &v.VisitType,
		&v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func collectVisits(rows pgx.Rows) ([]*Visit, error) {
	var visits []*Visit
	for rows.Next() {
		var v Visit
		err := rows.Scan(
			&v.ID, &v.Study, &v.Pathway, &v.Day, &v.VisitName, &v.SiteForVisit, &v.Payment,
			&v.ToleranceBefore, &v.ToleranceAfter, &v.IntervalUnit, &v.IntervalValue, &v.VisitType,
			&v.CreatedAt, &v.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		visits = append(visits, &v)
	}
	return visits, rows.Err()
}
