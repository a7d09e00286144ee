package patient

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

const patientCols = `id, patient_id, study, pathway, start_date, patient_practice,
	site_seen_at, status, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (
			id, patient_id, study, pathway, start_date, patient_practice, site_seen_at, status
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.PatientID, p.Study, p.Pathway, p.StartDate, p.PatientPractice, p.SiteSeenAt, p.Status,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET
			patient_id=$2, study=$3, pathway=$4, start_date=$5, patient_practice=$6,
			site_seen_at=$7, status=$8, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.PatientID, p.Study, p.Pathway, p.StartDate, p.PatientPractice, p.SiteSeenAt, p.Status,
	)
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	return err
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+patientCols+` FROM patients ORDER BY study, patient_id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	patients, err := collectPatients(rows)
	return patients, total, err
}

func (r *repoPG) ListAll(ctx context.Context) ([]*Patient, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+patientCols+` FROM patients ORDER BY study, patient_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPatients(rows)
}

func (r *repoPG) ListByStudy(ctx context.Context, study string) ([]*Patient, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+patientCols+` FROM patients WHERE study = $1 ORDER BY patient_id`, study)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPatients(rows)
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.PatientID, &p.Study, &p.Pathway, &p.StartDate, &p.PatientPractice,
		&p.SiteSeenAt, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectPatients(rows pgx.Rows) ([]*Patient, error) {
	var patients []*Patient
	for rows.Next() {
		var p Patient
		err := rows.Scan(
			&p.ID, &p.PatientID, &p.Study, &p.Pathway, &p.StartDate, &p.PatientPractice,
			&p.SiteSeenAt, &p.Status, &p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		patients = append(patients, &p)
	}
	return patients, rows.Err()
}
