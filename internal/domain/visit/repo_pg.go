package visit

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

const visitCols = `id, patient_id, study, visit_name, actual_date, notes, visit_type,
	created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, v *ActualVisit) error {
	v.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO actual_visits (id, patient_id, study, visit_name, actual_date, notes, visit_type)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		v.ID, v.PatientID, v.Study, v.VisitName, v.ActualDate, v.Notes, v.VisitType,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*ActualVisit, error) {
	return scanVisit(r.conn(ctx).QueryRow(ctx, `SELECT `+visitCols+` FROM actual_visits WHERE id = $1`, id))
}

func (r *repoPG) UpdateType(ctx context.Context, id uuid.UUID, visitType string) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE actual_visits SET visit_type = $2, updated_at = NOW() WHERE id = $1`, id, visitType)
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM actual_visits WHERE id = $1`, id)
	return err
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*ActualVisit, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM actual_visits`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+visitCols+` FROM actual_visits ORDER BY actual_date DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	visits, err := collectVisits(rows)
	return visits, total, err
}

func (r *repoPG) ListAll(ctx context.Context) ([]*ActualVisit, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+visitCols+` FROM actual_visits ORDER BY study, actual_date, visit_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectVisits(rows)
}

func (r *repoPG) ListByStudy(ctx context.Context, study string) ([]*ActualVisit, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+visitCols+` FROM actual_visits WHERE study = $1 ORDER BY actual_date, visit_name`, study)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectVisits(rows)
}

func (r *repoPG) ListByPatient(ctx context.Context, study, patientID string) ([]*ActualVisit, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+visitCols+` FROM actual_visits WHERE study = $1 AND patient_id = $2 ORDER BY actual_date, visit_name`,
		study, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectVisits(rows)
}

const eventCols = `id, study, visit_name, actual_date, status, site_for_visit, created_at, updated_at`

func (r *repoPG) CreateEvent(ctx context.Context, e *StudyEvent) error {
	e.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO study_events (id, study, visit_name, actual_date, status, site_for_visit)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		e.ID, e.Study, e.VisitName, e.ActualDate, e.Status, e.SiteForVisit,
	)
	return err
}

func (r *repoPG) GetEventByID(ctx context.Context, id uuid.UUID) (*StudyEvent, error) {
	return scanEvent(r.conn(ctx).QueryRow(ctx, `SELECT `+eventCols+` FROM study_events WHERE id = $1`, id))
}

func (r *repoPG) UpdateEvent(ctx context.Context, e *StudyEvent) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE study_events SET
			study=$2, visit_name=$3, actual_date=$4, status=$5, site_for_visit=$6, updated_at=NOW()
		WHERE id = $1`,
		e.ID, e.Study, e.VisitName, e.ActualDate, e.Status, e.SiteForVisit,
	)
	return err
}

func (r *repoPG) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM study_events WHERE id = $1`, id)
	return err
}

func (r *repoPG) ListEvents(ctx context.Context, limit, offset int) ([]*StudyEvent, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM study_events`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+eventCols+` FROM study_events ORDER BY actual_date DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	events, err := collectEvents(rows)
	return events, total, err
}

func (r *repoPG) ListAllEvents(ctx context.Context) ([]*StudyEvent, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+eventCols+` FROM study_events ORDER BY study, actual_date, visit_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (r *repoPG) ListEventsByStudy(ctx context.Context, study string) ([]*StudyEvent, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+eventCols+` FROM study_events WHERE study = $1 ORDER BY actual_date, visit_name`, study)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func scanVisit(row pgx.Row) (*ActualVisit, error) {
	var v ActualVisit
	err := row.Scan(
		&v.ID, &v.PatientID, &v.Study, &v.VisitName, &v.ActualDate, &v.Notes, &v.VisitType,
		&v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func collectVisits(rows pgx.Rows) ([]*ActualVisit, error) {
	var visits []*ActualVisit
	for rows.Next() {
		var v ActualVisit
		err := rows.Scan(
			&v.ID, &v.PatientID, &v.Study, &v.VisitName, &v.ActualDate, &v.Notes, &v.VisitType,
			&v.CreatedAt, &v.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		visits = append(visits, &v)
	}
	return visits, rows.Err()
}

func scanEvent(row pgx.Row) (*StudyEvent, error) {
	var e StudyEvent
	err := row.Scan(
		&e.ID, &e.Study, &e.VisitName, &e.ActualDate, &e.Status, &e.SiteForVisit,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func collectEvents(rows pgx.Rows) ([]*StudyEvent, error) {
	var events []*StudyEvent
	for rows.Next() {
		var e StudyEvent
		err := rows.Scan(
			&e.ID, &e.Study, &e.VisitName, &e.ActualDate, &e.Status, &e.SiteForVisit,
			&e.CreatedAt, &e.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
