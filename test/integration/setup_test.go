package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/trialcal/trialcal/internal/domain/patient"
	"github.com/trialcal/trialcal/internal/domain/protocol"
	"github.com/trialcal/trialcal/internal/domain/visit"
	"github.com/trialcal/trialcal/internal/platform/db"
)

// testDB holds the shared database infrastructure for integration tests.
type testDB struct {
	Pool          *pgxpool.Pool
	ConnStr       string
	MigrationsDir string
}

// globalDB is the package-level test database, initialized once in TestMain.
var globalDB *testDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	tdb, cleanup, err := setupPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up postgres container: %v\n", err)
		os.Exit(1)
	}

	if _, err := db.NewMigrator(tdb.Pool, tdb.MigrationsDir).Up(ctx); err != nil {
		cleanup()
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		os.Exit(1)
	}

	globalDB = tdb
	code := m.Run()
	cleanup()
	os.Exit(code)
}

// setupPostgres starts the database container and connects a pool to it. All
// tests share one database and one migrated schema; isolation comes from
// unique study codes.
func setupPostgres(ctx context.Context) (*testDB, func(), error) {
	connStr, cleanup, err := startPostgres(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("start postgres container: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		cleanup()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	return &testDB{
		Pool:          pool,
		ConnStr:       connStr,
		MigrationsDir: findMigrationsDir(),
	}, func() {
		pool.Close()
		cleanup()
	}, nil
}

// findMigrationsDir locates the migrations directory relative to this test file.
func findMigrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	// test/integration -> repo root
	root := filepath.Join(dir, "..", "..")
	return filepath.Join(root, "migrations")
}

// uniqueStudy generates a unique study code so tests sharing the database do
// not see each other's rows.
func uniqueStudy(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, strings.ToUpper(uuid.New().String()[:8]))
}

// cleanupStudy removes every row a test created under a study code.
func cleanupStudy(t *testing.T, ctx context.Context, study string) {
	t.Helper()
	for _, table := range []string{"protocol_visits", "patients", "actual_visits", "study_events"} {
		_, err := globalDB.Pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE study = $1", table), study)
		if err != nil {
			t.Logf("warning: failed to clean up %s for study %s: %v", table, study, err)
		}
	}
}

// withConn pins one pooled connection into the context and passes it to the
// callback, so several repository calls share a single session. The
// connection is released after the callback.
func withConn(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context) error) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Release()
	return fn(db.WithConn(ctx, conn))
}

// day builds a date at midnight UTC, the normal form for all visit dates.
func day(y int, mo time.Month, d int) time.Time {
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

// Helper to create one protocol visit row
func createTestProtocolVisit(t *testing.T, ctx context.Context, study string, dayNum int, name string, payment float64, tolBefore, tolAfter int) *protocol.Visit {
	t.Helper()
	v := &protocol.Visit{
		Study:           study,
		Pathway:         "standard",
		Day:             dayNum,
		VisitName:       name,
		Payment:         decimal.NewFromFloat(payment),
		ToleranceBefore: tolBefore,
		ToleranceAfter:  tolAfter,
	}
	if err := protocol.NewRepo(globalDB.Pool).Create(ctx, v); err != nil {
		t.Fatalf("create protocol visit %s: %v", name, err)
	}
	return v
}

// Helper to create an enrolled patient
func createTestPatient(t *testing.T, ctx context.Context, study, patientID string, start time.Time, practice string) *patient.Patient {
	t.Helper()
	p := &patient.Patient{
		PatientID:       patientID,
		Study:           study,
		Pathway:         "standard",
		StartDate:       start,
		PatientPractice: practice,
		Status:          "randomized",
	}
	if err := patient.NewRepo(globalDB.Pool).Create(ctx, p); err != nil {
		t.Fatalf("create patient %s: %v", patientID, err)
	}
	return p
}

// Helper to record an actual visit
func createTestVisit(t *testing.T, ctx context.Context, study, patientID, name string, date time.Time, notes, visitType string) *visit.ActualVisit {
	t.Helper()
	v := &visit.ActualVisit{
		PatientID:  patientID,
		Study:      study,
		VisitName:  name,
		ActualDate: date,
		Notes:      notes,
		VisitType:  visitType,
	}
	if err := visit.NewRepo(globalDB.Pool).Create(ctx, v); err != nil {
		t.Fatalf("create visit %s/%s: %v", patientID, name, err)
	}
	return v
}

// Helper to record a site-wide study event
func createTestStudyEvent(t *testing.T, ctx context.Context, study, name string, date time.Time, status, site string) *visit.StudyEvent {
	t.Helper()
	e := &visit.StudyEvent{
		Study:        study,
		VisitName:    name,
		ActualDate:   date,
		Status:       status,
		SiteForVisit: site,
	}
	if err := visit.NewRepo(globalDB.Pool).CreateEvent(ctx, e); err != nil {
		t.Fatalf("create study event %s: %v", name, err)
	}
	return e
}
