package history

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Record is one prior encounter used to condition document generation.
// Read-only input; immutable for the duration of one generation run.
type Record struct {
	ID           string
	PatientID    string
	PatientEmail string
	CreatedAt    time.Time
	Summary      string
	ClinicalNote string
	Prescription string
}

// Encounter is a finished consultation persisted after generation.
type Encounter struct {
	ID             string
	PatientID      string
	PatientEmail   string
	CreatedAt      time.Time
	Transcript     string
	Summary        string
	ClinicalNote   string
	Prescription   string
	StructuredJSON string
}

const schema = `
CREATE TABLE IF NOT EXISTS encounters (
	id              TEXT PRIMARY KEY,
	patient_id      TEXT NOT NULL DEFAULT '',
	patient_email   TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMP NOT NULL,
	transcript      TEXT NOT NULL DEFAULT '',
	summary         TEXT NOT NULL DEFAULT '',
	clinical_note   TEXT NOT NULL DEFAULT '',
	prescription    TEXT NOT NULL DEFAULT '',
	structured_json TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_encounters_patient ON encounters (patient_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_encounters_email ON encounters (patient_email, created_at DESC);
`

// Store is the sqlite-backed encounter store.
type Store struct {
	db *sql.DB
}

// Open opens (and migrates) the encounter database at path. Use ":memory:"
// for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open encounter store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate encounter store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save persists one finished encounter.
func (s *Store) Save(ctx context.Context, enc Encounter) error {
	if enc.ID == "" {
		enc.ID = uuid.NewString()
	}
	if enc.CreatedAt.IsZero() {
		enc.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO encounters (id, patient_id, patient_email, created_at, transcript, summary, clinical_note, prescription, structured_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		enc.ID, enc.PatientID, enc.PatientEmail, enc.CreatedAt,
		enc.Transcript, enc.Summary, enc.ClinicalNote, enc.Prescription, enc.StructuredJSON,
	)
	if err != nil {
		return fmt.Errorf("save encounter: %w", err)
	}
	return nil
}

// Recent returns up to limit prior encounters for a patient identified by
// record id or email, newest-first. No prior records is an empty slice, not
// an error.
func (s *Store) Recent(ctx context.Context, patient string, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, patient_id, patient_email, created_at, summary, clinical_note, prescription
		FROM encounters
		WHERE patient_id = ? OR patient_email = ?
		ORDER BY created_at DESC
		LIMIT ?`,
		patient, patient, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query encounters: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.PatientID, &r.PatientEmail, &r.CreatedAt, &r.Summary, &r.ClinicalNote, &r.Prescription); err != nil {
			return nil, fmt.Errorf("scan encounter: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// MaxRecords is how many prior encounters condition one generation run.
const MaxRecords = 5

// Loader fetches the prior-encounter context for document generation.
type Loader struct {
	store   *Store
	timeout time.Duration
}

func NewLoader(store *Store) *Loader {
	return &Loader{store: store, timeout: 10 * time.Second}
}

// Load returns up to MaxRecords prior encounters. Errors are reported so the
// caller can degrade to history-less generation.
func (l *Loader) Load(ctx context.Context, patient string) ([]Record, error) {
	if patient == "" {
		return nil, nil
	}

	loadCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	records, err := l.store.Recent(loadCtx, patient, MaxRecords)
	if err != nil {
		return nil, err
	}
	log.Printf("history: loaded %d prior encounters for patient", len(records))
	return records, nil
}
