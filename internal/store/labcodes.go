package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/erazemk/labcodes/internal/db"
	"github.com/erazemk/labcodes/internal/model"
)

var (
	// ErrNotFound is returned when no lab code has the requested id.
	ErrNotFound = errors.New("lab code not found")

	// ErrInvalidPageSize is returned by ListPage for page sizes below one.
	ErrInvalidPageSize = errors.New("page size must be positive")
)

const labCodeColumns = `id, subject, lab_number, variant, code, created_at`

// Store is the lab code record store. Every method runs as its own statement
// on a pooled connection; no handle is held between calls.
type Store struct {
	db *db.DB
}

// New returns a store backed by the given database.
func New(database *db.DB) *Store {
	return &Store{db: database}
}

// Create inserts a new lab code and returns it with its assigned id.
func (s *Store) Create(ctx context.Context, in model.NewLabCode) (*model.LabCode, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var id int64
	err := s.db.QueryRowContext(ctx,
		s.db.Rebind(`INSERT INTO lab_codes (subject, lab_number, variant, code) VALUES (?, ?, ?, ?) RETURNING id`),
		in.Subject, in.LabNumber, in.Variant, in.Code,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("creating lab code: %w", err)
	}

	return s.Get(ctx, id)
}

// Get returns a lab code by id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (*model.LabCode, error) {
	c := &model.LabCode{}
	err := s.db.QueryRowContext(ctx,
		s.db.Rebind(`SELECT `+labCodeColumns+` FROM lab_codes WHERE id = ?`), id,
	).Scan(&c.ID, &c.Subject, &c.LabNumber, &c.Variant, &c.Code, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting lab code: %w", err)
	}
	return c, nil
}

// List returns all lab codes ordered by id.
func (s *Store) List(ctx context.Context) ([]model.LabCode, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+labCodeColumns+` FROM lab_codes ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing lab codes: %w", err)
	}
	defer rows.Close()

	return scanLabCodes(rows)
}

// ListPage returns one 1-indexed page of lab codes ordered by id together
// with the total number of pages. Pages outside 1..total are empty.
func (s *Store) ListPage(ctx context.Context, page, size int) ([]model.LabCode, int, error) {
	if size < 1 {
		return nil, 0, ErrInvalidPageSize
	}

	count, err := s.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	total := (count + size - 1) / size

	if page < 1 || page > total {
		return nil, total, nil
	}

	rows, err := s.db.QueryContext(ctx,
		s.db.Rebind(`SELECT `+labCodeColumns+` FROM lab_codes ORDER BY id LIMIT ? OFFSET ?`),
		size, (page-1)*size,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("listing lab code page: %w", err)
	}
	defer rows.Close()

	codes, err := scanLabCodes(rows)
	if err != nil {
		return nil, 0, err
	}
	return codes, total, nil
}

// ListBySubject returns the lab codes of a subject ordered by lab number,
// then variant.
func (s *Store) ListBySubject(ctx context.Context, subject string) ([]model.LabCode, error) {
	rows, err := s.db.QueryContext(ctx,
		s.db.Rebind(`SELECT `+labCodeColumns+` FROM lab_codes WHERE subject = ?
		 ORDER BY lab_number, variant, id`), subject,
	)
	if err != nil {
		return nil, fmt.Errorf("listing lab codes by subject: %w", err)
	}
	defer rows.Close()

	return scanLabCodes(rows)
}

// Subjects returns every distinct subject in ascending order.
func (s *Store) Subjects(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT subject FROM lab_codes ORDER BY subject`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing subjects: %w", err)
	}
	defer rows.Close()

	var subjects []string
	for rows.Next() {
		var subject string
		if err := rows.Scan(&subject); err != nil {
			return nil, fmt.Errorf("scanning subject: %w", err)
		}
		subjects = append(subjects, subject)
	}
	return subjects, rows.Err()
}

// Count returns the number of stored lab codes.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lab_codes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting lab codes: %w", err)
	}
	return n, nil
}

// UpdateCode replaces the code of a lab code. It reports false when no lab
// code has the id; id and created_at are never changed.
func (s *Store) UpdateCode(ctx context.Context, id int64, code string) (bool, error) {
	if err := model.ValidateField(model.FieldCode, code); err != nil {
		return false, err
	}

	result, err := s.db.ExecContext(ctx,
		s.db.Rebind(`UPDATE lab_codes SET code = ? WHERE id = ?`), code, id,
	)
	if err != nil {
		return false, fmt.Errorf("updating lab code: %w", err)
	}
	return affected(result)
}

// Delete removes a lab code. It reports false when no lab code has the id.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		s.db.Rebind(`DELETE FROM lab_codes WHERE id = ?`), id,
	)
	if err != nil {
		return false, fmt.Errorf("deleting lab code: %w", err)
	}
	return affected(result)
}

func affected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting affected rows: %w", err)
	}
	return n > 0, nil
}

func scanLabCodes(rows *sql.Rows) ([]model.LabCode, error) {
	var codes []model.LabCode
	for rows.Next() {
		var c model.LabCode
		if err := rows.Scan(&c.ID, &c.Subject, &c.LabNumber, &c.Variant, &c.Code, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning lab code: %w", err)
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}
