package db

import (
	"database/sql"
	"strings"
	"time"

	"github.com/hpungsan/topicnav/internal/errors"
	"github.com/hpungsan/topicnav/internal/topic"
)

// Record is a stored domain with its bookkeeping columns.
type Record struct {
	topic.Domain
	NameNorm  string
	CreatedAt int64
	UpdatedAt int64
}

// ErrUniqueConstraint is returned when a write violates the sibling-name UNIQUE index.
var ErrUniqueConstraint = &errors.NavError{
	Code:    "UNIQUE_CONSTRAINT",
	Status:  409,
	Message: "unique constraint violation",
}

const selectColumns = `id, parent_id, name, name_norm, description, created_at, updated_at`

// Insert stores a new domain. The parent must already exist.
func Insert(db *sql.DB, r *Record) error {
	query := `
		INSERT INTO domains (` + selectColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query,
		r.ID, toNullString(r.ParentID), r.Name, r.NameNorm, r.Description,
		r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		if isForeignKeyError(err) {
			parent := ""
			if r.ParentID != nil {
				parent = *r.ParentID
			}
			return errors.NewNotFound(parent)
		}
		return errors.NewInternal(err)
	}

	return nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite returns "UNIQUE constraint failed: ..." for unique violations
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// GetByID retrieves a domain by id.
func GetByID(db *sql.DB, id string) (*Record, error) {
	row := db.QueryRow(`SELECT `+selectColumns+` FROM domains WHERE id = ?`, id)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return r, nil
}

// Exists reports whether a domain with the given id exists.
func Exists(db *sql.DB, id string) (bool, error) {
	var one int
	err := db.QueryRow(`SELECT 1 FROM domains WHERE id = ? LIMIT 1`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return true, nil
}

// CheckNameExists checks if a sibling under parentID already uses nameNorm.
// excludeID skips one domain, so a rename to the same name is not a conflict.
func CheckNameExists(db *sql.DB, parentID *string, nameNorm, excludeID string) (bool, error) {
	query := `
		SELECT 1 FROM domains
		WHERE COALESCE(parent_id, '') = ? AND name_norm = ? AND id != ?
		LIMIT 1
	`
	parent := ""
	if parentID != nil {
		parent = *parentID
	}

	var exists int
	err := db.QueryRow(query, parent, nameNorm, excludeID).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return true, nil
}

// ListChildren returns the children of parentID (roots when nil) in creation order.
func ListChildren(db *sql.DB, parentID *string) ([]Record, error) {
	query := `SELECT ` + selectColumns + ` FROM domains WHERE parent_id IS NULL ORDER BY created_at ASC, id ASC`
	args := []any{}
	if parentID != nil {
		query = `SELECT ` + selectColumns + ` FROM domains WHERE parent_id = ? ORDER BY created_at ASC, id ASC`
		args = append(args, *parentID)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// Ancestors returns the ancestors of id, root first, excluding id itself.
// A missing id yields NotFound.
func Ancestors(db *sql.DB, id string) ([]Record, error) {
	if ok, err := Exists(db, id); err != nil {
		return nil, err
	} else if !ok {
		return nil, errors.NewNotFound(id)
	}

	query := `
		WITH RECURSIVE chain(id, depth) AS (
			SELECT parent_id, 1 FROM domains WHERE id = ? AND parent_id IS NOT NULL
			UNION ALL
			SELECT d.parent_id, chain.depth + 1
			FROM domains d JOIN chain ON d.id = chain.id
			WHERE d.parent_id IS NOT NULL
		)
		SELECT ` + prefixed("d", selectColumns) + `
		FROM chain JOIN domains d ON d.id = chain.id
		ORDER BY chain.depth DESC
	`

	rows, err := db.Query(query, id)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// UpdateByID updates the name and description of an existing domain.
// Sets updated_at to current timestamp. Does NOT change: id, parent.
func UpdateByID(db *sql.DB, r *Record) error {
	now := time.Now().Unix()

	query := `
		UPDATE domains
		SET name = ?, name_norm = ?, description = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := db.Exec(query, r.Name, r.NameNorm, r.Description, now, r.ID)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound(r.ID)
	}

	r.UpdatedAt = now
	return nil
}

// DeleteSubtree removes id and all of its descendants and returns how many domains
// were removed. Descendants go through the ON DELETE CASCADE foreign key.
func DeleteSubtree(db *sql.DB, id string) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	defer tx.Rollback()

	countQuery := `
		WITH RECURSIVE sub(id) AS (
			SELECT id FROM domains WHERE id = ?
			UNION ALL
			SELECT d.id FROM domains d JOIN sub ON d.parent_id = sub.id
		)
		SELECT COUNT(*) FROM sub
	`
	var count int64
	if err := tx.QueryRow(countQuery, id).Scan(&count); err != nil {
		return 0, errors.NewInternal(err)
	}
	if count == 0 {
		return 0, errors.NewNotFound(id)
	}

	if _, err := tx.Exec(`DELETE FROM domains WHERE id = ?`, id); err != nil {
		return 0, errors.NewInternal(err)
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.NewInternal(err)
	}
	return count, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRecord scans a single row into a Record.
func scanRecord(row scanner) (*Record, error) {
	var (
		r        Record
		parentID sql.NullString
	)
	err := row.Scan(&r.ID, &parentID, &r.Name, &r.NameNorm, &r.Description, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.ParentID = fromNullString(parentID)
	return &r, nil
}

func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
