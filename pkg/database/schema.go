package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator verifies the deployed schema against the engine's
// expectations, independent of the migration system.
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator.
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// ValidateTablesExist verifies that all required tables exist.
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"sessions":          "Session lifecycle rows",
		"enrollments":       "First-seen-wins roster",
		"attendance":        "Per-day presence marks",
		"participation":     "Per-day engagement counters",
		"polls":             "Poll definitions",
		"poll_responses":    "One response per student per poll",
		"session_settings":  "Per-session display flags",
		"grade_summaries":   "End-of-session gradebook rows",
		"schema_migrations": "Migration tracking",
	}

	for table, description := range requiredTables {
		exists, err := v.tableExists(table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}

	return nil
}

// ValidateTableStructure verifies column types match the Go structs that
// scan them.
func (v *SchemaValidator) ValidateTableStructure() error {
	checks := []struct {
		table   string
		columns map[string]string
	}{
		{"sessions", map[string]string{
			"id":         "TEXT",
			"name":       "TEXT",
			"code":       "TEXT",
			"created_by": "TEXT",
			"active":     "INTEGER",
			"created_at": "DATETIME",
		}},
		{"enrollments", map[string]string{
			"session_id":  "TEXT",
			"student_id":  "TEXT",
			"enrolled_at": "DATETIME",
		}},
		{"attendance", map[string]string{
			"session_id": "TEXT",
			"student_id": "TEXT",
			"day":        "TEXT",
			"present":    "INTEGER",
			"marked_at":  "DATETIME",
		}},
		{"participation", map[string]string{
			"session_id":       "TEXT",
			"student_id":       "TEXT",
			"day":              "TEXT",
			"hand_raises":      "INTEGER",
			"reactions_up":     "INTEGER",
			"reactions_down":   "INTEGER",
			"peer_grade":       "REAL",
			"instructor_grade": "REAL",
		}},
		{"polls", map[string]string{
			"id":            "TEXT",
			"session_id":    "TEXT",
			"question":      "TEXT",
			"options":       "TEXT",
			"correct_index": "INTEGER",
			"anonymous":     "INTEGER",
			"open":          "INTEGER",
			"day":           "TEXT",
			"created_at":    "DATETIME",
		}},
		{"poll_responses", map[string]string{
			"poll_id":      "TEXT",
			"student_id":   "TEXT",
			"option_index": "INTEGER",
			"correct":      "INTEGER",
			"submitted_at": "DATETIME",
		}},
	}

	for _, check := range checks {
		if err := v.validateColumns(check.table, check.columns); err != nil {
			return fmt.Errorf("%s table structure invalid: %w", check.table, err)
		}
	}

	return nil
}

// ValidateIndexes verifies that the engine's uniqueness and lookup indexes
// exist.
func (v *SchemaValidator) ValidateIndexes() error {
	requiredIndexes := map[string]string{
		"idx_sessions_active_code":      "Active join-code uniqueness",
		"idx_sessions_active":           "Active session listing",
		"idx_sessions_created_by":       "Session ownership queries",
		"idx_attendance_session_day":    "Daily attendance counts",
		"idx_participation_session_day": "Daily counter totals",
		"idx_polls_session_open":        "Open poll lookup",
		"idx_polls_session_day":         "Poll accuracy day scoping",
	}

	for index, purpose := range requiredIndexes {
		exists, err := v.indexExists(index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}

	return nil
}

// ValidateConstraints verifies the insert-or-reject constraints the engine's
// idempotency invariants rely on.
func (v *SchemaValidator) ValidateConstraints() error {
	_, err := v.db.Exec(`
		INSERT INTO sessions (id, name, code, created_by, active, created_at)
		VALUES ('schema-check', 'Check', 'CHK1', 'prof1', 0, CURRENT_TIMESTAMP)
	`)
	if err != nil {
		return fmt.Errorf("failed to create check session: %w", err)
	}
	defer func() {
		_, _ = v.db.Exec("DELETE FROM sessions WHERE id = 'schema-check'")
	}()

	// Duplicate enrollment must be rejected.
	for i := 0; i < 2; i++ {
		_, err = v.db.Exec(`
			INSERT INTO enrollments (session_id, student_id, enrolled_at)
			VALUES ('schema-check', 'stu1', CURRENT_TIMESTAMP)
		`)
	}
	if err == nil {
		return fmt.Errorf("unique constraint not enforced: enrollments(session_id, student_id)")
	}

	// Responses to a missing poll must be rejected.
	_, err = v.db.Exec(`
		INSERT INTO poll_responses (poll_id, student_id, option_index, correct, submitted_at)
		VALUES ('nonexistent', 'stu1', 0, 0, CURRENT_TIMESTAMP)
	`)
	if err == nil {
		_, _ = v.db.Exec("DELETE FROM poll_responses WHERE poll_id = 'nonexistent'")
		return fmt.Errorf("foreign key constraint not enforced: poll_responses.poll_id")
	}

	return nil
}

// tableExists checks if a table exists in the database.
func (v *SchemaValidator) tableExists(tableName string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
		tableName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// indexExists checks if an index exists in the database.
func (v *SchemaValidator) indexExists(indexName string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?",
		indexName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// validateColumns checks that a table has the expected columns with correct
// types.
func (v *SchemaValidator) validateColumns(tableName string, expectedColumns map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	foundColumns := make(map[string]string)
	for rows.Next() {
		var cid int
		var name, dataType string
		var notNull int
		var defaultValue interface{}
		var pk int

		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return err
		}

		foundColumns[name] = dataType
	}

	for expectedCol, expectedType := range expectedColumns {
		foundType, exists := foundColumns[expectedCol]
		if !exists {
			return fmt.Errorf("column %s not found", expectedCol)
		}
		if foundType != expectedType {
			return fmt.Errorf("column %s has type %s, expected %s", expectedCol, foundType, expectedType)
		}
	}

	return rows.Err()
}
