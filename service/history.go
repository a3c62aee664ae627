package service

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"droidagent/models"
)

// StepStore persists executed steps to SQLite
type StepStore struct {
	db *sql.DB
}

// NewStepStore wraps an open database handle
func NewStepStore(db *sql.DB) *StepStore {
	return &StepStore{db: db}
}

// RecordStep inserts one executed step, filling in the id and timestamp
// when the caller left them empty, and returns the stored record.
func (s *StepStore) RecordStep(record models.StepRecord) (models.StepRecord, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt == 0 {
		record.CreatedAt = time.Now().UnixMilli()
	}

	_, err := s.db.Exec(`INSERT INTO steps
		(id, device_id, text, kind, success, finished, cancelled, message, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.DeviceID, record.Text, record.Kind,
		record.Success, record.Finished, record.Cancelled,
		record.Message, record.DurationMs, record.CreatedAt)
	if err != nil {
		return record, fmt.Errorf("failed to record step: %w", err)
	}
	return record, nil
}

// RecentSteps returns the latest steps for a device, newest first
func (s *StepStore) RecentSteps(deviceID string, limit int) ([]models.StepRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	rows, err := s.db.Query(`SELECT id, device_id, text, kind, success, finished, cancelled, message, duration_ms, created_at
		FROM steps WHERE device_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	var steps []models.StepRecord
	for rows.Next() {
		var r models.StepRecord
		if err := rows.Scan(&r.ID, &r.DeviceID, &r.Text, &r.Kind,
			&r.Success, &r.Finished, &r.Cancelled,
			&r.Message, &r.DurationMs, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		steps = append(steps, r)
	}
	return steps, rows.Err()
}
