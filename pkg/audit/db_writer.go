package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// DBWriter appends activity logs to PostgreSQL
type DBWriter struct {
	db *sql.DB
}

// NewDBWriter creates a database-backed audit writer
func NewDBWriter(db *sql.DB) (*DBWriter, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	w := &DBWriter{db: db}

	if err := w.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure activity_logs table: %w", err)
	}

	return w, nil
}

// NewDBWriterForSchema wraps db without creating the table. Use it when the
// activity_logs table is managed by migrations.
func NewDBWriterForSchema(db *sql.DB) *DBWriter {
	return &DBWriter{db: db}
}

// ensureTable creates the activity_logs table if it doesn't exist
func (w *DBWriter) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS activity_logs (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		tenant_id VARCHAR(64) NOT NULL,
		user_id VARCHAR(64) NOT NULL,
		action VARCHAR(100) NOT NULL,
		resource VARCHAR(100) NOT NULL,
		resource_id VARCHAR(255),
		status VARCHAR(20) NOT NULL,
		reason VARCHAR(100),
		details JSONB,
		ip_address VARCHAR(45),
		user_agent TEXT,
		request_id VARCHAR(100),
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_activity_logs_timestamp ON activity_logs(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_activity_logs_tenant_id ON activity_logs(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_activity_logs_user_id ON activity_logs(user_id);
	CREATE INDEX IF NOT EXISTS idx_activity_logs_resource ON activity_logs(resource, resource_id);
	CREATE INDEX IF NOT EXISTS idx_activity_logs_status ON activity_logs(status);
	`

	_, err := w.db.Exec(query)
	return err
}

// Append inserts a record and sets its ID
func (w *DBWriter) Append(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is required")
	}
	stamp(record)

	var detailsJSON []byte
	if !record.Details.IsZero() {
		var err error
		detailsJSON, err = json.Marshal(record.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal details: %w", err)
		}
	}

	query := `
		INSERT INTO activity_logs (
			timestamp, tenant_id, user_id,
			action, resource, resource_id,
			status, reason, details,
			ip_address, user_agent, request_id
		) VALUES (
			$1, $2, $3,
			$4, $5, $6,
			$7, $8, $9,
			$10, $11, $12
		) RETURNING id
	`

	err := w.db.QueryRowContext(ctx, query,
		record.Timestamp, record.TenantID, record.UserID,
		record.Action, record.Resource, record.ResourceID,
		record.Status, record.Reason, detailsJSON,
		record.IPAddress, record.UserAgent, record.RequestID,
	).Scan(&record.ID)
	if err != nil {
		return fmt.Errorf("failed to insert activity log: %w", err)
	}

	return nil
}

// Search reads activity logs matching filter, newest first
func (w *DBWriter) Search(ctx context.Context, filter SearchFilter) ([]*Record, error) {
	query := `
		SELECT
			id, timestamp, tenant_id, user_id,
			action, resource, resource_id,
			status, reason, details,
			ip_address, user_agent, request_id
		FROM activity_logs
		WHERE 1=1
	`

	args := []interface{}{}
	argCount := 1

	addEq := func(column string, value interface{}) {
		query += fmt.Sprintf(" AND %s = $%d", column, argCount)
		args = append(args, value)
		argCount++
	}

	if filter.StartTime != nil {
		query += fmt.Sprintf(" AND timestamp >= $%d", argCount)
		args = append(args, *filter.StartTime)
		argCount++
	}
	if filter.EndTime != nil {
		query += fmt.Sprintf(" AND timestamp <= $%d", argCount)
		args = append(args, *filter.EndTime)
		argCount++
	}
	if filter.TenantID != "" {
		addEq("tenant_id", filter.TenantID)
	}
	if filter.UserID != "" {
		addEq("user_id", filter.UserID)
	}
	if filter.Resource != "" {
		addEq("resource", filter.Resource)
	}
	if filter.Action != "" {
		addEq("action", filter.Action)
	}
	if filter.ResourceID != "" {
		addEq("resource_id", filter.ResourceID)
	}
	if filter.Status != nil {
		addEq("status", string(*filter.Status))
	}

	query += " ORDER BY timestamp DESC, id DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, filter.Limit)
		argCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, filter.Offset)
	}

	rows, err := w.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search activity logs: %w", err)
	}
	defer rows.Close()

	records := make([]*Record, 0)
	for rows.Next() {
		record := &Record{}
		var (
			resourceID, reason, ip, ua, reqID sql.NullString
			detailsJSON                       []byte
			ts                                time.Time
		)

		err := rows.Scan(
			&record.ID, &ts, &record.TenantID, &record.UserID,
			&record.Action, &record.Resource, &resourceID,
			&record.Status, &reason, &detailsJSON,
			&ip, &ua, &reqID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity log: %w", err)
		}

		record.Timestamp = ts
		record.ResourceID = resourceID.String
		record.Reason = reason.String
		record.IPAddress = ip.String
		record.UserAgent = ua.String
		record.RequestID = reqID.String

		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &record.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal details: %w", err)
			}
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity logs: %w", err)
	}

	return records, nil
}

// Export reads the matching records and encodes them in format
func (w *DBWriter) Export(ctx context.Context, filter SearchFilter, format ExportFormat) ([]byte, error) {
	records, err := w.Search(ctx, filter)
	if err != nil {
		return nil, err
	}
	return Export(records, format)
}

// Close does not close the shared database connection
func (w *DBWriter) Close() error {
	return nil
}
