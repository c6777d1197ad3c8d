package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/lyzr/dagrunner/common/db"
	"github.com/lyzr/dagrunner/internal/domain"
)

// RunLogRepository handles append-only access to a run's log stream.
//
// Ordering and cursoring use the table's monotonic seq column rather than
// RunLog.ID (a uuid, not orderable) or Timestamp (not guaranteed unique).
type RunLogRepository struct {
	db *db.DB
}

// NewRunLogRepository creates a new run log repository.
func NewRunLogRepository(database *db.DB) *RunLogRepository {
	return &RunLogRepository{db: database}
}

// Append inserts a single log entry.
func (r *RunLogRepository) Append(ctx context.Context, entry *domain.RunLog) error {
	id, err := uuid.Parse(entry.ID)
	if err != nil {
		return fmt.Errorf("invalid log id: %w", err)
	}
	runID, err := uuid.Parse(entry.RunID)
	if err != nil {
		return fmt.Errorf("invalid run id: %w", err)
	}

	var payload []byte
	if entry.Payload != nil {
		payload, err = json.Marshal(entry.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
	}

	query := `
		INSERT INTO run_logs (id, run_id, node_id, timestamp, level, message, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.db.Exec(ctx, query, id, runID, entry.NodeID, entry.Timestamp, entry.Level, entry.Message, payload)
	if err != nil {
		return fmt.Errorf("failed to append run log: %w", err)
	}
	return nil
}

// ListAfter returns up to limit log entries for runID with seq greater than
// the given cursor, oldest first, along with the cursor to pass on the next
// call (empty once exhausted). An empty after cursor starts from the
// beginning.
func (r *RunLogRepository) ListAfter(ctx context.Context, runID, after string, limit int) ([]*domain.RunLog, string, error) {
	rid, err := uuid.Parse(runID)
	if err != nil {
		return nil, "", fmt.Errorf("invalid run id: %w", err)
	}
	var afterSeq int64
	if after != "" {
		afterSeq, err = strconv.ParseInt(after, 10, 64)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor: %w", err)
		}
	}

	query := `
		SELECT seq, id, run_id, node_id, timestamp, level, message, payload
		FROM run_logs
		WHERE run_id = $1 AND seq > $2
		ORDER BY seq ASC
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, rid, afterSeq, limit)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list run logs: %w", err)
	}
	defer rows.Close()

	var logs []*domain.RunLog
	var cursor string
	for rows.Next() {
		entry := &domain.RunLog{}
		var seq int64
		var id, dbRunID uuid.UUID
		var payload []byte
		if err := rows.Scan(&seq, &id, &dbRunID, &entry.NodeID, &entry.Timestamp, &entry.Level, &entry.Message, &payload); err != nil {
			return nil, "", fmt.Errorf("failed to scan run log: %w", err)
		}
		entry.ID = id.String()
		entry.RunID = dbRunID.String()
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &entry.Payload); err != nil {
				return nil, "", fmt.Errorf("unmarshal payload: %w", err)
			}
		}
		logs = append(logs, entry)
		cursor = strconv.FormatInt(seq, 10)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("error iterating run logs: %w", err)
	}
	return logs, cursor, nil
}
