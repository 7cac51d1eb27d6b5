package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/steveyegge/nudge/internal/storage"
	"github.com/steveyegge/nudge/internal/types"
)

// CreateRemindJob inserts the idempotency row for one dispatch attempt.
//
// The INSERT is the atomic commit point for at-most-once delivery: the
// UNIQUE constraint on (user_id, todo_id, timing_id, day, offset_days,
// kind) guarantees that when two scheduler instances race on the same
// obligation, exactly one insert succeeds. The loser gets
// storage.ErrDuplicateJob and must not send. Kind separates a recovery
// notice from the ordinary reminder sharing its day and offset.
//
// Any other database error is returned as-is and is fatal to the dispatch:
// proceeding without a durable job row would break the delivery guarantee.
func (s *Store) CreateRemindJob(ctx context.Context, job *types.RemindUserJob) error {
	if job.UserID == "" || job.TimingID == "" || job.Day == "" {
		return fmt.Errorf("job key fields are required")
	}
	if job.Kind == "" {
		job.Kind = types.KindReminder
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO remind_user_jobs (company_id, user_id, todo_id, timing_id, day, offset_days, kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.CompanyID, job.UserID, job.TodoID, job.TimingID, job.Day, job.OffsetDays, string(job.Kind), job.CreatedAt)
	if err != nil {
		if IsUniqueConstraintError(err) {
			return storage.ErrDuplicateJob
		}
		return fmt.Errorf("failed to create remind job: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		job.ID = id
	}
	return nil
}
