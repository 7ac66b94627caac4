package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/baechuer/account-service/internal/domain"
)

// AuditRepo is append-only: there is no update or delete path.
type AuditRepo struct {
	db *sql.DB
}

func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

func (r *AuditRepo) Append(ctx context.Context, evt domain.AuditEvent) error {
	var (
		subjectID sql.NullString
		snapshot  sql.NullString
	)
	if evt.Subject != nil {
		subjectID = sql.NullString{String: evt.Subject.ID, Valid: true}
		b, err := json.Marshal(evt.Subject)
		if err != nil {
			return domain.ErrInternal(err)
		}
		snapshot = sql.NullString{String: string(b), Valid: true}
	}

	const q = `
INSERT INTO audit_events (id, actor_id, subject_id, subject_snapshot, session_id, client_ip, user_agent,
                          action, outcome, message, occurred_at)
VALUES ($1, NULLIF($2, ''), $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8, $9, $10, $11);`

	_, err := conn(ctx, r.db).ExecContext(ctx, q,
		evt.ID, evt.ActorID, subjectID, snapshot, evt.SessionID, evt.ClientIP, evt.UserAgent,
		evt.Action, string(evt.Outcome), evt.Message, evt.Timestamp,
	)
	if err != nil {
		return domain.ErrDBUnavailable(err)
	}
	return nil
}

// ListBySubject returns the events recorded for a user, oldest first. Works
// after the user row is gone.
func (r *AuditRepo) ListBySubject(ctx context.Context, subjectID string) ([]domain.AuditEvent, error) {
	const q = `
SELECT id, COALESCE(actor_id, ''), subject_snapshot, COALESCE(session_id, ''), COALESCE(client_ip, ''),
       COALESCE(user_agent, ''), action, outcome, message, occurred_at
FROM audit_events
WHERE subject_id = $1
ORDER BY occurred_at, id`

	rows, err := conn(ctx, r.db).QueryContext(ctx, q, subjectID)
	if err != nil {
		return nil, domain.ErrDBUnavailable(err)
	}
	defer rows.Close()

	var out []domain.AuditEvent
	for rows.Next() {
		var (
			evt      domain.AuditEvent
			snapshot []byte
			outcome  string
		)
		if err := rows.Scan(&evt.ID, &evt.ActorID, &snapshot, &evt.SessionID, &evt.ClientIP,
			&evt.UserAgent, &evt.Action, &outcome, &evt.Message, &evt.Timestamp); err != nil {
			return nil, domain.ErrDBUnavailable(err)
		}
		evt.Outcome = domain.AuditOutcome(outcome)
		if len(snapshot) > 0 {
			var s domain.UserSnapshot
			if err := json.Unmarshal(snapshot, &s); err != nil {
				return nil, domain.ErrInternal(err)
			}
			evt.Subject = &s
		}
		out = append(out, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrDBUnavailable(err)
	}
	return out, nil
}
