package audit

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/baechuer/account-service/internal/domain"
)

// LogSubscriber writes every audit event as a structured log line.
type LogSubscriber struct {
	log zerolog.Logger
}

func NewLogSubscriber(log zerolog.Logger) *LogSubscriber {
	return &LogSubscriber{
		log: log.With().Bool("audit", true).Logger(),
	}
}

func (l *LogSubscriber) Handle(_ context.Context, evt domain.AuditEvent) error {
	ev := l.log.Info()
	if evt.Outcome == domain.OutcomeFailure || evt.Action == domain.ActionAccountLocked {
		ev = l.log.Warn()
	}

	ev = ev.
		Str("event_id", evt.ID).
		Str("action", evt.Action).
		Str("outcome", string(evt.Outcome)).
		Time("at", evt.Timestamp)

	if evt.ActorID != "" {
		ev = ev.Str("actor_user_id", evt.ActorID)
	}
	if evt.Subject != nil {
		ev = ev.
			Str("subject_user_id", evt.Subject.ID).
			Str("email", maskEmail(evt.Subject.Email))
	}
	if evt.SessionID != "" {
		ev = ev.Str("session_id", evt.SessionID)
	}
	if evt.ClientIP != "" {
		ev = ev.Str("ip", evt.ClientIP)
	}
	if evt.UserAgent != "" {
		ev = ev.Str("user_agent", evt.UserAgent)
	}

	ev.Msg(evt.Message)
	return nil
}

// maskEmail keeps the first two characters of the local part and the domain.
func maskEmail(email string) string {
	if len(email) < 5 {
		return "***"
	}
	at := strings.IndexByte(email, '@')
	switch {
	case at < 0:
		return email[:2] + "***"
	case at < 2:
		return email[:1] + "***" + email[at:]
	default:
		return email[:2] + "***" + email[at:]
	}
}
