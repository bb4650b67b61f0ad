package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/talentbridge/hrplatform/internal/apperror"
	"github.com/talentbridge/hrplatform/internal/metrics"
)

// defaultWindow is the trailing window used by the count helpers when the
// caller passes a non-positive number of minutes.
const defaultWindow = 15 * time.Minute

// writeTimeout bounds a single audit insert. The write is detached from the
// request, so a client hanging up does not drop the entry.
const writeTimeout = 5 * time.Second

// Column widths in audit_log, counted in characters.
const (
	maxEmailLength     = 255
	maxUserAgentLength = 512
)

// Recorder appends audit entries and answers the two login-count queries.
type Recorder struct {
	repo AuditRepository
	now  func() time.Time
}

// NewRecorder creates a recorder over the given repository.
func NewRecorder(repo AuditRepository) *Recorder {
	return &Recorder{repo: repo, now: time.Now}
}

// Log persists entry. It never returns an error: a failed write is logged
// locally and dropped. The event is counted in metrics either way.
func (r *Recorder) Log(ctx context.Context, entry Entry) {
	if entry.IPAddress == "" {
		entry.IPAddress = UnknownIP
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now().UTC()
	}
	entry.Email = truncateRunes(entry.Email, maxEmailLength)
	entry.UserAgent = truncateRunes(entry.UserAgent, maxUserAgentLength)

	metrics.RecordAuthEvent(string(entry.Action), entry.Success, string(entry.FailureReason))

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := r.repo.Insert(writeCtx, &entry); err != nil {
		slog.Error("failed to write audit log entry",
			slog.String("action", string(entry.Action)),
			slog.String("email", entry.Email),
			slog.Bool("success", entry.Success),
			slog.Any("error", err),
		)
	}
}

// CountRecentLoginAttempts counts login attempts for email in the trailing
// window of sinceMinutes (default 15).
func (r *Recorder) CountRecentLoginAttempts(ctx context.Context, email string, sinceMinutes int) (int, error) {
	n, err := r.repo.CountLoginAttempts(ctx, email, r.since(sinceMinutes))
	if err != nil {
		return 0, apperror.NewInternal(fmt.Errorf("counting login attempts: %w", err))
	}
	return n, nil
}

// CountFailedLoginAttempts counts failed logins for email in the trailing
// window of sinceMinutes (default 15).
func (r *Recorder) CountFailedLoginAttempts(ctx context.Context, email string, sinceMinutes int) (int, error) {
	n, err := r.repo.CountFailedLogins(ctx, email, r.since(sinceMinutes))
	if err != nil {
		return 0, apperror.NewInternal(fmt.Errorf("counting failed logins: %w", err))
	}
	return n, nil
}

// truncateRunes cuts s to at most n characters without splitting a
// multi-byte character.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func (r *Recorder) since(minutes int) time.Time {
	window := defaultWindow
	if minutes > 0 {
		window = time.Duration(minutes) * time.Minute
	}
	return r.now().UTC().Add(-window)
}
