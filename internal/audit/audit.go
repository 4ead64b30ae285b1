// Package audit persists an append-only trail of mutating actions and mirrors
// each entry to the structured log.
package audit

import (
	"context"
	"strings"
	"time"

	"crewgate.org/internal/identity"
	"crewgate.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// Entry is one append-only audit record.
type Entry struct {
	ID           string            `json:"id"`
	OccurredAt   time.Time         `json:"occurred_at"`
	ActorUserID  string            `json:"actor_user_id,omitempty"`
	Action       string            `json:"action"`
	ResourceType string            `json:"resource_type,omitempty"`
	ResourceID   string            `json:"resource_id,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	RequestID    string            `json:"request_id,omitempty"`
}

// Store appends immutable entries.
type Store interface {
	AppendAudit(ctx context.Context, entry *Entry) error
	ListAudit(ctx context.Context, limit int) ([]Entry, error)
}

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the audit request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Recorder writes audit entries enriched with request and actor context.
type Recorder struct {
	store Store
	now   func() time.Time
}

// NewRecorder constructs a Recorder. A nil store degrades to log-only mode.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// Record persists and logs one audit event. Audit failures never fail the
// calling request; they are logged and swallowed.
func (r *Recorder) Record(ctx context.Context, action, resourceType, resourceID string, metadata map[string]string) {
	action = strings.TrimSpace(action)
	if action == "" {
		return
	}
	entry := &Entry{
		OccurredAt:   r.now().UTC(),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		RequestID:    RequestIDFromContext(ctx),
	}
	if principal, ok := identity.PrincipalFromContext(ctx); ok {
		entry.ActorUserID = principal.UserID
	}
	if len(metadata) > 0 {
		entry.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			entry.Metadata[k] = v
		}
	}

	logger := obs.Logger().WithField("type", "audit").
		WithField("event", entry.Action).
		WithField("resource_type", entry.ResourceType).
		WithField("resource_id", entry.ResourceID)
	if entry.ActorUserID != "" {
		logger = logger.WithField("actor_user_id", entry.ActorUserID)
	}
	if entry.RequestID != "" {
		logger = logger.WithField("request_id", entry.RequestID)
	}
	logger.Info("audit")

	if r.store == nil {
		return
	}
	if err := r.store.AppendAudit(ctx, entry); err != nil {
		obs.Logger().WithError(err).WithField("event", entry.Action).Warn("audit append failed")
	}
}

// List returns the most recent entries, newest first.
func (r *Recorder) List(ctx context.Context, limit int) ([]Entry, error) {
	if r.store == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return r.store.ListAudit(ctx, limit)
}
