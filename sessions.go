package identity

import (
	"context"
	"sync"
	"time"
)

// SessionRegistry tracks device sessions and confirms terminations with the
// backend. Mutations are optimistic: the local record flips immediately so
// the UI reflects the intent, then rolls back if the backend rejects the
// call. The current session is never terminated through the registry.
type SessionRegistry struct {
	backend SessionBackend
	logger  Logger
	sink    ActivitySink
	now     Clock

	mu           sync.RWMutex
	records      []SessionRecord
	currentToken string
	accountID    string
}

// SessionRegistryOption configures a SessionRegistry.
type SessionRegistryOption func(*SessionRegistry)

// WithSessionLogger sets the registry's logger.
func WithSessionLogger(logger Logger) SessionRegistryOption {
	return func(r *SessionRegistry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithSessionClock injects the registry's time source.
func WithSessionClock(clock Clock) SessionRegistryOption {
	return func(r *SessionRegistry) {
		if clock != nil {
			r.now = clock
		}
	}
}

// WithSessionActivitySink attaches an audit sink for termination events.
func WithSessionActivitySink(sink ActivitySink) SessionRegistryOption {
	return func(r *SessionRegistry) {
		r.sink = normalizeActivitySink(sink)
	}
}

// NewSessionRegistry wires a registry over the session backend.
func NewSessionRegistry(backend SessionBackend, opts ...SessionRegistryOption) *SessionRegistry {
	registry := &SessionRegistry{
		backend: backend,
		logger:  defLogger{},
		sink:    noopActivitySink{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(registry)
	}
	return registry
}

// Populate replaces the tracked sessions from a freshly resolved identity.
func (r *SessionRegistry) Populate(ident *Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ident == nil {
		r.records = nil
		r.currentToken = ""
		r.accountID = ""
		return
	}

	r.records = make([]SessionRecord, len(ident.Sessions))
	copy(r.records, ident.Sessions)
	r.currentToken = ident.CurrentSessionToken
	r.accountID = ident.AccountID
}

// List returns a copy of the tracked sessions.
func (r *SessionRegistry) List() []SessionRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SessionRecord, len(r.records))
	copy(out, r.records)
	return out
}

// Current returns the session matching the identity's current token.
func (r *SessionRegistry) Current() (SessionRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.currentToken == "" {
		return SessionRecord{}, false
	}
	for _, record := range r.records {
		if record.Token == r.currentToken {
			return record, true
		}
	}
	return SessionRecord{}, false
}

// Terminate deactivates one session. The record flips locally first, then
// the backend confirms; a rejected call restores the record and reports
// ErrTerminationConflict. The current session is refused outright.
func (r *SessionRegistry) Terminate(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	idx := -1
	for i, record := range r.records {
		if record.ID == sessionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return ErrSessionNotFound.WithMetadata(map[string]any{
			"session_id": sessionID,
		})
	}
	if r.currentToken != "" && r.records[idx].Token == r.currentToken {
		r.mu.Unlock()
		return ErrCurrentSessionProtected
	}

	previous := r.records[idx]
	logout := r.now()
	r.records[idx].Active = false
	r.records[idx].LogoutTime = &logout
	accountID := r.accountID
	r.mu.Unlock()

	if err := r.backend.Terminate(ctx, sessionID); err != nil {
		r.restore(previous)
		r.logger.Warn("session termination rejected, rolled back: %s", err)
		return ErrTerminationConflict.WithMetadata(map[string]any{
			"session_id": sessionID,
			"cause":      err.Error(),
		})
	}

	r.record(ctx, EventSessionTerminated, accountID, map[string]any{
		"session_id": sessionID,
	})
	return nil
}

// TerminateAllOthers deactivates every session except the current one. All
// affected records flip locally first; a backend rejection restores every one
// of them.
func (r *SessionRegistry) TerminateAllOthers(ctx context.Context) error {
	r.mu.Lock()
	logout := r.now()
	var restore []SessionRecord
	for i, record := range r.records {
		if r.currentToken != "" && record.Token == r.currentToken {
			continue
		}
		if !record.Active {
			continue
		}
		restore = append(restore, record)
		r.records[i].Active = false
		r.records[i].LogoutTime = &logout
	}
	accountID := r.accountID
	r.mu.Unlock()

	if len(restore) == 0 {
		return nil
	}

	if err := r.backend.TerminateAllOthers(ctx); err != nil {
		r.restore(restore...)
		r.logger.Warn("bulk session termination rejected, rolled back: %s", err)
		return ErrTerminationConflict.WithMetadata(map[string]any{
			"sessions": len(restore),
			"cause":    err.Error(),
		})
	}

	r.record(ctx, EventSessionTerminatedOther, accountID, map[string]any{
		"terminated": len(restore),
	})
	return nil
}

// restore puts records back after a rejected backend call. The tracked slice
// may have been repopulated while the call was in flight, so each record is
// located by id again; a session that is no longer tracked stays gone.
func (r *SessionRegistry) restore(records ...SessionRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, previous := range records {
		for i := range r.records {
			if r.records[i].ID == previous.ID {
				r.records[i] = previous
				break
			}
		}
	}
}

func (r *SessionRegistry) record(ctx context.Context, eventType, accountID string, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		AccountID:  accountID,
		Actor:      ActorRef{ID: accountID, Type: "account"},
		Metadata:   metadata,
		OccurredAt: r.now(),
	}
	if err := r.sink.Record(ctx, event); err != nil {
		r.logger.Warn("activity sink rejected session event: %s", err)
	}
}
