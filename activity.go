package auth

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventSignInSuccess          ActivityEventType = "auth.signin.success"
	ActivityEventSignInFailure          ActivityEventType = "auth.signin.failure"
	ActivityEventSignUp                 ActivityEventType = "auth.signup"
	ActivityEventAccountResurrected     ActivityEventType = "auth.signup.resurrected"
	ActivityEventTokenRefreshed         ActivityEventType = "auth.token.refreshed"
	ActivityEventPasswordResetRequested ActivityEventType = "auth.password.reset.requested"
	ActivityEventPasswordResetSuccess   ActivityEventType = "auth.password.reset"
	ActivityEventOTPRequested           ActivityEventType = "auth.otp.requested"
	ActivityEventOTPVerified            ActivityEventType = "auth.otp.verified"
	ActivityEventOTPFailure             ActivityEventType = "auth.otp.failure"
	ActivityEventUserDeleted            ActivityEventType = "user.deleted"
)

// ActorRef identifies who triggered an event
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEvent captures audit-friendly information about an action.
// Metadata never carries raw secrets.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	TenantID   string
	UserID     string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// activityRecorder is embedded by handlers that emit events
type activityRecorder struct {
	activity ActivitySink
	logger   Logger
	clock    func() time.Time
}

func (r activityRecorder) record(ctx context.Context, eventType ActivityEventType, tenantID, userID string, metadata map[string]any) {
	actor := ActorRef{ID: userID, Type: "user"}
	if userID == "" {
		actor = ActorRef{ID: DefaultActor, Type: "system"}
	}

	clock := r.clock
	if clock == nil {
		clock = time.Now
	}

	event := ActivityEvent{
		EventType:  eventType,
		Actor:      actor,
		TenantID:   tenantID,
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: clock(),
	}

	if err := normalizeActivitySink(r.activity).Record(ctx, event); err != nil && r.logger != nil {
		r.logger.Warn("activity sink error for %s: %v", eventType, err)
	}
}
