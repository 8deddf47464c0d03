// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Every lesson request produces a short, ordered trail of these.
const (
	// Content events
	EventContentRequested        EventType = "content.requested"
	EventContentCacheHit         EventType = "content.cache_hit"
	EventContentGenerated        EventType = "content.generated"
	EventContentGenerationFailed EventType = "content.generation_failed"
	EventContentAccessDenied     EventType = "content.access_denied"
	EventContentOverwritten      EventType = "content.overwritten"

	// Credit events
	EventCreditsCharged  EventType = "credits.charged"
	EventCreditsAdjusted EventType = "credits.adjusted"

	// Account events
	EventUserRegistered EventType = "account.registered"
	EventUserLocked     EventType = "account.locked"
	EventUserUnlocked   EventType = "account.unlocked"

	// System events
	EventSettingsUpdated EventType = "system.settings_updated"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Content Events (aggregate = content key)
// ═══════════════════════════════════════════════════════════════════════════

// ContentRequestedEvent is emitted when a requester asks for a lesson artifact.
type ContentRequestedEvent struct {
	BaseEvent
	UserID      string `json:"user_id"`
	ContentType string `json:"content_type"`
}

func (e ContentRequestedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":      e.UserID,
		"content_type": e.ContentType,
	}
}

func NewContentRequestedEvent(key, userID, contentType string) ContentRequestedEvent {
	return ContentRequestedEvent{
		BaseEvent:   NewBaseEvent(EventContentRequested, key),
		UserID:      userID,
		ContentType: contentType,
	}
}

// ContentCacheHitEvent is emitted when a stored artifact is served. Hits are never charged.
type ContentCacheHitEvent struct {
	BaseEvent
	UserID string `json:"user_id"`
}

func (e ContentCacheHitEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"user_id": e.UserID}
}

func NewContentCacheHitEvent(key, userID string) ContentCacheHitEvent {
	return ContentCacheHitEvent{
		BaseEvent: NewBaseEvent(EventContentCacheHit, key),
		UserID:    userID,
	}
}

// ContentGeneratedEvent is emitted after a generated artifact is delivered.
// Persisted is false when the store write failed and the artifact lives only in the session.
type ContentGeneratedEvent struct {
	BaseEvent
	UserID      string        `json:"user_id"`
	ContentType string        `json:"content_type"`
	Latency     time.Duration `json:"latency"`
	Persisted   bool          `json:"persisted"`
}

func (e ContentGeneratedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":      e.UserID,
		"content_type": e.ContentType,
		"latency_ms":   e.Latency.Milliseconds(),
		"persisted":    e.Persisted,
	}
}

func NewContentGeneratedEvent(key, userID, contentType string, latency time.Duration, persisted bool) ContentGeneratedEvent {
	return ContentGeneratedEvent{
		BaseEvent:   NewBaseEvent(EventContentGenerated, key),
		UserID:      userID,
		ContentType: contentType,
		Latency:     latency,
		Persisted:   persisted,
	}
}

// ContentGenerationFailedEvent is emitted when the remote generator fails.
type ContentGenerationFailedEvent struct {
	BaseEvent
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

func (e ContentGenerationFailedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id": e.UserID,
		"reason":  e.Reason,
	}
}

func NewContentGenerationFailedEvent(key, userID, reason string) ContentGenerationFailedEvent {
	return ContentGenerationFailedEvent{
		BaseEvent: NewBaseEvent(EventContentGenerationFailed, key),
		UserID:    userID,
		Reason:    reason,
	}
}

// ContentAccessDeniedEvent is emitted when policy refuses a miss.
type ContentAccessDeniedEvent struct {
	BaseEvent
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

func (e ContentAccessDeniedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id": e.UserID,
		"reason":  e.Reason,
	}
}

func NewContentAccessDeniedEvent(key, userID, reason string) ContentAccessDeniedEvent {
	return ContentAccessDeniedEvent{
		BaseEvent: NewBaseEvent(EventContentAccessDenied, key),
		UserID:    userID,
		Reason:    reason,
	}
}

// ContentOverwrittenEvent is emitted by the operator override path.
type ContentOverwrittenEvent struct {
	BaseEvent
	OperatorID string `json:"operator_id"`
	Title      string `json:"title"`
}

func (e ContentOverwrittenEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"operator_id": e.OperatorID,
		"title":       e.Title,
	}
}

func NewContentOverwrittenEvent(key, operatorID, title string) ContentOverwrittenEvent {
	return ContentOverwrittenEvent{
		BaseEvent:  NewBaseEvent(EventContentOverwritten, key),
		OperatorID: operatorID,
		Title:      title,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Credit & Account Events (aggregate = user ID)
// ═══════════════════════════════════════════════════════════════════════════

// CreditsChargedEvent is emitted once per generated artifact that cost credits.
type CreditsChargedEvent struct {
	BaseEvent
	Amount     int    `json:"amount"`
	NewBalance int    `json:"new_balance"`
	ContentKey string `json:"content_key"`
}

func (e CreditsChargedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"amount":      e.Amount,
		"new_balance": e.NewBalance,
		"content_key": e.ContentKey,
	}
}

func NewCreditsChargedEvent(userID string, amount, newBalance int, contentKey string) CreditsChargedEvent {
	return CreditsChargedEvent{
		BaseEvent:  NewBaseEvent(EventCreditsCharged, userID),
		Amount:     amount,
		NewBalance: newBalance,
		ContentKey: contentKey,
	}
}

// CreditsAdjustedEvent is emitted by the admin credit adjustment.
type CreditsAdjustedEvent struct {
	BaseEvent
	Delta      int    `json:"delta"`
	NewBalance int    `json:"new_balance"`
	OperatorID string `json:"operator_id"`
}

func (e CreditsAdjustedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"delta":       e.Delta,
		"new_balance": e.NewBalance,
		"operator_id": e.OperatorID,
	}
}

func NewCreditsAdjustedEvent(userID string, delta, newBalance int, operatorID string) CreditsAdjustedEvent {
	return CreditsAdjustedEvent{
		BaseEvent:  NewBaseEvent(EventCreditsAdjusted, userID),
		Delta:      delta,
		NewBalance: newBalance,
		OperatorID: operatorID,
	}
}

// UserRegisteredEvent is emitted on signup.
type UserRegisteredEvent struct {
	BaseEvent
	Board      string `json:"board"`
	ClassLevel int    `json:"class_level"`
	Credits    int    `json:"credits"`
}

func (e UserRegisteredEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"board":       e.Board,
		"class_level": e.ClassLevel,
		"credits":     e.Credits,
	}
}

func NewUserRegisteredEvent(userID, board string, classLevel, credits int) UserRegisteredEvent {
	return UserRegisteredEvent{
		BaseEvent:  NewBaseEvent(EventUserRegistered, userID),
		Board:      board,
		ClassLevel: classLevel,
		Credits:    credits,
	}
}

// UserLockChangedEvent is emitted on lock and unlock.
type UserLockChangedEvent struct {
	BaseEvent
	OperatorID string `json:"operator_id"`
}

func (e UserLockChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"operator_id": e.OperatorID}
}

func NewUserLockChangedEvent(userID, operatorID string, locked bool) UserLockChangedEvent {
	t := EventUserUnlocked
	if locked {
		t = EventUserLocked
	}
	return UserLockChangedEvent{
		BaseEvent:  NewBaseEvent(t, userID),
		OperatorID: operatorID,
	}
}

// SettingsUpdatedEvent is emitted when an operator saves system settings.
type SettingsUpdatedEvent struct {
	BaseEvent
	MaintenanceMode bool `json:"maintenance_mode"`
}

func (e SettingsUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"maintenance_mode": e.MaintenanceMode}
}

func NewSettingsUpdatedEvent(operatorID string, maintenance bool) SettingsUpdatedEvent {
	return SettingsUpdatedEvent{
		BaseEvent:       NewBaseEvent(EventSettingsUpdated, operatorID),
		MaintenanceMode: maintenance,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEventEnvelope serializes the event payload into an envelope.
func NewEventEnvelope(id string, event Event) (EventEnvelope, error) {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return EventEnvelope{}, err
	}
	env := EventEnvelope{
		ID:          id,
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		Timestamp:   event.OccurredAt(),
		Version:     1,
		Payload:     payload,
	}
	if b, ok := event.(interface{ Correlation() string }); ok {
		env.CorrelationID = b.Correlation()
	}
	return env, nil
}

// Correlation exposes the correlation ID to envelope builders.
func (e BaseEvent) Correlation() string {
	return e.CorrelationID
}

// correlatedEvent attaches a correlation ID to any event.
type correlatedEvent struct {
	Event
	correlationID string
}

func (e correlatedEvent) Correlation() string { return e.correlationID }
func (e correlatedEvent) Unwrap() Event       { return e.Event }

// WithCorrelation tags an event with a correlation ID. Empty IDs are a no-op.
func WithCorrelation(e Event, id string) Event {
	if id == "" {
		return e
	}
	return correlatedEvent{Event: e, correlationID: id}
}

// Underlying strips correlation wrappers so handlers can type-switch.
func Underlying(e Event) Event {
	for {
		w, ok := e.(interface{ Unwrap() Event })
		if !ok {
			return e
		}
		e = w.Unwrap()
	}
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) error { return nil }
