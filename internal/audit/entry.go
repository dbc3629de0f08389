package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/recordkeep/internal/canonical"
)

// TimestampLayout is the entry timestamp format: RFC 3339, UTC, milliseconds.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Action names a state-changing operation as "<entity type>.<verb>".
type Action string

const (
	ActionVisitorCheckIn    Action = "visitor.check_in"
	ActionVisitorCheckOut   Action = "visitor.check_out"
	ActionVisitorUpdate     Action = "visitor.update"
	ActionVisitorDelete     Action = "visitor.delete"
	ActionReservationCreate Action = "reservation.create"
	ActionReservationUpdate Action = "reservation.update"
	ActionReservationCancel Action = "reservation.cancel"
	ActionEquipmentCreate   Action = "equipment.create"
	ActionEquipmentUpdate   Action = "equipment.update"
	ActionEquipmentDelete   Action = "equipment.delete"
	ActionSensorConfigure   Action = "sensor.configure"
	ActionBackupPerformed   Action = "backup.performed"
	ActionBackupRestored    Action = "backup.restored"
)

// EntityType returns the part of the action before the first dot, or
// "system" for actions without one.
func (a Action) EntityType() string {
	if entity, _, ok := strings.Cut(string(a), "."); ok && entity != "" {
		return entity
	}
	return "system"
}

// Result is the outcome of the audited operation.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
)

// Entry is one immutable audit record.
type Entry struct {
	ID           string         `json:"id" validate:"required"`
	Timestamp    string         `json:"timestamp" validate:"required"`
	Action       Action         `json:"action" validate:"required"`
	Actor        string         `json:"actor" validate:"required"`
	EntityType   string         `json:"entityType"`
	EntityID     string         `json:"entityId"`
	EntityInfo   string         `json:"entityInfo"`
	Changes      map[string]any `json:"changes,omitempty"`
	Result       Result         `json:"result" validate:"oneof=success failure"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	Hash         string         `json:"hash" validate:"len=64,hexadecimal"`
}

// hashInput is every field except Hash, with optional fields present only
// when set, matching the persisted JSON shape.
func (e Entry) hashInput() map[string]any {
	m := map[string]any{
		"id":         e.ID,
		"timestamp":  e.Timestamp,
		"action":     string(e.Action),
		"actor":      e.Actor,
		"entityType": e.EntityType,
		"entityId":   e.EntityID,
		"entityInfo": e.EntityInfo,
		"result":     string(e.Result),
	}
	if len(e.Changes) > 0 {
		m["changes"] = e.Changes
	}
	if e.ErrorMessage != "" {
		m["errorMessage"] = e.ErrorMessage
	}
	if len(e.Details) > 0 {
		m["details"] = e.Details
	}
	return m
}

// ComputeHash returns the integrity stamp for e. The Hash field itself is
// ignored.
func ComputeHash(e Entry) (string, error) {
	sum, err := canonical.Sum(e.hashInput())
	if err != nil {
		return "", fmt.Errorf("hash audit entry %s: %w", e.ID, err)
	}
	return sum, nil
}

// normalizeMap returns a private copy of m holding only JSON values:
// objects, arrays, strings, booleans, nil and float64 numbers. Empty maps
// become nil.
func normalizeMap(m map[string]any) (map[string]any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Option sets an optional field while an entry is built.
type Option func(*Entry)

// WithChanges records the fields the operation changed.
func WithChanges(changes map[string]any) Option {
	return func(e *Entry) { e.Changes = changes }
}

// WithError records the failure message of err. A nil err is ignored.
func WithError(err error) Option {
	return func(e *Entry) {
		if err != nil {
			e.ErrorMessage = err.Error()
		}
	}
}

// WithDetails attaches free-form context.
func WithDetails(details map[string]any) Option {
	return func(e *Entry) { e.Details = details }
}

// WithActor overrides the actor taken from the context or the default.
func WithActor(actor string) Option {
	return func(e *Entry) { e.Actor = actor }
}

type actorKey struct{}

// ContextWithActor returns a context whose audit entries are attributed to
// actor unless WithActor says otherwise.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor stored by ContextWithActor.
func ActorFromContext(ctx context.Context) (string, bool) {
	actor, ok := ctx.Value(actorKey{}).(string)
	return actor, ok && actor != ""
}
