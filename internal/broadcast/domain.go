package broadcast

import (
	"time"

	"github.com/gatehouse-io/gatehouse/internal/rbac"
)

// ChangeEvent is emitted on every successful mutation. The ownership
// fields travel with the event internally so each subscriber's required
// scope can be resolved, but they are stripped from the delivered wire
// shape.
type ChangeEvent struct {
	Resource     string         `json:"resource"`
	Action       string         `json:"action"`
	RecordID     any            `json:"record_id"`
	OwnerActorID *int64         `json:"owner_actor_id"`
	OwnerGroupID *int64         `json:"owner_group_id"`
	OccurredAt   time.Time      `json:"occurred_at"`
	Payload      map[string]any `json:"payload"`
}

// Ownership adapts the event to the resolver's record view.
func (e ChangeEvent) Ownership() rbac.OwnedRecord {
	return rbac.Ownership{ActorID: e.OwnerActorID, GroupID: e.OwnerGroupID}
}

// Delivery is the wire shape subscribers receive.
type Delivery struct {
	Resource   string         `json:"resource"`
	Action     string         `json:"action"`
	RecordID   any            `json:"record_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload"`
}

func (e ChangeEvent) delivery() Delivery {
	return Delivery{
		Resource:   e.Resource,
		Action:     e.Action,
		RecordID:   e.RecordID,
		OccurredAt: e.OccurredAt,
		Payload:    e.Payload,
	}
}
