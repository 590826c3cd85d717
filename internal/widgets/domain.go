// Package widgets is a plain owned resource wired through the full
// mediation path: every mutation is gated, journaled, and announced
// to subscribers.
package widgets

import "time"

// Widget is an owned record. OwnerID and GroupID feed required-scope
// resolution; a widget with neither set demands the broadest scope.
type Widget struct {
	ID        int64
	Name      string
	Notes     string
	OwnerID   *int64
	GroupID   *int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OwnerActorID implements rbac.OwnedRecord.
func (w *Widget) OwnerActorID() *int64 { return w.OwnerID }

// OwnerGroupID implements rbac.OwnedRecord.
func (w *Widget) OwnerGroupID() *int64 { return w.GroupID }
