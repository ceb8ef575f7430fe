// Package event defines the notifications emitted by the group engine and a
// synchronous bus to deliver them.
package event

import (
	"time"

	"github.com/1broseidon/wingroup/internal/platform"
)

// Event types.
const (
	TypeGroupChanged   = "group.changed"
	TypeBoundsChanging = "bounds.changing"
	TypeBoundsChanged  = "bounds.changed"
)

// Event is the interface that all events must implement.
type Event interface {
	EventType() string
	Timestamp() time.Time
}

// Sink is what the engine publishes into. Bus is the production implementation.
type Sink interface {
	Publish(Event)
	Subscribe(eventType string, handler Handler) string
}

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// Member identifies a window inside a group snapshot.
type Member struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

// GroupReason says why a group changed.
type GroupReason string

const (
	ReasonJoin    GroupReason = "join"
	ReasonLeave   GroupReason = "leave"
	ReasonMerge   GroupReason = "merge"
	ReasonDisband GroupReason = "disband"
)

// BoundsReason says whether a window moved because it was targeted directly
// or because a group member was.
type BoundsReason string

const (
	ReasonSelf  BoundsReason = "self"
	ReasonGroup BoundsReason = "group"
)

// GroupChanged is emitted once per group touched by a membership change.
// Snapshots are ordered by membership.
type GroupChanged struct {
	baseEvent
	GroupID      string      `json:"group_uuid"`
	Reason       GroupReason `json:"reason"`
	SourceGroup  []Member    `json:"source_group"`
	TargetGroup  []Member    `json:"target_group"`
	SourceWindow Member      `json:"source_window"`
	TargetWindow Member      `json:"target_window"`
}

// NewGroupChanged creates a GroupChanged event.
func NewGroupChanged(groupID string, reason GroupReason, source, target Member, sourceGroup, targetGroup []Member) GroupChanged {
	return GroupChanged{
		baseEvent:    newBaseEvent(TypeGroupChanged),
		GroupID:      groupID,
		Reason:       reason,
		SourceGroup:  sourceGroup,
		TargetGroup:  targetGroup,
		SourceWindow: source,
		TargetWindow: target,
	}
}

// BoundsChanging is emitted for the leader on every intermediate step of an
// interactive gesture.
type BoundsChanging struct {
	baseEvent
	Window     Member              `json:"window"`
	Rect       platform.Rect       `json:"rect"`
	ChangeType platform.ChangeType `json:"change_type"`
	Reason     BoundsReason        `json:"reason"`
}

// NewBoundsChanging creates a BoundsChanging event.
func NewBoundsChanging(window Member, rect platform.Rect, changeType platform.ChangeType, reason BoundsReason) BoundsChanging {
	return BoundsChanging{
		baseEvent:  newBaseEvent(TypeBoundsChanging),
		Window:     window,
		Rect:       rect,
		ChangeType: changeType,
		Reason:     reason,
	}
}

// BoundsChanged is emitted after a window was placed. Deferred is set when
// the notification is delivered at the end of an interactive gesture rather
// than at placement time.
type BoundsChanged struct {
	baseEvent
	Window     Member              `json:"window"`
	Rect       platform.Rect       `json:"rect"`
	ChangeType platform.ChangeType `json:"change_type"`
	Reason     BoundsReason        `json:"reason"`
	Deferred   bool                `json:"deferred"`
}

// NewBoundsChanged creates a BoundsChanged event.
func NewBoundsChanged(window Member, rect platform.Rect, changeType platform.ChangeType, reason BoundsReason, deferred bool) BoundsChanged {
	return BoundsChanged{
		baseEvent:  newBaseEvent(TypeBoundsChanged),
		Window:     window,
		Rect:       rect,
		ChangeType: changeType,
		Reason:     reason,
		Deferred:   deferred,
	}
}
