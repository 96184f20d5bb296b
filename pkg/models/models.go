// Package models defines data structures shared across the application.
package models

import (
	"time"
)

// IssueType identifies the level an issue occupies in the hierarchy.
type IssueType string

const (
	// TypeRFE is a top-level request for enhancement.
	TypeRFE IssueType = "rfe"

	// TypeStrat is a strategic initiative grouping epics under an RFE.
	TypeStrat IssueType = "strat"

	// TypeEpic is an epic grouping tasks under a strategic initiative.
	TypeEpic IssueType = "epic"

	// TypeTask is a leaf unit of work.
	TypeTask IssueType = "task"
)

// Child returns the issue type one level below t, or an empty type when t
// is already a leaf.
func (t IssueType) Child() IssueType {
	switch t {
	case TypeRFE:
		return TypeStrat
	case TypeStrat:
		return TypeEpic
	case TypeEpic:
		return TypeTask
	default:
		return ""
	}
}

// Comment is a single comment on an issue.
type Comment struct {
	// Body is the comment text
	Body string `json:"body"`

	// Author is the display name of the comment author
	Author string `json:"author"`

	// Created is the raw creation timestamp from the tracker
	Created string `json:"created"`
}

// Issue represents a JIRA issue with the fields the viewer renders.
type Issue struct {
	// Key is the full JIRA issue identifier (e.g., "RHAISTRAT-123")
	Key string `json:"key"`

	// Type is the hierarchy level of the issue
	Type IssueType `json:"type"`

	// Summary is the issue's summary field
	Summary string `json:"summary"`

	// Status is the current workflow status name
	Status string `json:"status"`

	// Priority is the priority name, "Undefined" when unset
	Priority string `json:"priority"`

	// Assignee is the assignee's display name, "Unassigned" when unset
	Assignee string `json:"assignee"`

	// AssigneeUsername is the assignee's tracker username, empty when unset
	AssigneeUsername string `json:"assignee_username,omitempty"`

	// Reporter is the reporter's display name
	Reporter string `json:"reporter"`

	// Description is the full body text of the issue
	Description string `json:"description"`

	// Labels is a slice of label names attached to the issue
	Labels []string `json:"labels"`

	// Components is a slice of component names attached to the issue
	Components []string `json:"components"`

	// Comments is the ordered list of comments on the issue
	Comments []Comment `json:"comments,omitempty"`

	// Created is the timestamp when the issue was created
	Created time.Time `json:"created"`

	// Updated is the timestamp when the issue was last updated
	Updated time.Time `json:"updated"`

	// ParentKey is the key of the issue's hierarchy parent, empty at top level
	ParentKey string `json:"parent_key,omitempty"`

	// RawType is the tracker's own issue type name (e.g., "Story", "Spike");
	// only populated for tasks, where the viewer distinguishes sub-types
	RawType string `json:"issuetype,omitempty"`
}

// Filter selects which slice of the hierarchy a stream covers.
type Filter struct {
	// Component restricts top-level issues to one tracker component
	Component string `json:"component"`

	// TopLevel is the hierarchy level to start from: TypeRFE (default) or TypeStrat
	TopLevel IssueType `json:"top_level"`
}

// CreateEpicRequest carries the fields needed to create an epic under a
// strategic initiative.
type CreateEpicRequest struct {
	// Summary is the epic's summary, required
	Summary string `json:"summary"`

	// Description is the epic's body text
	Description string `json:"description"`

	// StratKey is the parent strategic initiative key, required
	StratKey string `json:"strat_key"`

	// Component is an optional component to assign
	Component string `json:"component,omitempty"`

	// Assignee is an optional assignee username
	Assignee string `json:"assignee,omitempty"`
}

// CreateTaskRequest carries the fields needed to create a task under an epic.
type CreateTaskRequest struct {
	// Summary is the task's summary, required
	Summary string `json:"summary"`

	// Description is the task's body text
	Description string `json:"description"`

	// EpicKey is the parent epic key, required
	EpicKey string `json:"epic_key"`

	// IssueType is the tracker issue type to create (e.g., "Story",
	// "Spike"); defaults to "Story" when empty
	IssueType string `json:"issue_type,omitempty"`

	// Component is an optional component to assign
	Component string `json:"component,omitempty"`

	// Assignee is an optional assignee username
	Assignee string `json:"assignee,omitempty"`
}

// EventKind tags a StreamEvent variant.
type EventKind string

const (
	// EventNodeAdded announces one newly resolved hierarchy node.
	EventNodeAdded EventKind = "node-added"

	// EventLevelComplete announces that every node of one level has been emitted.
	EventLevelComplete EventKind = "level-complete"

	// EventError reports a failure; recoverable errors leave the stream running.
	EventError EventKind = "error"

	// EventDone terminates the stream.
	EventDone EventKind = "done"
)

// Totals counts the nodes emitted during one stream, per hierarchy level.
type Totals struct {
	RFEs   int `json:"total_rfes"`
	Strats int `json:"total_strats"`
	Epics  int `json:"total_epics"`
	Tasks  int `json:"total_tasks"`
}

// Add increments the counter for the given issue type.
func (t *Totals) Add(typ IssueType) {
	switch typ {
	case TypeRFE:
		t.RFEs++
	case TypeStrat:
		t.Strats++
	case TypeEpic:
		t.Epics++
	case TypeTask:
		t.Tasks++
	}
}

// StreamEvent is one message of a hierarchy stream. Kind selects which of the
// remaining fields are meaningful.
type StreamEvent struct {
	// Kind tags the variant; carried as the SSE event name, not in the payload
	Kind EventKind `json:"-"`

	// Node is the resolved issue (node-added only)
	Node *Issue `json:"node,omitempty"`

	// ParentKey is the key the node was attached under, empty for roots
	// (node-added only)
	ParentKey string `json:"parent_key,omitempty"`

	// Unparented marks a node whose parent never arrived and which was
	// therefore emitted at top level (node-added only)
	Unparented bool `json:"unparented,omitempty"`

	// Level is the zero-based index of the completed level (level-complete only)
	Level int `json:"level"`

	// Message describes the failure (error only)
	Message string `json:"message,omitempty"`

	// Recoverable reports whether the stream continues past the failure
	// (error only)
	Recoverable bool `json:"recoverable,omitempty"`

	// Totals carries per-level node counts (done only)
	Totals *Totals `json:"totals,omitempty"`
}

// NodeAdded builds a node-added event.
func NodeAdded(node *Issue, parentKey string, unparented bool) StreamEvent {
	return StreamEvent{
		Kind:       EventNodeAdded,
		Node:       node,
		ParentKey:  parentKey,
		Unparented: unparented,
	}
}

// LevelComplete builds a level-complete event for the given level index.
func LevelComplete(level int) StreamEvent {
	return StreamEvent{Kind: EventLevelComplete, Level: level}
}

// StreamError builds an error event.
func StreamError(message string, recoverable bool) StreamEvent {
	return StreamEvent{Kind: EventError, Message: message, Recoverable: recoverable}
}

// Done builds the terminal done event.
func Done(totals Totals) StreamEvent {
	return StreamEvent{Kind: EventDone, Totals: &totals}
}
