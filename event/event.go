// Package event defines the GitHub activity event shape the anomaly engine
// consumes. Events are immutable once received: detectors and profile
// managers only ever read them.
package event

import "time"

// Type enumerates the GitHub event kinds the engine recognizes. Unknown
// kinds from the poller map to TypeOther and only contribute to aggregate
// counts — they never fail ingestion.
type Type string

const (
	TypePush        Type = "PushEvent"
	TypePullRequest Type = "PullRequestEvent"
	TypeWorkflowRun Type = "WorkflowRunEvent"
	TypeDelete      Type = "DeleteEvent"
	TypeCreate      Type = "CreateEvent"
	TypeIssues      Type = "IssuesEvent"
	TypeFork        Type = "ForkEvent"
	TypeRelease     Type = "ReleaseEvent"
	TypeOther       Type = "Other"
)

// ParseType maps a raw GitHub event type string to a Type, defaulting
// unrecognized values to TypeOther rather than rejecting the event.
func ParseType(raw string) Type {
	switch Type(raw) {
	case TypePush, TypePullRequest, TypeWorkflowRun, TypeDelete, TypeCreate, TypeIssues, TypeFork, TypeRelease:
		return Type(raw)
	default:
		return TypeOther
	}
}

// Commit is one entry in a PushEvent's commit list.
type Commit struct {
	SHA     string `json:"sha"`
	Message string `json:"message"`
	Forced  bool   `json:"forced"`
}

// PushPayload is the tagged-variant payload for TypePush.
type PushPayload struct {
	Ref       string   `json:"ref"`
	Before    string   `json:"before"`
	After     string   `json:"after"`
	Size      int      `json:"size"` // files touched, per spec §4.1 idx 4
	Forced    bool     `json:"forced"`
	Commits   []Commit `json:"commits"`
	DistinctN int      `json:"distinct_size"`
}

// PullRequestPayload is the tagged-variant payload for TypePullRequest.
type PullRequestPayload struct {
	Action      string `json:"action"` // opened, closed, reopened, synchronize...
	Number      int    `json:"number"`
	Merged      bool   `json:"merged"`
	BaseRef     string `json:"base_ref"`
	HeadRef     string `json:"head_ref"`
	ChangedFiles int   `json:"changed_files"`
	Additions   int    `json:"additions"`
	Deletions   int    `json:"deletions"`
}

// WorkflowRunPayload is the tagged-variant payload for TypeWorkflowRun.
type WorkflowRunPayload struct {
	Action     string `json:"action"`
	Conclusion string `json:"conclusion"` // success, failure, cancelled...
	Name       string `json:"name"`
	HeadBranch string `json:"head_branch"`
}

// DeletePayload is the tagged-variant payload for TypeDelete.
type DeletePayload struct {
	Ref     string `json:"ref"`
	RefType string `json:"ref_type"` // branch, tag
}

// CreatePayload is the tagged-variant payload for TypeCreate.
type CreatePayload struct {
	Ref     string `json:"ref"`
	RefType string `json:"ref_type"`
}

// IssuesPayload is the tagged-variant payload for TypeIssues.
type IssuesPayload struct {
	Action string `json:"action"` // opened, closed, labeled...
	Number int    `json:"number"`
}

// ForkPayload is the tagged-variant payload for TypeFork.
type ForkPayload struct {
	ForkeeFullName string `json:"forkee_full_name"`
}

// ReleasePayload is the tagged-variant payload for TypeRelease.
type ReleasePayload struct {
	Action  string `json:"action"`
	TagName string `json:"tag_name"`
}

// OtherPayload is the fallback variant for unrecognized event types. It
// only contributes to aggregate counts.
type OtherPayload struct {
	Raw map[string]any `json:"raw,omitempty"`
}

// Payload is a tagged variant over the event-type-specific payload shapes.
// Exactly one field is non-nil, matching the event's Type. Detectors
// pattern-match on the variant instead of probing a free-form map.
type Payload struct {
	Push        *PushPayload        `json:"push,omitempty"`
	PullRequest *PullRequestPayload `json:"pull_request,omitempty"`
	WorkflowRun *WorkflowRunPayload `json:"workflow_run,omitempty"`
	Delete      *DeletePayload      `json:"delete,omitempty"`
	Create      *CreatePayload      `json:"create,omitempty"`
	Issues      *IssuesPayload      `json:"issues,omitempty"`
	Fork        *ForkPayload        `json:"fork,omitempty"`
	Release     *ReleasePayload     `json:"release,omitempty"`
	Other       *OtherPayload       `json:"other,omitempty"`
}

// Event is one immutable GitHub activity record.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	ActorLogin string    `json:"actor_login"`
	RepoName   string    `json:"repo_name"` // "owner/repo"
	CreatedAt  time.Time `json:"created_at"`
	Payload    Payload   `json:"payload"`
}

// RefName returns the ref touched by the event, if any, regardless of
// event type. Used by SeverityEngine's protected-branch detection.
func (e Event) RefName() string {
	switch {
	case e.Payload.Push != nil:
		return e.Payload.Push.Ref
	case e.Payload.Delete != nil:
		return e.Payload.Delete.Ref
	case e.Payload.Create != nil:
		return e.Payload.Create.Ref
	case e.Payload.WorkflowRun != nil:
		return e.Payload.WorkflowRun.HeadBranch
	case e.Payload.PullRequest != nil:
		return e.Payload.PullRequest.BaseRef
	default:
		return ""
	}
}

// GroupKey identifies the (actor, repo) group an event belongs to for
// StreamProcessor's partitioning step.
type GroupKey struct {
	ActorLogin string
	RepoName   string
}

func (e Event) GroupKey() GroupKey {
	return GroupKey{ActorLogin: e.ActorLogin, RepoName: e.RepoName}
}
