// Package hive defines the node/assignment entities that live on the hive
// side of the sync protocol (spec §4.L), supplementing spec.md from
// original_source's crates/remote/src/nodes/domain.rs and
// crates/remote/src/db/node_api_keys.rs.
package hive

import (
	"context"
	"time"
)

// NodeStatus is the liveness state the heartbeat monitor maintains.
type NodeStatus string

const (
	NodeOnline  NodeStatus = "online"
	NodeOffline NodeStatus = "offline"
)

// Node is one connected orchestrator instance, as seen by the hive.
type Node struct {
	ID              string     `json:"id" db:"id"`
	Name            string     `json:"name" db:"name"`
	Status          NodeStatus `json:"status" db:"status"`
	LastHeartbeatAt *time.Time `json:"last_heartbeat_at,omitempty" db:"last_heartbeat_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
}

// AssignmentStatus is the lifecycle of a TaskAssignment.
type AssignmentStatus string

const (
	AssignmentPending   AssignmentStatus = "pending"
	AssignmentRunning   AssignmentStatus = "running"
	AssignmentCompleted AssignmentStatus = "completed"
	AssignmentFailed    AssignmentStatus = "failed"
)

// TaskAssignment binds a shared task to the node executing it.
type TaskAssignment struct {
	ID              string           `json:"assignment_id" db:"id"`
	TaskID          string           `json:"task_id" db:"task_id"`
	NodeProjectID   string           `json:"node_project_id" db:"node_project_id"`
	LocalProjectID  string           `json:"local_project_id" db:"local_project_id"`
	NodeID          string           `json:"node_id" db:"node_id"`
	Status          AssignmentStatus `json:"status" db:"status"`
	TaskDetails     string           `json:"task_details,omitempty" db:"task_details"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at" db:"updated_at"`
}

// NodeAPIKey backs the "stable prefix + hash" API-key scheme (spec §6): the
// first 8 characters of the raw key are stored as an index, the rest is
// verified against a stored hash.
type NodeAPIKey struct {
	ID        string     `json:"id" db:"id"`
	NodeID    string     `json:"node_id" db:"node_id"`
	Prefix    string     `json:"prefix" db:"prefix"`
	Hash      string     `json:"hash" db:"hash"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
}

// Store is the hive-side persistence port for nodes, assignments and keys.
type Store interface {
	UpsertNode(ctx context.Context, n *Node) error
	GetNode(ctx context.Context, id string) (*Node, error)
	RecordHeartbeat(ctx context.Context, nodeID string, at time.Time) error
	// MarkStaleOffline flips nodes whose last heartbeat is older than
	// threshold to NodeOffline and returns their ids, for the heartbeat
	// monitor to then fail their active assignments (spec §4.L, §4.M).
	MarkStaleOffline(ctx context.Context, threshold time.Duration, now time.Time) ([]string, error)

	CreateAssignment(ctx context.Context, a *TaskAssignment) error
	GetAssignment(ctx context.Context, id string) (*TaskAssignment, error)
	SetAssignmentStatus(ctx context.Context, id string, status AssignmentStatus) error
	// FailActiveForNode transitions every non-terminal assignment owned by
	// nodeID to Failed — called when a node is marked offline.
	FailActiveForNode(ctx context.Context, nodeID string) (int, error)

	CreateAPIKey(ctx context.Context, k *NodeAPIKey) error
	// LookupByPrefix returns the candidate key rows sharing prefix, for the
	// caller to verify against the supplied raw key's hash.
	LookupByPrefix(ctx context.Context, prefix string) ([]*NodeAPIKey, error)
	RevokeAPIKey(ctx context.Context, id string, at time.Time) error

	// ReportProject upserts the (nodeID, localProjectID) pair's
	// last_reported_at, called whenever a node's sync traffic touches
	// that project (spec §4.M stale-project cleanup).
	ReportProject(ctx context.Context, nodeID, localProjectID string, at time.Time) error
	// StaleProjectsForOnlineNodes returns local project ids reported only
	// by online nodes whose last report predates the cutoff — offline
	// nodes are excluded, since they may reconnect and re-sync (spec
	// §4.M: "Offline nodes are spared").
	StaleProjectsForOnlineNodes(ctx context.Context, cutoff time.Time) ([]string, error)
	// DeleteStaleProjects removes the node/project report rows for the
	// given local project ids, called after the caller has removed the
	// corresponding local-project rows.
	DeleteStaleProjects(ctx context.Context, localProjectIDs []string) (int, error)
}
