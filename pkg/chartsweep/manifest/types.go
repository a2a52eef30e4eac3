// Package manifest journals the filesystem operations each chartsweep command
// performed, so a past consolidation can be reviewed with "chartsweep history".
package manifest

import "time"

// OperationType is the kind of filesystem action recorded.
type OperationType string

const (
	// OpMerge is a folder merged into another folder.
	OpMerge OperationType = "merge"
	// OpMove is a folder renamed or relocated without merging.
	OpMove OperationType = "move"
	// OpPrune is an empty directory removed.
	OpPrune OperationType = "prune"
	// OpExtract is an archive extracted into a staging folder.
	OpExtract OperationType = "extract"
	// OpRemove is a file or archive deleted or trashed.
	OpRemove OperationType = "remove"
	// OpWrite is a table or config file written.
	OpWrite OperationType = "write"
)

// Action is one recorded filesystem action.
type Action struct {
	Time   time.Time     `json:"time"`
	Op     OperationType `json:"op"`
	Source string        `json:"source"`
	Target string        `json:"target,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// Entry is the journal of one command invocation.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command"`
	Root      string    `json:"root"`
	DryRun    bool      `json:"dry_run"`
	Actions   []Action  `json:"actions"`
	Summary   Summary   `json:"summary"`
}

// Summary counts the actions of an entry.
type Summary struct {
	Actions int `json:"actions"`
	Failed  int `json:"failed"`
}

// Recorder receives actions as they happen.
type Recorder interface {
	Record(a Action)
}
