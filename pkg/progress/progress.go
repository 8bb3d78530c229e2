// Package progress provides the hierarchical progress reporting consumed by
// the expansion and traversal engines. Engines receive a Progress, create one
// child per worker, and update counters on the hot path without locking.
package progress

// Progress receives engine activity. Implementations must tolerate
// concurrent counter updates; AddChild may lock.
type Progress interface {
	// AddChild creates a named sub-task, typically one per worker.
	AddChild(name string) Progress
	// Init declares the expected amount of work and its unit.
	Init(total int64, unit string)
	// Inc records one completed step.
	Inc()
	// IncBy records delta completed steps.
	IncBy(delta int64)
	// Set overwrites the completed-step counter.
	Set(value int64)
	// Info surfaces a human-readable message tied to this task.
	Info(msg string)
}

// Discard returns a Progress that records nothing. Children discard too.
func Discard() Progress {
	return discard{}
}

type discard struct{}

func (discard) AddChild(string) Progress { return discard{} }

func (discard) Init(int64, string) {}

func (discard) Inc() {}

func (discard) IncBy(int64) {}

func (discard) Set(int64) {}

func (discard) Info(string) {}
