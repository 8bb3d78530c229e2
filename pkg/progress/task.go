package progress

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Task is a logging Progress implementation. Counter updates are atomic so
// workers never contend; the mutex guards only child creation and the
// Init-time metadata, both off the hot path.
type Task struct {
	logger *slog.Logger
	name   string

	current atomic.Int64
	total   atomic.Int64

	mu       sync.Mutex
	unit     string
	children []*Task
}

// NewRoot returns the root task of a progress tree. A nil logger falls back
// to slog.Default().
func NewRoot(name string, logger *slog.Logger) *Task {
	if logger == nil {
		logger = slog.Default()
	}

	return &Task{logger: logger, name: name}
}

// AddChild creates a named sub-task sharing the root's logger.
func (t *Task) AddChild(name string) Progress {
	child := &Task{logger: t.logger, name: t.name + "." + name}

	t.mu.Lock()
	t.children = append(t.children, child)
	t.mu.Unlock()

	return child
}

// Init declares the expected amount of work and its unit.
func (t *Task) Init(total int64, unit string) {
	t.total.Store(total)

	t.mu.Lock()
	t.unit = unit
	t.mu.Unlock()
}

// Inc records one completed step.
func (t *Task) Inc() {
	t.current.Add(1)
}

// IncBy records delta completed steps.
func (t *Task) IncBy(delta int64) {
	t.current.Add(delta)
}

// Set overwrites the completed-step counter.
func (t *Task) Set(value int64) {
	t.current.Store(value)
}

// Info surfaces a message through the task's logger.
func (t *Task) Info(msg string) {
	t.logger.Info(msg, "task", t.name)
}

// Name returns the task's dotted path.
func (t *Task) Name() string {
	return t.name
}

// Current returns the completed-step counter.
func (t *Task) Current() int64 {
	return t.current.Load()
}

// Total returns the declared amount of work, zero when never initialized.
func (t *Task) Total() int64 {
	return t.total.Load()
}

// Unit returns the unit declared by Init.
func (t *Task) Unit() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.unit
}

// Children returns a snapshot of the direct sub-tasks.
func (t *Task) Children() []*Task {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*Task, len(t.children))
	copy(out, t.children)

	return out
}
