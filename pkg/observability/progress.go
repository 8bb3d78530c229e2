package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Sumatoshi-tech/packfang/pkg/progress"
)

// countedProgress mirrors completed steps into a prometheus counter while
// delegating everything to the wrapped task.
type countedProgress struct {
	inner   progress.Progress
	counter prometheus.Counter
}

// CountProgress wraps a task tree so every Inc and IncBy also feeds counter.
// Children share the counter. Set is not mirrored: the counter is monotonic
// while Set may rewind the task.
func CountProgress(inner progress.Progress, counter prometheus.Counter) progress.Progress {
	return &countedProgress{inner: inner, counter: counter}
}

func (p *countedProgress) AddChild(name string) progress.Progress {
	return &countedProgress{inner: p.inner.AddChild(name), counter: p.counter}
}

func (p *countedProgress) Init(total int64, unit string) {
	p.inner.Init(total, unit)
}

func (p *countedProgress) Inc() {
	p.counter.Inc()
	p.inner.Inc()
}

func (p *countedProgress) IncBy(delta int64) {
	p.counter.Add(float64(delta))
	p.inner.IncBy(delta)
}

func (p *countedProgress) Set(value int64) {
	p.inner.Set(value)
}

func (p *countedProgress) Info(msg string) {
	p.inner.Info(msg)
}
