package count

// Outcome sums up one counting run.
type Outcome struct {
	// InputObjects is the number of ids fed into the run.
	InputObjects uint64
	// ExpandedObjects is the number of objects added beyond the inputs.
	ExpandedObjects uint64
	// DecodedObjects is the number of objects materialized while
	// expanding, cache hits included.
	DecodedObjects uint64
	// TotalObjects is the number of counts produced.
	TotalObjects uint64
}

// Add folds other into o.
func (o *Outcome) Add(other Outcome) {
	o.InputObjects += other.InputObjects
	o.ExpandedObjects += other.ExpandedObjects
	o.DecodedObjects += other.DecodedObjects
	o.TotalObjects += other.TotalObjects
}
