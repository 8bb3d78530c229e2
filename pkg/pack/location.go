package pack

// Location points at one entry inside a specific pack.
type Location struct {
	// PackID identifies the pack within its owning store.
	PackID uint32
	// PackOffset is the entry's byte offset inside the pack data file.
	PackOffset uint64
	// EntrySize is the entry's full compressed span in bytes, header included.
	EntrySize uint64
}
