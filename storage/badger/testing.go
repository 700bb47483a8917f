package badger

// NewMemoryBackend creates an in-memory blob store for testing.
// Caller must close the backend when done.
func NewMemoryBackend(opts ...Option) (*Backend, error) {
	return OpenBackend("", true, opts...)
}
