package workers

// Worker is a background job with its own schedule
type Worker interface {
	Start() error
	// Stop blocks until the running job, if any, returns.
	Stop()
	Name() string
}
