package transport

// Outcome of a tuning attempt, logged alongside the requested values.
const (
	StatusOK     = "ok"
	StatusNA     = "n/a"
	StatusDenied = "denied"
)
