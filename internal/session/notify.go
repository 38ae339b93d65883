package session

// Severity of a toast notification.
type Severity int

const (
	SeveritySuccess Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeveritySuccess:
		return "success"
	case SeverityWarning:
		return "warning"
	default:
		return "error"
	}
}

// Notifier is how session operations surface progress and results to the user.
// Implementations must be safe for concurrent use; the event bridge notifies from
// its own goroutine.
type Notifier interface {
	Loading(message string)
	LoadingDone()
	Toast(message string, severity Severity)
}

// NopNotifier discards every notification.
type NopNotifier struct{}

func (NopNotifier) Loading(string)         {}
func (NopNotifier) LoadingDone()           {}
func (NopNotifier) Toast(string, Severity) {}
