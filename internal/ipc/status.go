package ipc

// StatusKind is a coarse client connection phase.
type StatusKind int

const (
	StatusDisconnected StatusKind = iota
	StatusConnecting
	StatusConnected
	StatusAuthenticated
	StatusSubscribed
	StatusError
)

func (k StatusKind) String() string {
	switch k {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusAuthenticated:
		return "authenticated"
	case StatusSubscribed:
		return "subscribed"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is the client's connection state. Reason is set for StatusError.
type Status struct {
	Kind   StatusKind
	Reason string
}

// Usable reports whether requests can be sent.
func (s Status) Usable() bool {
	switch s.Kind {
	case StatusConnected, StatusAuthenticated, StatusSubscribed:
		return true
	}
	return false
}

func (s Status) String() string {
	if s.Kind == StatusError && s.Reason != "" {
		return "error: " + s.Reason
	}
	return s.Kind.String()
}
