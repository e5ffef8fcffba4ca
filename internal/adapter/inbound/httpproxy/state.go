package httpproxy

// tunnelState tracks a CONNECT tunnel's progress through the states spec
// §4.G names: Opening -> Authorizing -> Connecting -> Open -> Closed.
// Closed is terminal; it is reached from any earlier state on a parse
// error, gate deny, connect failure, or cancellation.
type tunnelState int

const (
	stateOpening tunnelState = iota
	stateAuthorizing
	stateConnecting
	stateOpen
	stateClosed
)

func (s tunnelState) String() string {
	switch s {
	case stateOpening:
		return "opening"
	case stateAuthorizing:
		return "authorizing"
	case stateConnecting:
		return "connecting"
	case stateOpen:
		return "open"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
