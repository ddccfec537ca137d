package server

// State is a step of the per-connection upload exchange.
type State uint8

const (
	StateAwaitHeader State = iota
	StateResolveSession
	StateAwaitLock
	StateComputeOffset
	StateSendOffset
	StateReceiveBody
	StateFinalize
	StateSendAck
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAwaitHeader:
		return "await_header"
	case StateResolveSession:
		return "resolve_session"
	case StateAwaitLock:
		return "await_lock"
	case StateComputeOffset:
		return "compute_offset"
	case StateSendOffset:
		return "send_offset"
	case StateReceiveBody:
		return "receive_body"
	case StateFinalize:
		return "finalize"
	case StateSendAck:
		return "send_ack"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
