package domain

// Direction records which side placed the call.
type Direction int

const (
	Outbound Direction = iota
	Inbound
)

func (d Direction) String() string {
	switch d {
	case Outbound:
		return "outbound"
	case Inbound:
		return "inbound"
	default:
		return "unknown"
	}
}

// ConnStatus is the lifecycle of one peer link.
// Pending -> Active -> Closed, or Pending -> Closed on failure.
type ConnStatus int32

const (
	Pending ConnStatus = iota
	Active
	Closed
)

func (s ConnStatus) String() string {
	switch s {
	case Pending:
		return "pending"
	case Active:
		return "active"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}
