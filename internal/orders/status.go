package orders

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

// ParseStatus accepts only recognized status values.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPending, StatusPaid, StatusShipped, StatusDelivered, StatusCancelled, StatusExpired:
		return Status(s), true
	}
	return "", false
}

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusPaid: true, StatusCancelled: true, StatusExpired: true},
	StatusPaid:      {StatusShipped: true},
	StatusShipped:   {StatusDelivered: true},
	StatusDelivered: {},
	StatusCancelled: {},
	StatusExpired:   {},
}

// CanTransition reports whether from -> to follows the normal lifecycle.
// Repeats of the same status are allowed so retried events stay no-ops.
func CanTransition(from, to Status) bool {
	return from == to || validNext[from][to]
}

// stockReleasable: only these states may still hold reserved stock. PAID,
// SHIPPED and DELIVERED are terminal with respect to the ledger.
func stockReleasable(s Status) bool {
	switch s {
	case StatusPending, StatusCancelled, StatusExpired:
		return true
	}
	return false
}
