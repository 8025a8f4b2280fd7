package enums

// CodeStatus tracks an inventory code through reservation and delivery.
// Codes only move forward: available, reserved, delivered. A failed delivery
// is the one way back, from reserved to available.
type CodeStatus string

const (
	CodeStatusAvailable CodeStatus = "available"
	CodeStatusReserved  CodeStatus = "reserved"
	CodeStatusDelivered CodeStatus = "delivered"
)

var codeStatuses = set[CodeStatus]{CodeStatusAvailable, CodeStatusReserved, CodeStatusDelivered}

func (s CodeStatus) String() string { return string(s) }

func (s CodeStatus) IsValid() bool { return codeStatuses.has(s) }

func ParseCodeStatus(value string) (CodeStatus, error) {
	return codeStatuses.parse(value, "code status")
}

// CanBecome reports whether a code in status s may be moved to next.
func (s CodeStatus) CanBecome(next CodeStatus) bool {
	switch s {
	case CodeStatusAvailable:
		return next == CodeStatusReserved
	case CodeStatusReserved:
		return next == CodeStatusDelivered || next == CodeStatusAvailable
	}
	return false
}
