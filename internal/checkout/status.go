package checkout

// Status is the terminal outcome of a checkout attempt. The distinction
// between CREATION_FAILED and the later failures matters to callers:
// the former means nothing was persisted, the latter two mean an order
// header may exist remotely.
type Status string

const (
	StatusSuccess             Status = "SUCCESS"
	StatusEmptyCart           Status = "EMPTY_CART"
	StatusOrderCreationFailed Status = "ORDER_CREATION_FAILED"
	StatusOrderIDUnresolved   Status = "ORDER_ID_UNRESOLVED"
	StatusOrderLinesFailed    Status = "ORDER_LINES_FAILED"
)

// String representation (for logging)
func (s Status) String() string {
	return string(s)
}

// OrderMayExist reports whether a failed attempt can have left an order
// header behind, which makes a blind resubmit unsafe.
func (s Status) OrderMayExist() bool {
	return s == StatusOrderIDUnresolved || s == StatusOrderLinesFailed
}
