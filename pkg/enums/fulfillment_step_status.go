package enums

// FulfillmentStepStatus tracks one half of an order's fulfillment (digital
// grants or shipping) independently of the other.
type FulfillmentStepStatus string

const (
	FulfillStepPending FulfillmentStepStatus = "pending"
	FulfillStepDone    FulfillmentStepStatus = "done"
	FulfillStepFailed  FulfillmentStepStatus = "failed"
	FulfillStepSkipped FulfillmentStepStatus = "skipped"
)

func (s FulfillmentStepStatus) IsValid() bool {
	switch s {
	case FulfillStepPending, FulfillStepDone, FulfillStepFailed, FulfillStepSkipped:
		return true
	}
	return false
}
