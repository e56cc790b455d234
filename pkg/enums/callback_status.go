package enums

// CallbackStatus is the normalized outcome extracted from a provider callback.
// Providers report statuses in their own vocabulary; anything unrecognized
// normalizes to pending so a glitchy provider can never fail an order.
type CallbackStatus string

const (
	CallbackSucceeded CallbackStatus = "succeeded"
	CallbackFailed    CallbackStatus = "failed"
	CallbackPending   CallbackStatus = "pending"
)

func (s CallbackStatus) IsValid() bool {
	switch s {
	case CallbackSucceeded, CallbackFailed, CallbackPending:
		return true
	}
	return false
}
