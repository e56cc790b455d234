package enums

import "fmt"

// PaymentTransactionStatus tracks a single payment attempt.
type PaymentTransactionStatus string

const (
	PaymentTxnInitiated     PaymentTransactionStatus = "initiated"
	PaymentTxnPendingReview PaymentTransactionStatus = "pending_review"
	PaymentTxnSucceeded     PaymentTransactionStatus = "succeeded"
	PaymentTxnFailed        PaymentTransactionStatus = "failed"
)

var validPaymentTransactionStatuses = []PaymentTransactionStatus{
	PaymentTxnInitiated,
	PaymentTxnPendingReview,
	PaymentTxnSucceeded,
	PaymentTxnFailed,
}

func (s PaymentTransactionStatus) IsValid() bool {
	for _, candidate := range validPaymentTransactionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParsePaymentTransactionStatus(value string) (PaymentTransactionStatus, error) {
	for _, candidate := range validPaymentTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment transaction status %q", value)
}
