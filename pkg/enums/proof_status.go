package enums

import "fmt"

// ProofStatus tracks the review lifecycle of a bank transfer proof.
type ProofStatus string

const (
	ProofPending  ProofStatus = "pending"
	ProofVerified ProofStatus = "verified"
	ProofRejected ProofStatus = "rejected"
)

var validProofStatuses = []ProofStatus{
	ProofPending,
	ProofVerified,
	ProofRejected,
}

func (s ProofStatus) IsValid() bool {
	for _, candidate := range validProofStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseProofStatus(value string) (ProofStatus, error) {
	for _, candidate := range validProofStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid proof status %q", value)
}
