package enums

import "fmt"

// InventoryOp labels a row in the append-only inventory ledger.
type InventoryOp string

const (
	InventoryOpReserve InventoryOp = "reserve"
	InventoryOpRelease InventoryOp = "release"
	InventoryOpCommit  InventoryOp = "commit"
	InventoryOpAdjust  InventoryOp = "adjust"
)

var validInventoryOps = []InventoryOp{
	InventoryOpReserve,
	InventoryOpRelease,
	InventoryOpCommit,
	InventoryOpAdjust,
}

func (o InventoryOp) IsValid() bool {
	for _, candidate := range validInventoryOps {
		if candidate == o {
			return true
		}
	}
	return false
}

func ParseInventoryOp(value string) (InventoryOp, error) {
	for _, candidate := range validInventoryOps {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid inventory op %q", value)
}
