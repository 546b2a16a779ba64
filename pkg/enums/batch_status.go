package enums

import "fmt"

// BatchStatus tracks the lifecycle of a stock batch.
type BatchStatus string

const (
	BatchStatusDraft        BatchStatus = "draft"
	BatchStatusImported     BatchStatus = "imported"
	BatchStatusCancelled    BatchStatus = "cancelled"
	BatchStatusDiscontinued BatchStatus = "discontinued"
	BatchStatusSoldOut      BatchStatus = "sold_out"
)

var validBatchStatuses = []BatchStatus{
	BatchStatusDraft,
	BatchStatusImported,
	BatchStatusCancelled,
	BatchStatusDiscontinued,
	BatchStatusSoldOut,
}

// String implements fmt.Stringer.
func (s BatchStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known BatchStatus.
func (s BatchStatus) IsValid() bool {
	for _, candidate := range validBatchStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseBatchStatus converts raw input into a BatchStatus.
func ParseBatchStatus(value string) (BatchStatus, error) {
	for _, candidate := range validBatchStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid batch status %q", value)
}
