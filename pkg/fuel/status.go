package fuel

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Status is the subset of a submitAndAwaitStatus payload the CLI and API
// report on.
type Status struct {
	Type     string       `json:"type"`
	Time     string       `json:"time,omitempty"`
	Reason   string       `json:"reason,omitempty"`
	TotalGas string       `json:"totalGas,omitempty"`
	TotalFee string       `json:"totalFee,omitempty"`
	Block    *StatusBlock `json:"block,omitempty"`
}

// StatusBlock identifies the block that included the transaction.
type StatusBlock struct {
	ID string `json:"id"`
}

// Terminal reports whether the status ends a watch.
func (s *Status) Terminal() bool {
	return s.Type == SuccessStatus || s.Type == FailureStatus
}

// DecodeStatus extracts the status object from a submitAndAwaitStatus
// payload.
func DecodeStatus(payload json.RawMessage) (*Status, error) {
	var envelope struct {
		SubmitAndAwaitStatus *Status `json:"submitAndAwaitStatus"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("decoding status: %w", err)
	}
	if envelope.SubmitAndAwaitStatus == nil {
		return nil, errors.New("decoding status: missing submitAndAwaitStatus")
	}
	return envelope.SubmitAndAwaitStatus, nil
}
