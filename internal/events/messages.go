package events

import (
	"encoding/json"
	"time"
)

// TransactionRecordedMessage tells the export worker that a ledger
// entry was committed. It carries only identifiers; the worker fetches
// the full transaction from the database.
type TransactionRecordedMessage struct {
	TransactionID string    `json:"transactionId"`
	PlanID        string    `json:"planId"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewTransactionRecordedMessage(transactionID, planID string) *TransactionRecordedMessage {
	return &TransactionRecordedMessage{
		TransactionID: transactionID,
		PlanID:        planID,
		Timestamp:     time.Now(),
	}
}

func (m *TransactionRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TransactionRecordedMessageFromJSON(data []byte) (*TransactionRecordedMessage, error) {
	var msg TransactionRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.TransactionID == "" {
		return nil, errEmptyTransactionID
	}
	return &msg, nil
}
