package amqp

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Reasons carried by AlertCheckMessage.
const (
	ReasonCreated = "transaction_created"
	ReasonUpdated = "transaction_updated"
	ReasonDeleted = "transaction_deleted"
	ReasonManual  = "manual"
)

var errEmptyUser = errors.New("alert check message without user id")

// AlertCheckMessage asks the worker to evaluate one user's budget.
// It carries only the user id; the worker reads fresh state from storage.
type AlertCheckMessage struct {
	UserID    string    `json:"userId"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

func NewAlertCheckMessage(userID, reason string) *AlertCheckMessage {
	return &AlertCheckMessage{
		UserID:    userID,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
}

func (m *AlertCheckMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// AlertCheckMessageFromJSON decodes a message and rejects ones without a user.
func AlertCheckMessageFromJSON(data []byte) (*AlertCheckMessage, error) {
	var msg AlertCheckMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(msg.UserID) == "" {
		return nil, errEmptyUser
	}
	return &msg, nil
}
