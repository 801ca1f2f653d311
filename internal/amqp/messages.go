package amqp

import (
	"time"

	jsoniter "github.com/json-iterator/go"

	"expensedash/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ChangeMessage is the wire form of a store event. Amounts are decimal
// strings so consumers never see float rounding.
type ChangeMessage struct {
	Kind      string    `json:"kind"`
	ExpenseID int64     `json:"expense_id,omitempty"`
	Name      string    `json:"name,omitempty"`
	Amount    string    `json:"amount,omitempty"`
	Category  string    `json:"category,omitempty"`
	Field     string    `json:"field,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewChangeMessage builds the message for e. Income events carry the income
// in Amount.
func NewChangeMessage(e store.Event) *ChangeMessage {
	msg := &ChangeMessage{
		Kind:      string(e.Kind),
		Timestamp: e.At,
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	if e.Kind == store.IncomeUpdated {
		msg.Amount = e.Income.String()
		return msg
	}
	msg.ExpenseID = e.Expense.ID
	msg.Name = e.Expense.Name
	msg.Category = string(e.Expense.Category)
	msg.Field = string(e.Field)
	if e.Kind != store.ExpenseDeleted || e.Expense.Name != "" {
		msg.Amount = e.Expense.Amount.String()
	}
	return msg
}

func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}
