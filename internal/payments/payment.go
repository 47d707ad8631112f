package payments

import (
	"strings"
	"time"

	"github.com/imrishuroy/grocery-orderflow/internal/apperr"
)

// Status is the settlement state of a payment.
type Status string

const (
	StatusPending Status = "Pending"
	StatusSuccess Status = "Success"
	StatusFailed  Status = "Failed"
)

// ParseStatus matches s against the known statuses, ignoring case and
// surrounding space.
func ParseStatus(s string) (Status, bool) {
	s = strings.TrimSpace(s)
	for _, st := range []Status{StatusPending, StatusSuccess, StatusFailed} {
		if strings.EqualFold(string(st), s) {
			return st, true
		}
	}
	return "", false
}

// Payment is the item stored in the payments table. One is opened for
// every placed order with the order total as its amount.
type Payment struct {
	PaymentID     string    `dynamodbav:"payment_id" json:"id"` // PK
	OrderID       string    `dynamodbav:"order_id" json:"orderId"`
	UserEmail     string    `dynamodbav:"user_email" json:"userEmail"`
	Amount        float64   `dynamodbav:"amount" json:"amount"`
	Method        string    `dynamodbav:"payment_method" json:"paymentMethod"`
	Status        Status    `dynamodbav:"status" json:"status"`
	TransactionID string    `dynamodbav:"transaction_id,omitempty" json:"transactionId,omitempty"`
	CreatedAt     time.Time `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `dynamodbav:"updated_at" json:"updatedAt"`
}

var (
	ErrPaymentNotFound      = apperr.New(apperr.ErrNotFound, "Payment not found")
	ErrPaymentSettled       = apperr.New(apperr.ErrInvalidState, "Payment is already settled")
	ErrDuplicateTransaction = apperr.New(apperr.ErrAlreadyExists, "Transaction id is already recorded")
)
