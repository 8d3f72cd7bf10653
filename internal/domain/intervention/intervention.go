// Package intervention describes the retention actions that can be taken
// for an at-risk customer.
package intervention

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind selects the email sent to the customer.
type Kind string

// Kinds.
const (
	KindSupport  Kind = "support"
	KindDiscount Kind = "discount"
)

// ParseKind maps an emailType to a Kind. Anything other than "support"
// is a discount offer.
func ParseKind(emailType string) Kind {
	if strings.EqualFold(strings.TrimSpace(emailType), string(KindSupport)) {
		return KindSupport
	}
	return KindDiscount
}

// Template is the content of one intervention kind.
type Template struct {
	// Description is what gets stored in the status row.
	Description string
	Subject     string
	Body        string
}

var templates = map[Kind]Template{
	KindSupport: {
		Description: "Send a support email to customer.",
		Subject:     "Telecom Support Email",
		Body: "Hello, this is a support email from Telecom! It seems you've had some troubles recently " +
			"with our services; we would love to help you. Please let us know what challenges you are " +
			"facing and how we can help support you.",
	},
	KindDiscount: {
		Description: "Offer a discount of 20% to the user.",
		Subject:     "Telecom Discount",
		Body:        "Hi! Here's a 20% discount voucher for your next month with Telecom: [VOUCHER CODE: 937413]",
	},
}

// Template returns the content for k.
func (k Kind) Template() Template {
	if t, ok := templates[k]; ok {
		return t
	}
	return templates[KindDiscount]
}

// Job is one accepted intervention waiting for delivery.
type Job struct {
	ID          string
	CustomerID  int64
	Kind        Kind
	Key         string
	RequestedAt time.Time
}

// NewJob builds a job. requestID scopes idempotency: the same
// (customer, kind, requestID) triple yields the same Key. An empty requestID
// gets a fresh one, so the job is never treated as a repeat.
func NewJob(customerID int64, kind Kind, requestID string) Job {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return Job{
		ID:          uuid.NewString(),
		CustomerID:  customerID,
		Kind:        kind,
		Key:         Key(customerID, kind, requestID),
		RequestedAt: time.Now().UTC(),
	}
}

// Key is the idempotency key of an intervention request.
func Key(customerID int64, kind Kind, requestID string) string {
	return strconv.FormatInt(customerID, 10) + ":" + string(kind) + ":" + requestID
}
