// Package customer holds the telecom customer record and its derived views.
package customer

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultHighProbThreshold splits high-risk customers in the dashboard.
const DefaultHighProbThreshold = 0.75

// ErrInvalidCustomer is returned by Validate.
var ErrInvalidCustomer = errors.New("invalid customer")

// Internet types.
const (
	InternetCable = "cable"
	InternetDSL   = "dsl"
	InternetFiber = "fiber"
	InternetNone  = "none"
)

// Contract types.
const (
	ContractMonthToMonth = "month_to_month"
	ContractOneYear      = "one_year"
	ContractTwoYear      = "two_year"
	ContractUnknown      = "unknown"
)

// Payment methods.
const (
	PaymentBankWithdrawal = "bank_withdrawal"
	PaymentCreditCard     = "credit_card"
	PaymentMailedCheck    = "mailed_check"
	PaymentUnknown        = "unknown"
)

// Customer is one row of the customer table. Flag fields hold 0 or 1.
type Customer struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Probability float64 `json:"probability"`
	Churn       int     `json:"churn"`

	SeniorCitizen      int `json:"seniorCitizen"`
	Married            int `json:"married"`
	Dependents         int `json:"dependents"`
	NumberOfDependents int `json:"numberOfDependents"`
	ReferredAFriend    int `json:"referredAFriend"`
	NumberOfReferrals  int `json:"numberOfReferrals"`
	TenureMonths       int `json:"tenureMonths"`

	PhoneService       int    `json:"phoneService"`
	MultipleLines      int    `json:"multipleLines"`
	InternetService    int    `json:"internetService"`
	InternetType       string `json:"internetType"`
	OnlineSecurity     int    `json:"onlineSecurity"`
	OnlineBackup       int    `json:"onlineBackup"`
	DeviceProtection   int    `json:"deviceProtection"`
	PremiumTechSupport int    `json:"premiumTechSupport"`
	StreamingTV        int    `json:"streamingTV"`
	StreamingMovies    int    `json:"streamingMovies"`
	StreamingMusic     int    `json:"streamingMusic"`
	UnlimitedData      int    `json:"unlimitedData"`

	ContractType     string `json:"contractType"`
	PaymentMethod    string `json:"paymentMethod"`
	PaperlessBilling int    `json:"paperlessBilling"`

	AvgMonthlyLongDistanceCharges float64 `json:"avgMonthlyLongDistanceCharges"`
	AvgMonthlyGBDownload          float64 `json:"avgMonthlyGBDownload"`
	MonthlyCharge                 float64 `json:"monthlyCharge"`
	TotalCharges                  float64 `json:"totalCharges"`
	TotalRefunds                  float64 `json:"totalRefunds"`
	TotalExtraDataCharges         float64 `json:"totalExtraDataCharges"`
	TotalLongDistanceCharges      float64 `json:"totalLongDistanceCharges"`
	TotalRevenue                  float64 `json:"totalRevenue"`
	CLTV                          float64 `json:"cltv"`

	SatisfactionScore int `json:"satisfactionScore"`
	DatasetID         int `json:"datasetId"`

	// InterventionCount is derived from the status rows; it is ignored on write.
	InterventionCount int `json:"interventionCount"`
}

// HighRisk reports whether the churn probability is strictly above threshold.
func (c Customer) HighRisk(threshold float64) bool {
	return c.Probability > threshold
}

// Normalize rewrites categorical fields to their canonical spelling.
func (c *Customer) Normalize() {
	c.InternetType = NormalizeInternetType(c.InternetType)
	c.ContractType = NormalizeContractType(c.ContractType)
	c.PaymentMethod = NormalizePaymentMethod(c.PaymentMethod)
}

// Validate checks the fields a store relies on.
func (c Customer) Validate() error {
	switch {
	case c.ID <= 0:
		return fmt.Errorf("%w: id must be positive", ErrInvalidCustomer)
	case strings.TrimSpace(c.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidCustomer)
	case c.Probability < 0 || c.Probability > 1:
		return fmt.Errorf("%w: probability %v out of [0,1]", ErrInvalidCustomer, c.Probability)
	case c.SatisfactionScore < 0 || c.SatisfactionScore > 5:
		return fmt.Errorf("%w: satisfactionScore %d out of [0,5]", ErrInvalidCustomer, c.SatisfactionScore)
	}
	return nil
}

// Status is one recorded intervention.
type Status struct {
	ID          int64     `json:"id"`
	CustomerID  int64     `json:"customerId"`
	CreatedAt   time.Time `json:"createdAt"`
	Description string    `json:"description"`
}

// Summary aggregates the whole table for the dashboard.
// SatisfactionCounts is keyed by the score rendered as a string.
type Summary struct {
	TotalCount         int            `json:"totalCount"`
	HighProbCount      int            `json:"highProbCount"`
	SatisfactionCounts map[string]int `json:"satisfactionCounts"`
}

func canonical(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("-", " ", "_", " ").Replace(s)
}

// NormalizeInternetType maps accepted spellings to an Internet* constant.
// Anything unrecognised becomes InternetNone.
func NormalizeInternetType(s string) string {
	switch canonical(s) {
	case "cable":
		return InternetCable
	case "dsl":
		return InternetDSL
	case "fiber", "fibre", "fiber optic", "fibre optic":
		return InternetFiber
	default:
		return InternetNone
	}
}

// NormalizeContractType maps accepted spellings to a Contract* constant.
func NormalizeContractType(s string) string {
	switch canonical(s) {
	case "month to month", "monthly", "month":
		return ContractMonthToMonth
	case "one year", "yearly", "1 year":
		return ContractOneYear
	case "two year", "2 year":
		return ContractTwoYear
	default:
		return ContractUnknown
	}
}

// NormalizePaymentMethod maps accepted spellings to a Payment* constant.
func NormalizePaymentMethod(s string) string {
	switch canonical(s) {
	case "bank withdrawal", "bank":
		return PaymentBankWithdrawal
	case "credit card", "card":
		return PaymentCreditCard
	case "mailed check", "mailed cheque", "check", "cheque":
		return PaymentMailedCheck
	default:
		return PaymentUnknown
	}
}
