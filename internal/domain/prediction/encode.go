// Package prediction turns a customer into the churn model's feature vector
// and obtains a churn probability for it.
package prediction

import (
	"math"
	"strconv"
	"strings"

	"github.com/churnboard/churnboard/internal/domain/customer"
)

// One-hot column order expected by the model.
var (
	internetColumns = []string{customer.InternetCable, customer.InternetDSL, customer.InternetFiber}
	contractColumns = []string{customer.ContractMonthToMonth, customer.ContractOneYear, customer.ContractTwoYear}
	paymentColumns  = []string{customer.PaymentBankWithdrawal, customer.PaymentCreditCard, customer.PaymentMailedCheck}
)

// FeatureCount is the length of an encoded vector.
const FeatureCount = 38

// Encode builds the feature vector. Categorical fields are normalised first;
// a value outside the known set encodes as all zeros.
func Encode(c customer.Customer) []float64 {
	c.Normalize()
	v := make([]float64, 0, FeatureCount)
	v = append(v,
		float64(c.SeniorCitizen),
		float64(c.Married),
		float64(c.Dependents),
		float64(c.NumberOfDependents),
		float64(c.ReferredAFriend),
		float64(c.NumberOfReferrals),
		float64(c.TenureMonths),
		float64(c.PhoneService),
		float64(c.MultipleLines),
		float64(c.InternetService),
	)
	v = oneHot(v, c.InternetType, internetColumns)
	v = append(v,
		float64(c.OnlineSecurity),
		float64(c.OnlineBackup),
		float64(c.DeviceProtection),
		float64(c.PremiumTechSupport),
		float64(c.StreamingTV),
		float64(c.StreamingMovies),
		float64(c.StreamingMusic),
		float64(c.UnlimitedData),
	)
	v = oneHot(v, c.ContractType, contractColumns)
	v = oneHot(v, c.PaymentMethod, paymentColumns)
	v = append(v,
		float64(c.PaperlessBilling),
		c.AvgMonthlyLongDistanceCharges,
		c.AvgMonthlyGBDownload,
		c.MonthlyCharge,
		c.TotalCharges,
		c.TotalRefunds,
		c.TotalExtraDataCharges,
		c.TotalLongDistanceCharges,
		c.TotalRevenue,
		c.CLTV,
		float64(c.SatisfactionScore),
	)
	return v
}

// oneHot appends one column per known value. There is no catch-all column:
// an unknown value is all zeros rather than counted as the last one.
func oneHot(v []float64, value string, columns []string) []float64 {
	for _, col := range columns {
		if value == col {
			v = append(v, 1)
		} else {
			v = append(v, 0)
		}
	}
	return v
}

// CSV renders a vector as one comma-separated line, the body format of the
// inference endpoint.
func CSV(v []float64) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}

// Round rounds p to 4 decimal places.
func Round(p float64) float64 {
	return math.Round(p*1e4) / 1e4
}
