package customer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// SecondDatasetFromRow is the first CSV data row (1-based) of dataset 2.
const SecondDatasetFromRow = 353

// ErrDataset wraps every dataset parsing failure.
var ErrDataset = errors.New("dataset")

var requiredColumns = []string{
	"Probability", "Churn", "Name",
	"Senior Citizen", "Married", "Dependents", "Number of Dependents",
	"Referred a Friend", "Number of Referrals", "Tenure in Months",
	"Phone Service", "Multiple Lines", "Internet Service",
	"Internet Cable", "Internet DSL", "Internet Fiber Optic",
	"Online Security", "Online Backup", "Device Protection Plan", "Premium Tech Support",
	"Streaming TV", "Streaming Movies", "Streaming Music", "Unlimited Data",
	"Contract Month to Month", "Contract One Year", "Contract Two Year",
	"Bank Withdrawal", "Credit Card", "Mailed Check",
	"Paperless Billing",
	"Avg Monthly Long Distance Charges", "Avg Monthly GB Download", "Monthly Charge",
	"Total Charges", "Total Refunds", "Total Extra Data Charges",
	"Total Long Distance Charges", "Total Revenue", "CLTV",
	"Satisfaction Score",
}

// DatasetReader reads customers from the business dataset CSV, where
// categorical columns are one-hot encoded. Rows are numbered from 1 and the
// row number becomes the customer id.
type DatasetReader struct {
	r     *csv.Reader
	index map[string]int
	row   int
}

// NewDatasetReader reads the header and checks every required column exists.
func NewDatasetReader(r io.Reader) (*DatasetReader, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrDataset, err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrDataset, col)
		}
	}
	return &DatasetReader{r: cr, index: index}, nil
}

// Next returns the next customer or io.EOF.
func (d *DatasetReader) Next() (Customer, error) {
	rec, err := d.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Customer{}, io.EOF
		}
		return Customer{}, fmt.Errorf("%w: row %d: %w", ErrDataset, d.row+1, err)
	}
	d.row++

	p := rowParser{rec: rec, index: d.index}
	c := Customer{
		ID:          int64(d.row),
		Name:        p.text("Name"),
		Probability: p.real("Probability"),
		Churn:       p.num("Churn"),

		SeniorCitizen:      p.num("Senior Citizen"),
		Married:            p.num("Married"),
		Dependents:         p.num("Dependents"),
		NumberOfDependents: p.num("Number of Dependents"),
		ReferredAFriend:    p.num("Referred a Friend"),
		NumberOfReferrals:  p.num("Number of Referrals"),
		TenureMonths:       p.num("Tenure in Months"),

		PhoneService:       p.num("Phone Service"),
		MultipleLines:      p.num("Multiple Lines"),
		InternetService:    p.num("Internet Service"),
		OnlineSecurity:     p.num("Online Security"),
		OnlineBackup:       p.num("Online Backup"),
		DeviceProtection:   p.num("Device Protection Plan"),
		PremiumTechSupport: p.num("Premium Tech Support"),
		StreamingTV:        p.num("Streaming TV"),
		StreamingMovies:    p.num("Streaming Movies"),
		StreamingMusic:     p.num("Streaming Music"),
		UnlimitedData:      p.num("Unlimited Data"),

		InternetType: p.oneHot(InternetNone,
			"Internet Cable", InternetCable,
			"Internet DSL", InternetDSL,
			"Internet Fiber Optic", InternetFiber),
		ContractType: p.oneHot(ContractUnknown,
			"Contract Month to Month", ContractMonthToMonth,
			"Contract One Year", ContractOneYear,
			"Contract Two Year", ContractTwoYear),
		PaymentMethod: p.oneHot(PaymentUnknown,
			"Bank Withdrawal", PaymentBankWithdrawal,
			"Credit Card", PaymentCreditCard,
			"Mailed Check", PaymentMailedCheck),
		PaperlessBilling: p.num("Paperless Billing"),

		AvgMonthlyLongDistanceCharges: p.real("Avg Monthly Long Distance Charges"),
		AvgMonthlyGBDownload:          p.real("Avg Monthly GB Download"),
		MonthlyCharge:                 p.real("Monthly Charge"),
		TotalCharges:                  p.real("Total Charges"),
		TotalRefunds:                  p.real("Total Refunds"),
		TotalExtraDataCharges:         p.real("Total Extra Data Charges"),
		TotalLongDistanceCharges:      p.real("Total Long Distance Charges"),
		TotalRevenue:                  p.real("Total Revenue"),
		CLTV:                          p.real("CLTV"),
		SatisfactionScore:             p.num("Satisfaction Score"),

		DatasetID: 1,
	}
	if d.row >= SecondDatasetFromRow {
		c.DatasetID = 2
	}
	if p.err != nil {
		return Customer{}, fmt.Errorf("%w: row %d: %w", ErrDataset, d.row, p.err)
	}
	return c, nil
}

// Row is the number of data rows read so far.
func (d *DatasetReader) Row() int { return d.row }

// rowParser keeps the first conversion error so a row is parsed in one pass.
type rowParser struct {
	rec   []string
	index map[string]int
	err   error
}

func (p *rowParser) text(col string) string {
	i := p.index[col]
	if i >= len(p.rec) {
		if p.err == nil {
			p.err = fmt.Errorf("column %q missing", col)
		}
		return ""
	}
	return strings.TrimSpace(p.rec[i])
}

func (p *rowParser) num(col string) int {
	s := p.text(col)
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		// Some exports write integers as "1.0".
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			if p.err == nil {
				p.err = fmt.Errorf("column %q: %w", col, err)
			}
			return 0
		}
		return int(f)
	}
	return v
}

func (p *rowParser) real(col string) float64 {
	s := p.text(col)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("column %q: %w", col, err)
	}
	return v
}

// oneHot returns the value paired with the first column set to 1.
// pairs alternates column name and value.
func (p *rowParser) oneHot(fallback string, pairs ...string) string {
	for i := 0; i+1 < len(pairs); i += 2 {
		if p.num(pairs[i]) == 1 {
			return pairs[i+1]
		}
	}
	return fallback
}
