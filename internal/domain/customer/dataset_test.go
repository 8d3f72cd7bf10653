package customer_test

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/churnboard/churnboard/internal/domain/customer"
	. "github.com/smartystreets/goconvey/convey"
)

const datasetHeader = "Probability,Churn,Name,Customer ID,Senior Citizen,Married,Dependents,Number of Dependents," +
	"Referred a Friend,Number of Referrals,Tenure in Months,Phone Service,Multiple Lines,Internet Service," +
	"Internet Cable,Internet DSL,Internet Fiber Optic,Online Security,Online Backup,Device Protection Plan," +
	"Premium Tech Support,Streaming TV,Streaming Movies,Streaming Music,Unlimited Data," +
	"Contract Month to Month,Contract One Year,Contract Two Year,Bank Withdrawal,Credit Card,Mailed Check," +
	"Paperless Billing,Avg Monthly Long Distance Charges,Avg Monthly GB Download,Monthly Charge,Total Charges," +
	"Total Refunds,Total Extra Data Charges,Total Long Distance Charges,Total Revenue,CLTV,Satisfaction Score"

// Phillip Mull: DSL, month to month, bank withdrawal.
const datasetRow = "0.4907,1,Phillip Mull,8779-QRDMV,0,1,0,0,1,1,20,0,0,1," +
	"0,1,0,0,0,0,0,0,0,0,1," +
	"1,0,0,1,0,0," +
	"1,0,10,24.45,482.8,0,0,0,482.8,3298,3"

func TestDatasetReader(t *testing.T) {
	Convey("Given a dataset with one row", t, func() {
		r, err := customer.NewDatasetReader(strings.NewReader(datasetHeader + "\n" + datasetRow + "\n"))
		So(err, ShouldBeNil)

		Convey("When reading it", func() {
			c, err := r.Next()
			So(err, ShouldBeNil)
			_, eof := r.Next()

			Convey("Then one-hot columns collapse to categorical values", func() {
				So(c.ID, ShouldEqual, 1)
				So(c.Name, ShouldEqual, "Phillip Mull")
				So(c.Probability, ShouldEqual, 0.4907)
				So(c.InternetType, ShouldEqual, customer.InternetDSL)
				So(c.ContractType, ShouldEqual, customer.ContractMonthToMonth)
				So(c.PaymentMethod, ShouldEqual, customer.PaymentBankWithdrawal)
				So(c.MonthlyCharge, ShouldEqual, 24.45)
				So(c.CLTV, ShouldEqual, 3298)
				So(c.SatisfactionScore, ShouldEqual, 3)
				So(c.DatasetID, ShouldEqual, 1)
				So(eof, ShouldEqual, io.EOF)
			})
		})
	})

	Convey("Given a dataset longer than the first batch", t, func() {
		rows := strings.Repeat(datasetRow+"\n", customer.SecondDatasetFromRow)
		r, err := customer.NewDatasetReader(strings.NewReader(datasetHeader + "\n" + rows))
		So(err, ShouldBeNil)

		var last customer.Customer
		ids := map[int]int{}
		for {
			c, err := r.Next()
			if err != nil {
				So(err, ShouldEqual, io.EOF)
				break
			}
			ids[c.DatasetID]++
			last = c
		}

		Convey("Then the dataset id switches at row 353", func() {
			So(ids[1], ShouldEqual, customer.SecondDatasetFromRow-1)
			So(ids[2], ShouldEqual, 1)
			So(last.ID, ShouldEqual, customer.SecondDatasetFromRow)
			So(r.Row(), ShouldEqual, customer.SecondDatasetFromRow)
		})
	})

	Convey("Given malformed input", t, func() {
		Convey("When a column is missing", func() {
			_, err := customer.NewDatasetReader(strings.NewReader("Name,Probability\n"))
			So(errors.Is(err, customer.ErrDataset), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "missing column")
		})

		Convey("When a number does not parse", func() {
			row := strings.Replace(datasetRow, "0.4907", "high", 1)
			r, err := customer.NewDatasetReader(strings.NewReader(datasetHeader + "\n" + row + "\n"))
			So(err, ShouldBeNil)
			_, err = r.Next()
			So(errors.Is(err, customer.ErrDataset), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "Probability")
		})
	})
}
