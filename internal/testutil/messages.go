package testutil

import (
	"time"

	"github.com/Veraticus/spice-sms/internal/model"
)

// Sample message bodies run against the embedded rules. The last two are skipped.
const (
	BodyHDFCDebit = "Rs.500 debited from a/c for SWIGGY BANGALORE on 01-01-24. Ref No 123456789"
	BodyFallback  = "INR 250.00 paid to CHAI POINT on 03/02/2024. UPI Ref 412233445566"
	BodyPromo     = "Get 50% off today! Sneakers from Rs 999 only"
	BodyNoAmount  = "Your a/c XX1234 was debited. Ref No 998877665"
)

// SampleTimestamp is the delivery time used by the fixtures.
var SampleTimestamp = time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC).UnixMilli()

// SampleMessages returns a small mixed dump: two transactions and two messages
// that must be skipped.
func SampleMessages() []model.SMS {
	return []model.SMS{
		{Sender: "VM-HDFCBK", Body: BodyHDFCDebit, Timestamp: SampleTimestamp},
		{Sender: "AD-SHOPZ", Body: BodyPromo, Timestamp: SampleTimestamp + 1000},
		{Sender: "JM-PAYAPP", Body: BodyFallback, Timestamp: SampleTimestamp + 2000},
		{Sender: "HDFCBK", Body: BodyNoAmount, Timestamp: SampleTimestamp + 3000},
	}
}
