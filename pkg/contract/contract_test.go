package contract

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptrF(v float64) *float64 { return &v }
func ptrI(v int) *int         { return &v }

func TestRecord_Defaults(t *testing.T) {
	r := Record{Amount: 100}
	assert.Equal(t, float64(DefaultDurationMonths), r.Duration())
	assert.Equal(t, DefaultBidCount, r.Bids())

	r.DurationMonths = ptrF(2)
	r.BidCount = ptrI(1)
	assert.Equal(t, 2.0, r.Duration())
	assert.Equal(t, 1, r.Bids())
}

func TestRecord_Validate(t *testing.T) {
	tests := []struct {
		name  string
		rec   Record
		field string
	}{
		{"valid", Record{Amount: 1000}, ""},
		{"zero amount", Record{}, ""},
		{"negative amount", Record{Amount: -5000}, ""},
		{"empty strings", Record{ContractNumber: "", Supplier: "", Country: ""}, ""},
		{"nan amount", Record{Amount: math.NaN()}, "amount"},
		{"inf amount", Record{Amount: math.Inf(1)}, "amount"},
		{"zero duration", Record{DurationMonths: ptrF(0)}, "duration"},
		{"negative duration", Record{DurationMonths: ptrF(-3)}, "duration"},
		{"nan duration", Record{DurationMonths: ptrF(math.NaN())}, "duration"},
		{"negative bids", Record{BidCount: ptrI(-1)}, "bid_count"},
		{"zero bids", Record{BidCount: ptrI(0)}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestValidationError_Message(t *testing.T) {
	e := &ValidationError{Field: "amount", Reason: "must be numeric"}
	assert.Equal(t, "invalid amount: must be numeric", e.Error())
	e.Row = 4
	assert.Equal(t, "invalid amount on row 4: must be numeric", e.Error())
}

func TestRecord_Text(t *testing.T) {
	r := Record{Description: "Emergency Road Repair", ProcurementType: "Direct"}
	assert.Equal(t, "emergency road repair direct", r.Text())
}

func TestReadCSV(t *testing.T) {
	in := `Contract_Number,description,amount,supplier,country,duration,bid_count,is_fraud
C-1,Road works,250000,ACME,Pakistan,12,4,0
C-2,Emergency supplies,75000000,Quick Ltd,Pakistan,2,1,1
C-3,Office chairs,1200,Desk Co,Kenya,,,
`
	rows, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "C-1", rows[0].Record.ContractNumber)
	assert.Equal(t, 250000.0, rows[0].Record.Amount)
	require.NotNil(t, rows[0].Label)
	assert.False(t, *rows[0].Label)

	assert.Equal(t, 2.0, rows[1].Record.Duration())
	assert.Equal(t, 1, rows[1].Record.Bids())
	require.NotNil(t, rows[1].Label)
	assert.True(t, *rows[1].Label)

	assert.Nil(t, rows[2].Record.DurationMonths)
	assert.Nil(t, rows[2].Record.BidCount)
	assert.Nil(t, rows[2].Label)
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"missing amount column", "contract_number,supplier\nC-1,ACME\n"},
		{"non numeric amount", "contract_number,amount\nC-1,lots\n"},
		{"bad duration", "amount,duration\n10,soon\n"},
		{"bad bids", "amount,bid_count\n10,1.5\n"},
		{"bad label", "amount,is_fraud\n10,maybe\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.in))
			assert.Error(t, err)
		})
	}
}

func TestReadCSV_ValidationRow(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("amount\n10\nabc\n"))
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, 3, ve.Row)
}
