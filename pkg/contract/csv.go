package contract

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	colContractNumber  = "contract_number"
	colDescription     = "description"
	colAmount          = "amount"
	colSupplier        = "supplier"
	colCountry         = "country"
	colRegion          = "region"
	colDepartment      = "department"
	colProcurementType = "procurement_type"
	colDuration        = "duration"
	colBidCount        = "bid_count"
	colLabel           = "is_fraud"
)

// Row is one parsed CSV line. Label is set only when the file carries an
// is_fraud column with a value on that line.
type Row struct {
	Record Record
	Label  *bool
}

// ReadCSV parses a header-addressed CSV of contract records. Column names are
// matched case-insensitively; only the amount column is required.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty csv input")
		}
		return nil, errors.Wrap(err, "failed to read csv header")
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := idx[colAmount]; !ok {
		return nil, errors.Errorf("csv header missing required column: %s", colAmount)
	}

	rows := make([]Row, 0)
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read csv line %d", line)
		}

		row, err := parseRow(idx, rec, line)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRow(idx map[string]int, rec []string, line int) (Row, error) {
	get := func(col string) string {
		i, ok := idx[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	amount, err := strconv.ParseFloat(get(colAmount), 64)
	if err != nil {
		return Row{}, &ValidationError{Field: colAmount, Reason: "must be numeric", Row: line}
	}

	row := Row{
		Record: Record{
			ContractNumber:  get(colContractNumber),
			Description:     get(colDescription),
			Amount:          amount,
			Supplier:        get(colSupplier),
			Country:         get(colCountry),
			Region:          get(colRegion),
			Department:      get(colDepartment),
			ProcurementType: get(colProcurementType),
		},
	}

	if v := get(colDuration); v != "" {
		d, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Row{}, &ValidationError{Field: colDuration, Reason: "must be numeric", Row: line}
		}
		row.Record.DurationMonths = &d
	}

	if v := get(colBidCount); v != "" {
		b, err := strconv.Atoi(v)
		if err != nil {
			return Row{}, &ValidationError{Field: colBidCount, Reason: "must be an integer", Row: line}
		}
		row.Record.BidCount = &b
	}

	if v := get(colLabel); v != "" {
		l, err := parseLabel(v)
		if err != nil {
			return Row{}, &ValidationError{Field: colLabel, Reason: err.Error(), Row: line}
		}
		row.Label = &l
	}

	return row, nil
}

func parseLabel(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y":
		return true, nil
	case "0", "false", "no", "n":
		return false, nil
	default:
		return false, errors.Errorf("unrecognized label value: %q", v)
	}
}
