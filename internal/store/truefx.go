package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"forexsim/internal/domain"
)

// truefxLayout is the timestamp format of TrueFX tick files, always UTC.
const truefxLayout = "20060102 15:04:05.000"

// ReadTrueFXQuotes parses TrueFX tick CSV rows of the form
//
//	EUR/USD,20160729 20:59:56.418,1.11712,1.11781
//
// Symbols are normalised to the EUR_USD form.
func ReadTrueFXQuotes(r io.Reader) ([]domain.Quote, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 4
	cr.ReuseRecord = true

	var quotes []domain.Quote
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return quotes, nil
		}
		if err != nil {
			return nil, fmt.Errorf("truefx line %d: %w", line, err)
		}

		ts, err := time.Parse(truefxLayout, rec[1])
		if err != nil {
			return nil, fmt.Errorf("truefx line %d: timestamp: %w", line, err)
		}
		bid, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, fmt.Errorf("truefx line %d: bid: %w", line, err)
		}
		ask, err := strconv.ParseFloat(rec[3], 64)
		if err != nil {
			return nil, fmt.Errorf("truefx line %d: ask: %w", line, err)
		}
		quotes = append(quotes, domain.Quote{
			Symbol:    strings.ReplaceAll(strings.ToUpper(rec[0]), "/", "_"),
			Timestamp: ts,
			Bid:       bid,
			Ask:       ask,
		})
	}
}
