// Package input loads the list of vehicles to process.
package input

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/xkilldash9x/fleetpm/api/schemas"
)

// idWidth is the width of an MVA.
const idWidth = 8

var leadingID = regexp.MustCompile(`^\d{8}`)

// bom is the byte order mark spreadsheet exports put before the first value.
const bom = "\ufeff"

// Normalize reduces a raw value to its leading 8-digit MVA, or to its first
// 8 characters when it does not start with one.
func Normalize(raw string) string {
	s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), bom))
	if m := leadingID.FindString(s); m != "" {
		return m
	}
	if r := []rune(s); len(r) > idWidth {
		return string(r[:idWidth])
	}
	return s
}

// Parse reads vehicle records from delimited text. Only the first column is
// used; blank lines, lines starting with '#' and a leading "MVA" header are
// skipped. A byte order mark on the first value is dropped and stray quotes
// are kept as text.
func Parse(r io.Reader) ([]schemas.VehicleRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'
	// Hand-edited lists carry stray quotes in note columns.
	reader.LazyQuotes = true

	var records []schemas.VehicleRecord
	first := true
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read vehicle list: %w", err)
		}
		if len(row) == 0 {
			continue
		}
		value := strings.TrimSpace(row[0])
		if first {
			value = strings.TrimSpace(strings.TrimPrefix(value, bom))
			first = false
		}
		if value == "" || strings.HasPrefix(value, "#") {
			continue
		}
		if len(records) == 0 && strings.EqualFold(value, "MVA") {
			continue
		}
		records = append(records, schemas.VehicleRecord{ID: Normalize(value)})
	}
}

// Load reads and parses the vehicle list at path.
func Load(path string) ([]schemas.VehicleRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vehicle list: %w", err)
	}
	defer f.Close()

	records, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// IDs returns the identifiers of records, in order.
func IDs(records []schemas.VehicleRecord) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}
