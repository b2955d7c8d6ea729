// Package csvimport loads daily OHLCV rows from CSV into the price store.
package csvimport

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"alpha_gateway/apperror"
	"alpha_gateway/models"
	"alpha_gateway/services/pricestore"
)

// Columns recognised in the header row. Unknown columns are ignored.
var columns = []string{"date", "open", "high", "low", "close", "volume"}

// Result reports one import
type Result struct {
	Symbol   string `json:"symbol"`
	Imported int    `json:"imported"`
	Path     string `json:"path,omitempty"`
}

// Parse reads a CSV with a header row naming date, open, high, low, close and
// volume in any order. Blank numeric cells are 0 and rows without a date are skipped.
func Parse(r io.Reader) ([]models.DailyBar, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []models.DailyBar{}, nil
	}
	if err != nil {
		return nil, apperror.NewValidation(fmt.Sprintf("invalid csv header: %v", err))
	}

	index := map[string]int{}
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	if _, ok := index["date"]; !ok {
		return nil, apperror.NewValidation("csv header has no date column")
	}

	var rows []models.DailyBar
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, apperror.NewValidation(fmt.Sprintf("invalid csv at line %d: %v", line, err))
		}

		cell := func(name string) string {
			i, ok := index[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		date := cell("date")
		if date == "" {
			continue
		}
		bar := models.DailyBar{Date: date}
		fields := []*float64{&bar.Open, &bar.High, &bar.Low, &bar.Close}
		for i, name := range columns[1:5] {
			v, err := parseNumber(cell(name))
			if err != nil {
				return nil, apperror.NewValidation(fmt.Sprintf("line %d: bad %s %q", line, name, cell(name)))
			}
			*fields[i] = v
		}
		vol, err := parseNumber(cell("volume"))
		if err != nil {
			return nil, apperror.NewValidation(fmt.Sprintf("line %d: bad volume %q", line, cell("volume")))
		}
		bar.Volume = int64(vol)
		rows = append(rows, bar)
	}
	if rows == nil {
		rows = []models.DailyBar{}
	}
	return rows, nil
}

func parseNumber(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// ImportFile parses the CSV at path and upserts it under the normalized symbol
func ImportFile(ctx context.Context, store pricestore.PriceStore, symbol, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperror.NewNotFound("csv not found: " + path)
		}
		return nil, apperror.Wrap(apperror.Internal, "failed to open csv", err)
	}
	defer f.Close()

	res, err := importRows(ctx, store, symbol, f)
	if err != nil {
		return nil, err
	}
	res.Path = path
	return res, nil
}

// ImportContent parses CSV text and upserts it under the normalized symbol
func ImportContent(ctx context.Context, store pricestore.PriceStore, symbol, content string) (*Result, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperror.NewValidation("missing content")
	}
	return importRows(ctx, store, symbol, strings.NewReader(content))
}

func importRows(ctx context.Context, store pricestore.PriceStore, symbol string, r io.Reader) (*Result, error) {
	sym := models.NormalizeSymbol(symbol)
	if sym == "" {
		return nil, apperror.NewValidation("missing symbol")
	}
	rows, err := Parse(r)
	if err != nil {
		return nil, err
	}
	if err := store.Upsert(ctx, sym, rows); err != nil {
		return nil, apperror.Wrap(apperror.Internal, "failed to store rows", err)
	}
	return &Result{Symbol: sym, Imported: len(rows)}, nil
}
