package symbols

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"pitscout/pkg/model"
)

// LimitUp is one row of the limit-up list
type LimitUp struct {
	Count  int
	Sector string
}

// Loader reads the stock list and the optional limit-up list from disk
type Loader struct {
	StockFile   string
	LimitUpFile string // optional
}

// NewLoader creates a new symbol loader
func NewLoader(stockFile, limitUpFile string) *Loader {
	return &Loader{StockFile: stockFile, LimitUpFile: limitUpFile}
}

// Load reads the stock list and annotates it with limit-up data when available.
// A missing limit-up file is not an error.
func (l *Loader) Load() ([]model.Stock, error) {
	f, err := os.Open(l.StockFile)
	if err != nil {
		return nil, fmt.Errorf("opening stock list: %w", err)
	}
	defer f.Close()

	stocks, err := ParseStockCSV(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", l.StockFile, err)
	}

	if l.LimitUpFile == "" {
		return stocks, nil
	}
	lf, err := os.Open(l.LimitUpFile)
	if errors.Is(err, os.ErrNotExist) {
		return stocks, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening limit-up list: %w", err)
	}
	defer lf.Close()

	limitUps, err := ParseLimitUpCSV(lf)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", l.LimitUpFile, err)
	}
	return MergeLimitUp(stocks, limitUps), nil
}

// ParseStockCSV reads `code,name,province` rows. Short rows and a header row are skipped.
func ParseStockCSV(r io.Reader) ([]model.Stock, error) {
	rows, err := readRows(r)
	if err != nil {
		return nil, err
	}

	stocks := make([]model.Stock, 0, len(rows))
	for _, row := range rows {
		if len(row) < 3 || strings.EqualFold(strings.TrimSpace(row[0]), "code") {
			continue
		}
		code := NormalizeCode(row[0])
		if code == "" {
			continue
		}
		stocks = append(stocks, model.Stock{
			Code:     code,
			Name:     strings.TrimSpace(row[1]),
			Province: strings.TrimSpace(row[2]),
		})
	}
	return stocks, nil
}

// ParseLimitUpCSV reads `count,code,_,sector` rows keyed by normalized code.
// Rows with a non-numeric count are skipped.
func ParseLimitUpCSV(r io.Reader) (map[string]LimitUp, error) {
	rows, err := readRows(r)
	if err != nil {
		return nil, err
	}

	out := make(map[string]LimitUp, len(rows))
	for _, row := range rows {
		if len(row) < 4 {
			continue
		}
		count, err := strconv.Atoi(strings.TrimSpace(row[0]))
		if err != nil {
			continue
		}
		code := NormalizeCode(row[1])
		if code == "" {
			continue
		}
		out[code] = LimitUp{Count: count, Sector: strings.TrimSpace(row[3])}
	}
	return out, nil
}

// MergeLimitUp copies limit-up counts and sectors onto matching stocks
func MergeLimitUp(stocks []model.Stock, limitUps map[string]LimitUp) []model.Stock {
	out := make([]model.Stock, len(stocks))
	for i, s := range stocks {
		if lu, ok := limitUps[s.Code]; ok {
			s.LimitUpCount = lu.Count
			s.LimitUpSector = lu.Sector
		}
		out[i] = s
	}
	return out
}

// LoadCodes builds stocks from codes given on the command line
func LoadCodes(codes []string) []model.Stock {
	stocks := make([]model.Stock, 0, len(codes))
	for _, c := range codes {
		if code := NormalizeCode(c); code != "" {
			stocks = append(stocks, model.Stock{Code: code, Name: code})
		}
	}
	return stocks
}

// NormalizeCode upper-cases a code and adds the exchange suffix to bare six digit codes:
// 6xxxxx and 9xxxxx trade in Shanghai (.SS), 0xxxxx, 2xxxxx and 3xxxxx in Shenzhen (.SZ),
// 4xxxxx and 8xxxxx in Beijing (.BJ). Codes it cannot place are returned unchanged.
func NormalizeCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.TrimPrefix(code, "\ufeff")
	if strings.HasSuffix(code, ".SH") {
		code = strings.TrimSuffix(code, ".SH") + ".SS"
	}
	if len(code) != 6 || strings.Contains(code, ".") {
		return code
	}
	if _, err := strconv.Atoi(code); err != nil {
		return code
	}
	switch code[0] {
	case '6', '9':
		return code + ".SS"
	case '0', '2', '3':
		return code + ".SZ"
	case '4', '8':
		return code + ".BJ"
	}
	return code
}

func readRows(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	return reader.ReadAll()
}
