package core

// reader.go decodes an uploaded spreadsheet into a Sheet.
//
// Only the first worksheet is read and its first row is the header.
// Header and cell values are trimmed and NFC-normalized so labels typed on
// systems producing decomposed accents still match. Cells carrying a date
// number format are converted to YYYY-MM-DD.
//
// CSV files are accepted as well: the UTF-8 BOM added by Windows programs
// is skipped, invalid UTF-8 is replaced, and ';' is detected as separator
// for files exported by French spreadsheet locales.

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/unicode/norm"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadSpreadsheet decodes r according to the extension of fileName.
// It returns ErrUnsupportedFormat for anything but .xlsx, .xlsm and .csv,
// and ErrEmptyFile when no data row remains.
func ReadSpreadsheet(r io.Reader, fileName string) (*Sheet, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".xlsx", ".xlsm":
		return readXLSX(r)
	case ".csv":
		return readCSV(r)
	default:
		return nil, fmt.Errorf("%w: %q (use .xlsx or .csv)", ErrUnsupportedFormat, ext)
	}
}

func readXLSX(r io.Reader) (*Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %v", ErrInvalidFile, sheet, err)
	}

	dates := newDateCells(f, sheet)
	return buildSheet(rows, dates.convert)
}

// dateCells converts raw serials in date-formatted cells.
type dateCells struct {
	f        *excelize.File
	sheet    string
	date1904 bool
	styles   map[int]bool
}

func newDateCells(f *excelize.File, sheet string) *dateCells {
	d := &dateCells{f: f, sheet: sheet, styles: make(map[int]bool)}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		d.date1904 = *props.Date1904
	}
	return d
}

func (d *dateCells) convert(rowIdx, colIdx int, value string) string {
	serial, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return value
	}
	cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+1)
	if err != nil {
		return value
	}
	styleID, err := d.f.GetCellStyle(d.sheet, cell)
	if err != nil || !d.isDateStyle(styleID) {
		return value
	}
	t, err := excelize.ExcelDateToTime(serial, d.date1904)
	if err != nil {
		return value
	}
	return t.Format(DateLayout)
}

func (d *dateCells) isDateStyle(styleID int) bool {
	if known, ok := d.styles[styleID]; ok {
		return known
	}
	style, err := d.f.GetStyle(styleID)
	isDate := err == nil && isDateNumFmt(style)
	d.styles[styleID] = isDate
	return isDate
}

// isDateNumFmt recognises the built-in date formats and custom formats
// containing day or year tokens.
func isDateNumFmt(style *excelize.Style) bool {
	if style == nil {
		return false
	}
	switch n := style.NumFmt; {
	case n >= 14 && n <= 17, n == 22, n >= 27 && n <= 36, n >= 50 && n <= 58:
		return true
	}
	if style.CustomNumFmt == nil {
		return false
	}
	code := strings.ToLower(stripFormatLiterals(*style.CustomNumFmt))
	return strings.Contains(code, "yy") || (strings.Contains(code, "d") && strings.Contains(code, "m"))
}

// stripFormatLiterals drops quoted text and bracketed sections such as
// colors or locales from a number format code.
func stripFormatLiterals(code string) string {
	var b strings.Builder
	inQuote, inBracket := false, false
	for _, c := range code {
		switch {
		case c == '"' && !inBracket:
			inQuote = !inQuote
		case c == '[' && !inQuote:
			inBracket = true
		case c == ']' && inBracket:
			inBracket = false
		case !inQuote && !inBracket:
			b.WriteRune(c)
		}
	}
	return b.String()
}

func readCSV(r io.Reader) (*Sheet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		data = bytes.ToValidUTF8(data, []byte("\uFFFD"))
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.Comma = detectSeparator(data)

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: invalid csv: %v", ErrInvalidFile, err)
	}
	return buildSheet(records, nil)
}

func detectSeparator(data []byte) rune {
	firstLine := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		firstLine = data[:i]
	}
	if bytes.Count(firstLine, []byte(";")) > bytes.Count(firstLine, []byte(",")) {
		return ';'
	}
	return ','
}

// buildSheet turns records into a Sheet. convert, when set, rewrites a
// cell value given its zero-based coordinates.
func buildSheet(records [][]string, convert func(row, col int, value string) string) (*Sheet, error) {
	if len(records) == 0 {
		return nil, ErrEmptyFile
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = cleanCell(h)
	}

	sheet := &Sheet{Header: header}
	for i := 1; i < len(records); i++ {
		record := records[i]
		if isBlankRecord(record) {
			continue
		}

		fields := make(map[string]string, len(header))
		for col, name := range header {
			if name == "" || col >= len(record) {
				continue
			}
			value := cleanCell(record[col])
			if value != "" && convert != nil {
				value = convert(i, col, value)
			}
			fields[name] = value
		}
		sheet.Rows = append(sheet.Rows, ImportRow{Line: i + 1, Fields: fields})
	}

	if len(sheet.Rows) == 0 {
		return nil, ErrEmptyFile
	}
	return sheet, nil
}

func cleanCell(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func isBlankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
