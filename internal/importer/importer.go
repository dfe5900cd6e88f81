// Package importer reads already-extracted result sheets (XLSX or CSV) into
// flat per-subject mark records.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/MangalNathYadav/aakash-lm-student/internal/models"
)

// ErrNoHeader is returned when no row looks like a result-table header.
var ErrNoHeader = errors.New("no header row with a psid/roll column and subject columns")

var numeric = regexp.MustCompile(`[^\d.\-]`)

// Result holds the records of one sheet and the rows that were skipped.
type Result struct {
	Sheet     string
	HeaderRow int
	Records   []models.ParsedRecord
	Skipped   []string
}

// ParseFile picks the reader from the file extension. Anything that is not
// .csv is opened as a workbook.
func ParseFile(r io.Reader, filename string) (*Result, error) {
	if strings.EqualFold(filepath.Ext(filename), ".csv") {
		return ParseCSV(r)
	}
	return ParseXLSX(r)
}

// ParseXLSX reads the first worksheet of a workbook.
func ParseXLSX(r io.Reader) (*Result, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close() //nolint:errcheck

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}
	res, err := ParseRows(rows)
	if err != nil {
		return nil, err
	}
	res.Sheet = sheets[0]
	return res, nil
}

// ParseCSV reads a comma separated sheet with ragged rows.
func ParseCSV(r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("error reading CSV: %w", err)
	}
	return ParseRows(rows)
}

type columns struct {
	psid, name, batch, total    int
	centerRank, airRank, pctile int
	subjects                    map[models.Subject]int
}

// ParseRows finds the header row and maps every following row to a record.
// Rows without a PSID are reported in Skipped.
func ParseRows(rows [][]string) (*Result, error) {
	headerIdx := -1
	var cols columns
	for i, row := range rows {
		clean := cleanHeader(row)
		if hasAny(clean, "psid", "roll") && hasAny(clean, "phy", "che") {
			headerIdx = i
			cols = mapColumns(clean)
			break
		}
	}
	if headerIdx == -1 {
		return nil, ErrNoHeader
	}

	res := &Result{HeaderRow: headerIdx + 1, Records: make([]models.ParsedRecord, 0, len(rows)-headerIdx-1)}
	for i := headerIdx + 1; i < len(rows); i++ {
		row := rows[i]
		if blank(row) {
			continue
		}
		psid := cell(row, cols.psid)
		if psid == "" {
			res.Skipped = append(res.Skipped, fmt.Sprintf("row %d: missing psid", i+1))
			continue
		}
		rec := models.ParsedRecord{
			PSID:     psid,
			Name:     cell(row, cols.name),
			Batch:    cell(row, cols.batch),
			Subjects: make(map[string]float64, len(cols.subjects)),
		}
		for subject, idx := range cols.subjects {
			if v, ok := number(cell(row, idx)); ok {
				rec.Subjects[string(subject)] = v
			}
		}
		if v, ok := number(cell(row, cols.total)); ok {
			rec.Total = &v
		}
		if v, ok := number(cell(row, cols.pctile)); ok {
			rec.Percentile = &v
		}
		rec.CenterRank = rank(cell(row, cols.centerRank))
		rec.AIRRank = rank(cell(row, cols.airRank))
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

func cleanHeader(row []string) []string {
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = strings.ToLower(strings.Join(strings.Fields(c), " "))
	}
	return out
}

func hasAny(headers []string, keys ...string) bool {
	return find(headers, nil, keys...) != -1
}

// find returns the first column containing a key, trying keys in priority
// order and ignoring columns already claimed.
func find(headers []string, claimed map[int]bool, keys ...string) int {
	for _, k := range keys {
		for i, h := range headers {
			if claimed[i] {
				continue
			}
			if strings.Contains(h, k) {
				return i
			}
		}
	}
	return -1
}

func mapColumns(headers []string) columns {
	claimed := map[int]bool{}
	claim := func(keys ...string) int {
		idx := find(headers, claimed, keys...)
		if idx != -1 {
			claimed[idx] = true
		}
		return idx
	}

	cols := columns{subjects: map[models.Subject]int{}}
	cols.psid = claim("psid", "roll")
	cols.airRank = claim("air")
	cols.centerRank = claim("center rank", "centre rank", "c. rank", "c.rank")
	cols.pctile = claim("percentile")
	subjectKeys := map[models.Subject][]string{
		models.SubjectPhysics:   {"phys", "phy"},
		models.SubjectChemistry: {"chem", "che"},
		models.SubjectBotany:    {"bot"},
		models.SubjectZoology:   {"zoo"},
	}
	for _, s := range models.Subjects {
		if idx := claim(subjectKeys[s]...); idx != -1 {
			cols.subjects[s] = idx
		}
	}
	cols.total = claim("total", "score", "marks")
	cols.name = claim("name")
	cols.batch = claim("batch")
	return cols
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func number(raw string) (float64, bool) {
	cleaned := numeric.ReplaceAllString(raw, "")
	if cleaned == "" || cleaned == "-" || cleaned == "." {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func rank(raw string) *int {
	v, ok := number(raw)
	if !ok || v <= 0 {
		return nil
	}
	n := int(v)
	return &n
}
