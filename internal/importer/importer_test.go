package importer

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const sheetCSV = `Aakash Test Result,,,,,,,
FT-08 15th Jun'25,,,,,,,
PSID,Student Name,Batch,Phy,Chem,Bot,Zoo,Total,AIR
00012345678,Asha,B1,150,140,160,170,620,1200
,Missing,B1,10,10,10,10,40,
00012345679,Ravi,B2,120,AB,140,150,,
,,,,,,,,
`

func TestParseCSVDetectsHeader(t *testing.T) {
	res, err := ParseCSV(strings.NewReader(sheetCSV))
	require.NoError(t, err)
	assert.Equal(t, 3, res.HeaderRow)
	require.Len(t, res.Records, 2)
	assert.Len(t, res.Skipped, 1)

	first := res.Records[0]
	assert.Equal(t, "00012345678", first.PSID)
	assert.Equal(t, "Asha", first.Name)
	assert.Equal(t, "B1", first.Batch)
	assert.Equal(t, 150.0, first.Subjects["physics"])
	assert.Equal(t, 170.0, first.Subjects["zoology"])
	require.NotNil(t, first.Total)
	assert.Equal(t, 620.0, *first.Total)
	require.NotNil(t, first.AIRRank)
	assert.Equal(t, 1200, *first.AIRRank)

	second := res.Records[1]
	_, hasChem := second.Subjects["chemistry"]
	assert.False(t, hasChem)
	assert.Nil(t, second.Total)
	assert.Nil(t, second.AIRRank)
}

func TestParseRowsWithoutHeader(t *testing.T) {
	_, err := ParseRows([][]string{{"a", "b"}, {"1", "2"}})
	assert.True(t, errors.Is(err, ErrNoHeader))
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	rows := [][]interface{}{
		{"Roll No", "Name", "Physics", "Chemistry", "Botany", "Zoology", "Total Marks"},
		{"P1", "Asha", 150, 140, 160, 170, 620},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	res, err := ParseFile(bytes.NewReader(buf.Bytes()), "ft8.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "Sheet1", res.Sheet)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "P1", res.Records[0].PSID)
	assert.Equal(t, 140.0, res.Records[0].Subjects["chemistry"])
	require.NotNil(t, res.Records[0].Total)
	assert.Equal(t, 620.0, *res.Records[0].Total)
}
