package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/andre-sav/HADES-sub001/internal/model"
)

type fakeRecorder struct {
	identities []string
	exportedAt time.Time
	err        error
}

func (f *fakeRecorder) RecordExports(_ context.Context, identities []string, exportedAt time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.identities = append(f.identities, identities...)
	f.exportedAt = exportedAt
	return nil
}

func scored(contactID, company, phone string, score float64) *model.Lead {
	return &model.Lead{
		ContactID:      contactID,
		Workflow:       model.WorkflowIntent,
		CompanyName:    company,
		Phone:          phone,
		SICCode:        "1711",
		EmployeeCount:  50,
		SignalStrength: model.SignalHigh,
		SignalAgeDays:  2,
		Score:          &score,
		FreshnessTier:  model.TierHot,
	}
}

func TestWriteCSV(t *testing.T) {
	leads := []*model.Lead{
		scored("C-001", "Summit Plumbing", "303-555-0001", 100),
		scored("C-002", "Boulder Electric", "303-555-0002", 73.75),
	}
	leads[1].PreviouslyExported = true

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, leads))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, leadColumns, rows[0])
	assert.Equal(t, "C-001", rows[1][0])
	assert.Equal(t, "100.00", rows[1][3])
	assert.Equal(t, "Hot", rows[1][4])
	assert.Equal(t, "", rows[1][11])
	assert.Equal(t, "73.75", rows[2][3])
	assert.Equal(t, "yes", rows[2][11])
}

func TestWriteCSV_GeographyLead(t *testing.T) {
	miles := 12.5
	lead := &model.Lead{
		ContactID:     "G-001",
		Workflow:      model.WorkflowGeography,
		CompanyName:   "Near Co",
		DistanceMiles: &miles,
		EmployeeCount: 60,
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []*model.Lead{lead}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "geography", rows[1][2])
	assert.Equal(t, "", rows[1][3], "unscored lead leaves score blank")
	assert.Equal(t, "", rows[1][6], "geography leads carry no signal age")
	assert.Equal(t, "12.5", rows[1][7])
}

func TestWriteXLSX(t *testing.T) {
	leads := []*model.Lead{
		scored("C-001", "Summit Plumbing", "303-555-0001", 100),
		scored("C-002", "Boulder Electric", "303-555-0002", 73.75),
	}

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, leads))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	sheet := f.Sheets[0]
	assert.Equal(t, "Leads", sheet.Name)
	require.Len(t, sheet.Rows, 3)

	assert.Equal(t, "Contact ID", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "C-001", sheet.Rows[1].Cells[0].String())
	assert.Equal(t, "100.00", sheet.Rows[1].Cells[3].String())
	assert.Equal(t, "Boulder Electric", sheet.Rows[2].Cells[1].String())
}

func TestToFile_CSVAndHistory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kept.csv")
	rec := &fakeRecorder{}

	leads := []*model.Lead{
		scored("C-001", "Summit Plumbing", "303-555-0001", 100),
		scored("C-002", "Boulder Electric", "303-555-0002", 73.75),
	}

	n, err := ToFile(context.Background(), path, leads, rec)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Summit Plumbing")

	require.Len(t, rec.identities, 2)
	assert.Equal(t, "3035550001|SUMMIT PLUMBING", rec.identities[0])
	assert.False(t, rec.exportedAt.IsZero())
}

func TestToFile_XLSXExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kept.xlsx")

	n, err := ToFile(context.Background(), path, []*model.Lead{
		scored("C-001", "Summit Plumbing", "303-555-0001", 100),
	}, &fakeRecorder{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	assert.Len(t, f.Sheets[0].Rows, 2)
}

func TestToFile_UnsupportedExtension(t *testing.T) {
	_, err := ToFile(context.Background(), filepath.Join(t.TempDir(), "kept.json"), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}

func TestToFile_SkipsUnidentifiableLeads(t *testing.T) {
	rec := &fakeRecorder{}
	blank := &model.Lead{ContactID: "C-900", Workflow: model.WorkflowIntent}

	n, err := ToFile(context.Background(), filepath.Join(t.TempDir(), "kept.csv"),
		[]*model.Lead{blank}, rec)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the row is still written")
	assert.Empty(t, rec.identities, "an empty identity key is never recorded")
}

func TestToFile_RecorderFailure(t *testing.T) {
	rec := &fakeRecorder{err: eris.New("store: closed")}
	path := filepath.Join(t.TempDir(), "kept.csv")

	n, err := ToFile(context.Background(), path,
		[]*model.Lead{scored("C-001", "Summit Plumbing", "303-555-0001", 100)}, rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record history")
	assert.Equal(t, 1, n, "the file was written before history failed")

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

func TestToFile_EmptyBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kept.csv")
	rec := &fakeRecorder{}

	n, err := ToFile(context.Background(), path, nil, rec)
	require.NoError(t, err)
	assert.Zero(t, n)

	rows, err := csv.NewReader(bytes.NewReader(mustRead(t, path))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 1, "header only")
	assert.Empty(t, rec.identities)
}

func mustRead(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}
