// Package export writes qualified leads to CSV or XLSX for CRM handoff and
// records the delivered identities so later runs can flag or exclude them.
package export

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/andre-sav/HADES-sub001/internal/dedup"
	"github.com/andre-sav/HADES-sub001/internal/model"
)

// leadColumns defines the ordered output columns shared by both formats.
var leadColumns = []string{
	"Contact ID",
	"Company",
	"Workflow",
	"Score",
	"Freshness Tier",
	"Signal Strength",
	"Signal Age (Days)",
	"Distance (Miles)",
	"Phone",
	"SIC",
	"Employees",
	"Previously Exported",
}

// Recorder persists delivered lead identities. Satisfied by store.Store.
type Recorder interface {
	RecordExports(ctx context.Context, identities []string, exportedAt time.Time) error
}

// ToFile writes leads to the path, picking the format from its extension
// (.csv or .xlsx), then records their identities into export history. The
// lead order is preserved; callers pass the pipeline's score-ordered kept
// set. Returns how many rows were written.
func ToFile(ctx context.Context, path string, leads []*model.Lead, rec Recorder) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "export: create file")
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		err = WriteCSV(f, leads)
	case ".xlsx":
		err = WriteXLSX(f, leads)
	default:
		return 0, eris.Errorf("export: unsupported format %q (use .csv or .xlsx)", filepath.Ext(path))
	}
	if err != nil {
		return 0, err
	}

	if err := record(ctx, leads, rec); err != nil {
		return len(leads), err
	}

	zap.L().Info("export: file written",
		zap.String("path", path),
		zap.Int("rows", len(leads)),
	)
	return len(leads), nil
}

// WriteCSV writes the column header and one row per lead.
func WriteCSV(w io.Writer, leads []*model.Lead) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(leadColumns); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	for _, lead := range leads {
		if err := cw.Write(buildRow(lead)); err != nil {
			return eris.Wrap(err, "export: write row")
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush")
}

// WriteXLSX writes a single-sheet workbook with the same columns as the CSV.
func WriteXLSX(w io.Writer, leads []*model.Lead) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Leads")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range leadColumns {
		header.AddCell().SetString(col)
	}

	for _, lead := range leads {
		row := sheet.AddRow()
		for _, val := range buildRow(lead) {
			row.AddCell().SetString(val)
		}
	}

	return eris.Wrap(f.Write(w), "export: write workbook")
}

// record appends each lead's identity to export history. Leads with no
// usable phone or name have nothing future runs could match on, so they are
// skipped rather than poisoning the history with an empty key.
func record(ctx context.Context, leads []*model.Lead, rec Recorder) error {
	if rec == nil {
		return nil
	}

	identities := make([]string, 0, len(leads))
	for _, lead := range leads {
		if id := dedup.ExportIdentity(lead); id != "|" {
			identities = append(identities, id)
		}
	}
	if len(identities) == 0 {
		return nil
	}

	if err := rec.RecordExports(ctx, identities, time.Now().UTC()); err != nil {
		return eris.Wrap(err, "export: record history")
	}
	return nil
}

func buildRow(lead *model.Lead) []string {
	score := ""
	if lead.Score != nil {
		score = strconv.FormatFloat(*lead.Score, 'f', 2, 64)
	}
	distance := ""
	if lead.DistanceMiles != nil {
		distance = strconv.FormatFloat(*lead.DistanceMiles, 'f', 1, 64)
	}
	signalAge := ""
	if lead.Workflow == model.WorkflowIntent {
		signalAge = strconv.Itoa(lead.SignalAgeDays)
	}
	exported := ""
	if lead.PreviouslyExported {
		exported = "yes"
	}

	return []string{
		lead.ContactID,
		lead.CompanyName,
		string(lead.Workflow),
		score,
		string(lead.FreshnessTier),
		string(lead.SignalStrength),
		signalAge,
		distance,
		lead.Phone,
		lead.SICCode,
		strconv.Itoa(lead.EmployeeCount),
		exported,
	}
}
