package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/platterworks/drivebatch/drivepipe"
)

func intptr(v int) *int       { return &v }
func u64ptr(v uint64) *uint64 { return &v }

func mustTime(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		panic(err)
	}
	return t
}

func sampleBatch() *drivepipe.BatchResult {
	mk := func(serial, model, vendor string, score int) drivepipe.ReconciliationGroup {
		rec := drivepipe.DriveRecord{
			SerialNumber:       serial,
			Model:              model,
			Vendor:             vendor,
			Interface:          drivepipe.InterfaceSATA,
			CapacityBytes:      4_000_000_000_000,
			OverallHealth:      drivepipe.HealthPass,
			HealthScore:        score,
			TemperatureCelsius: intptr(34),
			PowerOnHours:       u64ptr(12044),
			ReallocatedSectors: 0,
			SourceFileName:     "report.html",
			ExtractedAt:        mustTime("2024-03-05 11:42:10"),
		}
		return drivepipe.ReconciliationGroup{
			SerialNumber: serial,
			Members:      []drivepipe.DriveRecord{rec},
			Merged:       drivepipe.MergedRecord{DriveRecord: rec},
		}
	}
	return &drivepipe.BatchResult{
		Groups: []drivepipe.ReconciliationGroup{
			mk("ZFN1ABCD", "ST4000DM004-2CV104", "Seagate", 100),
			mk("3PD08HQW00009816", "ST973402SS", "Seagate", -1),
		},
		Errors: []drivepipe.ParseError{{
			FileName:    "broken.pdf",
			FormatGuess: drivepipe.FormatPDF,
			Reason:      drivepipe.ReasonMalformedContent,
			Detail:      "no extractable text",
			OffsetHint:  "page 2",
		}},
	}
}

// WHAT: the CSV carries the fixed header row and one row per drive group,
// sorted by serial.
func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleBatch()); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("re-read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3 (header + 2 drives)", len(rows))
	}
	if rows[0][0] != "Label Serial" || rows[0][len(Headers)-1] != "Extracted At" {
		t.Errorf("header = %v", rows[0])
	}
	// "3PD..." sorts before "ZFN...".
	if rows[1][1] != "3PD08HQW00009816" || rows[2][1] != "ZFN1ABCD" {
		t.Errorf("wrong sort order: %q then %q", rows[1][1], rows[2][1])
	}
	if rows[1][0] != "3PD08HQW" {
		t.Errorf("label serial = %q, want first 8 chars", rows[1][0])
	}
	// Absent score stays empty instead of printing -1.
	if rows[1][8] != "" {
		t.Errorf("health score cell = %q, want empty", rows[1][8])
	}
	if rows[2][6] != "4000" {
		t.Errorf("capacity cell = %q, want 4000", rows[2][6])
	}
	if rows[2][14] != "2024-03-05 11:42:10" {
		t.Errorf("extracted at = %q", rows[2][14])
	}
}

// WHAT: the workbook has a Drives sheet matching the CSV layout and an
// Errors sheet listing parse failures.
func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, sampleBatch()); err != nil {
		t.Fatalf("WriteXLSX: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("reopen workbook: %v", err)
	}
	defer f.Close()

	drives, err := f.GetRows("Drives")
	if err != nil {
		t.Fatalf("read Drives sheet: %v", err)
	}
	if len(drives) != 3 {
		t.Fatalf("Drives sheet has %d rows, want 3", len(drives))
	}
	if drives[0][2] != "Model Number" {
		t.Errorf("header = %v", drives[0])
	}
	if drives[2][2] != "ST4000DM004-2CV104" {
		t.Errorf("model cell = %q", drives[2][2])
	}

	errRows, err := f.GetRows("Errors")
	if err != nil {
		t.Fatalf("read Errors sheet: %v", err)
	}
	if len(errRows) != 2 {
		t.Fatalf("Errors sheet has %d rows, want 2", len(errRows))
	}
	if errRows[1][0] != "broken.pdf" || errRows[1][4] != "page 2" {
		t.Errorf("error row = %v", errRows[1])
	}
}

// WHAT: a batch with no errors gets no Errors sheet.
func TestWriteXLSX_NoErrorsSheet(t *testing.T) {
	res := sampleBatch()
	res.Errors = nil

	var buf bytes.Buffer
	if err := WriteXLSX(&buf, res); err != nil {
		t.Fatalf("WriteXLSX: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("reopen workbook: %v", err)
	}
	defer f.Close()

	for _, name := range f.GetSheetList() {
		if name == "Errors" {
			t.Error("Errors sheet present on a clean batch")
		}
	}
}

func TestFileName(t *testing.T) {
	if got := FileName("bat_7", "xlsx"); got != "drivebatch_bat_7.xlsx" {
		t.Errorf("FileName = %q", got)
	}
}
