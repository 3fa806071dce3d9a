package drivepipe

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

const hdsHTMLReport = `<!DOCTYPE html>
<html><head><title>Hard Disk Sentinel report</title></head>
<body>
<p>Report created : 2024-03-05 11:42:10</p>
<table>
<tr><td>Hard Disk Model ID</td><td>ST4000DM004-2CV104</td></tr>
<tr><td>Hard Disk Serial Number</td><td>ZFN1ABCD</td></tr>
<tr><td>Interface</td><td>S-ATA Gen3</td></tr>
<tr><td>Total Size</td><td>3815447 MB</td></tr>
<tr><td>Current Temperature</td><td>34 °C</td></tr>
<tr><td>Health</td><td>Excellent</td></tr>
</table>
<table>
<tr><td>Hard Disk Model ID</td><td>WDC WD40EFRX-68N32N0</td></tr>
<tr><td>Hard Disk Serial Number</td><td>WDWCC7K1234567</td></tr>
<tr><td>Health</td><td>Fair</td></tr>
</table>
</body></html>`

func TestExtractHTMLReport_Tables(t *testing.T) {
	// WHAT: one drive per table, fields paired within their own table.
	// WHY: the model row precedes the serial row in the HDS layout; a flat
	// split at serial labels would attach drive 2's model to drive 1.
	p := New(Config{})
	drives, errs := p.extractHTMLReport("hds.html", []byte(hdsHTMLReport))
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %+v", errs)
	}
	if len(drives) != 2 {
		t.Fatalf("expected 2 drives, got %d", len(drives))
	}

	if drives[0].Serial != "ZFN1ABCD" || drives[0].Model != "ST4000DM004-2CV104" {
		t.Errorf("drive 0 = %q / %q", drives[0].Serial, drives[0].Model)
	}
	if drives[1].Serial != "WDWCC7K1234567" || drives[1].Model != "WDC WD40EFRX-68N32N0" {
		t.Errorf("drive 1 = %q / %q", drives[1].Serial, drives[1].Model)
	}
	if drives[0].Temperature != "34 °C" {
		t.Errorf("drive 0 temperature = %q", drives[0].Temperature)
	}
	if drives[0].ReportedAt != "2024-03-05 11:42:10" {
		t.Errorf("drive 0 ReportedAt = %q", drives[0].ReportedAt)
	}
}

func TestExtractHTMLReport_NoTables(t *testing.T) {
	// Older exports use preformatted text instead of tables; the flat-text
	// split still applies.
	page := `<html><body><pre>
Hard Disk Summary
Hard Disk Serial Number : ZFN1ABCD
Hard Disk Model ID : ST4000DM004
</pre></body></html>`
	p := New(Config{})
	drives, errs := p.extractHTMLReport("pre.html", []byte(page))
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %+v", errs)
	}
	if len(drives) != 1 || drives[0].Serial != "ZFN1ABCD" {
		t.Fatalf("drives = %+v", drives)
	}
}

func TestExtractHTMLReport_NoDriveContent(t *testing.T) {
	p := New(Config{})
	drives, errs := p.extractHTMLReport("page.html", []byte("<html><body><p>hello</p></body></html>"))
	if drives != nil {
		t.Fatalf("expected no drives, got %+v", drives)
	}
	if len(errs) != 1 || errs[0].Reason != ReasonMalformedContent {
		t.Fatalf("expected one MALFORMED_CONTENT error, got %+v", errs)
	}
}

func TestFlattenHTML_SeparatorBetweenCells(t *testing.T) {
	// The cell separator sits between label and value only; a trailing one
	// would end up inside every captured value.
	doc, err := html.Parse(strings.NewReader(
		`<table><tr><td>Hard Disk Model ID</td><td>ST4000DM004-2CV104</td></tr></table>`))
	if err != nil {
		t.Fatal(err)
	}
	flat := flattenHTML(doc)
	if !strings.Contains(flat, "Hard Disk Model ID : ST4000DM004-2CV104\n") {
		t.Fatalf("flat = %q", flat)
	}
	if strings.Contains(flat, ":\n") || strings.Contains(flat, ": \n") {
		t.Fatalf("trailing separator in %q", flat)
	}
}

func TestFlattenHTML_RowStructure(t *testing.T) {
	page := `<html><body><table>
<tr><td>Serial Number</td><td>AAAA1111</td></tr>
<tr><td>Health</td><td>OK</td></tr>
</table><script>var x = "Serial Number : FAKE0000";</script></body></html>`
	p := New(Config{})
	drives, errs := p.extractHTMLReport("rows.html", []byte(page))
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %+v", errs)
	}
	if len(drives) != 1 {
		t.Fatalf("expected 1 drive, got %d", len(drives))
	}
	// Script content is never part of the flattened text.
	if drives[0].Serial != "AAAA1111" {
		t.Errorf("Serial = %q", drives[0].Serial)
	}
	if strings.Contains(drives[0].Excerpt, "FAKE0000") {
		t.Errorf("script text leaked into excerpt: %q", drives[0].Excerpt)
	}
}
