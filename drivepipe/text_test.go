package drivepipe

import (
	"testing"
)

const hdsTextReport = `Hard Disk Sentinel PRO 5.50
Report created : 2024-03-05 11:42:10

Hard Disk Summary
-----------------
Interface  . . . . . . . . . : S-ATA Gen3, 6 Gbps
Hard Disk Model ID . . . . . : ST4000DM004-2CV104
Hard Disk Serial Number  . . : ZFN1ABCD
Total Size . . . . . . . . . : 3815447 MB
Power on time  . . . . . . . : 12345 hours
Current Temperature  . . . . : 34 °C
Health . . . . . . . . . . . : #################### 100 % (Excellent)

Hard Disk Summary
-----------------
Interface  . . . . . . . . . : S-ATA Gen3, 6 Gbps
Hard Disk Model ID . . . . . : WDC WD40EFRX-68N32N0
Hard Disk Serial Number  . . : WDWCC7K1234567
Total Size . . . . . . . . . : 3815447 MB
Current Temperature  . . . . : 41 °C
Health . . . . . . . . . . . : ###### 31 % (Fair)
`

func TestExtractTextReport_HDS(t *testing.T) {
	// WHAT: multi-drive HDS text export yields one raw drive per summary
	// section, with the file-level report timestamp backfilled.
	p := New(Config{})
	drives, errs := p.extractTextReport("hds.txt", []byte(hdsTextReport))
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %+v", errs)
	}
	if len(drives) != 2 {
		t.Fatalf("expected 2 drives, got %d", len(drives))
	}

	if drives[0].Serial != "ZFN1ABCD" || drives[1].Serial != "WDWCC7K1234567" {
		t.Errorf("serials = %q, %q", drives[0].Serial, drives[1].Serial)
	}
	if drives[0].Model != "ST4000DM004-2CV104" {
		t.Errorf("drive 0 model = %q", drives[0].Model)
	}
	if drives[1].HealthScore != "31" || drives[1].HealthText != "Fair" {
		t.Errorf("drive 1 health = %q / %q", drives[1].HealthText, drives[1].HealthScore)
	}
	for i, d := range drives {
		if d.ReportedAt != "2024-03-05 11:42:10" {
			t.Errorf("drive %d ReportedAt = %q", i, d.ReportedAt)
		}
		if d.Excerpt == "" {
			t.Errorf("drive %d has no excerpt", i)
		}
	}
}

func TestExtractTextReport_STB(t *testing.T) {
	report := `SCSI Toolbox STB Suite
Inquiry: Vendor = SEAGATE  Product = ST973402SS  Revision = 0003
Serial Number = 3PD08HQW00009816ECE4ECE4
Transport protocol: SAS
Number of Grown Defects = 0
SMART Health Status: OK
`
	p := New(Config{})
	drives, errs := p.extractTextReport("stb.log", []byte(report))
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %+v", errs)
	}
	if len(drives) != 1 {
		t.Fatalf("expected 1 drive, got %d", len(drives))
	}
	// Raw capture keeps the rendering noise; trimSerial handles it during
	// normalization.
	if drives[0].Serial != "3PD08HQW00009816ECE4ECE4" {
		t.Errorf("Serial = %q", drives[0].Serial)
	}
	if drives[0].Grown != "0" {
		t.Errorf("Grown = %q", drives[0].Grown)
	}
	if drives[0].Interface != "SAS" {
		t.Errorf("Interface = %q", drives[0].Interface)
	}
}

func TestExtractTextReport_NoBoundaries(t *testing.T) {
	p := New(Config{})
	drives, errs := p.extractTextReport("junk.txt", []byte("this file mentions no drives at all\n"))
	if drives != nil {
		t.Fatalf("expected no drives, got %+v", drives)
	}
	if len(errs) != 1 || errs[0].Reason != ReasonMalformedContent {
		t.Fatalf("expected one MALFORMED_CONTENT error, got %+v", errs)
	}
}

func TestExtractTextReport_Latin1(t *testing.T) {
	// WHAT: a Windows-1252 encoded report still parses.
	// WHY: HDS exports from older hosts are not UTF-8.
	report := []byte("Hard Disk Summary\nHard Disk Serial Number : ZFN1ABCD\nHard Disk Model ID : ST4000DM004\n")
	report = append(report, []byte("Vendor Information : Seagate\xae\n")...) // ® in cp1252
	p := New(Config{})
	drives, errs := p.extractTextReport("legacy.txt", report)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %+v", errs)
	}
	if len(drives) != 1 || drives[0].Serial != "ZFN1ABCD" {
		t.Fatalf("drives = %+v", drives)
	}
	if drives[0].VendorInfo != "Seagate®" {
		t.Errorf("VendorInfo = %q", drives[0].VendorInfo)
	}
}
