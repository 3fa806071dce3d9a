package drivepipe

import (
	"testing"
	"time"
)

func TestNormalizeRecord_Full(t *testing.T) {
	raw := rawDrive{
		Serial:       "zfn1abcd",
		Model:        "ST4000DM004-2CV104",
		VendorInfo:   "Seagate Technology",
		HealthText:   "Excellent",
		HealthScore:  "100",
		Temperature:  "34 °C",
		PowerOnHours: "12,345",
		Capacity:     "3815447 MB",
		Interface:    "S-ATA Gen3",
		Realloc:      "7",
		ReportedAt:   "2024-03-05 11:42:10",
		SMART: []rawSMARTRow{
			{ID: "194", Name: "Temperature", Threshold: "0", Value: "34", Data: "0x22", Status: "OK"},
		},
	}

	rec, perr := normalizeRecord(raw, "hds.txt", FormatText)
	if perr != nil {
		t.Fatalf("unexpected error: %+v", perr)
	}
	if rec.SerialNumber != "ZFN1ABCD" {
		t.Errorf("SerialNumber = %q", rec.SerialNumber)
	}
	if rec.Vendor != "Seagate" {
		t.Errorf("Vendor = %q", rec.Vendor)
	}
	if rec.Interface != InterfaceSATA {
		t.Errorf("Interface = %q", rec.Interface)
	}
	if rec.CapacityBytes != 3815447000000 {
		t.Errorf("CapacityBytes = %d", rec.CapacityBytes)
	}
	if rec.OverallHealth != HealthPass || rec.HealthScore != 100 {
		t.Errorf("health = %q / %d", rec.OverallHealth, rec.HealthScore)
	}
	if rec.TemperatureCelsius == nil || *rec.TemperatureCelsius != 34 {
		t.Errorf("TemperatureCelsius = %v", rec.TemperatureCelsius)
	}
	if rec.PowerOnHours == nil || *rec.PowerOnHours != 12345 {
		t.Errorf("PowerOnHours = %v", rec.PowerOnHours)
	}
	if rec.ReallocatedSectors != 7 {
		t.Errorf("ReallocatedSectors = %d", rec.ReallocatedSectors)
	}
	want := time.Date(2024, 3, 5, 11, 42, 10, 0, time.UTC)
	if !rec.ExtractedAt.Equal(want) {
		t.Errorf("ExtractedAt = %v", rec.ExtractedAt)
	}
	if attr, ok := rec.SMARTAttributes[194]; !ok || attr.RawValue != 0x22 || attr.Status != SMARTOK {
		t.Errorf("SMART 194 = %+v", rec.SMARTAttributes[194])
	}
}

func TestNormalizeRecord_MissingSerial(t *testing.T) {
	// WHAT: a section without a serial becomes a ParseError, not a record.
	// WHY: the serial is the identity key; a record without one could
	// never be reconciled and would silently corrupt grouping.
	raw := rawDrive{Model: "ST4000DM004", HealthText: "Good"}
	rec, perr := normalizeRecord(raw, "hds.txt", FormatText)
	if perr == nil {
		t.Fatalf("expected error, got record %+v", rec)
	}
	if perr.Reason != ReasonMissingRequiredField {
		t.Errorf("Reason = %q", perr.Reason)
	}
}

func TestNormalizeRecord_SMARTFallbacks(t *testing.T) {
	// Attributes 5 and 9 backfill the labeled counters when absent.
	raw := rawDrive{
		Serial: "ZFN1ABCD",
		SMART: []rawSMARTRow{
			{ID: "5", Name: "Reallocated Sectors Count", Data: "11", Status: "OK"},
			{ID: "9", Name: "Power On Hours", Data: "30123", Status: "OK"},
		},
	}
	rec, perr := normalizeRecord(raw, "hds.txt", FormatText)
	if perr != nil {
		t.Fatalf("unexpected error: %+v", perr)
	}
	if rec.ReallocatedSectors != 11 {
		t.Errorf("ReallocatedSectors = %d", rec.ReallocatedSectors)
	}
	if rec.PowerOnHours == nil || *rec.PowerOnHours != 30123 {
		t.Errorf("PowerOnHours = %v", rec.PowerOnHours)
	}
}

func TestMapHealth(t *testing.T) {
	tests := []struct {
		verdict string
		score   int
		want    HealthState
	}{
		{"Excellent", -1, HealthPass},
		{"OK", -1, HealthPass},
		{"Fair", -1, HealthWarn},
		{"Pre-fail", -1, HealthWarn},
		{"FAILED!", -1, HealthFail},
		{"Critical", -1, HealthFail},
		// Verdict wins over score.
		{"Bad", 100, HealthFail},
		// Score-only reports.
		{"", 100, HealthPass},
		{"", 70, HealthPass},
		{"", 69, HealthWarn},
		{"", 30, HealthWarn},
		{"", 29, HealthFail},
		{"", -1, HealthUnknown},
	}
	for _, tt := range tests {
		if got := mapHealth(tt.verdict, tt.score); got != tt.want {
			t.Errorf("mapHealth(%q, %d) = %q, want %q", tt.verdict, tt.score, got, tt.want)
		}
	}
}

func TestDeriveVendor(t *testing.T) {
	tests := []struct {
		model string
		want  string
	}{
		{"ST4000DM004-2CV104", "Seagate"},
		{"WDC WD40EFRX", "Western Digital"},
		{"MG04ACA400E", "Toshiba"},
		{"HUS726040ALE614", "Hitachi"},
		{"IBM-ESXS", "IBM"},
		{"SAMSUNG MZ7LM480", "Unknown"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := deriveVendor(tt.model); got != tt.want {
			t.Errorf("deriveVendor(%q) = %q, want %q", tt.model, got, tt.want)
		}
	}
}

func TestMapInterface(t *testing.T) {
	tests := []struct {
		in   string
		want InterfaceType
	}{
		{"S-ATA Gen3", InterfaceSATA},
		{"SATA III", InterfaceSATA},
		{"Serial Attached SCSI", InterfaceSAS},
		{"SAS", InterfaceSAS},
		{"NVMe PCIe Gen4", InterfaceNVMe},
		{"", InterfaceUnknown},
		{"fibre channel", InterfaceUnknown},
	}
	for _, tt := range tests {
		if got := mapInterface(tt.in); got != tt.want {
			t.Errorf("mapInterface(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseTemperatureC(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"34 °C", 34, true},
		{"34C", 34, true},
		{"41", 41, true},
		{"98 F", 36, true}, // integer Fahrenheit conversion
		{"-5 °C", -5, true},
		{"", 0, false},
		{"warm", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseTemperatureC(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parseTemperatureC(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseCapacity(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
	}{
		{"2000398934016 bytes", 2000398934016},
		{"3815447 MB", 3815447000000},
		{"1863.0 GB", 1863000000000},
		{"2 TB", 2000000000000},
		{"4 TiB", 4 << 40},
		{"1,024 MB", 1024000000},
		{"", 0},
		{"lots", 0},
	}
	for _, tt := range tests {
		if got := parseCapacity(tt.in); got != tt.want {
			t.Errorf("parseCapacity(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseSMARTRaw(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
	}{
		{"123", 123},
		{"0x22", 0x22},
		{"00000000000B", 0xb}, // fixed-width hex column
		{"1A2B", 0x1a2b},      // hex letters without prefix
		{"7", 7},
		{"", 0},
	}
	for _, tt := range tests {
		if got := parseSMARTRaw(tt.in); got != tt.want {
			t.Errorf("parseSMARTRaw(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseReportTime(t *testing.T) {
	// WHAT: unparseable timestamps become the zero time, never the wall
	// clock, so identical input bytes always produce identical records.
	if got := parseReportTime("sometime last week"); !got.IsZero() {
		t.Errorf("expected zero time, got %v", got)
	}
	if got := parseReportTime(""); !got.IsZero() {
		t.Errorf("expected zero time for empty input, got %v", got)
	}
	got := parseReportTime("2024.03.05. 11:42:10")
	want := time.Date(2024, 3, 5, 11, 42, 10, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("parseReportTime = %v, want %v", got, want)
	}
}
