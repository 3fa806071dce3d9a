package drivepipe

import (
	"strconv"
	"strings"
	"time"
)

// normalizeRecord coerces one extractor's raw field strings into the
// canonical schema. A value that cannot be normalized stays UNKNOWN/absent
// rather than guessed; only a missing serial number makes the whole record a
// ParseError, since the serial is the identity key.
func normalizeRecord(d rawDrive, fileName string, format Format) (DriveRecord, *ParseError) {
	serial := trimSerial(d.Serial)
	if serial == "" {
		return DriveRecord{}, &ParseError{
			FileName:    fileName,
			FormatGuess: format,
			Reason:      ReasonMissingRequiredField,
			Detail:      "drive section has no serial number",
		}
	}

	model := singleLine(d.Model)
	rec := DriveRecord{
		SerialNumber:   serial,
		Model:          model,
		Vendor:         deriveVendor(model),
		VendorInfo:     d.VendorInfo,
		Interface:      mapInterface(d.Interface),
		CapacityBytes:  parseCapacity(d.Capacity),
		HealthScore:    -1,
		SourceFileName: fileName,
		SourceFormat:   format,
		ExtractedAt:    parseReportTime(d.ReportedAt),
		RawExcerpt:     d.Excerpt,
	}

	if d.HealthScore != "" {
		if v, err := strconv.Atoi(d.HealthScore); err == nil && v >= 0 && v <= 100 {
			rec.HealthScore = v
		}
	}
	rec.OverallHealth = mapHealth(d.HealthText, rec.HealthScore)

	if c, ok := parseTemperatureC(d.Temperature); ok {
		rec.TemperatureCelsius = &c
	}
	if v, ok := parseUint(d.PowerOnHours); ok {
		rec.PowerOnHours = &v
	}
	if v, ok := parseUint(d.Realloc); ok {
		rec.ReallocatedSectors = v
	}
	if v, ok := parseUint(d.Grown); ok {
		rec.GrownDefects = v
	}

	if len(d.SMART) > 0 {
		rec.SMARTAttributes = normalizeSMART(d.SMART)
		// Attribute 5 is the reallocated sector counter; use it when the
		// report had no labeled field for it.
		if rec.ReallocatedSectors == 0 {
			if attr, ok := rec.SMARTAttributes[5]; ok {
				rec.ReallocatedSectors = attr.RawValue
			}
		}
		if rec.PowerOnHours == nil {
			if attr, ok := rec.SMARTAttributes[9]; ok {
				v := attr.RawValue
				rec.PowerOnHours = &v
			}
		}
	}

	return rec, nil
}

// Health vocabulary across the supported dialects. Matched on word prefix of
// the lowercased verdict.
var (
	healthPassWords = []string{"excellent", "good", "ok", "pass", "healthy"}
	healthWarnWords = []string{"fair", "caution", "warning", "degrad", "pre-fail", "acceptable"}
	healthFailWords = []string{"bad", "critical", "fail", "error"}
)

// mapHealth maps a dialect verdict string, or failing that a 0-100 health
// score, to the canonical health state.
func mapHealth(verdict string, score int) HealthState {
	v := strings.ToLower(strings.TrimSpace(verdict))
	// Warn words first: "pre-fail" is a warning and must not trip the
	// "fail" substring below.
	for _, w := range healthWarnWords {
		if strings.Contains(v, w) {
			return HealthWarn
		}
	}
	for _, w := range healthFailWords {
		if strings.Contains(v, w) {
			return HealthFail
		}
	}
	for _, w := range healthPassWords {
		if strings.Contains(v, w) {
			return HealthPass
		}
	}

	// Score-only reports (HDS bar graphs). Thresholds follow the HDS
	// convention that anything below ~70 % has mapped defects and below
	// ~30 % is on its way out.
	switch {
	case score < 0:
		return HealthUnknown
	case score >= 70:
		return HealthPass
	case score >= 30:
		return HealthWarn
	default:
		return HealthFail
	}
}

// deriveVendor infers the manufacturer from the model-number prefix.
func deriveVendor(model string) string {
	m := strings.ToUpper(strings.TrimSpace(model))
	switch {
	case m == "":
		return ""
	case strings.HasPrefix(m, "ST"):
		return "Seagate"
	case strings.HasPrefix(m, "WD"):
		return "Western Digital"
	case strings.HasPrefix(m, "DT"), strings.HasPrefix(m, "MG"):
		return "Toshiba"
	case strings.HasPrefix(m, "HUA"), strings.HasPrefix(m, "HUS"):
		return "Hitachi"
	case strings.HasPrefix(m, "IBM"):
		return "IBM"
	default:
		return "Unknown"
	}
}

func mapInterface(s string) InterfaceType {
	v := strings.ToLower(s)
	switch {
	case strings.Contains(v, "nvme"), strings.Contains(v, "pcie"):
		return InterfaceNVMe
	case strings.Contains(v, "sas"), strings.Contains(v, "scsi"):
		return InterfaceSAS
	case strings.Contains(v, "sata"), strings.Contains(v, "s-ata"), strings.Contains(v, "ata"):
		return InterfaceSATA
	default:
		return InterfaceUnknown
	}
}

// parseTemperatureC parses "37 °C", "98 F", "41" (assumed Celsius when the
// unit is absent) into degrees Celsius.
func parseTemperatureC(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	fahrenheit := false
	switch {
	case strings.HasSuffix(s, "F"), strings.HasSuffix(s, "f"):
		fahrenheit = true
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "C"), strings.HasSuffix(s, "c"):
		s = s[:len(s)-1]
	}
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "°"))
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	if fahrenheit {
		v = (v - 32) * 5 / 9
	}
	return v, true
}

func parseUint(s string) (uint64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// capacityUnits in bytes. Reports use decimal units (1 GB = 10^9).
var capacityUnits = map[string]float64{
	"":      1,
	"bytes": 1,
	"b":     1,
	"kb":    1e3, "kib": 1 << 10,
	"mb": 1e6, "mib": 1 << 20,
	"gb": 1e9, "gib": 1 << 30,
	"tb": 1e12, "tib": 1 << 40,
}

// parseCapacity parses "2000398934016 bytes", "1863.0 GB", "2 TB" into bytes.
// Returns 0 when the value cannot be normalized.
func parseCapacity(s string) uint64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	num := s
	unit := ""
	if idx := strings.IndexFunc(s, func(r rune) bool {
		return !(r >= '0' && r <= '9') && r != '.' && r != ','
	}); idx >= 0 {
		num, unit = s[:idx], strings.ToLower(strings.TrimSpace(s[idx:]))
	}
	num = strings.ReplaceAll(strings.TrimSpace(num), ",", "")
	mult, ok := capacityUnits[unit]
	if !ok {
		return 0
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil || v < 0 {
		return 0
	}
	return uint64(v * mult)
}

// reportTimeFormats is the fixed set of accepted report timestamp layouts.
var reportTimeFormats = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006.01.02. 15:04:05",
	"2006.01.02 15:04:05",
	"01/02/2006 15:04:05",
	"01/02/2006",
}

// parseReportTime parses the report generation timestamp. The zero time
// means the report did not state one; it is never substituted with the wall
// clock, so identical input bytes always produce identical records.
func parseReportTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range reportTimeFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// normalizeSMART converts raw attribute-table rows into the canonical map.
// Raw values are decimal unless hex is indicated: a 0x prefix, hex letters,
// or the zero-padded fixed-width data column the HDS dialects print.
func normalizeSMART(rows []rawSMARTRow) map[int]SMARTAttribute {
	out := make(map[int]SMARTAttribute, len(rows))
	for _, r := range rows {
		id, err := strconv.Atoi(r.ID)
		if err != nil || id <= 0 || id > 255 {
			continue
		}
		attr := SMARTAttribute{
			ID:     id,
			Name:   r.Name,
			Status: mapSMARTStatus(r.Status),
		}
		if v, err := strconv.Atoi(r.Threshold); err == nil {
			attr.Threshold = v
		}
		if v, err := strconv.Atoi(r.Value); err == nil {
			attr.Normalized = v
		}
		attr.RawValue = parseSMARTRaw(r.Data)
		out[id] = attr
	}
	return out
}

func parseSMARTRaw(s string) uint64 {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		v, _ := strconv.ParseUint(s[2:], 16, 64)
		return v
	case strings.ContainsAny(s, "abcdefABCDEF"):
		v, _ := strconv.ParseUint(s, 16, 64)
		return v
	case len(s) >= 10 && strings.HasPrefix(s, "0"):
		// HDS fixed-width hex column, e.g. "000000000B".
		v, _ := strconv.ParseUint(s, 16, 64)
		return v
	default:
		v, _ := strconv.ParseUint(s, 10, 64)
		return v
	}
}

func mapSMARTStatus(s string) SMARTStatus {
	v := strings.ToLower(strings.TrimSpace(s))
	switch {
	case v == "ok", strings.HasPrefix(v, "pass"), v == "good":
		return SMARTOK
	case strings.HasPrefix(v, "fail"), strings.Contains(v, "!!"):
		return SMARTFailing
	default:
		return SMARTUnknown
	}
}
