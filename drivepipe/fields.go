package drivepipe

import (
	"regexp"
	"strings"
)

// rawDrive holds the dialect-specific field strings captured by an extractor
// before normalization. Empty string means the field was absent.
type rawDrive struct {
	Serial       string
	Model        string
	VendorInfo   string
	HealthText   string // verdict word: OK, Good, Excellent, Failed, ...
	HealthScore  string // 0-100 percentage when present
	Temperature  string // value with optional unit, e.g. "37 °C", "98 F"
	PowerOnHours string
	Capacity     string // e.g. "2000398934016 bytes", "1863.0 GB"
	Interface    string
	Realloc      string
	Grown        string
	ReportedAt   string // report generation timestamp as printed
	SMART        []rawSMARTRow
	Excerpt      string
}

// rawSMARTRow is one attribute-table row as printed by the source.
type rawSMARTRow struct {
	ID        string
	Name      string
	Threshold string
	Value     string
	Data      string // raw value, decimal or hex per dialect
	Status    string
}

// empty reports whether no identifying field was captured at all.
func (d *rawDrive) empty() bool {
	return d.Serial == "" && d.Model == "" && d.HealthText == "" && d.HealthScore == ""
}

// Labeled-field patterns, most specific first. The label/value separator
// tolerates the dotted fill some fixed-width renderings use
// ("Serial Number . . . . : X") as well as the compact "Serial Number: X".
var (
	serialPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Hard\s*Disk\s*Serial\s*Number\s*[.\s]*:\s*([A-Z0-9][A-Z0-9\- ]{4,38}[A-Z0-9])`),
		regexp.MustCompile(`(?i)\bVPD\s*Serial\s*[.\s]*:\s*([A-Z0-9][A-Z0-9\- ]{4,38}[A-Z0-9])`),
		regexp.MustCompile(`(?i)\bSerial\s*Number\s*=\s*([A-Z0-9\-]{6,40})`),
		regexp.MustCompile(`(?i)\bSerial\s*Number\s*[.\s]*:\s*([A-Z0-9][A-Z0-9\- ]{4,38}[A-Z0-9])`),
		regexp.MustCompile(`(?i)\bSerial\s*[.\s]*:\s*([A-Z0-9\-]{6,40})`),
	}

	modelPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Hard\s*Disk\s*Model\s*ID\s*[.\s]*:\s*(.+)`),
		regexp.MustCompile(`(?i)\bModel\s*ID\s*[.\s]*:\s*(.+)`),
		regexp.MustCompile(`(?i)\bProduct\s*[=:]\s*(.+)`),
		regexp.MustCompile(`(?i)\bModel\s*[.\s]*:\s*(.+)`),
	}

	vendorInfoPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Vendor\s*Information\s*[.\s]*[:=]\s*(.+)`),
		regexp.MustCompile(`(?i)\bManufacturer\s*[.\s]*:\s*(.+)`),
	}

	// "Health : #################### 100 % (Excellent)" and variants.
	healthScorePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Health\s*[.\s]*:\s*[#\s\x{2588}-]*(\d{1,3})\s*%`),
		regexp.MustCompile(`(?i)Health\s*Score\s*[.\s]*:\s*(\d{1,3})\s*%?`),
		regexp.MustCompile(`(?i)Overall\s*Health\s*[.\s]*:\s*(\d{1,3})\s*%?`),
	}

	healthTextPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Health\s*[.\s]*:[^\n(]*\(([A-Za-z !]+)\)`),
		regexp.MustCompile(`(?i)(?:Overall[ -]?)?Health\s*(?:Status|Self[ -]?Assessment)?\s*(?:Test)?\s*[.\s]*:\s*([A-Za-z][A-Za-z !]*)`),
		regexp.MustCompile(`(?i)SMART\s*(?:overall[ -]health)?\s*(?:self[ -]assessment)?\s*(?:test)?\s*result\s*[.\s]*:\s*([A-Za-z!]+)`),
	}

	reallocPatterns = []*regexp.Regexp{
		// Fixed-width renderings truncate to "Reallocated Sectors Co..".
		regexp.MustCompile(`(?i)Reallocated\s*Sector(?:s)?\s*(?:Count|Co\.*)?\s*[.\s]*[:=\-]\s*(\d+)`),
	}

	grownPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Number\s+of\s+Grown\s+Defects\s*=\s*(\d+)`),
		regexp.MustCompile(`(?i)Grown\s*Defect(?:s)?(?:\s*List)?(?:\s*Count)?\s*[.\s]*[:=\-]\s*(\d+)`),
		regexp.MustCompile(`(?i)\bDefect\s*Count\s*[.\s]*[:=\-]\s*(\d+)`),
	}

	temperaturePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:Current\s*)?Temperature\s*[.\s]*[:=]\s*(-?\d{1,3}\s*°?\s*[CF]?)`),
		regexp.MustCompile(`(?i)Drive\s*Temperature\s*[.\s]*[:=]\s*(-?\d{1,3}\s*°?\s*[CF]?)`),
	}

	powerOnPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Power[ -]?on\s*(?:Time|Hours)\s*[.\s]*[:=]\s*([\d,]+)\s*(?:hours?|h\b)?`),
		regexp.MustCompile(`(?i)Total\s*Power[ -]?on\s*Time\s*[.\s]*[:=]\s*([\d,]+)`),
	}

	capacityPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:Total\s*)?(?:Disk\s*|User\s*)?(?:Capacity|Size)\s*[.\s]*[:=]\s*([\d,.]+\s*(?:bytes|[KMGT]i?B)?)`),
	}

	interfacePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:Connection\s*/?\s*)?Interface(?:\s*Type)?\s*[.\s]*[:=]\s*([A-Za-z0-9\-/ ]+)`),
		regexp.MustCompile(`(?i)\bTransport\s*protocol\s*[.\s]*[:=]\s*([A-Za-z0-9\-/ ]+)`),
	}

	reportedAtPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Report\s*(?:created|generated|date)\s*(?:at|on)?\s*[.\s]*:\s*([0-9][0-9./\- :]+[0-9])`),
		regexp.MustCompile(`(?i)\bDate\s*[.\s]*:\s*([0-9][0-9./\- :]+[0-9])`),
	}
)

// smartRowRe matches one row of the SMART attribute table as printed by the
// HDS dialects: id, name, threshold, value, worst, raw data, status.
var smartRowRe = regexp.MustCompile(`(?m)^\s*#?\s*(\d{1,3})\s+([A-Za-z][A-Za-z0-9 /()._-]*?[A-Za-z0-9.)])\s{2,}(\d{1,3})\s+(\d{1,3})\s+\d{1,3}\s+((?:0x)?[0-9A-Fa-f]+)\s+([A-Za-z !]+?)\s*$`)

// smartTableHeaderRe locates the attribute table so rows are only matched in
// context, not against arbitrary numbered lines.
var smartTableHeaderRe = regexp.MustCompile(`(?im)^\s*(?:No\.|ID)\s+Attribute.*(?:Threshold|Thresh).*(?:Value|Val)`)

// firstMatch returns the first capture of the first pattern that matches.
func firstMatch(patterns []*regexp.Regexp, s string) string {
	for _, pat := range patterns {
		if m := pat.FindStringSubmatch(s); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

var spacesRe = regexp.MustCompile(`\s+`)

// singleLine collapses a captured value to one whitespace-normalized line.
func singleLine(v string) string {
	if v == "" {
		return ""
	}
	if idx := strings.IndexAny(v, "\r\n"); idx >= 0 {
		v = v[:idx]
	}
	return strings.TrimSpace(spacesRe.ReplaceAllString(v, " "))
}

// trimSerial canonicalises a captured serial: uppercase, spaces removed, and
// repeated trailing groups collapsed. Some SAS/HDS prints append the same
// 2-4 char group several times (e.g. "...ECE4ECE4ECE4"); the extra copies are
// rendering noise, not part of the serial. Only applied to long serials so
// short legitimate serials are never over-trimmed.
func trimSerial(serial string) string {
	s := strings.ToUpper(strings.TrimSpace(serial))
	s = strings.ReplaceAll(s, " ", "")
	if len(s) >= 12 {
		s = trimRepeatedSuffix(s)
	}
	return strings.TrimSuffix(s, "TOTALSIZE")
}

// trimRepeatedSuffix collapses a repeated trailing group of 2-4 chars down to
// one copy. Longest group first, so "ECE4ECE4" loses a 4-char copy rather
// than being misread as an "E4" repeat.
func trimRepeatedSuffix(s string) string {
	for size := 4; size >= 2; size-- {
		if len(s) < 2*size {
			continue
		}
		group := s[len(s)-size:]
		if !strings.HasSuffix(s[:len(s)-size], group) {
			continue
		}
		for strings.HasSuffix(s[:len(s)-size], group) {
			s = s[:len(s)-size]
		}
		return s
	}
	return s
}

// scanFields runs the shared labeled-field pass over one drive block.
func scanFields(block string) rawDrive {
	d := rawDrive{
		Serial:       firstMatch(serialPatterns, block),
		Model:        singleLine(firstMatch(modelPatterns, block)),
		VendorInfo:   singleLine(firstMatch(vendorInfoPatterns, block)),
		HealthText:   singleLine(firstMatch(healthTextPatterns, block)),
		HealthScore:  firstMatch(healthScorePatterns, block),
		Temperature:  singleLine(firstMatch(temperaturePatterns, block)),
		PowerOnHours: firstMatch(powerOnPatterns, block),
		Capacity:     singleLine(firstMatch(capacityPatterns, block)),
		Interface:    singleLine(firstMatch(interfacePatterns, block)),
		Realloc:      firstMatch(reallocPatterns, block),
		Grown:        firstMatch(grownPatterns, block),
		ReportedAt:   singleLine(firstMatch(reportedAtPatterns, block)),
	}
	d.SMART = scanSMARTTable(block)
	return d
}

// fillReportedAt backfills the report timestamp on drives that did not carry
// one in their own block. HDS prints "Report created" once in the file
// preamble, before the first drive boundary, so the per-block scan misses it.
func fillReportedAt(drives []rawDrive, text string) {
	at := singleLine(firstMatch(reportedAtPatterns, text))
	if at == "" {
		return
	}
	for i := range drives {
		if drives[i].ReportedAt == "" {
			drives[i].ReportedAt = at
		}
	}
}

// scanSMARTTable extracts attribute rows following a recognised table header.
func scanSMARTTable(block string) []rawSMARTRow {
	loc := smartTableHeaderRe.FindStringIndex(block)
	if loc == nil {
		return nil
	}
	var rows []rawSMARTRow
	for _, m := range smartRowRe.FindAllStringSubmatch(block[loc[1]:], -1) {
		rows = append(rows, rawSMARTRow{
			ID:        m[1],
			Name:      strings.TrimSpace(m[2]),
			Threshold: m[3],
			Value:     m[4],
			Data:      m[5],
			Status:    strings.TrimSpace(m[6]),
		})
	}
	return rows
}

// blockBoundaryRes mark the start of one drive's section in report text.
// Ordered most to least structural: only the first kind that matches is used
// for splitting, so a field label never cuts a drive section apart when a
// real section header is present.
var blockBoundaryRes = []*regexp.Regexp{
	regexp.MustCompile(`(?im)^\s*Hard\s+Disk\s+Summary\b`),
	regexp.MustCompile(`(?im)^\s*(?:Hard\s+)?Dis[kc]\s+(?:Drive\s+)?#?\d+\b`),
	regexp.MustCompile(`(?im)^\s*(?:Hard\s+Disk\s+)?Serial\s+Number\s*[.\s]*[:=]`),
}

// splitDriveBlocks splits report text into per-drive sections at known
// boundary markers. Returns nil when no boundary is present.
//
// When the only boundary found is the serial label itself, the text before
// the first serial is folded into the first block: the SCSI Toolbox dialect
// prints inquiry fields (vendor, product) on the lines before the serial.
func splitDriveBlocks(text string) []string {
	for reIdx, re := range blockBoundaryRes {
		idx := re.FindAllStringIndex(text, -1)
		if len(idx) == 0 {
			continue
		}
		serialBoundary := reIdx == len(blockBoundaryRes)-1
		var blocks []string
		for i, loc := range idx {
			start := loc[0]
			if i == 0 && serialBoundary {
				start = 0
			}
			end := len(text)
			if i+1 < len(idx) {
				end = idx[i+1][0]
			}
			if blk := strings.TrimSpace(text[start:end]); blk != "" {
				blocks = append(blocks, blk)
			}
		}
		return blocks
	}
	return nil
}

var blankGapRe = regexp.MustCompile(`\n\s*\n{2,}`)

// splitBlankGaps is the fallback split on runs of blank lines.
func splitBlankGaps(text string) []string {
	var blocks []string
	for _, part := range blankGapRe.Split(text, -1) {
		if p := strings.TrimSpace(part); p != "" {
			blocks = append(blocks, p)
		}
	}
	return blocks
}

// excerptAround returns a bounded slice of content around a drive block for
// the audit trail.
func excerptAround(block string, maxBytes int) string {
	if len(block) <= maxBytes {
		return block
	}
	// Cut on a rune boundary.
	cut := maxBytes
	for cut > 0 && block[cut]&0xC0 == 0x80 {
		cut--
	}
	return block[:cut]
}
