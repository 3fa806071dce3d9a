// Package export renders a batch's reconciled drive groups as spreadsheet
// files. The column set and order is fixed: downstream intake tooling matches
// columns by position, so both writers share one definition.
package export

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/platterworks/drivebatch/drivepipe"
)

// Headers is the fixed column order of the drives sheet.
var Headers = []string{
	"Label Serial",
	"Serial Number",
	"Model Number",
	"Vendor",
	"Vendor Information",
	"Interface",
	"Capacity (GB)",
	"Health",
	"Health Score (%)",
	"Temperature (°C)",
	"Power-On Hours",
	"Reallocated Sectors",
	"Grown Defects",
	"Source Files",
	"Extracted At",
}

// ErrorHeaders is the fixed column order of the errors sheet.
var ErrorHeaders = []string{
	"File Name",
	"Format Guess",
	"Reason",
	"Detail",
	"Location",
}

// driveRow flattens one reconciliation group into the Headers order.
func driveRow(g *drivepipe.ReconciliationGroup) []string {
	m := &g.Merged
	row := make([]string, 0, len(Headers))
	row = append(row,
		m.LabelSerial(),
		m.SerialNumber,
		m.Model,
		m.Vendor,
		m.VendorInfo,
		string(m.Interface),
		capacityGB(m.CapacityBytes),
		string(m.OverallHealth),
	)
	if m.HealthScore >= 0 {
		row = append(row, strconv.Itoa(m.HealthScore))
	} else {
		row = append(row, "")
	}
	if m.TemperatureCelsius != nil {
		row = append(row, strconv.Itoa(*m.TemperatureCelsius))
	} else {
		row = append(row, "")
	}
	if m.PowerOnHours != nil {
		row = append(row, strconv.FormatUint(*m.PowerOnHours, 10))
	} else {
		row = append(row, "")
	}
	row = append(row,
		strconv.FormatUint(m.ReallocatedSectors, 10),
		strconv.FormatUint(m.GrownDefects, 10),
		strings.Join(g.SourceFiles(), "; "),
	)
	if m.ExtractedAt.IsZero() {
		row = append(row, "")
	} else {
		row = append(row, m.ExtractedAt.UTC().Format("2006-01-02 15:04:05"))
	}
	return row
}

func errorRow(e *drivepipe.ParseError) []string {
	return []string{e.FileName, string(e.FormatGuess), string(e.Reason), e.Detail, e.OffsetHint}
}

// capacityGB renders bytes as decimal gigabytes, the unit drive labels use.
// Empty when the capacity is unknown.
func capacityGB(b uint64) string {
	if b == 0 {
		return ""
	}
	gb := float64(b) / 1e9
	if gb == float64(uint64(gb)) {
		return strconv.FormatUint(uint64(gb), 10)
	}
	return strconv.FormatFloat(gb, 'f', 2, 64)
}

// sortedGroups returns the groups ordered by serial number, case-insensitive.
// Exports are operator-facing lists; a stable alphabetical order beats the
// pipeline's first-seen order there.
func sortedGroups(groups []drivepipe.ReconciliationGroup) []drivepipe.ReconciliationGroup {
	out := make([]drivepipe.ReconciliationGroup, len(groups))
	copy(out, groups)
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToUpper(out[i].SerialNumber) < strings.ToUpper(out[j].SerialNumber)
	})
	return out
}

// FileName builds the export file name for a batch, e.g.
// "drivebatch_bat_0042.xlsx".
func FileName(batchID, ext string) string {
	return fmt.Sprintf("drivebatch_%s.%s", batchID, ext)
}
