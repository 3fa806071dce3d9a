package drivepipe

import (
	"fmt"
	"sort"
	"strings"
)

// formatRank orders source formats for merge tie-breaking. PDF reports are
// generated last in the originating workflow, so they win over HTML, which
// wins over text.
var formatRank = map[Format]int{
	FormatPDF:  3,
	FormatHTML: 2,
	FormatText: 1,
}

// reconcile groups a batch's records by serial number (case-insensitive,
// whitespace-trimmed — the sole grouping key) and derives one merged record
// per group. Model or capacity mismatches inside a group are recorded as
// conflicts, never treated as distinct drives: serials are assumed globally
// unique. Group members are sorted into a canonical order before merging, so
// two batches holding the same record set produce identical groups, merges,
// and conflicts no matter how the inputs were arranged.
func reconcile(records []DriveRecord) []ReconciliationGroup {
	type bucket struct {
		serial  string
		members []DriveRecord
	}
	byserial := make(map[string]*bucket)
	var order []string

	for _, rec := range records {
		key := strings.ToUpper(strings.TrimSpace(rec.SerialNumber))
		b, ok := byserial[key]
		if !ok {
			b = &bucket{serial: key}
			byserial[key] = b
			order = append(order, key)
		}
		b.members = append(b.members, rec)
	}

	groups := make([]ReconciliationGroup, 0, len(order))
	for _, key := range order {
		b := byserial[key]
		sort.SliceStable(b.members, func(i, j int) bool {
			return canonicalLess(&b.members[i], &b.members[j])
		})
		groups = append(groups, ReconciliationGroup{
			SerialNumber: b.serial,
			Members:      b.members,
			Merged:       merge(b.serial, b.members),
		})
	}
	return groups
}

// canonicalLess is a total order on group members: source file, then format
// rank, then extraction time, then model. Merging walks members in this
// order, so the first-occurrence tie-break is a property of the record set,
// not of input arrangement.
func canonicalLess(a, b *DriveRecord) bool {
	if a.SourceFileName != b.SourceFileName {
		return a.SourceFileName < b.SourceFileName
	}
	if fa, fb := formatRank[a.SourceFormat], formatRank[b.SourceFormat]; fa != fb {
		return fa > fb
	}
	if !a.ExtractedAt.Equal(b.ExtractedAt) {
		return a.ExtractedAt.After(b.ExtractedAt)
	}
	return a.Model < b.Model
}

// completeness counts how many canonical fields a record populates.
func completeness(r *DriveRecord) int {
	n := 0
	if r.Model != "" {
		n++
	}
	if r.VendorInfo != "" {
		n++
	}
	if r.Interface != InterfaceUnknown {
		n++
	}
	if r.CapacityBytes > 0 {
		n++
	}
	if r.OverallHealth != HealthUnknown {
		n++
	}
	if r.HealthScore >= 0 {
		n++
	}
	if r.TemperatureCelsius != nil {
		n++
	}
	if r.PowerOnHours != nil {
		n++
	}
	if r.ReallocatedSectors > 0 {
		n++
	}
	if r.GrownDefects > 0 {
		n++
	}
	if len(r.SMARTAttributes) > 0 {
		n++
	}
	return n
}

// precedence reports whether member i beats member j under the merge policy:
// most complete field set, then most recent extraction, then source format
// rank, then canonical member order as the final total tie-break.
func precedence(members []DriveRecord, i, j int) bool {
	ci, cj := completeness(&members[i]), completeness(&members[j])
	if ci != cj {
		return ci > cj
	}
	ti, tj := members[i].ExtractedAt, members[j].ExtractedAt
	if !ti.Equal(tj) {
		return ti.After(tj)
	}
	fi, fj := formatRank[members[i].SourceFormat], formatRank[members[j].SourceFormat]
	if fi != fj {
		return fi > fj
	}
	return i < j
}

// merge derives the single record for one group, with a per-field audit of
// which member supplied each value and annotations for every field the
// members disagree on.
func merge(serial string, members []DriveRecord) MergedRecord {
	ranked := make([]int, len(members))
	for i := range ranked {
		ranked[i] = i
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return precedence(members, ranked[a], ranked[b])
	})

	base := members[ranked[0]]
	merged := MergedRecord{
		DriveRecord:  base,
		FieldSources: map[string]string{},
	}
	merged.SerialNumber = serial

	// Field-level pass: the highest-ranked member that has a value wins it.
	pick := func(field string, present func(*DriveRecord) bool, apply func(*DriveRecord)) {
		for _, idx := range ranked {
			m := &members[idx]
			if present(m) {
				apply(m)
				merged.FieldSources[field] = m.SourceFileName
				return
			}
		}
	}

	pick("model",
		func(r *DriveRecord) bool { return r.Model != "" },
		func(r *DriveRecord) { merged.Model, merged.Vendor = r.Model, r.Vendor })
	pick("vendor_info",
		func(r *DriveRecord) bool { return r.VendorInfo != "" },
		func(r *DriveRecord) { merged.VendorInfo = r.VendorInfo })
	pick("interface_type",
		func(r *DriveRecord) bool { return r.Interface != InterfaceUnknown },
		func(r *DriveRecord) { merged.Interface = r.Interface })
	pick("capacity_bytes",
		func(r *DriveRecord) bool { return r.CapacityBytes > 0 },
		func(r *DriveRecord) { merged.CapacityBytes = r.CapacityBytes })
	pick("overall_health",
		func(r *DriveRecord) bool { return r.OverallHealth != HealthUnknown },
		func(r *DriveRecord) { merged.OverallHealth = r.OverallHealth })
	pick("health_score",
		func(r *DriveRecord) bool { return r.HealthScore >= 0 },
		func(r *DriveRecord) { merged.HealthScore = r.HealthScore })
	pick("temperature_celsius",
		func(r *DriveRecord) bool { return r.TemperatureCelsius != nil },
		func(r *DriveRecord) { merged.TemperatureCelsius = r.TemperatureCelsius })
	pick("power_on_hours",
		func(r *DriveRecord) bool { return r.PowerOnHours != nil },
		func(r *DriveRecord) { merged.PowerOnHours = r.PowerOnHours })
	pick("reallocated_sectors",
		func(r *DriveRecord) bool { return r.ReallocatedSectors > 0 },
		func(r *DriveRecord) { merged.ReallocatedSectors = r.ReallocatedSectors })
	pick("grown_defects",
		func(r *DriveRecord) bool { return r.GrownDefects > 0 },
		func(r *DriveRecord) { merged.GrownDefects = r.GrownDefects })

	// SMART attributes merge per attribute ID: the highest-ranked member
	// reporting an attribute supplies it.
	smart := map[int]SMARTAttribute{}
	for i := len(ranked) - 1; i >= 0; i-- {
		for id, attr := range members[ranked[i]].SMARTAttributes {
			smart[id] = attr
		}
	}
	if len(smart) > 0 {
		merged.SMARTAttributes = smart
		for _, idx := range ranked {
			if len(members[idx].SMARTAttributes) > 0 {
				merged.FieldSources["smart_attributes"] = members[idx].SourceFileName
				break
			}
		}
	}

	merged.Conflicts = findConflicts(members)
	return merged
}

// findConflicts returns one annotation per field whose non-empty values
// disagree across the group, with each source file's reported value.
// Deterministic: fields in a fixed order, values keyed by source file.
func findConflicts(members []DriveRecord) []FieldConflict {
	fields := []struct {
		name string
		get  func(*DriveRecord) (string, bool)
	}{
		{"model", func(r *DriveRecord) (string, bool) { return r.Model, r.Model != "" }},
		{"vendor_info", func(r *DriveRecord) (string, bool) { return r.VendorInfo, r.VendorInfo != "" }},
		{"interface_type", func(r *DriveRecord) (string, bool) {
			return string(r.Interface), r.Interface != InterfaceUnknown
		}},
		{"capacity_bytes", func(r *DriveRecord) (string, bool) {
			return fmt.Sprintf("%d", r.CapacityBytes), r.CapacityBytes > 0
		}},
		{"overall_health", func(r *DriveRecord) (string, bool) {
			return string(r.OverallHealth), r.OverallHealth != HealthUnknown
		}},
		{"health_score", func(r *DriveRecord) (string, bool) {
			return fmt.Sprintf("%d", r.HealthScore), r.HealthScore >= 0
		}},
		{"temperature_celsius", func(r *DriveRecord) (string, bool) {
			if r.TemperatureCelsius == nil {
				return "", false
			}
			return fmt.Sprintf("%d", *r.TemperatureCelsius), true
		}},
		{"power_on_hours", func(r *DriveRecord) (string, bool) {
			if r.PowerOnHours == nil {
				return "", false
			}
			return fmt.Sprintf("%d", *r.PowerOnHours), true
		}},
		{"reallocated_sectors", func(r *DriveRecord) (string, bool) {
			return fmt.Sprintf("%d", r.ReallocatedSectors), r.ReallocatedSectors > 0
		}},
		{"grown_defects", func(r *DriveRecord) (string, bool) {
			return fmt.Sprintf("%d", r.GrownDefects), r.GrownDefects > 0
		}},
	}

	var conflicts []FieldConflict
	for _, f := range fields {
		values := map[string]string{}
		distinct := map[string]bool{}
		for i := range members {
			if v, ok := f.get(&members[i]); ok {
				values[members[i].SourceFileName] = v
				distinct[v] = true
			}
		}
		if len(distinct) > 1 {
			conflicts = append(conflicts, FieldConflict{Field: f.name, Values: values})
		}
	}
	return conflicts
}
