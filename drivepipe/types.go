package drivepipe

import "time"

// Format identifies the classified type of one input file or archive member.
type Format string

const (
	FormatHTML        Format = "html"
	FormatText        Format = "text"
	FormatPDF         Format = "pdf"
	FormatZIP         Format = "zip"
	FormatUnsupported Format = "unsupported"
)

// InterfaceType is the drive's connection interface, when a report states it.
type InterfaceType string

const (
	InterfaceSATA    InterfaceType = "SATA"
	InterfaceSAS     InterfaceType = "SAS"
	InterfaceNVMe    InterfaceType = "NVMe"
	InterfaceUnknown InterfaceType = "unknown"
)

// HealthState is the normalized overall verdict for one drive.
type HealthState string

const (
	HealthPass    HealthState = "PASS"
	HealthWarn    HealthState = "WARN"
	HealthFail    HealthState = "FAIL"
	HealthUnknown HealthState = "UNKNOWN"
)

// SMARTStatus is the per-attribute pass/fail flag from the source report.
type SMARTStatus string

const (
	SMARTOK      SMARTStatus = "ok"
	SMARTFailing SMARTStatus = "failing"
	SMARTUnknown SMARTStatus = "unknown"
)

// SMARTAttribute is one self-monitoring attribute row from a report.
type SMARTAttribute struct {
	ID         int         `json:"id"`
	Name       string      `json:"name,omitempty"`
	RawValue   uint64      `json:"raw_value"`
	Normalized int         `json:"normalized_value"`
	Threshold  int         `json:"threshold"`
	Status     SMARTStatus `json:"status"`
}

// DriveRecord is the canonical diagnostic snapshot of one physical drive.
// All dialects converge to this schema; SerialNumber is never empty (records
// without a serial are emitted as ParseErrors instead).
type DriveRecord struct {
	SerialNumber  string        `json:"serial_number"`
	Model         string        `json:"model,omitempty"`
	Vendor        string        `json:"vendor,omitempty"`
	VendorInfo    string        `json:"vendor_info,omitempty"`
	Interface     InterfaceType `json:"interface_type"`
	CapacityBytes uint64        `json:"capacity_bytes,omitempty"`

	OverallHealth HealthState `json:"overall_health"`
	// HealthScore is the 0-100 % score some dialects report next to the
	// verdict. -1 when absent.
	HealthScore int `json:"health_score"`

	// TemperatureCelsius is nil when the report carries no temperature.
	TemperatureCelsius *int `json:"temperature_celsius,omitempty"`
	// PowerOnHours is nil when the report carries no power-on counter.
	PowerOnHours *uint64 `json:"power_on_hours,omitempty"`

	ReallocatedSectors uint64 `json:"reallocated_sectors"`
	GrownDefects       uint64 `json:"grown_defects"`

	SMARTAttributes map[int]SMARTAttribute `json:"smart_attributes,omitempty"`

	SourceFileName string    `json:"source_file_name"`
	SourceFormat   Format    `json:"source_format"`
	ExtractedAt    time.Time `json:"extracted_at"`
	RawExcerpt     string    `json:"raw_excerpt,omitempty"`
}

// LabelSerial is the short serial printed on drive labels (first 8 chars).
func (r *DriveRecord) LabelSerial() string {
	if len(r.SerialNumber) > 8 {
		return r.SerialNumber[:8]
	}
	return r.SerialNumber
}

// ErrorReason classifies a recoverable per-file failure.
type ErrorReason string

const (
	ReasonUnsupportedFormat    ErrorReason = "UNSUPPORTED_FORMAT"
	ReasonMalformedContent     ErrorReason = "MALFORMED_CONTENT"
	ReasonMissingRequiredField ErrorReason = "MISSING_REQUIRED_FIELD"
	ReasonArchiveCorrupt       ErrorReason = "ARCHIVE_CORRUPT"
	ReasonNestedArchiveDepth   ErrorReason = "NESTED_ARCHIVE_DEPTH_EXCEEDED"
)

// ParseError is a recoverable failure tied to one input file, archive member,
// or PDF page. Immutable once created; collected into the BatchResult.
type ParseError struct {
	FileName    string      `json:"file_name"`
	FormatGuess Format      `json:"format_guess"`
	Reason      ErrorReason `json:"reason"`
	Detail      string      `json:"detail"`
	// OffsetHint locates the failure inside the source when known
	// (byte offset, or a page/section label like "page 3"). Empty otherwise.
	OffsetHint string `json:"offset_hint,omitempty"`
}

// FieldConflict records disagreeing non-empty values for one field across
// records of the same serial.
type FieldConflict struct {
	Field string `json:"field"`
	// Values maps source file name to the value that file reported.
	Values map[string]string `json:"values"`
}

// MergedRecord is the single record derived from a reconciliation group,
// plus the per-field audit trail of which member supplied each value.
type MergedRecord struct {
	DriveRecord
	// FieldSources maps field name to the source file whose value won.
	FieldSources map[string]string `json:"field_sources"`
	Conflicts    []FieldConflict   `json:"conflicts,omitempty"`
}

// ReconciliationGroup is the set of records judged to be the same physical
// drive (grouped by serial number), with the merged result.
type ReconciliationGroup struct {
	SerialNumber string        `json:"serial_number"`
	Members      []DriveRecord `json:"members"`
	Merged       MergedRecord  `json:"merged"`
}

// SourceFiles lists the distinct member source files, in member order.
func (g *ReconciliationGroup) SourceFiles() []string {
	var files []string
	seen := make(map[string]bool)
	for _, m := range g.Members {
		if !seen[m.SourceFileName] {
			seen[m.SourceFileName] = true
			files = append(files, m.SourceFileName)
		}
	}
	return files
}

// Summary carries the batch-level counts.
type Summary struct {
	TotalFiles       int `json:"total_files"`
	TotalMembers     int `json:"total_members"`
	TotalRecords     int `json:"total_records"`
	TotalDrives      int `json:"total_drives"`
	DuplicatesMerged int `json:"duplicates_merged"`
	ErrorCount       int `json:"error_count"`
}

// BatchResult is the output of one pipeline run. Owned by the caller; the
// pipeline holds no reference to it after returning.
type BatchResult struct {
	Groups  []ReconciliationGroup `json:"groups"`
	Errors  []ParseError          `json:"errors"`
	Summary Summary               `json:"summary"`
}

// CompletedWithErrors reports whether the batch produced no drives but at
// least one ParseError — a completed outcome, distinct from a fatal abort.
func (b *BatchResult) CompletedWithErrors() bool {
	return len(b.Groups) == 0 && len(b.Errors) > 0
}
