package drivepipe

import (
	"bytes"
	"path/filepath"
	"strings"
)

var (
	zipMagic      = []byte("PK\x03\x04")
	zipMagicEmpty = []byte("PK\x05\x06")
	pdfMagic      = []byte("%PDF-")
)

// htmlMarkers identify HTML content after decoding. Checked case-insensitively
// against the head of the file.
var htmlMarkers = []string{
	"<!doctype html",
	"<html",
	"<head",
	"<body",
	"<table",
}

// textMarkers are section headers known from the supported plain-text report
// dialects (Hard Disk Sentinel exports, SCSI Toolbox logs).
var textMarkers = []string{
	"hard disk summary",
	"hard disk sentinel",
	"scsi toolbox",
	"hard disk serial number",
	"serial number",
	"smart attribute",
	"vendor information",
}

// Sniff classifies a byte buffer as one of the supported report formats.
// Magic-byte signatures are checked first, then decoded-content markers,
// then the filename hint. Malformed input is never an error here:
// FormatUnsupported is a valid outcome, and real errors only occur inside
// extractors once a format commitment has been made.
func Sniff(data []byte, nameHint string) Format {
	if bytes.HasPrefix(data, zipMagic) || bytes.HasPrefix(data, zipMagicEmpty) {
		return FormatZIP
	}
	if bytes.HasPrefix(data, pdfMagic) {
		return FormatPDF
	}

	head := data
	if len(head) > 8192 {
		head = head[:8192]
	}
	text, _ := decodeText(head)
	lower := strings.ToLower(text)

	for _, m := range htmlMarkers {
		if strings.Contains(lower, m) {
			return FormatHTML
		}
	}
	for _, m := range textMarkers {
		if strings.Contains(lower, m) {
			return FormatText
		}
	}

	// No signature, no markers: fall back to the extension hint. A bare
	// .txt upload may legitimately start mid-report.
	switch strings.ToLower(filepath.Ext(nameHint)) {
	case ".html", ".htm":
		return FormatHTML
	case ".txt", ".text", ".log":
		if looksTextual(head) {
			return FormatText
		}
	}

	return FormatUnsupported
}

// looksTextual reports whether the buffer is plausibly text (no NUL bytes,
// mostly printable). Guards against classifying arbitrary binaries as TEXT
// on the strength of a .txt extension alone.
func looksTextual(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	printable := 0
	for _, b := range data {
		if b == 0 {
			return false
		}
		if b == '\n' || b == '\r' || b == '\t' || (b >= 0x20 && b < 0xff) {
			printable++
		}
	}
	return float64(printable)/float64(len(data)) > 0.9
}
