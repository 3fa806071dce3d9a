package drivepipe

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// decodeText converts raw report bytes to a string. Reports in the wild come
// in UTF-8, ISO-8859-1, or Windows-1252. Returns the decoded text and the
// encoding used (logged for the audit trail).
func decodeText(data []byte) (string, string) {
	if utf8.Valid(data) {
		return string(data), "utf-8"
	}

	// Windows-1252 is a superset of ISO-8859-1's printable range and its
	// decoder maps every byte, so non-UTF-8 input always resolves here.
	s, _ := charmap.Windows1252.NewDecoder().Bytes(data)
	return string(s), "windows-1252"
}
