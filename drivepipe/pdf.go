package drivepipe

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// extractPDFReport parses a PDF diagnostic report (typically one drive per
// document in the originating workflow). Text is rebuilt page by page from
// the content streams, logical rows are reconstructed from positional
// operators, and the result goes through the shared labeled-field pass. A
// page whose layout cannot be reconstructed yields a MALFORMED_CONTENT error
// scoped to that page; remaining pages still proceed.
func (p *Pipeline) extractPDFReport(name string, data []byte) ([]rawDrive, []ParseError) {
	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, []ParseError{{
			FileName:    name,
			FormatGuess: FormatPDF,
			Reason:      ReasonMalformedContent,
			Detail:      fmt.Sprintf("read pdf: %v", err),
		}}
	}

	var pages []string
	var errs []ParseError
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		pageText, err := extractPDFPage(ctx, pageNr)
		if err != nil {
			errs = append(errs, ParseError{
				FileName:    name,
				FormatGuess: FormatPDF,
				Reason:      ReasonMalformedContent,
				Detail:      err.Error(),
				OffsetHint:  fmt.Sprintf("page %d", pageNr),
			})
			continue
		}
		if pageText != "" {
			pages = append(pages, pageText)
		}
	}

	full := strings.Join(pages, "\n")
	if strings.TrimSpace(full) == "" {
		errs = append(errs, ParseError{
			FileName:    name,
			FormatGuess: FormatPDF,
			Reason:      ReasonMalformedContent,
			Detail:      "no text content in pdf",
		})
		return nil, errs
	}

	blocks := splitDriveBlocks(full)
	if blocks == nil {
		blocks = []string{full}
	}

	var drives []rawDrive
	for _, blk := range blocks {
		d := scanFields(blk)
		if d.empty() {
			continue
		}
		d.Excerpt = excerptAround(blk, p.cfg.MaxExcerptBytes)
		drives = append(drives, d)
	}

	if len(drives) == 0 {
		errs = append(errs, ParseError{
			FileName:    name,
			FormatGuess: FormatPDF,
			Reason:      ReasonMalformedContent,
			Detail:      "no recognizable drive fields in pdf text",
		})
	}
	fillReportedAt(drives, full)
	return drives, errs
}

// extractPDFPage pulls one page's content stream and rebuilds its text.
func extractPDFPage(ctx *model.Context, pageNr int) (string, error) {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil {
		return "", fmt.Errorf("extract page content: %w", err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read page content: %w", err)
	}
	return rebuildPageText(data), nil
}

// pdfStringRe matches PDF string literals in parentheses: (text here)
var pdfStringRe = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)`)

// tdOpRe captures the operands of a Td/TD positioning operator: tx ty.
var tdOpRe = regexp.MustCompile(`(-?[\d.]+)\s+(-?[\d.]+)\s+T[dD]$`)

// rebuildPageText parses content-stream text operators (Tj, TJ, ', Td/TD,
// T*) into lines. PDF text carries no inherent table structure, so rows are
// reconstructed from positional proximity: a Td/TD with a vertical move
// starts a new line, a purely horizontal move stays on the current one.
func rebuildPageText(data []byte) string {
	var sb strings.Builder

	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		switch {
		case bytes.HasSuffix(line, []byte("Tj")), bytes.HasSuffix(line, []byte("TJ")):
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				sb.WriteString(decodePDFString(m[1]))
			}

		case bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")):
			// ' shows text on the next line.
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				sb.WriteByte('\n')
				sb.WriteString(decodePDFString(m[1]))
			}

		case bytes.HasSuffix(line, []byte("Td")), bytes.HasSuffix(line, []byte("TD")):
			if m := tdOpRe.FindSubmatch(line); m != nil {
				ty, err := strconv.ParseFloat(string(m[2]), 64)
				if err == nil && (ty > 1 || ty < -1) {
					sb.WriteByte('\n')
					continue
				}
			}
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}

		case bytes.Equal(line, []byte("T*")):
			sb.WriteByte('\n')
		}
	}

	return cleanPDFText(sb.String())
}

// decodePDFString handles basic PDF escape sequences.
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '\\', '(', ')':
			sb.WriteByte(raw[i])
		default:
			// Octal escape (e.g. \040 for space).
			if raw[i] >= '0' && raw[i] <= '7' {
				val := int(raw[i] - '0')
				for n := 0; n < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; n++ {
					i++
					val = val*8 + int(raw[i]-'0')
				}
				sb.WriteByte(byte(val))
			} else {
				sb.WriteByte(raw[i])
			}
		}
	}
	return sb.String()
}

// cleanPDFText normalises whitespace per line while keeping line structure,
// which the labeled-field patterns depend on.
func cleanPDFText(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	for _, line := range lines {
		var sb strings.Builder
		prevSpace := false
		for _, r := range line {
			switch {
			case unicode.IsSpace(r):
				if !prevSpace && sb.Len() > 0 {
					sb.WriteByte(' ')
					prevSpace = true
				}
			case unicode.IsPrint(r):
				sb.WriteRune(r)
				prevSpace = false
			}
		}
		if s := strings.TrimSpace(sb.String()); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, "\n")
}
