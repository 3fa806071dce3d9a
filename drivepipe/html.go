package drivepipe

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// extractHTMLReport parses a Hard Disk Sentinel HTML export. The DOM is
// flattened to line-structured text (one line per table row / block element)
// and split into per-drive sections; each section goes through the shared
// labeled-field pass. A section missing its required fields downgrades to a
// ParseError without failing the sections around it.
func (p *Pipeline) extractHTMLReport(name string, data []byte) ([]rawDrive, []ParseError) {
	text, encoding := decodeText(data)
	p.cfg.Logger.Debug("html report decoded", "file", name, "encoding", encoding)

	doc, err := html.Parse(strings.NewReader(text))
	if err != nil {
		return nil, []ParseError{{
			FileName:    name,
			FormatGuess: FormatHTML,
			Reason:      ReasonMalformedContent,
			Detail:      "parse html: " + err.Error(),
		}}
	}

	flat := flattenHTML(doc)

	// Prefer the table structure: in the HDS layout the model rows precede
	// the serial rows, and table boundaries keep each drive's fields
	// together where a flat-text split at serial labels would not.
	blocks := driveTables(doc)
	if blocks == nil {
		blocks = splitDriveBlocks(flat)
	}
	if blocks == nil {
		return nil, []ParseError{{
			FileName:    name,
			FormatGuess: FormatHTML,
			Reason:      ReasonMalformedContent,
			Detail:      "no recognizable drive sections found",
		}}
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
		return nil, []ParseError{{
			FileName:    name,
			FormatGuess: FormatHTML,
			Reason:      ReasonMalformedContent,
			Detail:      "drive sections present but no recognizable fields",
		}}
	}
	fillReportedAt(drives, flat)
	return drives, nil
}

// flattenHTML renders the DOM as plain text with one line per row-like
// element, so the labeled-field patterns see "Label : value" pairs the way
// the text dialect prints them.
func flattenHTML(doc *html.Node) string {
	var sb strings.Builder
	lastByte := byte('\n')
	cellBreak := false
	write := func(s string) {
		if len(s) == 0 {
			return
		}
		sb.WriteString(s)
		lastByte = s[len(s)-1]
	}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				// The separator goes between cells, never after the last
				// one, so value captures stay clean.
				if cellBreak && lastByte != '\n' {
					write(" : ")
				} else if sb.Len() > 0 && lastByte != '\n' {
					write(" ")
				}
				cellBreak = false
				write(t)
			}
			return
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Tr, atom.P, atom.Div, atom.Br, atom.Li, atom.Table, atom.Pre,
				atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
				cellBreak = false
				write("\n")
			case atom.Td, atom.Th:
				cellBreak = true
			}
		}
	}
	walk(doc)
	return sb.String()
}

// driveTableKeywords gate the table fallback: a table only counts as a drive
// section when it mentions identity or health fields.
var driveTableKeywords = []string{"serial number", "model id", "health"}

// driveTables returns the flattened text of each table that looks like one
// drive's section.
func driveTables(doc *html.Node) []string {
	var blocks []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Table {
			text := flattenHTML(n)
			lower := strings.ToLower(text)
			for _, kw := range driveTableKeywords {
				if strings.Contains(lower, kw) {
					blocks = append(blocks, text)
					break
				}
			}
			return // nested tables are part of the outer section
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return blocks
}
