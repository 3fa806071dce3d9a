package drivepipe

// extractTextReport parses a plain-text report (SCSI Toolbox logs, Hard Disk
// Sentinel text exports). Line-oriented: the report is split into per-drive
// blocks at known boundary markers, then each block goes through the shared
// labeled-field pass. Field ordering and surrounding whitespace inside a
// block vary between tool versions and are tolerated; the boundary markers
// themselves are required.
func (p *Pipeline) extractTextReport(name string, data []byte) ([]rawDrive, []ParseError) {
	text, encoding := decodeText(data)
	p.cfg.Logger.Debug("text report decoded", "file", name, "encoding", encoding)

	blocks := splitDriveBlocks(text)
	if blocks == nil {
		return nil, []ParseError{{
			FileName:    name,
			FormatGuess: FormatText,
			Reason:      ReasonMalformedContent,
			Detail:      "no drive block boundary markers found",
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
			FormatGuess: FormatText,
			Reason:      ReasonMalformedContent,
			Detail:      "drive blocks present but no recognizable fields",
		}}
	}
	fillReportedAt(drives, text)
	return drives, nil
}
