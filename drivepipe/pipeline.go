// Package drivepipe parses hard-disk diagnostic reports and reconciles the
// drives they describe.
//
// Supported inputs:
//   - Hard Disk Sentinel HTML exports
//   - plain-text reports (SCSI Toolbox logs, HDS text exports)
//   - PDF diagnostic reports
//   - ZIP archives bundling any of the above
//
// One Run processes one batch: every input is classified, archives are
// expanded, each file is extracted into canonical drive records, and records
// with the same serial number are merged under a deterministic precedence
// policy. Malformed files degrade to ParseError entries; only resource
// exhaustion (zip bombs, size caps) aborts the batch.
//
// The pipeline is a pure function of its input bytes: it opens no files, no
// connections, and holds no state across batches. Identical input yields an
// identical BatchResult.
//
// Usage:
//
//	pipe := drivepipe.New(drivepipe.Config{})
//	res, err := pipe.Run(ctx, []drivepipe.Input{{Name: "report.html", Data: data}})
package drivepipe

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Input is one named byte buffer handed to the pipeline, typically an
// uploaded file.
type Input struct {
	Name string
	Data []byte
}

// Pipeline is the batch parsing and reconciliation engine.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Pipeline with the given configuration.
func New(cfg Config) *Pipeline {
	cfg.defaults()
	return &Pipeline{cfg: cfg, logger: cfg.Logger}
}

// unit is one classified piece of work in original input order: either an
// extraction task or the errors that replaced it.
type unit struct {
	name    string
	format  Format
	data    []byte
	extract bool
	errs    []ParseError

	// filled by the worker
	records []DriveRecord
	outErrs []ParseError
}

// Run executes one batch: sniff → expand → extract → normalize → reconcile.
//
// Extraction of independent files runs on a bounded worker pool; the output
// order is fixed by the original input order regardless of completion order.
// The context is checked between per-file tasks only, so an in-flight
// extraction always completes or fails cleanly before cancellation takes
// effect. The returned error is non-nil only for whole-batch failures:
// cancellation or a resource-bound violation (ErrResourceExhausted).
func (p *Pipeline) Run(ctx context.Context, inputs []Input) (*BatchResult, error) {
	units, err := p.classify(inputs)
	if err != nil {
		return nil, err
	}

	if err := p.extractAll(ctx, units); err != nil {
		return nil, err
	}

	var records []DriveRecord
	var errs []ParseError
	members := 0
	for i := range units {
		u := &units[i]
		errs = append(errs, u.errs...)
		if !u.extract {
			continue
		}
		members++
		records = append(records, u.records...)
		errs = append(errs, u.outErrs...)
	}

	// Reconciliation is the single synchronization point: it sees the
	// complete record set, never a partial one.
	groups := reconcile(records)

	res := &BatchResult{
		Groups: groups,
		Errors: errs,
		Summary: Summary{
			TotalFiles:       len(inputs),
			TotalMembers:     members,
			TotalRecords:     len(records),
			TotalDrives:      len(groups),
			DuplicatesMerged: len(records) - len(groups),
			ErrorCount:       len(errs),
		},
	}
	if res.Errors == nil {
		res.Errors = []ParseError{}
	}
	if res.Groups == nil {
		res.Groups = []ReconciliationGroup{}
	}

	p.logger.Info("batch complete",
		"files", res.Summary.TotalFiles,
		"drives", res.Summary.TotalDrives,
		"merged", res.Summary.DuplicatesMerged,
		"errors", res.Summary.ErrorCount)
	return res, nil
}

// classify sniffs every top-level input and expands archives. All resource
// bounds are enforced here, before any extraction work is allocated, so
// worst-case memory is independent of the concurrency level.
func (p *Pipeline) classify(inputs []Input) ([]unit, error) {
	var units []unit
	for _, in := range inputs {
		if int64(len(in.Data)) > p.cfg.MaxFileSize {
			return nil, fmt.Errorf("input %s is %d bytes (cap %d): %w",
				in.Name, len(in.Data), p.cfg.MaxFileSize, ErrResourceExhausted)
		}

		format := Sniff(in.Data, in.Name)
		switch format {
		case FormatZIP:
			members, errs, err := p.expandArchive(in.Name, in.Data, 1)
			if err != nil {
				return nil, err
			}
			units = append(units, unit{name: in.Name, errs: errs})
			for _, m := range members {
				units = append(units, p.memberUnit(m))
			}
		case FormatUnsupported:
			units = append(units, unit{name: in.Name, errs: []ParseError{{
				FileName:    in.Name,
				FormatGuess: FormatUnsupported,
				Reason:      ReasonUnsupportedFormat,
				Detail:      "no recognizable report format",
			}}})
		default:
			units = append(units, unit{name: in.Name, format: format, data: in.Data, extract: true})
		}
	}
	return units, nil
}

func (p *Pipeline) memberUnit(m member) unit {
	if m.Format == FormatUnsupported {
		return unit{name: m.Name, errs: []ParseError{{
			FileName:    m.Name,
			FormatGuess: FormatUnsupported,
			Reason:      ReasonUnsupportedFormat,
			Detail:      "no recognizable report format",
		}}}
	}
	return unit{name: m.Name, format: m.Format, data: m.Data, extract: true}
}

// extractAll runs every extraction unit on a bounded worker pool. Each
// worker writes only its own unit, so no further synchronization is needed.
func (p *Pipeline) extractAll(ctx context.Context, units []unit) error {
	sem := make(chan struct{}, p.cfg.Workers)
	var wg sync.WaitGroup

	var cancelled error
	for i := range units {
		if !units[i].extract {
			continue
		}
		// Cooperative cancellation between tasks, never mid-extraction.
		if err := ctx.Err(); err != nil {
			cancelled = err
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(u *unit) {
			defer wg.Done()
			defer func() { <-sem }()
			p.extractUnit(u)
		}(&units[i])
	}

	wg.Wait()
	if cancelled != nil {
		return fmt.Errorf("batch cancelled: %w", cancelled)
	}
	return nil
}

// extractUnit runs the format's extractor and normalizes its raw drives.
func (p *Pipeline) extractUnit(u *unit) {
	var raws []rawDrive
	var errs []ParseError

	switch u.format {
	case FormatHTML:
		raws, errs = p.extractHTMLReport(u.name, u.data)
	case FormatText:
		raws, errs = p.extractTextReport(u.name, u.data)
	case FormatPDF:
		raws, errs = p.extractPDFReport(u.name, u.data)
	default:
		errs = []ParseError{{
			FileName:    u.name,
			FormatGuess: u.format,
			Reason:      ReasonUnsupportedFormat,
			Detail:      fmt.Sprintf("no extractor for format %q", u.format),
		}}
	}

	for _, raw := range raws {
		rec, perr := normalizeRecord(raw, u.name, u.format)
		if perr != nil {
			errs = append(errs, *perr)
			continue
		}
		u.records = append(u.records, rec)
	}
	u.outErrs = errs

	p.logger.Debug("extracted", "file", u.name, "format", u.format,
		"records", len(u.records), "errors", len(errs))
}
