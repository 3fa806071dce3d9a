package drivepipe

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// ErrResourceExhausted is the fatal class: a zip-bomb or memory-bound
// violation that aborts the whole batch instead of degrading to a ParseError.
var ErrResourceExhausted = errors.New("resource bound exceeded")

// member is one candidate file produced by archive expansion, re-classified
// by the sniffer.
type member struct {
	Name   string
	Data   []byte
	Format Format
}

// expandArchive unpacks a ZIP buffer into individual candidate files,
// recursing into nested archives up to the configured depth. Resource bounds
// are checked against the archive directory before any member content is
// read, so worst-case memory is bounded regardless of concurrency.
//
// A corrupt archive or an out-of-bounds member degrades to a ParseError; only
// a zip-bomb expansion ratio returns a fatal error.
func (p *Pipeline) expandArchive(name string, data []byte, depth int) ([]member, []ParseError, error) {
	count := 0
	return p.expandCounted(name, data, depth, &count)
}

// expandCounted does the work of expandArchive with the member budget shared
// across the whole nesting tree, so nested archives cannot multiply it.
func (p *Pipeline) expandCounted(name string, data []byte, depth int, count *int) ([]member, []ParseError, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, []ParseError{{
			FileName:    name,
			FormatGuess: FormatZIP,
			Reason:      ReasonArchiveCorrupt,
			Detail:      fmt.Sprintf("open archive: %v", err),
		}}, nil
	}

	// Zip-bomb guard on declared sizes, before reading anything.
	var declared uint64
	for _, f := range zr.File {
		declared += f.UncompressedSize64
	}
	if declared > uint64(len(data))*uint64(p.cfg.MaxExpansionRatio) {
		return nil, nil, fmt.Errorf("archive %s declares %d bytes from %d compressed (ratio bound %d): %w",
			name, declared, len(data), p.cfg.MaxExpansionRatio, ErrResourceExhausted)
	}

	var members []member
	var errs []ParseError

	for _, f := range zr.File {
		base := path.Base(f.Name)
		if strings.HasSuffix(f.Name, "/") || strings.HasPrefix(base, ".") ||
			strings.HasPrefix(f.Name, "__MACOSX") {
			continue
		}

		*count++
		if *count > p.cfg.MaxArchiveMembers {
			errs = append(errs, ParseError{
				FileName:    name,
				FormatGuess: FormatZIP,
				Reason:      ReasonArchiveCorrupt,
				Detail:      fmt.Sprintf("more than %d members, remainder skipped", p.cfg.MaxArchiveMembers),
			})
			break
		}

		memberName := name + "/" + f.Name

		if f.UncompressedSize64 > uint64(p.cfg.MaxFileSize) {
			errs = append(errs, ParseError{
				FileName:    memberName,
				FormatGuess: FormatUnsupported,
				Reason:      ReasonArchiveCorrupt,
				Detail:      fmt.Sprintf("member declares %d bytes (cap %d)", f.UncompressedSize64, p.cfg.MaxFileSize),
			})
			continue
		}

		content, err := readZipMember(f, p.cfg.MaxFileSize)
		if err != nil {
			errs = append(errs, ParseError{
				FileName:    memberName,
				FormatGuess: FormatUnsupported,
				Reason:      ReasonArchiveCorrupt,
				Detail:      fmt.Sprintf("read member: %v", err),
			})
			continue
		}

		format := Sniff(content, f.Name)
		if format == FormatZIP {
			if depth+1 > p.cfg.MaxArchiveDepth {
				errs = append(errs, ParseError{
					FileName:    memberName,
					FormatGuess: FormatZIP,
					Reason:      ReasonNestedArchiveDepth,
					Detail:      fmt.Sprintf("nested beyond depth %d", p.cfg.MaxArchiveDepth),
				})
				continue
			}
			nested, nestedErrs, err := p.expandCounted(memberName, content, depth+1, count)
			if err != nil {
				return nil, nil, err
			}
			members = append(members, nested...)
			errs = append(errs, nestedErrs...)
			continue
		}

		members = append(members, member{Name: memberName, Data: content, Format: format})
	}

	return members, errs, nil
}

// readZipMember reads one member with a hard size cap. The cap re-checks the
// declared size: zip headers can lie.
func readZipMember(f *zip.File, maxSize int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("member larger than declared (cap %d)", maxSize)
	}
	return data, nil
}
