// drivebatch parses hard-disk diagnostic report files given on the command
// line, reconciles duplicate drives, and writes the result as JSON, CSV, or
// an Excel workbook. Directories are walked one level deep.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/platterworks/drivebatch/drivepipe"
	"github.com/platterworks/drivebatch/export"
)

func main() {
	format := flag.String("format", "json", "output format: json, csv, xlsx")
	out := flag.String("o", "", "output file (default stdout for json/csv, drivebatch.xlsx for xlsx)")
	workers := flag.Int("workers", 0, "parallel extraction workers (default GOMAXPROCS)")
	logLevel := flag.String("log-level", "warn", "log level: debug, info, warn, error")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: drivebatch [flags] FILE_OR_DIR...")
		flag.PrintDefaults()
		os.Exit(2)
	}

	var lvl slog.Level
	switch *logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelWarn
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	inputs, err := collectInputs(flag.Args())
	if err != nil {
		fatal("collect inputs: %v", err)
	}
	if len(inputs) == 0 {
		fatal("no input files found")
	}

	pipe := drivepipe.New(drivepipe.Config{Workers: *workers, Logger: logger})
	res, err := pipe.Run(ctx, inputs)
	if err != nil {
		fatal("parse batch: %v", err)
	}

	if err := writeResult(res, *format, *out); err != nil {
		fatal("write output: %v", err)
	}

	for _, pe := range res.Errors {
		fmt.Fprintf(os.Stderr, "warning: %s: %s (%s)\n", pe.FileName, pe.Reason, pe.Detail)
	}
	if res.Summary.ErrorCount > 0 && res.Summary.TotalDrives == 0 {
		os.Exit(1)
	}
}

// collectInputs loads the named files; a directory contributes its immediate
// regular files.
func collectInputs(args []string) ([]drivepipe.Input, error) {
	var inputs []drivepipe.Input
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			data, err := os.ReadFile(arg)
			if err != nil {
				return nil, err
			}
			inputs = append(inputs, drivepipe.Input{Name: filepath.Base(arg), Data: data})
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			data, err := os.ReadFile(filepath.Join(arg, e.Name()))
			if err != nil {
				return nil, err
			}
			inputs = append(inputs, drivepipe.Input{Name: e.Name(), Data: data})
		}
	}
	return inputs, nil
}

func writeResult(res *drivepipe.BatchResult, format, out string) error {
	switch format {
	case "json":
		w, closeFn, err := openOut(out)
		if err != nil {
			return err
		}
		defer closeFn()
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case "csv":
		w, closeFn, err := openOut(out)
		if err != nil {
			return err
		}
		defer closeFn()
		return export.WriteCSV(w, res)
	case "xlsx":
		if out == "" {
			out = "drivebatch.xlsx"
		}
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		return export.WriteXLSX(f, res)
	default:
		return fmt.Errorf("unknown format %q (use json, csv, or xlsx)", format)
	}
}

func openOut(path string) (*os.File, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
