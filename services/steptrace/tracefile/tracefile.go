// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tracefile reads and writes trace results as JSON or msgpack
// files for offline replay.
package tracefile

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/AleutianAI/steptrace/services/steptrace/assembler"
)

// Format is a trace file encoding.
type Format string

const (
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
)

// MaxFileSize bounds trace files read from disk.
const MaxFileSize = 256 << 20

var (
	// ErrUnknownFormat is returned for unrecognized formats or extensions.
	ErrUnknownFormat = errors.New("unknown trace file format")

	// ErrTooLarge is returned when a trace file exceeds MaxFileSize.
	ErrTooLarge = errors.New("trace file too large")
)

// ParseFormat parses a format name as given on the command line.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(name) {
	case "json":
		return FormatJSON, nil
	case "msgpack", "mp":
		return FormatMsgpack, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// FormatFromPath picks the format from the file extension: .json, or
// .msgpack / .mp.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".msgpack", ".mp":
		return FormatMsgpack, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

// Write encodes res to w.
func Write(w io.Writer, res *assembler.Result, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("encode json trace: %w", err)
		}
		return nil
	case FormatMsgpack:
		enc := msgpack.NewEncoder(w)
		enc.SetSortMapKeys(true)
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("encode msgpack trace: %w", err)
		}
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// Read decodes a result from r. Snapshot values decode into generic
// maps, slices and scalars.
func Read(r io.Reader, format Format) (*assembler.Result, error) {
	res := &assembler.Result{}
	switch format {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(res); err != nil {
			return nil, fmt.Errorf("decode json trace: %w", err)
		}
	case FormatMsgpack:
		if err := msgpack.NewDecoder(r).Decode(res); err != nil {
			return nil, fmt.Errorf("decode msgpack trace: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return res, nil
}

// WriteFile writes res to path in the format implied by its extension.
func WriteFile(path string, res *assembler.Result) (err error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trace file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close trace file: %w", cerr)
		}
	}()
	bw := bufio.NewWriter(f)
	if err := Write(bw, res, format); err != nil {
		return err
	}
	return bw.Flush()
}

// ReadFile reads a trace written by WriteFile.
func ReadFile(path string) (*assembler.Result, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat trace file: %w", err)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, info.Size())
	}
	return Read(bufio.NewReader(f), format)
}
