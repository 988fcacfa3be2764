// Package parser reads a Ruby-style ObjectSpace.dump_all record-per-line
// heap dump and yields raw heap records.
package parser

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	apperrors "github.com/heapdom/retain/pkg/errors"
	"github.com/heapdom/retain/internal/heapdump/record"
)

// DefaultMaxLineBytes bounds a single dump line; a longer line is treated
// as malformed input rather than read into memory unbounded.
const DefaultMaxLineBytes = 64 * 1024 * 1024

// Options configures parsing behavior.
type Options struct {
	// StrictMode fails fast on the first malformed record instead of
	// skipping it and counting it. On by default: a syntactically broken
	// dump usually means a truncated or corrupt capture, not noise.
	StrictMode bool

	// MaxLineBytes bounds the length of a single input line.
	MaxLineBytes int
}

// DefaultOptions returns the default parser options.
func DefaultOptions() *Options {
	return &Options{
		StrictMode:   true,
		MaxLineBytes: DefaultMaxLineBytes,
	}
}

// Stats accumulates non-fatal anomalies encountered while parsing, printed
// to standard error at the end of a run.
type Stats struct {
	LinesRead      int
	RecordsSkipped int
}

// Parser streams records from a reader, one per line.
type Parser struct {
	opts  *Options
	Stats Stats
}

// NewParser creates a new Parser. A nil opts uses DefaultOptions.
func NewParser(opts *Options) *Parser {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Parser{opts: opts}
}

// rawLine mirrors the tagged-field dictionary of one dump line. Unknown
// fields are ignored by leaving them out of this struct.
type rawLine struct {
	Type       string   `json:"type"`
	Root       string   `json:"root"`
	Address    string   `json:"address"`
	Class      string   `json:"class"`
	Name       string   `json:"name"`
	Bytes      uint64   `json:"bytes"`
	Value      string   `json:"value"`
	Length     *int     `json:"length"`
	Size       *int     `json:"size"`
	References []string `json:"references"`
}

// Each calls fn for every record parsed from reader, in line order. fn
// returning an error stops iteration and propagates the error. Context
// cancellation is checked between lines.
func (p *Parser) Each(ctx context.Context, reader io.Reader, fn func(record.Record) error) error {
	scanner := bufio.NewScanner(reader)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, p.opts.MaxLineBytes)

	lineNum := 0
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		rec, err := p.parseLine(line)
		if err != nil {
			if p.opts.StrictMode {
				return apperrors.Wrap(apperrors.CodeMalformedInput, fmt.Sprintf("line %d", lineNum), err)
			}
			p.Stats.RecordsSkipped++
			continue
		}

		p.Stats.LinesRead++
		if err := fn(rec); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return apperrors.Wrap(apperrors.CodeMalformedInput, fmt.Sprintf("line %d", lineNum+1), err)
	}

	return nil
}

func (p *Parser) parseLine(line string) (record.Record, error) {
	var raw rawLine
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return nil, fmt.Errorf("not a dictionary: %w", err)
	}

	if raw.Type == "" {
		return nil, fmt.Errorf("record missing type field")
	}

	refs := make([]uint64, 0, len(raw.References))
	for _, r := range raw.References {
		addr, err := parseAddress(r)
		if err != nil {
			return nil, fmt.Errorf("invalid reference address %q: %w", r, err)
		}
		refs = append(refs, addr)
	}

	if raw.Type == "ROOT" {
		return &record.RootRecord{
			Category:   raw.Root,
			References: refs,
		}, nil
	}

	addr, err := parseAddress(raw.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", raw.Address, err)
	}

	obj := &record.ObjectRecord{
		Address:    addr,
		Type:       record.ParseTypeTag(raw.Type),
		Bytes:      raw.Bytes,
		Value:      raw.Value,
		Name:       raw.Name,
		References: refs,
	}

	if raw.Class != "" {
		classAddr, err := parseAddress(raw.Class)
		if err == nil {
			obj.Class = classAddr
			obj.HasClass = true
		}
	}
	if raw.Length != nil {
		obj.Length = *raw.Length
		obj.HasLength = true
	}
	if raw.Size != nil {
		obj.Size = *raw.Size
		obj.HasSize = true
	}

	return obj, nil
}

// parseAddress parses a hex-prefixed address string ("0x7f83df87dc40")
// into a uint64.
func parseAddress(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty address")
	}
	trimmed := strings.TrimPrefix(s, "0x")
	return strconv.ParseUint(trimmed, 16, 64)
}
