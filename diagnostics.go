package tiny

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// Location is a single point in a source file, both as a byte cursor
// and as a 1-based line/column pair.
type Location struct {
	Line   int
	Column int
	Cursor int
}

// Span is a half-open range expressed as two Locations.
type Span struct {
	Start Location
	End   Location
}

func (s Span) String() string {
	if s.Start.Line == s.End.Line {
		if s.Start.Column == s.End.Column {
			return fmt.Sprintf("%d:%d", s.Start.Line, s.Start.Column)
		}
		return fmt.Sprintf("%d:%d..%d", s.Start.Line, s.Start.Column, s.End.Column)
	}
	return fmt.Sprintf("%d:%d..%d:%d", s.Start.Line, s.Start.Column, s.End.Line, s.End.Column)
}

// LineIndex converts byte cursor offsets into line/column pairs
// without rescanning the input on every lookup. Construction is O(n)
// over the source; lookups are O(log lines).
type LineIndex struct {
	input     []byte
	lineStart []int
}

// NewLineIndex indexes the start-of-line offsets in source.
func NewLineIndex(source []byte) *LineIndex {
	lineStart := make([]int, 1, 64)
	lineStart[0] = 0
	for i, b := range source {
		if b == '\n' {
			lineStart = append(lineStart, i+1)
		}
	}
	return &LineIndex{input: source, lineStart: lineStart}
}

// LocationAt returns the 1-based line/column for a byte cursor.
func (li *LineIndex) LocationAt(cursor int) Location {
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(li.input) {
		cursor = len(li.input)
	}
	lineIdx := sort.Search(len(li.lineStart), func(i int) bool {
		return li.lineStart[i] > cursor
	}) - 1
	if lineIdx < 0 {
		lineIdx = 0
	}
	lineStart := li.lineStart[lineIdx]
	col := utf8.RuneCount(li.input[lineStart:cursor]) + 1
	return Location{Line: lineIdx + 1, Column: col, Cursor: cursor}
}

// Line returns the raw text of the given 1-based line number, without
// its trailing newline. Returns "" for an out-of-range line.
func (li *LineIndex) Line(n int) string {
	if n < 1 || n > len(li.lineStart) {
		return ""
	}
	start := li.lineStart[n-1]
	end := len(li.input)
	if n < len(li.lineStart) {
		end = li.lineStart[n] - 1
	}
	if end > 0 && end <= len(li.input) && li.input[end-1] == '\r' {
		end--
	}
	return string(li.input[start:end])
}

// LineCount returns how many lines the indexed source has.
func (li *LineIndex) LineCount() int {
	return len(li.lineStart)
}

// Severity classifies a Diagnostic.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	default:
		return "error"
	}
}

// Diagnostic is the structured replacement for the original
// process-exit-on-error design: compile errors are collected and
// returned to the caller instead of aborting the process (spec.md §9's
// design note, and §7's "strengthened reimplementation" direction).
type Diagnostic struct {
	File     string
	Line     int
	Column   int
	Severity Severity
	Message  string
	Code     string
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s(%d): %s", d.File, d.Line, d.Message)
}

// Diagnostics accumulates Diagnostic values during one compilation and
// knows how to render them with source context, mirroring the
// five-line ±2 window with an arrow marker required by spec.md §4.8.
type Diagnostics struct {
	file   string
	source []byte
	index  *LineIndex
	items  []Diagnostic
}

// NewDiagnostics creates a recorder bound to one source file. source
// may be nil if no re-windable handle is available (e.g. at runtime).
func NewDiagnostics(file string, source []byte) *Diagnostics {
	d := &Diagnostics{file: file, source: source}
	if source != nil {
		d.index = NewLineIndex(source)
	}
	return d
}

func (d *Diagnostics) add(sev Severity, code string, cursor int, format string, args ...any) Diagnostic {
	loc := Location{Line: d.lineNumberHint()}
	if d.index != nil {
		loc = d.index.LocationAt(cursor)
	}
	diag := Diagnostic{
		File:     d.file,
		Line:     loc.Line,
		Column:   loc.Column,
		Severity: sev,
		Message:  fmt.Sprintf(format, args...),
		Code:     code,
	}
	d.items = append(d.items, diag)
	return diag
}

// lineNumberHint covers the case where the recorder has no source
// handle (runtime errors): line 0, rendered with no context window.
func (d *Diagnostics) lineNumberHint() int { return 0 }

// Errorf records a fatal diagnostic at the given byte cursor.
func (d *Diagnostics) Errorf(code string, cursor int, format string, args ...any) Diagnostic {
	return d.add(SeverityError, code, cursor, format, args...)
}

// Errorfl records a fatal diagnostic at an explicit 1-based line
// (used once a byte cursor is no longer available, e.g. post-parse
// semantic checks walking the symbol table).
func (d *Diagnostics) Errorfl(code string, line int, format string, args ...any) Diagnostic {
	diag := Diagnostic{File: d.file, Line: line, Severity: SeverityError, Message: fmt.Sprintf(format, args...), Code: code}
	d.items = append(d.items, diag)
	return diag
}

// Warnf records a non-fatal diagnostic at the given byte cursor.
func (d *Diagnostics) Warnf(code string, cursor int, format string, args ...any) Diagnostic {
	return d.add(SeverityWarning, code, cursor, format, args...)
}

// HasErrors reports whether any SeverityError diagnostic was recorded.
func (d *Diagnostics) HasErrors() bool {
	for _, it := range d.items {
		if it.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Items returns every diagnostic recorded so far, in recording order.
func (d *Diagnostics) Items() []Diagnostic {
	return d.items
}

// Format renders a single diagnostic the way spec.md §4.8 describes:
// a blank line, up to five lines of source (target ± 2) with an arrow
// marker on the target line, then "file(line): message".
func (d *Diagnostics) Format(diag Diagnostic) string {
	var b strings.Builder
	b.WriteByte('\n')
	if d.index != nil && diag.Line > 0 {
		lo := diag.Line - 2
		if lo < 1 {
			lo = 1
		}
		hi := diag.Line + 2
		if n := d.index.LineCount(); hi > n {
			hi = n
		}
		for n := lo; n <= hi; n++ {
			fmt.Fprintf(&b, "%4d | %s\n", n, d.index.Line(n))
			if n == diag.Line {
				col := diag.Column
				if col < 1 {
					col = 1
				}
				fmt.Fprintf(&b, "     | %s^\n", strings.Repeat(" ", col-1))
			}
		}
	}
	fmt.Fprintf(&b, "%s(%d): %s\n", diag.File, diag.Line, diag.Message)
	return b.String()
}

// FormatAll renders every recorded diagnostic, in order.
func (d *Diagnostics) FormatAll() string {
	var b strings.Builder
	for _, it := range d.items {
		b.WriteString(d.Format(it))
	}
	return b.String()
}
