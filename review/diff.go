package review

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// contextLines is the number of unchanged lines kept around each change.
const contextLines = 3

type diffLine struct {
	op   byte
	text string
}

// UnifiedDiff renders the change from oldContent to newContent as a unified
// diff with @@ hunk headers. It returns "" when the contents are equal.
func UnifiedDiff(path, oldContent, newContent string) string {
	var lines []diffLine
	for _, d := range lineDiff(oldContent, newContent) {
		op := byte(' ')
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			op = '-'
		case diffmatchpatch.DiffInsert:
			op = '+'
		}
		for _, line := range splitLines(d.Text) {
			lines = append(lines, diffLine{op, line})
		}
	}

	hs := hunks(lines)
	if len(hs) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "--- %s\n", path)
	fmt.Fprintf(&b, "+++ %s\n", path)
	oldLine, newLine, pos := 1, 1, 0
	for _, h := range hs {
		for ; pos < h.start; pos++ {
			oldLine, newLine = advance(lines[pos].op, oldLine, newLine)
		}
		oldLen, newLen := 0, 0
		for _, l := range lines[h.start:h.end] {
			if l.op != '+' {
				oldLen++
			}
			if l.op != '-' {
				newLen++
			}
		}
		fmt.Fprintf(&b, "@@ -%s +%s @@\n", hunkRange(oldLine, oldLen), hunkRange(newLine, newLen))
		for ; pos < h.end; pos++ {
			b.WriteByte(lines[pos].op)
			b.WriteString(lines[pos].text)
			b.WriteByte('\n')
			oldLine, newLine = advance(lines[pos].op, oldLine, newLine)
		}
	}
	return b.String()
}

type hunk struct{ start, end int }

// hunks groups changed lines with their context. Changes separated by no
// more than twice the context share a hunk.
func hunks(lines []diffLine) []hunk {
	var out []hunk
	for i := 0; i < len(lines); {
		if lines[i].op == ' ' {
			i++
			continue
		}
		last := i
		for j := i + 1; j < len(lines); j++ {
			if lines[j].op == ' ' {
				continue
			}
			if j-last-1 > 2*contextLines {
				break
			}
			last = j
		}
		h := hunk{start: max(0, i-contextLines), end: min(len(lines), last+1+contextLines)}
		out = append(out, h)
		i = h.end
	}
	return out
}

func advance(op byte, oldLine, newLine int) (int, int) {
	if op != '+' {
		oldLine++
	}
	if op != '-' {
		newLine++
	}
	return oldLine, newLine
}

// hunkRange formats start,length. An empty range names the line before it.
func hunkRange(start, length int) string {
	if length == 0 {
		start--
	}
	return fmt.Sprintf("%d,%d", start, length)
}

// Stats counts added and removed lines.
func Stats(oldContent, newContent string) (added, removed int) {
	for _, d := range lineDiff(oldContent, newContent) {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += len(splitLines(d.Text))
		case diffmatchpatch.DiffDelete:
			removed += len(splitLines(d.Text))
		}
	}
	return added, removed
}

func lineDiff(oldContent, newContent string) []diffmatchpatch.Diff {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(oldContent, newContent)
	diffs := dmp.DiffMain(a, b, false)
	return dmp.DiffCharsToLines(diffs, lines)
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

// Printer is a Reviewer that writes the diff to a terminal.
type Printer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

func (p *Printer) PresentDiff(path, current, proposed string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	added, removed := Stats(current, proposed)
	fmt.Fprintf(p.w, "\nProposed change to %s (+%d -%d)\n", path, added, removed)
	fmt.Fprint(p.w, UnifiedDiff(path, current, proposed))
	fmt.Fprintf(p.w, "Apply this change? (y/n): ")
}
