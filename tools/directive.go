package tools

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Invocation is a single tool directive extracted from model output. The set
// of variants is closed: ReadFile, WriteFile and ExecuteCommand.
type Invocation interface {
	Kind() string
	isInvocation()
}

type ReadFile struct {
	Path string
}

type WriteFile struct {
	Path    string
	Content string
}

type ExecuteCommand struct {
	Command string
}

func (ReadFile) Kind() string       { return "read_file" }
func (WriteFile) Kind() string      { return "write_file" }
func (ExecuteCommand) Kind() string { return "execute_command" }

func (ReadFile) isInvocation()       {}
func (WriteFile) isInvocation()      {}
func (ExecuteCommand) isInvocation() {}

// Mode selects how malformed directives are treated.
type Mode int

const (
	// ModeLenient silently skips anything that is not a complete directive.
	ModeLenient Mode = iota
	// ModeStrict additionally reports opening tags that did not form a
	// directive.
	ModeStrict
)

// Warning describes an opening tag that produced no invocation.
type Warning struct {
	Tag    string
	Offset int
}

func (w Warning) String() string {
	return fmt.Sprintf("unterminated <%s> directive at offset %d", w.Tag, w.Offset)
}

var (
	readFileRe       = regexp.MustCompile(`<read_file\s+path="([^"]+)"\s*/>`)
	writeFileRe      = regexp.MustCompile(`(?s)<write_file\s+path="([^"]+)">(.*?)</write_file>`)
	executeCommandRe = regexp.MustCompile(`(?s)<execute_command>(.*?)</execute_command>`)

	openingTagRe = regexp.MustCompile(`<(read_file|write_file|execute_command)\b`)
)

type match struct {
	start, end int
	inv        Invocation
}

// Parse extracts every directive from text in the order its opening tag
// appears. A directive starting inside an earlier one, such as a read_file
// tag quoted in a write_file body, is part of that body.
func Parse(text string) []Invocation {
	invs, _ := parse(text, ModeLenient)
	return invs
}

// ParseStrict behaves like Parse and also returns a warning for each opening
// tag that is not covered by an extracted directive.
func ParseStrict(text string) ([]Invocation, []Warning) {
	return parse(text, ModeStrict)
}

// ParseMode dispatches to Parse or ParseStrict.
func ParseMode(text string, mode Mode) ([]Invocation, []Warning) {
	return parse(text, mode)
}

func parse(text string, mode Mode) ([]Invocation, []Warning) {
	var accepted []match
	for end := 0; end < len(text); {
		m, ok := nextDirective(text, end)
		if !ok {
			break
		}
		accepted = append(accepted, m)
		end = m.end
	}

	invs := make([]Invocation, 0, len(accepted))
	for _, m := range accepted {
		invs = append(invs, m.inv)
	}
	if mode != ModeStrict {
		return invs, nil
	}

	var warnings []Warning
	for _, loc := range openingTagRe.FindAllStringSubmatchIndex(text, -1) {
		if covered(accepted, loc[0]) {
			continue
		}
		warnings = append(warnings, Warning{Tag: text[loc[2]:loc[3]], Offset: loc[0]})
	}
	return invs, warnings
}

func covered(accepted []match, offset int) bool {
	i := sort.Search(len(accepted), func(i int) bool { return accepted[i].end > offset })
	return i < len(accepted) && accepted[i].start <= offset
}

// nextDirective returns the directive whose opening tag comes first at or
// after from. Each kind is searched again from from, so a candidate swallowed
// by an earlier body never hides a later directive of the same kind.
func nextDirective(text string, from int) (match, bool) {
	rest := text[from:]
	var best match
	found := false
	consider := func(m match) {
		if !found || m.start < best.start {
			best, found = m, true
		}
	}
	if m := readFileRe.FindStringSubmatchIndex(rest); m != nil {
		consider(match{from + m[0], from + m[1], ReadFile{Path: rest[m[2]:m[3]]}})
	}
	if m := writeFileRe.FindStringSubmatchIndex(rest); m != nil {
		consider(match{from + m[0], from + m[1], WriteFile{
			Path:    rest[m[2]:m[3]],
			Content: strings.TrimSpace(rest[m[4]:m[5]]),
		}})
	}
	if m := executeCommandRe.FindStringSubmatchIndex(rest); m != nil {
		consider(match{from + m[0], from + m[1], ExecuteCommand{
			Command: strings.TrimSpace(rest[m[2]:m[3]]),
		}})
	}
	return best, found
}
