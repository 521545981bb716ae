// Package diff implements the new-vs-out comparison tool used by
// transform mode to reconcile freshly generated ".new.json" fixtures
// against the checked-in ".out.json" baseline: discovery, grouped-line
// rendering with inline emphasis, and an interactive accept/reject
// prompt, built over github.com/sergi/go-diff/diffmatchpatch for line
// and character grouping and github.com/charmbracelet/huh for the
// interactive confirm prompt.
package diff

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Comparison identifies one label's pair of files under comparison.
type Comparison struct {
	Label    string
	Expected string // "<label>.out.json"
	Actual   string // "<label>.new.json"
}

// ComparisonFromPath builds a Comparison from either half of the pair.
func ComparisonFromPath(path string) Comparison {
	base := filepath.Base(path)
	label := strings.TrimSuffix(strings.TrimSuffix(base, ".new.json"), ".out.json")
	dir := filepath.Dir(path)
	return Comparison{
		Label:    label,
		Expected: filepath.Join(dir, label+".out.json"),
		Actual:   filepath.Join(dir, label+".new.json"),
	}
}

// Difference is either a presence mismatch (one side missing) or a
// content mismatch (both present, different bytes).
type Difference struct {
	Kind            Kind
	ExpectedPresent bool
	ActualPresent   bool
	ExpectedContent string
	ActualContent   string
}

// Kind distinguishes the two Difference shapes.
type Kind int

const (
	KindPresence Kind = iota
	KindStringContent
)

// SearchNewVsOut walks directory for ".new.json"/".out.json" pairs and
// returns every label whose pair disagrees: a ".new.json" with no
// matching ".out.json" (new, unreviewed output), a ".out.json" with no
// matching ".new.json" (stale baseline, nothing regenerated it this
// pass), or a pair whose contents differ byte-for-byte.
func SearchNewVsOut(directory string) (map[Comparison]Difference, error) {
	entries, err := os.ReadDir(directory)
	if err != nil {
		return nil, fmt.Errorf("diff: read %s: %w", directory, err)
	}

	differences := map[Comparison]Difference{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		path := filepath.Join(directory, name)

		switch {
		case strings.HasSuffix(name, ".new.json"):
			cmp := ComparisonFromPath(path)
			if _, err := os.Stat(cmp.Expected); os.IsNotExist(err) {
				differences[cmp] = Difference{Kind: KindPresence, ExpectedPresent: false, ActualPresent: true}
				continue
			}
			expected, err := os.ReadFile(cmp.Expected)
			if err != nil {
				return nil, fmt.Errorf("diff: read %s: %w", cmp.Expected, err)
			}
			actual, err := os.ReadFile(cmp.Actual)
			if err != nil {
				return nil, fmt.Errorf("diff: read %s: %w", cmp.Actual, err)
			}
			if string(expected) != string(actual) {
				differences[cmp] = Difference{
					Kind: KindStringContent, ExpectedContent: string(expected), ActualContent: string(actual),
				}
			}
		case strings.HasSuffix(name, ".out.json"):
			cmp := ComparisonFromPath(path)
			if _, err := os.Stat(cmp.Actual); os.IsNotExist(err) {
				differences[cmp] = Difference{Kind: KindPresence, ExpectedPresent: true, ActualPresent: false}
			}
		}
	}
	return differences, nil
}

var (
	addStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	delStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	equalStyle = lipgloss.NewStyle().Faint(true)
	emphStyle  = lipgloss.NewStyle().Underline(true)
)

// Show prints a Difference to stdout: presence mismatches as a one-line
// notice, content mismatches as a line-grouped diff with 3 lines of
// context and inline character-level emphasis.
func Show(cmp Comparison, d Difference, showWhitespace bool) {
	switch d.Kind {
	case KindPresence:
		if d.ExpectedPresent && !d.ActualPresent {
			fmt.Printf("missing: %s\n", cmp.Label)
		} else {
			fmt.Printf("unexpected: %s\n", cmp.Label)
		}
	case KindStringContent:
		fmt.Printf("difference detected on: %s\n\n", cmp.Label)
		fmt.Print(renderLineDiff(d.ExpectedContent, d.ActualContent, showWhitespace))
	}
}

// Review shows the difference (for content mismatches) then prompts the
// user to accept the new state, applying the accepted resolution to
// disk. Returns true if the new/actual state was accepted.
func Review(cmp Comparison, d Difference) (bool, error) {
	switch d.Kind {
	case KindPresence:
		if d.ExpectedPresent && !d.ActualPresent {
			accept, err := confirm(fmt.Sprintf("Accept to remove existing %s?", cmp.Label))
			if err != nil {
				return false, err
			}
			if accept {
				if err := os.Remove(cmp.Expected); err != nil {
					return false, err
				}
				return true, nil
			}
			return false, nil
		}
		accept, err := confirm(fmt.Sprintf("Accept to add new %s?", cmp.Label))
		if err != nil {
			return false, err
		}
		if accept {
			return true, os.Rename(cmp.Actual, cmp.Expected)
		}
		return false, os.Remove(cmp.Actual)
	case KindStringContent:
		fmt.Print(renderLineDiff(d.ExpectedContent, d.ActualContent, true))
		accept, err := confirm(fmt.Sprintf("Accept to update %s?", cmp.Label))
		if err != nil {
			return false, err
		}
		if accept {
			return true, os.Rename(cmp.Actual, cmp.Expected)
		}
		return false, os.Remove(cmp.Actual)
	}
	return false, nil
}

func confirm(msg string) (bool, error) {
	var accepted bool
	err := huh.NewConfirm().
		Title(msg).
		Affirmative("Yes").
		Negative("No").
		Value(&accepted).
		Run()
	return accepted, err
}

// renderLineDiff renders a line-grouped diff of old vs new with 3 lines
// of context around each change, inline character emphasis within
// changed lines, and optional whitespace visualization.
func renderLineDiff(old, new string, showWhitespace bool) string {
	dmp := diffmatchpatch.New()
	lineOld, lineNew, lineArray := dmp.DiffLinesToChars(old, new)
	diffs := dmp.DiffMain(lineOld, lineNew, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)
	diffs = dmp.DiffCleanupSemantic(diffs)

	lines := groupWithContext(diffs, 3)

	var b strings.Builder
	for i, group := range lines {
		if i > 0 {
			b.WriteString("...\n")
		}
		for _, l := range group {
			b.WriteString(renderLine(l, showWhitespace))
		}
	}
	return b.String()
}

type renderedLine struct {
	tag  diffmatchpatch.Operation
	text string
}

// groupWithContext flattens the diff into per-line operations, then
// splits it into change clusters each padded with up to context
// unchanged lines on either side, skipping the unchanged runs between
// distant clusters (printed as "..." by the caller).
func groupWithContext(diffs []diffmatchpatch.Diff, context int) [][]renderedLine {
	var flat []renderedLine
	for _, d := range diffs {
		text := d.Text
		text = strings.TrimSuffix(text, "\n")
		if text == "" {
			continue
		}
		for _, line := range strings.Split(text, "\n") {
			flat = append(flat, renderedLine{tag: d.Type, text: line})
		}
	}

	changedIdx := map[int]bool{}
	for i, l := range flat {
		if l.tag != diffmatchpatch.DiffEqual {
			changedIdx[i] = true
		}
	}
	if len(changedIdx) == 0 {
		return nil
	}

	var groups [][]renderedLine
	var current []renderedLine
	lastIncluded := -1
	for i := range flat {
		include := false
		for d := -context; d <= context; d++ {
			if changedIdx[i+d] {
				include = true
				break
			}
		}
		if !include {
			if len(current) > 0 {
				groups = append(groups, current)
				current = nil
			}
			continue
		}
		if lastIncluded != -1 && i != lastIncluded+1 && len(current) > 0 {
			groups = append(groups, current)
			current = nil
		}
		current = append(current, flat[i])
		lastIncluded = i
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

func renderLine(l renderedLine, showWhitespace bool) string {
	text := l.text
	if showWhitespace {
		text = visualizeWhitespace(text)
	}
	switch l.tag {
	case diffmatchpatch.DiffInsert:
		return addStyle.Render("+ "+emphStyle.Render(text)) + "\n"
	case diffmatchpatch.DiffDelete:
		return delStyle.Render("- "+emphStyle.Render(text)) + "\n"
	default:
		return equalStyle.Render("  "+text) + "\n"
	}
}

// visualizeWhitespace makes invisible characters visible: space → ·,
// tab → ⇒ (the tab is kept), CR before LF → ¶, and every LF → ↩ (so a
// CRLF renders as ¶↩).
func visualizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, " ", "·")
	s = strings.ReplaceAll(s, "\t", "⇒\t")
	s = strings.ReplaceAll(s, "\r\n", "¶\n")
	s = strings.ReplaceAll(s, "\n", "↩\n")
	return s
}
