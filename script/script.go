// Package script rewrites command values in MV2Host script files.
//
// Scripts are edited line by line: a command is recognised by a line holding
// <type>T</type>, and its <value>…</value> is expected on the following line.
package script

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/mikesmitty/mv2"
)

// ErrNoValueLine is returned when a matching <type> line is the last line.
var ErrNoValueLine = errors.New("script: no value line after type")

var valueRe = regexp.MustCompile(`<value>.*</value>`)

// Substitution sets the value of the next command of the given type.
type Substitution struct {
	Type  string
	Value string
}

// Radix selects how a register value is written into a script.
type Radix int

const (
	Hex Radix = iota
	Decimal
)

func ParseRadix(s string) (Radix, error) {
	switch strings.ToLower(s) {
	case "", "hex":
		return Hex, nil
	case "decimal", "dec":
		return Decimal, nil
	}
	return Hex, fmt.Errorf("script: unknown radix %q", s)
}

func (r Radix) String() string {
	if r == Decimal {
		return "decimal"
	}
	return "hex"
}

// FormatHex writes r as two uppercase hex digits.
func FormatHex(r mv2.Register) string {
	return fmt.Sprintf("%02X", uint8(r))
}

// FormatDecimal writes the two least significant decimal digits of r.
func FormatDecimal(r mv2.Register) string {
	return fmt.Sprintf("%02d", uint8(r)%100)
}

func Format(r mv2.Register, radix Radix) string {
	if radix == Decimal {
		return FormatDecimal(r)
	}
	return FormatHex(r)
}

// UnmatchedError lists substitutions whose type was never found.
type UnmatchedError struct {
	Types []string
}

func (e *UnmatchedError) Error() string {
	return fmt.Sprintf("script: no command of type %s", strings.Join(e.Types, ", "))
}

func typeRe(t string) *regexp.Regexp {
	return regexp.MustCompile("<type>" + regexp.QuoteMeta(t) + "</type>")
}

// Substitute applies subs in order: the k-th substitution rewrites the first
// command of its type found after the command rewritten by the (k-1)-th.
// Repeating a type therefore addresses successive commands of that type.
func Substitute(lines []string, subs []Substitution) error {
	k := 0
	for i := 0; i < len(lines) && k < len(subs); i++ {
		if !typeRe(subs[k].Type).MatchString(lines[i]) {
			continue
		}
		if i+1 >= len(lines) {
			return fmt.Errorf("%w %s at line %d", ErrNoValueLine, subs[k].Type, i+1)
		}
		lines[i+1] = replaceValue(lines[i+1], subs[k].Value)
		k++
	}
	if k < len(subs) {
		unmatched := make([]string, 0, len(subs)-k)
		for _, s := range subs[k:] {
			unmatched = append(unmatched, s.Type)
		}
		return &UnmatchedError{Types: unmatched}
	}
	return nil
}

// SubstituteAll rewrites the value of every command whose type is a key of
// changes.
func SubstituteAll(lines []string, changes map[string]string) error {
	matched := make(map[string]bool, len(changes))
	for t, v := range changes {
		re := typeRe(t)
		for i := range lines {
			if !re.MatchString(lines[i]) {
				continue
			}
			if i+1 >= len(lines) {
				return fmt.Errorf("%w %s at line %d", ErrNoValueLine, t, i+1)
			}
			lines[i+1] = replaceValue(lines[i+1], v)
			matched[t] = true
		}
	}
	var unmatched []string
	for t := range changes {
		if !matched[t] {
			unmatched = append(unmatched, t)
		}
	}
	if len(unmatched) > 0 {
		sort.Strings(unmatched)
		return &UnmatchedError{Types: unmatched}
	}
	return nil
}

func replaceValue(line, value string) string {
	return valueRe.ReplaceAllLiteralString(line, "<value>"+value+"</value>")
}

// SplitLines splits s after each newline. A trailing newline is dropped.
func SplitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.SplitAfter(strings.TrimSuffix(s, "\n"), "\n")
}

// RewriteFile reads src, applies fn to its lines and writes the result to dst.
func RewriteFile(src, dst string, fn func(lines []string) error) error {
	b, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("script: %w", err)
	}
	content := string(b)
	lines := SplitLines(content)
	if err := fn(lines); err != nil {
		return fmt.Errorf("%s: %w", src, err)
	}
	out := strings.Join(lines, "")
	if strings.HasSuffix(content, "\n") {
		out += "\n"
	}
	if err := os.WriteFile(dst, []byte(out), 0o644); err != nil {
		return fmt.Errorf("script: %w", err)
	}
	return nil
}
