package whiskers

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/m-lab/remycc/remy"
)

// WriteDump writes one bracketed line per whisker of tree, with its use
// count.
func WriteDump(w io.Writer, tree *remy.WhiskerTree) error {
	_, err := io.WriteString(w, tree.String())
	return err
}

// Usage is one whisker of a dump together with how often it was used.
type Usage struct {
	// Range is the domain as printed in the dump. Identical domains from
	// different senders share the same Range.
	Range           string    `csv:"range"`
	Lower           []float64 `csv:"-"`
	Upper           []float64 `csv:"-"`
	WindowIncrement int       `csv:"window_increment"`
	WindowMultiple  float64   `csv:"window_multiple"`
	Intersend       float64   `csv:"intersend"`
	Used            uint64    `csv:"used"`
	// Senders is the number of dumps the whisker appeared in.
	Senders int `csv:"senders"`
}

var dumpLine = regexp.MustCompile(
	`^\[\{(\(lo: <([^>]*)> hi: <([^>]*)>\))\} => \(win: (-?\d+) \+ \((\S+) \* win\) intersend: (\S+) ms\) \(used: (\d+)\)\]$`)

// ParseDump parses the output of WriteDump. Blank lines are skipped.
func ParseDump(r io.Reader) ([]Usage, error) {
	var out []Usage
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for s.Scan() {
		line++
		text := strings.TrimSpace(s.Text())
		if text == "" {
			continue
		}
		u, err := parseLine(text)
		if err != nil {
			return nil, fmt.Errorf("whiskers: dump line %d: %w", line, err)
		}
		out = append(out, u)
	}
	return out, s.Err()
}

func parseLine(text string) (Usage, error) {
	m := dumpLine.FindStringSubmatch(text)
	if m == nil {
		return Usage{}, fmt.Errorf("not a whisker: %q", text)
	}
	u := Usage{Range: m[1], Senders: 1}
	var err error
	if u.Lower, err = parseMemory(m[2]); err != nil {
		return Usage{}, err
	}
	if u.Upper, err = parseMemory(m[3]); err != nil {
		return Usage{}, err
	}
	if u.WindowIncrement, err = strconv.Atoi(m[4]); err != nil {
		return Usage{}, err
	}
	if u.WindowMultiple, err = strconv.ParseFloat(m[5], 64); err != nil {
		return Usage{}, err
	}
	if u.Intersend, err = strconv.ParseFloat(m[6], 64); err != nil {
		return Usage{}, err
	}
	if u.Used, err = strconv.ParseUint(m[7], 10, 64); err != nil {
		return Usage{}, err
	}
	return u, nil
}

// parseMemory reads the "name=value, ..." form of remy.Memory.String.
func parseMemory(s string) ([]float64, error) {
	parts := strings.Split(s, ", ")
	if len(parts) != remy.NumFields {
		return nil, fmt.Errorf("memory has %d fields, want %d: %q", len(parts), remy.NumFields, s)
	}
	out := make([]float64, remy.NumFields)
	for i, p := range parts {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name != remy.FieldName(i) {
			return nil, fmt.Errorf("field %d is %q, want %s", i, p, remy.FieldName(i))
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Merge sums the use counts of identical whiskers across dumps. The result
// is in order of first appearance.
func Merge(dumps ...[]Usage) []Usage {
	type key struct {
		rng       string
		inc       int
		mult      float64
		intersend float64
	}
	index := map[key]int{}
	var out []Usage
	for _, dump := range dumps {
		for _, u := range dump {
			k := key{u.Range, u.WindowIncrement, u.WindowMultiple, u.Intersend}
			i, ok := index[k]
			if !ok {
				index[k] = len(out)
				u.Senders = 1
				out = append(out, u)
				continue
			}
			out[i].Used += u.Used
			out[i].Senders++
		}
	}
	return out
}
