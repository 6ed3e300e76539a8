package compiler

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
)

// Diagnostic is one compiler message.
type Diagnostic struct {
	Code    string
	File    string
	Line    int
	Column  int
	Message string
}

// file:line[:col]: [error: ]message, the shape emitted by go, gcc, javac -Xdiags and friends
var diagLine = regexp.MustCompile(`^(.+?\.[A-Za-z0-9]+):(\d+):(?:(\d+):)?\s*(?:error:\s*)?(.+)$`)

// ParseDiagnostics extracts diagnostics from compiler output, ignoring lines
// that are not diagnostics.
func ParseDiagnostics(output string) []Diagnostic {
	var out []Diagnostic
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		m := diagLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		d := Diagnostic{File: strings.TrimPrefix(m[1], "./"), Message: m[4]}
		d.Line, _ = strconv.Atoi(m[2])
		if m[3] != "" {
			d.Column, _ = strconv.Atoi(m[3])
		}
		d.Code = Classify(d.Message)
		out = append(out, d)
	}
	return out
}

var classifiers = []struct {
	code     string
	contains []string
}{
	{"illegal.char", []string{"invalid character", "illegal character", "invalid BOM", "illegal byte order mark"}},
	{"premature.eof", []string{"unexpected EOF", "reached end of file"}},
	{"expected", []string{"expected", "unexpected"}},
	{"cant.resolve", []string{"undefined:", "cannot find symbol", "undeclared name"}},
	{"cant.resolve.args", []string{"has no field or method", "not enough arguments", "too many arguments"}},
	{"prob.found.req", []string{"cannot use", "incompatible types", "mismatched types"}},
	{"unreachable.stmt", []string{"unreachable code", "unreachable statement"}},
	{"missing.ret.stmt", []string{"missing return"}},
	{"unused", []string{"declared and not used", "declared but not used", "imported and not used"}},
	{"not.stmt", []string{"is not used", "not a statement"}},
	{"void.not.allowed", []string{"used as value", "'void' type not allowed"}},
	{"package.mismatch", []string{"found packages", "should be declared in a file named"}},
	{"unhandled.error", []string{"unreported exception", "error return value not checked"}},
}

// Classify maps a compiler message to a stable diagnostic code.
func Classify(message string) string {
	for _, c := range classifiers {
		for _, s := range c.contains {
			if strings.Contains(message, s) {
				return c.code
			}
		}
	}
	return "other"
}
