package compiler

import "sort"

var hints = map[string]string{
	"cant.resolve.args": "Hint: does the method exist?",
	"illegal.char":      "Hint: there seems to be an encoding error.",
	"cant.resolve":      "Hint: have you declared all necessary variables/types?",
	"prob.found.req":    "Hint: converting one type to another might help.",
	"unreachable.stmt":  "Hint: remove either the statement causing the code to be unreachable or the code itself.",
	"package.mismatch":  "Hint: does the folder structure match the package declarations?",
	"unhandled.error":   "Hint: handle the error inside the function or return it to the caller.",
	"not.stmt":          "Hint: this might be a typo.",
	"expected":          "Hint: did you miss a name or character?",
	"premature.eof":     "Hint: part of the file might be missing.",
	"void.not.allowed":  "Hint: does the function return nothing but its result is used?",
	"unused":            "Hint: remove the unused variable or import.",
}

// Hint returns the hint for d, or "" when there is none.
func Hint(d Diagnostic) string {
	h, ok := hints[d.Code]
	if !ok {
		return ""
	}
	if d.Code == "illegal.char" && d.Line == 1 && d.Column <= 1 {
		h += "\nThe file likely contains a Byte Order Mark (BOM). Please remove it."
	}
	return h
}

// HintCodes lists the codes that have a hint.
func HintCodes() []string {
	codes := make([]string, 0, len(hints))
	for c := range hints {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
