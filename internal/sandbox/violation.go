package sandbox

import (
	pkgerrors "github.com/sempr/studenttester-go/pkg/errors"
)

// Violation is returned when a policy rejects an operation.
type Violation struct {
	Policy PolicyKind
	Op     Operation
	Reason string
}

func (v *Violation) Error() string { return v.Reason }

func (v *Violation) ErrorCode() pkgerrors.ErrorCode { return pkgerrors.SecurityViolation }

// Culprit is the innermost blacklisted frame of the operation, if known.
func (v *Violation) Culprit(s *State) (Frame, bool) {
	for _, f := range v.Op.Frames {
		if s == nil || s.Blacklisted(f.Unit) {
			return f, true
		}
	}
	return Frame{}, false
}
