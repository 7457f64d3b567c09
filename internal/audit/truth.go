package audit

// Truth is a ground-truth cell: either a label or not applicable.
type Truth struct {
	label      string
	applicable bool
}

// Some returns an applicable truth holding label.
func Some(label string) Truth {
	return Truth{label: label, applicable: true}
}

// NotApplicable returns a truth excluded from accuracy.
func NotApplicable() Truth {
	return Truth{}
}

// ParseTruth maps a cell to a Truth. Only a cell equal to sentinel is not
// applicable; "n/a", " N/A" and the empty string are ordinary labels.
func ParseTruth(cell, sentinel string) Truth {
	if cell == sentinel {
		return NotApplicable()
	}
	return Some(cell)
}

// Label returns the label and whether the truth is applicable.
func (t Truth) Label() (string, bool) {
	return t.label, t.applicable
}

// Applicable reports whether the row counts toward accuracy.
func (t Truth) Applicable() bool {
	return t.applicable
}

// Matches reports whether predicted equals the label exactly. A not
// applicable truth matches nothing.
func (t Truth) Matches(predicted string) bool {
	return t.applicable && predicted == t.label
}

func (t Truth) String() string {
	if !t.applicable {
		return "NotApplicable"
	}
	return "Some(" + t.label + ")"
}
