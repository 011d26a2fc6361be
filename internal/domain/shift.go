package domain

import (
	"fmt"
	"strings"
)

type Shift string

const (
	ShiftFirst  Shift = "1/especial"
	ShiftSecond Shift = "2/especial"
	ShiftThird  Shift = "3/especial"
)

var shiftLabels = map[Shift]string{
	ShiftFirst:  "1/Especial",
	ShiftSecond: "2/Especial",
	ShiftThird:  "3/Especial",
}

// ParseShift accepts the stored value ("2/especial"), the label, or the bare
// shift number.
func ParseShift(s string) (Shift, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "1", string(ShiftFirst):
		return ShiftFirst, nil
	case "2", string(ShiftSecond):
		return ShiftSecond, nil
	case "3", string(ShiftThird):
		return ShiftThird, nil
	}
	return "", &ValidationError{Field: "shift", Message: fmt.Sprintf("unknown shift %q", s)}
}

func (s Shift) Valid() bool {
	_, ok := shiftLabels[s]
	return ok
}

func (s Shift) Label() string {
	if label, ok := shiftLabels[s]; ok {
		return label
	}
	return string(s)
}
