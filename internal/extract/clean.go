package extract

import "strings"

// Clean drops the control characters spreadsheet cells reject:
// 0x00-0x08, 0x0B-0x0C and 0x0E-0x1F. Tab, newline and carriage return
// are kept.
func Clean(s string) string {
	if strings.IndexFunc(s, illegal) < 0 {
		return s
	}
	return strings.Map(func(r rune) rune {
		if illegal(r) {
			return -1
		}
		return r
	}, s)
}

func illegal(r rune) bool {
	switch {
	case r <= 0x08:
		return true
	case r == 0x0B || r == 0x0C:
		return true
	case r >= 0x0E && r <= 0x1F:
		return true
	default:
		return false
	}
}
