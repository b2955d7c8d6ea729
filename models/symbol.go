package models

import "strings"

// NormalizeSymbol maps mainland six-digit codes to the provider's exchange suffix
// and upper-cases everything else. Applying it twice is a no-op.
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if len(s) == 6 && isDigits(s) {
		switch s[0] {
		case '0', '2', '3':
			return s + ".SZ"
		case '6':
			return s + ".SHH"
		}
	}
	return s
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
