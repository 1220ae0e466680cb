package manager

import "strings"

// callingCode extracts the E.164 calling-code digits from number for use
// as a metric tag, e.g. "+14155550100" -> "1". This is deliberately
// narrow: full E.164-to-ISO-country-code mapping is out of scope, the way
// the original's own country-code helper stayed narrow.
func callingCode(number string) string {
	trimmed := strings.TrimPrefix(number, "+")
	if trimmed == "" {
		return "unknown"
	}

	end := 0
	for end < len(trimmed) && end < 3 && trimmed[end] >= '0' && trimmed[end] <= '9' {
		end++
	}
	if end == 0 {
		return "unknown"
	}
	// Calling codes are prefix-free: "1" and "7" are the only one-digit
	// codes, the two-digit codes are listed here, and every other code is
	// three digits long.
	const twoDigit = " 20 27 30 31 32 33 34 36 39 40 41 43 44 45 46 47 48 49 51 52 53 54 55 56 57 58 60 61 62 63 64 65 66 81 82 84 86 90 91 92 93 94 95 98 "
	switch {
	case trimmed[0] == '1' || trimmed[0] == '7':
		end = 1
	case end >= 2 && strings.Contains(twoDigit, " "+trimmed[:2]+" "):
		end = 2
	}
	return trimmed[:end]
}
