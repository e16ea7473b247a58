package normalize

import (
	"strconv"
	"strings"
)

var unitWords = map[string]int{
	"zero": 0, "a": 1, "an": 1, "one": 1, "single": 1, "two": 2, "couple": 2, "pair": 2,
	"three": 3, "four": 4, "five": 5, "six": 6, "seven": 7, "eight": 8, "nine": 9,
	"ten": 10, "eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14,
	"fifteen": 15, "sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
}

var tensWords = map[string]int{
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
}

// ParseCount reads a positive count such as "3", "three", "twenty-one" or
// "2 passengers". Zero and negative values are rejected.
func ParseCount(raw string) (int, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return 0, ErrNotANumber
	}
	if n, err := strconv.Atoi(s); err == nil {
		return positive(n)
	}
	s = strings.ReplaceAll(s, "-", " ")

	total, seen := 0, false
	for _, tok := range strings.Fields(s) {
		if n, err := strconv.Atoi(tok); err == nil {
			if seen {
				break
			}
			return positive(n)
		}
		if n, ok := tensWords[tok]; ok {
			total += n
			seen = true
			continue
		}
		if n, ok := unitWords[tok]; ok {
			if (tok == "a" || tok == "an") && seen {
				continue
			}
			// "a couple" is two.
			if tok == "couple" || tok == "pair" {
				total = n
			} else {
				total += n
			}
			seen = true
			continue
		}
		if seen {
			break
		}
	}
	if !seen {
		return 0, ErrNotANumber
	}
	return positive(total)
}

func positive(n int) (int, error) {
	if n <= 0 {
		return 0, ErrNonPositive
	}
	return n, nil
}
