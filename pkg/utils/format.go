package utils

import (
	"fmt"
	"strings"
)

// FormatPrice formats a price with two decimal places.
func FormatPrice(price float64) string {
	return fmt.Sprintf("%.2f", price)
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatIndianCurrency formats a number in Indian currency format (lakhs, crores).
func FormatIndianCurrency(amount float64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	str := fmt.Sprintf("%.2f", amount)
	parts := strings.Split(str, ".")
	intPart := parts[0]
	decPart := parts[1]

	result := "₹" + formatIndianNumber(intPart) + "." + decPart
	if negative {
		result = "-" + result
	}
	return result
}

// formatIndianNumber groups an integer string per the Indian numbering system:
// the last three digits, then groups of two.
func formatIndianNumber(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	result := s[n-3:]
	s = s[:n-3]

	for len(s) > 0 {
		if len(s) >= 2 {
			result = s[len(s)-2:] + "," + result
			s = s[:len(s)-2]
		} else {
			result = s + "," + result
			s = ""
		}
	}

	return result
}
