package utils

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Title upper-cases the first letter of every word ("wireless profile" -> "Wireless Profile").
// A Caser is stateful, so one is built per call.
func Title(s string) string {
	return cases.Title(language.English).String(s)
}
