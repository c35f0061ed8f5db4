// SPDX-License-Identifier: MIT

package resolver

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.Und, cases.NoLower)

// normalizeTitle collapses internal whitespace and title-cases all-lowercase
// catalog entries. Titles with existing casing pass through untouched.
func normalizeTitle(raw string) string {
	t := strings.Join(strings.Fields(raw), " ")
	if t == "" {
		return t
	}
	if t == strings.ToLower(t) {
		return titleCaser.String(t)
	}
	return t
}
