// Package menutext holds the line-level text rules shared by the block
// extractor and the parser: junk filters, price parsing and markup cleanup.
package menutext

import (
	"regexp"
	"strings"
)

var (
	hoursRe    = regexp.MustCompile(`(?i)\b(mon(day)?|tue(s(day)?)?|wed(nesday)?|thu(rs(day)?)?|fri(day)?|sat(urday)?|sun(day)?)\b.*\d\s*(am|pm)\b`)
	timeOnlyRe = regexp.MustCompile(`(?i)(^|[^0-9])[0-2]?\d\s*(:\s*\d{2})?\s*(am|pm)\b`)
	phoneRe    = regexp.MustCompile(`(^|[^\d])\(?\+?1?\)?[\s.-]?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]\d{4}\b`)
	legalRe    = regexp.MustCompile(`(?i)(all rights reserved|privacy|terms of|terms &|terms and|cookie (policy|settings|preferences|notice)|(we|this site) uses? cookies|accept (all )?cookies|skip to content|©|copyright)`)
	streetRe   = regexp.MustCompile(`(?i)\b\d{1,5}\s+([a-z0-9][a-z0-9.'-]*)\s+([a-z0-9.'-]+\s+){0,3}(ave|avenue|st|street|rd|road|blvd|boulevard|hwy|highway|dr|drive|ln|lane|ct|court|pkwy|parkway|pl|place)\b`)
	suiteRe    = regexp.MustCompile(`(?i)\b(suite|ste\.?)\s*#?\s*\d+`)
	stateZipRe = regexp.MustCompile(`\b[A-Z]{2},?\s+\d{5}(-\d{4})?\b`)
	codeRe     = regexp.MustCompile(`(?i)function\s*\(|\bvar\s|=>|\{.*\}|</?[a-z]`)

	onlyAvailRe  = regexp.MustCompile(`(?i)^only available\b`)
	madeOrderRe  = regexp.MustCompile(`(?i)\bmade to order\b`)
	craftedRe    = regexp.MustCompile(`(?i)\bcrafted with\b`)
	servedWithRe = regexp.MustCompile(`(?i)\bserved with\b`)
	sentenceRe   = regexp.MustCompile(`[.!?]$`)
	navWordRe    = regexp.MustCompile(`(?i)^(order online|order now|menu|menus|our menu|view menu|locations?|contact( us)?|about( us)?|home|reservations?|gift cards?)$`)
)

// IsJunkLine reports whether a text line is opening hours, an address, a
// phone number, legal boilerplate or leaked script code.
func IsJunkLine(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	return hoursRe.MatchString(s) ||
		timeOnlyRe.MatchString(s) ||
		phoneRe.MatchString(s) ||
		legalRe.MatchString(s) ||
		IsAddress(s) ||
		codeRe.MatchString(s)
}

// quantityUnits follow a number on menus ("20 oz", "10 ct") and never
// start a street name.
var quantityUnits = map[string]bool{
	"oz": true, "fl": true, "ct": true, "pc": true, "pcs": true, "piece": true, "pieces": true,
	"lb": true, "lbs": true, "g": true, "kg": true, "ml": true, "l": true, "in": true, "inch": true,
	"count": true, "x": true,
}

// IsAddress reports whether s looks like a street address fragment. The
// number must be followed by a name word before the street suffix.
func IsAddress(s string) bool {
	if suiteRe.MatchString(s) || stateZipRe.MatchString(s) {
		return true
	}
	for _, m := range streetRe.FindAllStringSubmatch(s, -1) {
		if !quantityUnits[strings.ToLower(strings.TrimRight(m[1], "."))] {
			return true
		}
	}
	return false
}

// IsJunkName reports whether s cannot be a dish or drink name: junk lines,
// marketing copy, navigation labels and names outside 2 to 80 characters.
func IsJunkName(s string) bool {
	s = CollapseSpace(s)
	n := len([]rune(s))
	if n < 2 || n > 80 {
		return true
	}
	if IsJunkLine(s) {
		return true
	}
	if onlyAvailRe.MatchString(s) || madeOrderRe.MatchString(s) || craftedRe.MatchString(s) {
		return true
	}
	if servedWithRe.MatchString(s) && strings.Contains(s, ",") {
		return true
	}
	if sentenceRe.MatchString(s) && len(strings.Fields(s)) > 6 {
		return true
	}
	return navWordRe.MatchString(s)
}

// CollapseSpace trims s and collapses internal whitespace runs to one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
