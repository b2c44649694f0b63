package recipe

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var vulgarFractions = map[rune]float64{
	'¼': 0.25, '½': 0.5, '¾': 0.75,
	'⅓': 1.0 / 3, '⅔': 2.0 / 3,
	'⅛': 0.125, '⅜': 0.375, '⅝': 0.625, '⅞': 0.875,
	'⅕': 0.2, '⅙': 1.0 / 6,
}

var (
	// "1 1/2", "1/2", "1.5", "1,5", "2" optionally followed by a range "-3"
	quantityRe = regexp.MustCompile(`^(\d+\s+\d+/\d+|\d+/\d+|\d+(?:[.,]\d+)?)(?:\s*(?:-|–|to)\s*\d+(?:[.,]\d+)?)?`)
	// quantity glued to a unit, e.g. "200g"
	gluedUnitRe   = regexp.MustCompile(`^(\d+(?:[.,]\d+)?)([a-zA-Z]+)\b`)
	optionalRe    = regexp.MustCompile(`(?i)\(\s*optional\s*\)|,?\s*optional$`)
	parenthesisRe = regexp.MustCompile(`\(([^)]*)\)`)
	bulletRe      = regexp.MustCompile(`^\s*(?:[-*•·▪►✓✔]\s*|\d+[.)]\s+)`)
)

// ParseIngredientLine parses a caption line such as "1 1/2 cups flour, sifted".
// The second return value is false when no ingredient name remains.
func ParseIngredientLine(line string) (Ingredient, bool) {
	var ing Ingredient

	s := strings.TrimSpace(bulletRe.ReplaceAllString(line, ""))
	if optionalRe.MatchString(s) {
		ing.Optional = true
		s = strings.TrimSpace(optionalRe.ReplaceAllString(s, ""))
	}

	var notes []string
	for _, m := range parenthesisRe.FindAllStringSubmatch(s, -1) {
		if n := strings.TrimSpace(m[1]); n != "" {
			notes = append(notes, n)
		}
	}
	s = strings.TrimSpace(parenthesisRe.ReplaceAllString(s, ""))

	if i := noteSeparator(s); i >= 0 {
		if n := strings.TrimSpace(s[i+1:]); n != "" {
			notes = append([]string{n}, notes...)
		}
		s = strings.TrimSpace(s[:i])
	}
	ing.Notes = strings.Join(notes, "; ")

	q, rest, ok := parseQuantity(s)
	if ok {
		ing.Quantity = floatPtr(q)
		s = rest
	}

	fields := strings.Fields(s)
	if ok && len(fields) > 1 {
		if u := canonicalUnit(fields[0]); u != "" {
			ing.Unit = u
			fields = fields[1:]
		}
	}
	if len(fields) > 1 && strings.EqualFold(fields[0], "of") {
		fields = fields[1:]
	}

	ing.Name = strings.Join(fields, " ")
	return ing, ing.Name != ""
}

// parseQuantity reads a leading quantity and returns the remaining text
func parseQuantity(s string) (float64, string, bool) {
	if m := gluedUnitRe.FindStringSubmatch(s); m != nil && canonicalUnit(m[2]) != "" {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
		if err == nil {
			return v, canonicalUnit(m[2]) + s[len(m[0]):], true
		}
	}

	var total float64
	matched := false

	if loc := quantityRe.FindStringSubmatchIndex(s); loc != nil {
		v, err := parseNumber(s[loc[2]:loc[3]])
		if err == nil {
			total = v
			matched = true
			s = strings.TrimSpace(s[loc[1]:])
		}
	}

	// trailing or standalone vulgar fraction: "1½", "½"
	if r, size := firstRune(s); size > 0 {
		if f, ok := vulgarFractions[r]; ok {
			total += f
			matched = true
			s = strings.TrimSpace(s[size:])
		}
	}

	return total, s, matched
}

func parseNumber(s string) (float64, error) {
	s = strings.ReplaceAll(s, ",", ".")
	parts := strings.Fields(s)
	var total float64
	for _, p := range parts {
		if num, den, ok := strings.Cut(p, "/"); ok {
			n, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, err
			}
			d, err := strconv.ParseFloat(den, 64)
			if err != nil || d == 0 {
				return 0, strconv.ErrSyntax
			}
			total += n / d
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return 0, err
		}
		total += v
	}
	return total, nil
}

func firstRune(s string) (rune, int) {
	if s == "" {
		return 0, 0
	}
	return utf8.DecodeRuneInString(s)
}

// noteSeparator finds the comma that starts trailing notes, skipping
// decimal commas such as "1,5".
func noteSeparator(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] != ',' {
			continue
		}
		if i > 0 && i+1 < len(s) && isDigit(s[i-1]) && isDigit(s[i+1]) {
			continue
		}
		return i
	}
	return -1
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
