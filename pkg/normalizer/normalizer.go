// Package normalizer canonicalizes free-text product fields before matching.
package normalizer

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Sentinel values for missing brand/category. Downstream grouping and
// has-brand checks key off these instead of empty strings.
const (
	UnknownBrand    = "Unknown"
	UnknownCategory = "Uncategorized"
)

// Normalized holds the canonical forms of one record's text fields.
type Normalized struct {
	Name     string
	Brand    string
	Category string
}

// brandVariants maps lowercased spelling variants (including transliterations)
// to one canonical brand spelling. Applied to the brand field and to name
// tokens so "хайнц" and "Heinz" index identically.
var brandVariants = map[string]string{
	"heinz":      "Heinz",
	"хайнц":      "Heinz",
	"хейнц":      "Heinz",
	"coca-cola":  "Coca-Cola",
	"кока-кола":  "Coca-Cola",
	"кока кола":  "Coca-Cola",
	"barilla":    "Barilla",
	"барилла":    "Barilla",
	"makfa":      "Makfa",
	"макфа":      "Makfa",
	"nestle":     "Nestle",
	"нестле":     "Nestle",
	"lavazza":    "Lavazza",
	"лавацца":    "Lavazza",
	"jacobs":     "Jacobs",
	"якобс":      "Jacobs",
	"greenfield": "Greenfield",
	"гринфилд":   "Greenfield",
}

// categoryVariants maps lowercased category variants to canonical names.
var categoryVariants = map[string]string{
	"соус":               "Соусы",
	"соусы":              "Соусы",
	"кетчупы и соусы":    "Соусы",
	"макароны":           "Макаронные Изделия",
	"макаронные изделия": "Макаронные Изделия",
	"паста":              "Макаронные Изделия",
	"напиток":            "Напитки",
	"напитки":            "Напитки",
	"вода и напитки":     "Напитки",
	"кофе и чай":         "Кофе и Чай",
	"чай":                "Кофе и Чай",
	"кофе":               "Кофе и Чай",
	"бакалея":            "Бакалея",
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// unitTokenRe matches quantity tokens like "570г", "1.5Л", "10ШТ" whose unit
// suffix frequently arrives with stray capitalization.
var unitTokenRe = regexp.MustCompile(`(?i)^(\d+(?:[.,]\d+)?)(г|гр|кг|мл|л|шт|g|kg|ml|l|pc)$`)

// Record normalizes all three text fields of a source record.
func Record(name, brand, category string) Normalized {
	return Normalized{
		Name:     Name(name),
		Brand:    Brand(brand),
		Category: Category(category),
	}
}

// Name collapses whitespace, title-cases tokens, fixes unit-abbreviation
// capitalization and rewrites known brand variants to their canonical
// spelling. Idempotent: normalizing a normalized name is a no-op.
func Name(s string) string {
	s = collapseWhitespace(s)
	if s == "" {
		return ""
	}

	caser := cases.Title(language.Und)
	tokens := strings.Split(s, " ")
	for i, tok := range tokens {
		if m := unitTokenRe.FindStringSubmatch(tok); m != nil {
			tokens[i] = m[1] + strings.ToLower(m[2])
			continue
		}
		if canonical, ok := brandVariants[strings.ToLower(tok)]; ok {
			tokens[i] = canonical
			continue
		}
		tokens[i] = caser.String(tok)
	}
	return strings.Join(tokens, " ")
}

// Brand maps known spelling variants to one canonical spelling and
// title-cases everything else. Empty input becomes the UnknownBrand sentinel.
func Brand(s string) string {
	s = collapseWhitespace(s)
	if s == "" {
		return UnknownBrand
	}
	if canonical, ok := brandVariants[strings.ToLower(s)]; ok {
		return canonical
	}
	return cases.Title(language.Und).String(s)
}

// Category maps known variants to one canonical name and title-cases the
// rest. Empty input becomes the UnknownCategory sentinel.
func Category(s string) string {
	s = collapseWhitespace(s)
	if s == "" {
		return UnknownCategory
	}
	if canonical, ok := categoryVariants[strings.ToLower(s)]; ok {
		return canonical
	}
	return cases.Title(language.Und).String(s)
}

// HasBrand reports whether the normalized brand carries real information.
func HasBrand(brand string) bool {
	return brand != "" && brand != UnknownBrand
}

// HasCategory reports whether the normalized category carries real information.
func HasCategory(category string) bool {
	return category != "" && category != UnknownCategory
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
