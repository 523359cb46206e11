package textfilter

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Content ratings understood by the sanitizer.
const (
	RatingG    = "G"
	RatingPG   = "PG"
	RatingPG13 = "PG13"
	RatingR    = "R"
)

// replacements maps filtered words to in-world alternatives. Station
// personas swear in static, not in four-letter words.
var replacements = map[string]string{
	"fuck":         "frack",
	"fucking":      "fracking",
	"motherfucker": "[static]",
	"shit":         "slag",
	"bullshit":     "noise",
	"damn":         "blast",
	"goddamn":      "blasted",
	"hell":         "void",
	"ass":          "hull",
	"asshole":      "[static]",
	"bitch":        "[static]",
	"bastard":      "wretch",
	"crap":         "junk",
	"piss":         "leak",
	"dick":         "[static]",
	"prick":        "[static]",
	"christ":       "stars",
	"jesus christ": "stars above",
}

var (
	speakerPrefix = regexp.MustCompile(`^\s*\**([A-Za-z][A-Za-z0-9 ._-]{0,30})\**\s*:\s*`)
	spaces        = regexp.MustCompile(`[ \t]+`)
	blankLines    = regexp.MustCompile(`\n{3,}`)
)

// Sanitizer cleans model output before it reaches the player.
type Sanitizer struct {
	rating string
	words  *regexp.Regexp
}

// New returns a sanitizer for the given content rating. Ratings at or below
// PG13 have profanity replaced; R leaves wording alone.
func New(rating string) *Sanitizer {
	keys := make([]string, 0, len(replacements))
	for k := range replacements {
		keys = append(keys, regexp.QuoteMeta(k))
	}
	// Longest first so "motherfucker" wins over "fuck".
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })

	return &Sanitizer{
		rating: NormalizeRating(rating),
		words:  regexp.MustCompile(`(?i)\b(` + strings.Join(keys, "|") + `)\b`),
	}
}

// Rating returns the normalized rating.
func (s *Sanitizer) Rating() string {
	return s.rating
}

// Clean trims a model reply: it drops a leading "SPEAKER:" echo of the
// given speaker, unwraps quotes around the whole reply, collapses runs of
// spaces and applies the profanity filter when the rating calls for it.
func (s *Sanitizer) Clean(text, speaker string) string {
	out := strings.TrimSpace(text)
	if speaker != "" {
		if m := speakerPrefix.FindStringSubmatch(out); m != nil && strings.EqualFold(strings.TrimSpace(m[1]), speaker) {
			out = strings.TrimSpace(out[len(m[0]):])
		}
	}
	out = unquote(out)
	out = spaces.ReplaceAllString(out, " ")
	out = blankLines.ReplaceAllString(out, "\n\n")
	if ShouldFilterContent(s.rating) {
		out = s.Filter(out)
	}
	return strings.TrimSpace(out)
}

// Filter replaces filtered words regardless of rating.
func (s *Sanitizer) Filter(text string) string {
	return s.words.ReplaceAllStringFunc(text, func(match string) string {
		return matchCase(match, replacements[strings.ToLower(match)])
	})
}

// ContainsProfanity reports whether any filtered word appears in text.
func (s *Sanitizer) ContainsProfanity(text string) bool {
	return s.words.MatchString(text)
}

// Casers carry state, so each call gets its own.
func matchCase(original, replacement string) string {
	upper := cases.Upper(language.English)
	title := cases.Title(language.English)
	switch {
	case strings.HasPrefix(replacement, "["):
		return replacement
	case upper.String(original) == original:
		return upper.String(replacement)
	case strings.ToLower(original) == original:
		return replacement
	case title.String(strings.ToLower(original)) == original:
		return title.String(replacement)
	}
	r := []rune(replacement)
	for i, o := range []rune(original) {
		if i >= len(r) {
			break
		}
		if unicode.IsUpper(o) {
			r[i] = unicode.ToUpper(r[i])
		}
	}
	return string(r)
}

func unquote(s string) string {
	pairs := [][2]string{{`"`, `"`}, {"“", "”"}, {"'", "'"}}
	for _, p := range pairs {
		if len(s) >= len(p[0])+len(p[1]) && strings.HasPrefix(s, p[0]) && strings.HasSuffix(s, p[1]) {
			inner := s[len(p[0]) : len(s)-len(p[1])]
			// Leave replies that quote more than once alone.
			if !strings.Contains(inner, p[0]) && !strings.Contains(inner, p[1]) {
				return strings.TrimSpace(inner)
			}
		}
	}
	return s
}

// NormalizeRating maps loose spellings onto the known ratings. Unknown
// ratings fall back to PG13.
func NormalizeRating(rating string) string {
	r := strings.ToUpper(strings.TrimSpace(rating))
	r = strings.ReplaceAll(r, "-", "")
	switch r {
	case RatingG, RatingPG, RatingPG13, RatingR:
		return r
	default:
		return RatingPG13
	}
}

// ShouldFilterContent reports whether a rating requires the word filter.
func ShouldFilterContent(rating string) bool {
	return NormalizeRating(rating) != RatingR
}
