package choreo

import (
	"regexp"
	"strings"
	"unicode"
)

var groupingRe = regexp.MustCompile(`[()]`)

// inverseRule rewrites one surface form of an inverted symbol.
type inverseRule struct {
	name string
	re   *regexp.Regexp
	to   string
}

// inverseRules holds the rewrite passes per mode, in priority order.
var inverseRules = map[Mode][]inverseRule{}

func init() {
	for mode, a := range alphabets {
		inverseRules[mode] = buildInverseRules(a)
	}
}

// buildInverseRules rewrites the inverse of the generator to the inverse
// symbol first, then the inverse of the inverse symbol back to the
// generator, so "a⁻¹⁻¹" reads as "a".
func buildInverseRules(a Alphabet) []inverseRule {
	flags := ""
	if a.FoldCase {
		flags = "(?i)"
	}
	notations := func(sym rune, to rune) []inverseRule {
		q := regexp.QuoteMeta(string(sym))
		return []inverseRule{
			{name: "unicode", re: regexp.MustCompile(flags + q + `[⁻−-]\s*[¹1]`), to: string(to)},
			{name: "latex-braced", re: regexp.MustCompile(flags + q + `\^\{-1\}`), to: string(to)},
			{name: "latex", re: regexp.MustCompile(flags + q + `\^-1`), to: string(to)},
		}
	}

	rules := notations(a.Forward, a.Inverse)
	if !a.FoldCase {
		upper := unicode.ToUpper(a.Forward)
		if upper != a.Forward {
			rules = append(rules, inverseRule{
				name: "shorthand",
				re:   regexp.MustCompile(regexp.QuoteMeta(string(upper))),
				to:   string(a.Inverse),
			})
		}
	}
	return append(rules, notations(a.Inverse, a.Forward)...)
}

// Normalize converts a raw animate payload into canonical moves of the
// given mode. The inverse notations (a⁻¹, a^{-1}, a^-1 and, in the
// algebraic mode, A) map the generator to the inverse symbol, and the same
// notations on the inverse symbol map back to the generator. Characters
// outside the alphabet are dropped. An unknown mode yields no moves.
func Normalize(payload string, mode Mode) []Move {
	a, ok := alphabets[mode]
	if !ok || payload == "" {
		return nil
	}

	parsed := groupingRe.ReplaceAllString(payload, "")
	for _, rule := range inverseRules[mode] {
		parsed = rule.re.ReplaceAllLiteralString(parsed, rule.to)
	}

	var moves []Move
	for _, r := range parsed {
		if m, ok := a.Lookup(r); ok {
			moves = append(moves, m)
		}
	}
	return moves
}

// ContainsReflect reports whether any move is a reflection.
func ContainsReflect(moves []Move) bool {
	for _, m := range moves {
		if m.Kind == KindReflect {
			return true
		}
	}
	return false
}

// FormatMoves renders moves back in the tutor's notation. In the algebraic
// mode the inverse step is written "a⁻¹".
func FormatMoves(moves []Move, mode Mode) string {
	a, ok := alphabets[mode]
	if !ok {
		return Symbols(moves)
	}
	var b strings.Builder
	for _, m := range moves {
		if m.Kind == KindInverse && !a.FoldCase {
			b.WriteRune(a.Forward)
			b.WriteString("⁻¹")
			continue
		}
		b.WriteString(m.Symbol)
	}
	return b.String()
}
