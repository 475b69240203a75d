package choreo

import "strings"

// Mode selects the canonical alphabet used to read animate payloads.
type Mode string

const (
	ModeAlgebraic       Mode = "algebraic"
	ModeNumberLine      Mode = "number-line"
	ModeNumberLineBasic Mode = "number-line-basic"
)

// MoveKind is the semantic role of a move symbol.
type MoveKind string

const (
	KindStep    MoveKind = "step"
	KindInverse MoveKind = "inverse"
	KindReflect MoveKind = "reflect"
)

// Move is one canonical move symbol together with its role.
type Move struct {
	Kind   MoveKind `json:"kind"   yaml:"kind"`
	Symbol string   `json:"symbol" yaml:"symbol"`
}

func (m Move) String() string { return m.Symbol }

// Alphabet is the closed set of move symbols valid for a mode.
type Alphabet struct {
	Forward rune
	Inverse rune
	// Reflect is zero when the mode has no reflection.
	Reflect rune
	// FoldCase makes symbol matching case-insensitive.
	FoldCase bool
}

var alphabets = map[Mode]Alphabet{
	ModeAlgebraic:       {Forward: 'a', Inverse: 'b', Reflect: 's'},
	ModeNumberLine:      {Forward: 'L', Inverse: 'R', Reflect: 'S', FoldCase: true},
	ModeNumberLineBasic: {Forward: 'L', Inverse: 'R', FoldCase: true},
}

// AlphabetFor returns the alphabet of a mode.
func AlphabetFor(mode Mode) (Alphabet, bool) {
	a, ok := alphabets[mode]
	return a, ok
}

// Valid reports whether mode is one of the known teaching modes.
func (mode Mode) Valid() bool {
	_, ok := alphabets[mode]
	return ok
}

// Modes lists the known teaching modes.
func Modes() []Mode {
	return []Mode{ModeAlgebraic, ModeNumberLine, ModeNumberLineBasic}
}

// HasReflect reports whether the alphabet contains a reflect symbol.
func (a Alphabet) HasReflect() bool { return a.Reflect != 0 }

// Lookup maps a single input rune onto a move of this alphabet.
// The algebraic alphabet also accepts an upper-case reflect symbol.
func (a Alphabet) Lookup(r rune) (Move, bool) {
	match := func(sym rune) bool {
		if sym == 0 {
			return false
		}
		if r == sym {
			return true
		}
		if a.FoldCase {
			return strings.EqualFold(string(r), string(sym))
		}
		return false
	}

	switch {
	case match(a.Forward):
		return Move{Kind: KindStep, Symbol: string(a.Forward)}, true
	case match(a.Inverse):
		return Move{Kind: KindInverse, Symbol: string(a.Inverse)}, true
	case match(a.Reflect):
		return Move{Kind: KindReflect, Symbol: string(a.Reflect)}, true
	case a.Reflect != 0 && strings.EqualFold(string(r), string(a.Reflect)):
		return Move{Kind: KindReflect, Symbol: string(a.Reflect)}, true
	}
	return Move{}, false
}

// Symbols joins the symbols of moves into one string, e.g. "aaabb".
func Symbols(moves []Move) string {
	var b strings.Builder
	for _, m := range moves {
		b.WriteString(m.Symbol)
	}
	return b.String()
}
