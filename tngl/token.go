package tngl

// Kind represents the type of token identified by a matcher.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindComment
	KindColor
	KindInfinity
	KindString
	KindTimestamp
	KindLabel
	KindChar
	KindByte
	KindPixels
	KindPercentage
	KindFloat
	KindNumber
	KindArrow
	KindWord
	KindWhitespace
	KindPunctuation
)

var kindNames = [...]string{
	KindUnknown:     "unknown",
	KindComment:     "comment",
	KindColor:       "color",
	KindInfinity:    "infinity",
	KindString:      "string",
	KindTimestamp:   "timestamp",
	KindLabel:       "label",
	KindChar:        "char",
	KindByte:        "byte",
	KindPixels:      "pixels",
	KindPercentage:  "percentage",
	KindFloat:       "float",
	KindNumber:      "number",
	KindArrow:       "arrow",
	KindWord:        "word",
	KindWhitespace:  "whitespace",
	KindPunctuation: "punctuation",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}

// Token is a lexical unit with its position in the source.
// Captures holds the sub-parts a matcher extracted (hex pairs of a color,
// the name of a label, the terms of a compound timestamp, ...).
type Token struct {
	Kind     Kind
	Lexeme   string
	Captures []string
	Offset   int
	Line     int
	Column   int
}
