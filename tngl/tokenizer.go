package tngl

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MatchFunc reports the length of a match anchored at src[pos:] (0 for no match)
// and the sub-parts it captured.
type MatchFunc func(src string, pos int) (n int, captures []string)

// Matcher is a named pattern tried by Tokenize.
type Matcher struct {
	Kind  Kind
	Match MatchFunc
}

// Tokenize splits src into tokens covering the whole input.
//
// At every step the match starting closest to the current position wins; when
// several matchers start at the same offset, the one declared first wins. The
// winner is not necessarily the longest match, so matchers must be ordered from
// most to least specific. Text skipped over before the winning match is
// emitted as a KindUnknown token.
func Tokenize(src string, matchers []Matcher) []Token {
	var (
		tokens []Token
		pos    int
		cur    = cursor{line: 1, column: 1}
	)
	for pos < len(src) {
		start, m, n, captures := leftmost(src, pos, matchers)
		if start > pos {
			tokens = append(tokens, cur.token(KindUnknown, src[pos:start], nil, pos))
		}
		if m == nil {
			break
		}
		tokens = append(tokens, cur.token(m.Kind, src[start:start+n], captures, start))
		pos = start + n
	}
	return tokens
}

func leftmost(src string, pos int, matchers []Matcher) (int, *Matcher, int, []string) {
	for p := pos; p < len(src); p++ {
		for i := range matchers {
			if n, captures := matchers[i].Match(src, p); n > 0 {
				return p, &matchers[i], n, captures
			}
		}
	}
	return len(src), nil, 0, nil
}

// cursor tracks line and column while tokens are emitted in source order.
type cursor struct {
	line, column int
}

func (c *cursor) token(kind Kind, lexeme string, captures []string, offset int) Token {
	t := Token{Kind: kind, Lexeme: lexeme, Captures: captures, Offset: offset, Line: c.line, Column: c.column}
	for _, r := range lexeme {
		if r == '\n' {
			c.line++
			c.column = 1
		} else {
			c.column++
		}
	}
	return t
}

// DefaultMatchers returns the TNGL grammar, most specific pattern first.
// A compound timestamp must be tried before a bare number, a pixel count
// before a number, and so on.
func DefaultMatchers() []Matcher {
	return []Matcher{
		{KindComment, matchComment},
		{KindColor, matchColor},
		{KindInfinity, matchInfinity},
		{KindString, matchString},
		{KindTimestamp, matchTimestamp},
		{KindLabel, matchLabel},
		{KindChar, matchChar},
		{KindByte, matchByte},
		{KindPixels, matchPixels},
		{KindPercentage, matchPercentage},
		{KindFloat, matchFloat},
		{KindNumber, matchNumber},
		{KindArrow, matchArrow},
		{KindWord, matchWord},
		{KindWhitespace, matchWhitespace},
		{KindPunctuation, matchPunctuation},
	}
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isHex(ch byte) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

func isAlpha(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isWordChar(ch byte) bool {
	return isAlpha(ch) || isDigit(ch)
}

func at(src string, i int) byte {
	if i >= len(src) {
		return 0
	}
	return src[i]
}

func digits(src string, i int) int {
	j := i
	for j < len(src) && isDigit(src[j]) {
		j++
	}
	return j - i
}

func sign(src string, i int) int {
	if c := at(src, i); c == '+' || c == '-' {
		return 1
	}
	return 0
}

// "//" to end of line, or "/* ... */" (unterminated runs to end of input).
func matchComment(src string, pos int) (int, []string) {
	if !strings.HasPrefix(src[pos:], "/") {
		return 0, nil
	}
	switch at(src, pos+1) {
	case '/':
		end := strings.IndexByte(src[pos:], '\n')
		if end < 0 {
			end = len(src) - pos
		}
		return end, nil
	case '*':
		end := strings.Index(src[pos+2:], "*/")
		if end < 0 {
			return len(src) - pos, nil
		}
		return end + 4, nil
	}
	return 0, nil
}

// #rrggbb, case-insensitive.
func matchColor(src string, pos int) (int, []string) {
	if src[pos] != '#' || pos+7 > len(src) {
		return 0, nil
	}
	for i := pos + 1; i < pos+7; i++ {
		if !isHex(src[i]) {
			return 0, nil
		}
	}
	return 7, []string{src[pos+1 : pos+3], src[pos+3 : pos+5], src[pos+5 : pos+7]}
}

// [+-]?Infinity not followed by a word character.
func matchInfinity(src string, pos int) (int, []string) {
	s := sign(src, pos)
	end := pos + s + len("Infinity")
	if strings.HasPrefix(src[pos+s:], "Infinity") && !isWordChar(at(src, end)) {
		return s + len("Infinity"), nil
	}
	return 0, nil
}

// "..." on a single line.
func matchString(src string, pos int) (int, []string) {
	if src[pos] != '"' {
		return 0, nil
	}
	for i := pos + 1; i < len(src); i++ {
		switch src[i] {
		case '"':
			return i - pos + 1, []string{src[pos+1 : i]}
		case '\n':
			return 0, nil
		}
	}
	return 0, nil
}

// One or more terms of _?[+-]?[0-9]*.?[0-9]+(d|h|m|s|t|ms). "ms" is preferred
// over "m" only when the 'm' is directly followed by 's'.
func matchTimestamp(src string, pos int) (int, []string) {
	var terms []string
	i := pos
	for {
		n := timestampTerm(src, i)
		if n == 0 {
			break
		}
		terms = append(terms, src[i:i+n])
		i += n
	}
	return i - pos, terms
}

func timestampTerm(src string, i int) int {
	j := i
	if at(src, j) == '_' {
		j++
	}
	j += sign(src, j)
	whole := digits(src, j)
	j += whole
	if at(src, j) == '.' && isDigit(at(src, j+1)) {
		j++
		j += digits(src, j)
	} else if whole == 0 {
		return 0
	}
	switch at(src, j) {
	case 'd', 'h', 's', 't':
		return j + 1 - i
	case 'm':
		if at(src, j+1) == 's' {
			return j + 2 - i
		}
		return j + 1 - i
	}
	return 0
}

// $name
func matchLabel(src string, pos int) (int, []string) {
	if src[pos] != '$' {
		return 0, nil
	}
	j := pos + 1
	for j < len(src) && isWordChar(src[j]) {
		j++
	}
	return j - pos, []string{src[pos+1 : j]}
}

// -?'c' where c is any single character.
func matchChar(src string, pos int) (int, []string) {
	neg := ""
	j := pos
	if src[j] == '-' {
		neg = "-"
		j++
	}
	if at(src, j) != '\'' || j+1 >= len(src) {
		return 0, nil
	}
	_, size := utf8.DecodeRuneInString(src[j+1:])
	if at(src, j+1+size) != '\'' {
		return 0, nil
	}
	return j + size + 2 - pos, []string{neg, src[j+1 : j+1+size]}
}

// 0xHH
func matchByte(src string, pos int) (int, []string) {
	if src[pos] != '0' || (at(src, pos+1) != 'x' && at(src, pos+1) != 'X') {
		return 0, nil
	}
	if !isHex(at(src, pos+2)) || !isHex(at(src, pos+3)) {
		return 0, nil
	}
	return 4, []string{src[pos+2 : pos+4]}
}

// [+-]?[0-9]+px
func matchPixels(src string, pos int) (int, []string) {
	s := sign(src, pos)
	d := digits(src, pos+s)
	if d == 0 || !strings.HasPrefix(src[pos+s+d:], "px") {
		return 0, nil
	}
	return s + d + 2, []string{src[pos : pos+s+d]}
}

// [+-]?[0-9.]+%
func matchPercentage(src string, pos int) (int, []string) {
	s := sign(src, pos)
	j := pos + s
	for j < len(src) && (isDigit(src[j]) || src[j] == '.') {
		j++
	}
	if j == pos+s || at(src, j) != '%' {
		return 0, nil
	}
	return j + 1 - pos, []string{src[pos:j]}
}

// [+-]?[0-9]*.[0-9]+
func matchFloat(src string, pos int) (int, []string) {
	s := sign(src, pos)
	j := pos + s
	j += digits(src, j)
	if at(src, j) != '.' {
		return 0, nil
	}
	frac := digits(src, j+1)
	if frac == 0 {
		return 0, nil
	}
	return j + 1 + frac - pos, nil
}

// [+-]?[0-9]+
func matchNumber(src string, pos int) (int, []string) {
	s := sign(src, pos)
	d := digits(src, pos+s)
	if d == 0 {
		return 0, nil
	}
	return s + d, nil
}

func matchArrow(src string, pos int) (int, []string) {
	if strings.HasPrefix(src[pos:], "->") {
		return 2, nil
	}
	return 0, nil
}

// [A-Za-z_][A-Za-z0-9_]*
func matchWord(src string, pos int) (int, []string) {
	if !isAlpha(src[pos]) {
		return 0, nil
	}
	j := pos + 1
	for j < len(src) && isWordChar(src[j]) {
		j++
	}
	return j - pos, nil
}

func matchWhitespace(src string, pos int) (int, []string) {
	j := pos
	for j < len(src) {
		r, size := utf8.DecodeRuneInString(src[j:])
		if !unicode.IsSpace(r) {
			break
		}
		j += size
	}
	return j - pos, nil
}

// Any single character that is neither a word character nor whitespace.
func matchPunctuation(src string, pos int) (int, []string) {
	if isWordChar(src[pos]) {
		return 0, nil
	}
	r, size := utf8.DecodeRuneInString(src[pos:])
	if unicode.IsSpace(r) {
		return 0, nil
	}
	return size, nil
}
