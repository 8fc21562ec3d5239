// Package tngl compiles TNGL lighting programs into device bytecode.
package tngl

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hashicorp/go-hclog"
	"github.com/ystepanoff/tangle/protocol"
)

// Compound timestamp unit multipliers, in milliseconds.
var timestampUnits = map[string]float64{
	"d":  86400000,
	"h":  3600000,
	"m":  60000,
	"s":  1000,
	"t":  1,
	"ms": 1,
}

// Compiler turns TNGL source into bytecode. It keeps no state between calls
// and is safe for concurrent use.
type Compiler struct {
	logger   hclog.Logger
	matchers []Matcher
	limit    int
}

// NewCompiler returns a compiler logging skipped input to logger (nil discards).
func NewCompiler(logger hclog.Logger) *Compiler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Compiler{
		logger:   logger.Named("compiler"),
		matchers: DefaultMatchers(),
		limit:    protocol.MaxProgramSize,
	}
}

// Compile compiles src with a compiler that discards diagnostics.
func Compile(src string) ([]byte, error) {
	return NewCompiler(nil).Compile(src)
}

// Compile returns FlagTnglBytes, the compiled statements, and the closing
// END_OF_STATEMENT END_OF_TNGL_BYTES pair. Unknown identifiers and
// punctuation are logged and skipped; naked numbers abort compilation.
func (c *Compiler) Compile(src string) ([]byte, error) {
	tokens := Tokenize(src, c.matchers)
	c.logger.Trace("tokenized", "tokens", len(tokens))

	b := NewBuffer(c.limit)
	b.FillUInt8(protocol.FlagTnglBytes)
	for _, tok := range tokens {
		if err := c.compileToken(b, tok); err != nil {
			return nil, &CompileError{Line: tok.Line, Column: tok.Column, Lexeme: tok.Lexeme, Err: err}
		}
		if err := b.Err(); err != nil {
			return nil, &CompileError{Line: tok.Line, Column: tok.Column, Lexeme: tok.Lexeme, Err: err}
		}
	}
	b.FillFlag(EndOfStatement)
	b.FillFlag(EndOfTnglBytes)
	if err := b.Err(); err != nil {
		return nil, err
	}

	c.logger.Debug("compiled", "bytes", b.Len())
	out := make([]byte, b.Len())
	copy(out, b.Bytes())
	return out, nil
}

func (c *Compiler) compileToken(b *Buffer, tok Token) error {
	switch tok.Kind {
	case KindComment, KindWhitespace:
	case KindColor:
		return compileColor(b, tok.Captures)
	case KindInfinity:
		if strings.HasPrefix(tok.Lexeme, "-") {
			b.FillFlag(TimestampMin)
		} else {
			b.FillFlag(TimestampMax)
		}
	case KindString:
		b.FillBytes([]byte(tok.Captures[0]))
		b.FillFlag(None)
	case KindTimestamp:
		return compileTimestamp(b, tok.Captures)
	case KindLabel:
		label := protocol.EncodeLabel(tok.Captures[0])
		b.FillFlag(Label)
		b.FillBytes(label[:])
	case KindChar:
		if len(tok.Captures[1]) != 1 || tok.Captures[1][0] >= utf8.RuneSelf {
			return ErrInvalidLiteral
		}
		v := tok.Captures[1][0]
		if tok.Captures[0] == "-" {
			v = -v
		}
		b.FillUInt8(v)
	case KindByte:
		v, err := strconv.ParseUint(tok.Captures[0], 16, 8)
		if err != nil {
			return ErrInvalidLiteral
		}
		b.FillUInt8(uint8(v))
	case KindPixels:
		n, err := strconv.ParseInt(tok.Captures[0], 10, 64)
		if err != nil {
			n = math.MaxUint16
		}
		b.FillFlag(Pixels)
		b.FillUInt16(uint16(max(0, min(n, math.MaxUint16))))
	case KindPercentage:
		p, err := strconv.ParseFloat(tok.Captures[0], 64)
		if err != nil {
			return ErrInvalidLiteral
		}
		b.FillFlag(Percentage)
		b.FillInt32(protocol.PercentageValue(p))
	case KindFloat, KindNumber:
		return ErrNakedNumber
	case KindArrow:
		c.logger.Trace("arrow ignored", "line", tok.Line, "column", tok.Column)
	case KindWord:
		c.compileWord(b, tok)
	case KindPunctuation:
		c.compilePunctuation(b, tok)
	default:
		c.logger.Warn("unknown input skipped", "text", tok.Lexeme, "line", tok.Line, "column", tok.Column)
	}
	return nil
}

func compileColor(b *Buffer, hex []string) error {
	var rgb [3]byte
	for i, h := range hex {
		v, err := strconv.ParseUint(h, 16, 8)
		if err != nil {
			return ErrInvalidLiteral
		}
		rgb[i] = byte(v)
	}
	switch rgb {
	case [3]byte{0xFF, 0xFF, 0xFF}:
		b.FillFlag(ColorWhite)
	case [3]byte{0x00, 0x00, 0x00}:
		b.FillFlag(ColorBlack)
	default:
		b.FillFlag(Color)
		b.FillBytes(rgb[:])
	}
	return nil
}

// TimestampMillis sums the terms of a compound timestamp such as "1d2h-30m".
func TimestampMillis(terms []string) (float64, error) {
	var total float64
	for _, term := range terms {
		term = strings.TrimPrefix(term, "_")
		unit := strings.TrimLeft(term, "+-.0123456789")
		mult, ok := timestampUnits[unit]
		if !ok {
			return 0, ErrInvalidLiteral
		}
		v, err := strconv.ParseFloat(term[:len(term)-len(unit)], 64)
		if err != nil {
			return 0, ErrInvalidLiteral
		}
		total += v * mult
	}
	return total, nil
}

func compileTimestamp(b *Buffer, terms []string) error {
	total, err := TimestampMillis(terms)
	if err != nil {
		return err
	}
	ms := math.Trunc(total)
	switch {
	case ms == 0:
		b.FillFlag(TimestampZero)
	case ms >= math.MaxInt32:
		b.FillFlag(TimestampMax)
	case ms <= -math.MaxInt32:
		b.FillFlag(TimestampMin)
	default:
		b.FillFlag(Timestamp)
		b.FillInt32(int32(ms))
	}
	return nil
}

func (c *Compiler) compileWord(b *Buffer, tok Token) {
	if op, ok := keywords[tok.Lexeme]; ok {
		b.FillFlag(op)
		return
	}
	if v, ok := constantBytes[tok.Lexeme]; ok {
		b.FillUInt8(v)
		return
	}
	c.logger.Warn("unknown identifier skipped", "word", tok.Lexeme, "line", tok.Line, "column", tok.Column)
}

func (c *Compiler) compilePunctuation(b *Buffer, tok Token) {
	switch tok.Lexeme {
	case "}":
		b.FillFlag(EndOfStatement)
	case "{", "(", ")", ",", ";":
	default:
		c.logger.Warn("unknown punctuation skipped", "char", tok.Lexeme, "line", tok.Line, "column", tok.Column)
	}
}
