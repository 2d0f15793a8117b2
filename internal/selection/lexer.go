package selection

import (
	"strconv"
	"strings"
)

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokNumber
	tokWord
	tokOr
	tokAnd
	tokNot
	tokDash
	tokPlus
	tokLParen
	tokRParen
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of expression"
	case tokNumber:
		return "number"
	case tokWord:
		return "word"
	case tokOr:
		return "','"
	case tokAnd:
		return "'&'"
	case tokNot:
		return "'!'"
	case tokDash:
		return "'-'"
	case tokPlus:
		return "'+'"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	default:
		return "unknown"
	}
}

// token is a lexical unit. start and end are byte offsets into the source.
type token struct {
	kind  tokenKind
	text  string
	value uint64
	start int
	end   int
}

// lex splits src into tokens. Words are lowercased; the operator words
// "and", "or" and "not" become operator tokens.
func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c >= '0' && c <= '9':
			start := i
			for i < len(src) && src[i] >= '0' && src[i] <= '9' {
				i++
			}
			v, err := strconv.ParseUint(src[start:i], 10, 32)
			if err != nil {
				return nil, errorAt(src, start, i, "number too large")
			}
			toks = append(toks, token{kind: tokNumber, text: src[start:i], value: v, start: start, end: i})
		case isLetter(c):
			start := i
			for i < len(src) && isLetter(src[i]) {
				i++
			}
			word := strings.ToLower(src[start:i])
			kind := tokWord
			switch word {
			case "and":
				kind = tokAnd
			case "or":
				kind = tokOr
			case "not":
				kind = tokNot
			}
			toks = append(toks, token{kind: kind, text: word, start: start, end: i})
		default:
			kind, ok := punctuation[c]
			if !ok {
				return nil, errorAt(src, i, i+1, "unexpected character")
			}
			toks = append(toks, token{kind: kind, text: src[i : i+1], start: i, end: i + 1})
			i++
		}
	}
	toks = append(toks, token{kind: tokEOF, start: len(src), end: len(src)})
	return toks, nil
}

var punctuation = map[byte]tokenKind{
	',': tokOr,
	'|': tokOr,
	'&': tokAnd,
	'!': tokNot,
	'-': tokDash,
	'+': tokPlus,
	'(': tokLParen,
	')': tokRParen,
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
