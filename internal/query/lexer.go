package query

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind uint8

const (
	tkEOF tokenKind = iota
	tkIdent
	tkString
	tkNumber
	tkLParen
	tkRParen
	tkLBrack
	tkRBrack
)

type token struct {
	kind tokenKind
	text string // identifier or number text, unquoted string value
	pos  int    // byte offset in the clause
	end  int
}

// lex splits a filter clause into tokens. Errors carry the byte offset of
// the offending character.
func lex(src string) ([]token, *ParseError) {
	var out []token
	i := 0
	for i < len(src) {
		r, w := utf8.DecodeRuneInString(src[i:])
		switch {
		case unicode.IsSpace(r):
			i += w
		case r == '(':
			out = append(out, token{kind: tkLParen, text: "(", pos: i, end: i + 1})
			i++
		case r == ')':
			out = append(out, token{kind: tkRParen, text: ")", pos: i, end: i + 1})
			i++
		case r == '[':
			out = append(out, token{kind: tkLBrack, text: "[", pos: i, end: i + 1})
			i++
		case r == ']':
			out = append(out, token{kind: tkRBrack, text: "]", pos: i, end: i + 1})
			i++
		case r == '\'':
			s, end, ok := lexString(src, i)
			if !ok {
				return nil, &ParseError{Offset: i, Fragment: src[i:], Msg: "unterminated string literal"}
			}
			out = append(out, token{kind: tkString, text: s, pos: i, end: end})
			i = end
		case r == '-' || r == '.' || isDigit(r):
			end := lexNumber(src, i)
			if end == i {
				return nil, &ParseError{Offset: i, Fragment: src[i:min(i+w, len(src))], Msg: "invalid number"}
			}
			out = append(out, token{kind: tkNumber, text: src[i:end], pos: i, end: end})
			i = end
		case isIdentStart(r):
			end := i + w
			for end < len(src) {
				r2, w2 := utf8.DecodeRuneInString(src[end:])
				if !isIdentPart(r2) {
					break
				}
				end += w2
			}
			out = append(out, token{kind: tkIdent, text: src[i:end], pos: i, end: end})
			i = end
		default:
			return nil, &ParseError{Offset: i, Fragment: string(r), Msg: "unexpected character"}
		}
	}
	out = append(out, token{kind: tkEOF, pos: len(src), end: len(src)})
	return out, nil
}

// lexString reads a single-quoted literal starting at start. A doubled
// quote stands for one quote character.
func lexString(src string, start int) (string, int, bool) {
	var b strings.Builder
	i := start + 1
	for i < len(src) {
		if src[i] == '\'' {
			if i+1 < len(src) && src[i+1] == '\'' {
				b.WriteByte('\'')
				i += 2
				continue
			}
			return b.String(), i + 1, true
		}
		b.WriteByte(src[i])
		i++
	}
	return "", 0, false
}

// lexNumber returns the end of a number of the form -?digits[.digits][e[+-]digits].
func lexNumber(src string, start int) int {
	i := start
	if i < len(src) && src[i] == '-' {
		i++
	}
	digits := 0
	for i < len(src) && isDigit(rune(src[i])) {
		i++
		digits++
	}
	if i < len(src) && src[i] == '.' {
		i++
		for i < len(src) && isDigit(rune(src[i])) {
			i++
			digits++
		}
	}
	if digits == 0 {
		return start
	}
	if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
		j := i + 1
		if j < len(src) && (src[j] == '+' || src[j] == '-') {
			j++
		}
		k := j
		for k < len(src) && isDigit(rune(src[k])) {
			k++
		}
		if k > j {
			i = k
		}
	}
	return i
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isIdentStart(r rune) bool { return r == '_' || unicode.IsLetter(r) }

func isIdentPart(r rune) bool {
	return r == '_' || r == '-' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
