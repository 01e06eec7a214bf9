package dialect

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokSpace tokenKind = iota
	tokComment
	tokWord
	tokQuoted
	tokString
	tokNumber
	tokPlaceholder
	tokPunct
)

type token struct {
	kind tokenKind
	text string
}

// significant reports whether the token carries meaning for the rewriter.
func (t token) significant() bool {
	return t.kind != tokSpace && t.kind != tokComment
}

// isWord reports whether t is the unquoted keyword or identifier w (case-insensitive).
func (t token) isWord(w string) bool {
	return t.kind == tokWord && strings.EqualFold(t.text, w)
}

// ident returns the identifier text with ANSI quotes removed.
func (t token) ident() string {
	switch t.kind {
	case tokWord:
		return strings.ToLower(t.text)
	case tokQuoted:
		inner := t.text[1 : len(t.text)-1]
		q := t.text[:1]
		return strings.ReplaceAll(inner, q+q, q)
	}
	return ""
}

// lex splits a statement into tokens. Concatenating the text of every token
// reproduces the input exactly.
func lex(sql string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(sql) {
		c := sql[i]
		start := i
		switch {
		case isSpace(c):
			for i < len(sql) && isSpace(sql[i]) {
				i++
			}
			toks = append(toks, token{tokSpace, sql[start:i]})

		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
			toks = append(toks, token{tokComment, sql[start:i]})

		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				return nil, fmt.Errorf("unterminated block comment at offset %d", start)
			}
			i += end + 4
			toks = append(toks, token{tokComment, sql[start:i]})

		case c == '\'' || c == '"' || c == '`':
			end, ok := scanQuoted(sql, i, c)
			if !ok {
				return nil, fmt.Errorf("unterminated quoted text at offset %d", start)
			}
			i = end
			kind := tokQuoted
			if c == '\'' {
				kind = tokString
			}
			toks = append(toks, token{kind, sql[start:i]})

		case c == '?':
			i++
			toks = append(toks, token{tokPlaceholder, "?"})

		case isWordStart(c):
			for i < len(sql) && isWordPart(sql[i]) {
				i++
			}
			toks = append(toks, token{tokWord, sql[start:i]})

		case c >= '0' && c <= '9':
			for i < len(sql) && (sql[i] >= '0' && sql[i] <= '9' || sql[i] == '.') {
				i++
			}
			toks = append(toks, token{tokNumber, sql[start:i]})

		default:
			i++
			toks = append(toks, token{tokPunct, sql[start:i]})
		}
	}
	return toks, nil
}

// scanQuoted returns the offset just past the closing quote. A doubled quote
// character inside the literal is an escaped quote.
func scanQuoted(sql string, i int, q byte) (int, bool) {
	i++
	for i < len(sql) {
		if sql[i] == q {
			if i+1 < len(sql) && sql[i+1] == q {
				i += 2
				continue
			}
			return i + 1, true
		}
		i++
	}
	return i, false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

func isWordStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

func isWordPart(c byte) bool {
	return isWordStart(c) || c >= '0' && c <= '9' || c == '$'
}

func join(toks []token) string {
	var b strings.Builder
	for _, t := range toks {
		b.WriteString(t.text)
	}
	return b.String()
}

// nextSignificant returns the index of the first significant token at or after i,
// or -1.
func nextSignificant(toks []token, i int) int {
	for ; i < len(toks); i++ {
		if toks[i].significant() {
			return i
		}
	}
	return -1
}

// lastSignificant returns the index of the last significant token that is not a
// statement terminator, or -1.
func lastSignificant(toks []token) int {
	for i := len(toks) - 1; i >= 0; i-- {
		if toks[i].significant() && toks[i].text != ";" {
			return i
		}
	}
	return -1
}
