package testdecoding

import (
	"strings"
)

const (
	beginKeyword  = "BEGIN"
	commitKeyword = "COMMIT"
	tablePrefix   = "table "
	oldKeyMarker  = "old-key:"
	newTupleMark  = "new-tuple:"
	noTupleData   = "(no-tuple-data)"
)

// Tokenize splits one test_decoding line into tokens.
//
//	BEGIN 15228819
//	COMMIT 15228819 (at 2016-03-29 08:25:43.3+02)
//	table tmp.t: INSERT: a[integer]:1 b[text]:'x'
//	table tmp.t: UPDATE: old-key: a[integer]:1 new-tuple: a[integer]:2
//	table tmp.t: DELETE: a[integer]:1
func Tokenize(line string) ([]Token, error) {
	line = strings.TrimRight(line, "\r\n")
	switch {
	case hasKeyword(line, beginKeyword):
		return tokenizeTx(TokBegin, beginKeyword, line[len(beginKeyword):])
	case hasKeyword(line, commitKeyword):
		return tokenizeTx(TokCommit, commitKeyword, line[len(commitKeyword):])
	case strings.HasPrefix(line, tablePrefix):
		s := &scanner{src: line, pos: len(tablePrefix)}
		return s.dml()
	default:
		return nil, malformedf("unrecognized line")
	}
}

func hasKeyword(line, kw string) bool {
	return strings.HasPrefix(line, kw) && (len(line) == len(kw) || line[len(kw)] == ' ')
}

// tokenizeTx handles the tail of a BEGIN or COMMIT line: an optional xid and
// an optional "(at <timestamp>)" suffix.
func tokenizeTx(kind TokenKind, keyword, rest string) ([]Token, error) {
	tokens := []Token{{Kind: kind, Text: keyword}}
	rest = strings.TrimSpace(rest)

	if rest != "" && rest[0] != '(' {
		end := strings.IndexByte(rest, ' ')
		if end < 0 {
			end = len(rest)
		}
		tokens = append(tokens, Token{Kind: TokTxID, Text: rest[:end]})
		rest = strings.TrimSpace(rest[end:])
	}

	if rest != "" {
		if !strings.HasPrefix(rest, "(at ") || !strings.HasSuffix(rest, ")") {
			return nil, malformedf("unexpected %q after transaction id", rest)
		}
		tokens = append(tokens, Token{Kind: TokTimestamp, Text: rest[len("(at ") : len(rest)-1]})
	}
	return tokens, nil
}

type scanner struct {
	src string
	pos int
}

func (s *scanner) eof() bool { return s.pos >= len(s.src) }

func (s *scanner) rest() string { return s.src[s.pos:] }

func (s *scanner) skipSpaces() {
	for !s.eof() && s.src[s.pos] == ' ' {
		s.pos++
	}
}

func (s *scanner) consume(prefix string) bool {
	if strings.HasPrefix(s.rest(), prefix) {
		s.pos += len(prefix)
		return true
	}
	return false
}

func (s *scanner) dml() ([]Token, error) {
	schema, err := s.ident(".")
	if err != nil {
		return nil, err
	}
	if !s.consume(".") {
		return nil, malformedf("missing schema separator at offset %d", s.pos)
	}
	table, err := s.ident(":")
	if err != nil {
		return nil, err
	}
	if !s.consume(": ") {
		return nil, malformedf("missing ': ' after table name at offset %d", s.pos)
	}

	end := strings.Index(s.rest(), ":")
	if end < 0 {
		return nil, malformedf("missing operation")
	}
	op := s.rest()[:end]
	s.pos += end + 1

	tokens := []Token{
		{Kind: TokSchema, Text: unquoteIdent(schema)},
		{Kind: TokTable, Text: unquoteIdent(table)},
		{Kind: TokOperation, Text: op},
	}

	for {
		s.skipSpaces()
		if s.eof() {
			return tokens, nil
		}
		switch {
		case s.consume(oldKeyMarker):
			tokens = append(tokens, Token{Kind: TokOldKey})
		case s.consume(newTupleMark):
			tokens = append(tokens, Token{Kind: TokNewTuple})
		case s.consume(noTupleData):
		default:
			col, err := s.column()
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, col...)
		}
	}
}

// ident reads a possibly double-quoted identifier up to stop.
func (s *scanner) ident(stop string) (string, error) {
	start := s.pos
	if !s.eof() && s.src[s.pos] == '"' {
		if err := s.skipQuoted('"'); err != nil {
			return "", err
		}
		return s.src[start:s.pos], nil
	}
	end := strings.Index(s.rest(), stop)
	if end <= 0 {
		return "", malformedf("missing identifier at offset %d", start)
	}
	s.pos += end
	return s.src[start:s.pos], nil
}

// skipQuoted advances past a quoted run, treating a doubled quote as an escape.
func (s *scanner) skipQuoted(q byte) error {
	start := s.pos
	s.pos++
	for !s.eof() {
		if s.src[s.pos] == q {
			if s.pos+1 < len(s.src) && s.src[s.pos+1] == q {
				s.pos += 2
				continue
			}
			s.pos++
			return nil
		}
		s.pos++
	}
	return malformedf("unterminated quote starting at offset %d", start)
}

// column reads name[type]:value.
func (s *scanner) column() ([]Token, error) {
	name, err := s.ident("[")
	if err != nil {
		return nil, err
	}
	if !s.consume("[") {
		return nil, malformedf("missing type for column %s", name)
	}

	typeStart := s.pos
	depth := 1
	for !s.eof() && depth > 0 {
		switch s.src[s.pos] {
		case '[':
			depth++
		case ']':
			depth--
		}
		s.pos++
	}
	if depth != 0 {
		return nil, malformedf("unterminated type for column %s", name)
	}
	typeDef := s.src[typeStart : s.pos-1]

	if !s.consume(":") {
		return nil, malformedf("missing value for column %s", name)
	}

	tokens := []Token{
		{Kind: TokColumnName, Text: unquoteIdent(name)},
		{Kind: TokTypeDef, Text: typeDef},
	}

	valueStart := s.pos
	if !s.eof() && s.src[s.pos] == '\'' {
		if err := s.skipQuoted('\''); err != nil {
			return nil, err
		}
		return append(tokens, Token{Kind: TokQuotedValue, Text: s.src[valueStart:s.pos]}), nil
	}
	for !s.eof() && s.src[s.pos] != ' ' {
		s.pos++
	}
	return append(tokens, Token{Kind: TokValue, Text: s.src[valueStart:s.pos]}), nil
}
