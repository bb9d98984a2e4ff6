// Package testdecoding decodes the textual output of PostgreSQL's test_decoding
// logical decoding plugin into wal2json changes.
//
// A line is first split into typed tokens by Tokenize and then fed to a
// Decoder, which tracks the transaction boundaries across lines.
package testdecoding

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	// ErrMalformedLine is returned when a line does not follow the test_decoding format.
	ErrMalformedLine = errors.New("malformed log line")
	// ErrMalformedTransaction is returned for a commit without begin, a nested
	// begin, or a DML line outside a transaction.
	ErrMalformedTransaction = errors.New("malformed transaction")
)

type TokenKind int

const (
	TokBegin TokenKind = iota + 1
	TokCommit
	TokTxID
	TokTimestamp
	TokSchema
	TokTable
	TokOperation
	TokColumnName
	TokTypeDef
	TokValue
	TokQuotedValue
	TokOldKey
	TokNewTuple
)

var tokenNames = map[TokenKind]string{
	TokBegin:       "tx-begin",
	TokCommit:      "tx-commit",
	TokTxID:        "tx-id",
	TokTimestamp:   "timestamp",
	TokSchema:      "schema",
	TokTable:       "table",
	TokOperation:   "operation",
	TokColumnName:  "column-name",
	TokTypeDef:     "type-def",
	TokValue:       "value",
	TokQuotedValue: "quoted-value",
	TokOldKey:      "old-key",
	TokNewTuple:    "new-tuple",
}

func (k TokenKind) String() string {
	if s, ok := tokenNames[k]; ok {
		return s
	}
	return fmt.Sprintf("token(%d)", int(k))
}

// Token is one lexical element of a log line. Quoted values keep their
// surrounding quotes; the decoder strips them.
type Token struct {
	Kind TokenKind
	Text string
}

func (t Token) String() string {
	return t.Kind.String() + "(" + t.Text + ")"
}

// LineError ties a decode failure to the line that caused it.
type LineError struct {
	Line string
	Err  error
}

func (e *LineError) Error() string {
	line := e.Line
	if len(line) > 120 {
		line = line[:117] + "..."
	}
	return fmt.Sprintf("decode %q: %v", line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

func malformedf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrMalformedLine)
}

func unquoteIdent(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return strings.ReplaceAll(s[1:len(s)-1], `""`, `"`)
	}
	return s
}
