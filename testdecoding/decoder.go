package testdecoding

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/web3tea/pgcdc-sentinel/sqltype"
	"github.com/web3tea/pgcdc-sentinel/wal2json"
)

// Decoder turns a stream of test_decoding lines into committed transactions.
//
// A Decoder holds the transaction being assembled and must see the lines of a
// single replication stream in source order. It is not safe for concurrent use.
type Decoder struct {
	change   *wal2json.Change
	beginXid *uint32
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// InTransaction reports whether a BEGIN has been seen without its COMMIT.
func (d *Decoder) InTransaction() bool {
	return d.change != nil
}

// Reset discards the transaction in flight, if any.
func (d *Decoder) Reset() {
	d.change = nil
	d.beginXid = nil
}

// Decode consumes one line. It returns the finished Change when the line is a
// COMMIT and nil otherwise. A failed line discards the transaction in flight.
func (d *Decoder) Decode(line string) (*wal2json.Change, error) {
	tokens, err := Tokenize(line)
	if err != nil {
		d.Reset()
		return nil, &LineError{Line: line, Err: err}
	}
	change, err := d.Feed(tokens)
	if err != nil {
		return nil, &LineError{Line: line, Err: err}
	}
	return change, nil
}

// lineState is the scratch space for one line. The column fields are
// overwritten per column and read when the column value arrives.
type lineState struct {
	kind      TokenKind
	xid       *uint32
	timestamp string

	schema  string
	table   string
	event   *wal2json.ChangeEvent
	oldKeys bool

	columnName string
	columnType string
}

// Feed consumes the tokens of one line.
func (d *Decoder) Feed(tokens []Token) (*wal2json.Change, error) {
	var st lineState
	var nested error

	for _, tok := range tokens {
		if err := d.apply(&st, tok, &nested); err != nil {
			d.Reset()
			return nil, err
		}
	}

	switch st.kind {
	case TokBegin:
		d.beginXid = st.xid
		return nil, nested
	case TokCommit:
		return d.commit(&st)
	case TokOperation:
		if err := st.event.Validate(); err != nil {
			d.Reset()
			return nil, errors.Mark(err, ErrMalformedLine)
		}
		d.change.Events = append(d.change.Events, st.event)
		return nil, nil
	default:
		d.Reset()
		return nil, malformedf("line has no transaction or operation token")
	}
}

func (d *Decoder) apply(st *lineState, tok Token, nested *error) error {
	switch tok.Kind {
	case TokBegin:
		if d.change != nil {
			// the open transaction never committed; drop it and start over
			*nested = errors.Mark(errors.Newf("begin inside open transaction, dropped %d events",
				len(d.change.Events)), ErrMalformedTransaction)
		}
		d.change = &wal2json.Change{Events: []*wal2json.ChangeEvent{}}
		d.beginXid = nil
		st.kind = TokBegin

	case TokCommit:
		if d.change == nil {
			return errors.Mark(errors.New("commit without begin"), ErrMalformedTransaction)
		}
		st.kind = TokCommit

	case TokTxID:
		xid, err := strconv.ParseUint(tok.Text, 10, 32)
		if err != nil {
			return malformedf("transaction id %q: %v", tok.Text, err)
		}
		x := uint32(xid)
		st.xid = &x

	case TokTimestamp:
		st.timestamp = tok.Text

	case TokSchema:
		st.schema = tok.Text

	case TokTable:
		st.table = tok.Text

	case TokOperation:
		if d.change == nil {
			return errors.Mark(errors.Newf("%s on %s.%s outside a transaction", tok.Text, st.schema, st.table),
				ErrMalformedTransaction)
		}
		kind, err := parseKind(tok.Text)
		if err != nil {
			return err
		}
		st.kind = TokOperation
		st.event = &wal2json.ChangeEvent{Kind: kind, Schema: st.schema, Table: st.table}
		st.oldKeys = kind == wal2json.Delete

	case TokOldKey, TokNewTuple:
		if st.event == nil {
			return malformedf("%s marker before operation", tok.Kind)
		}
		st.oldKeys = tok.Kind == TokOldKey

	case TokColumnName:
		st.columnName = tok.Text

	case TokTypeDef:
		st.columnType = sqltype.NormalizeType(tok.Text)

	case TokValue, TokQuotedValue:
		if st.event == nil {
			return malformedf("column %s before operation", st.columnName)
		}
		text := tok.Text
		if tok.Kind == TokQuotedValue {
			text = unquoteValue(text)
		}
		value, err := sqltype.Coerce(st.columnType, &text)
		if err != nil {
			return errors.Wrapf(err, "column %s", st.columnName)
		}
		if st.oldKeys {
			st.event.AppendOldKey(st.columnName, st.columnType, value)
		} else {
			st.event.AppendColumn(st.columnName, st.columnType, value)
		}

	default:
		return malformedf("unexpected token %s", tok)
	}
	return nil
}

func (d *Decoder) commit(st *lineState) (*wal2json.Change, error) {
	xid := st.xid
	if xid == nil {
		xid = d.beginXid
	}
	if xid == nil {
		d.Reset()
		return nil, errors.Mark(errors.New("commit without transaction id"), ErrMalformedTransaction)
	}

	change := d.change
	change.Xid = *xid
	change.Timestamp = st.timestamp
	d.Reset()
	return change, nil
}

func parseKind(op string) (wal2json.Kind, error) {
	switch strings.ToUpper(op) {
	case "INSERT":
		return wal2json.Insert, nil
	case "UPDATE":
		return wal2json.Update, nil
	case "DELETE":
		return wal2json.Delete, nil
	default:
		return "", malformedf("unsupported operation %q", op)
	}
}

// unquoteValue strips the surrounding single quotes and undoes '' escaping.
func unquoteValue(s string) string {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return strings.ReplaceAll(s[1:len(s)-1], "''", "'")
	}
	return s
}
