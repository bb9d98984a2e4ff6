package sqltype

import (
	"github.com/cockroachdb/apd/v3"
	"github.com/vmihailenco/msgpack/v5"
)

// Decimal is an arbitrary-precision numeric value. It encodes as a bare JSON
// number so that wal2json output keeps the source precision. NaN and the
// infinities have no JSON number form and encode as strings.
type Decimal struct {
	apd.Decimal
}

// MustDecimal parses s and panics on malformed input. Intended for tests and constants.
func MustDecimal(s string) Decimal {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return Decimal{Decimal: *d}
}

func (d Decimal) String() string {
	return d.Decimal.String()
}

func (d Decimal) MarshalJSON() ([]byte, error) {
	if d.Form != apd.Finite {
		return []byte(`"` + d.Decimal.String() + `"`), nil
	}
	return []byte(d.Decimal.String()), nil
}

func (d *Decimal) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	_, _, err := d.Decimal.SetString(s)
	return err
}

// EncodeMsgpack writes the decimal as its text form; msgpack has no decimal type.
func (d Decimal) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeString(d.Decimal.String())
}

func (d *Decimal) DecodeMsgpack(dec *msgpack.Decoder) error {
	s, err := dec.DecodeString()
	if err != nil {
		return err
	}
	_, _, err = d.Decimal.SetString(s)
	return err
}

var (
	_ msgpack.CustomEncoder = Decimal{}
	_ msgpack.CustomDecoder = (*Decimal)(nil)
)
