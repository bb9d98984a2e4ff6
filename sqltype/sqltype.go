// Package sqltype coerces textual PostgreSQL values into typed Go values.
//
// Coercion is keyed by a canonical type tag, produced by NormalizeType from the
// type name found in a logical decoding line.
//
// A NULL column, either structurally absent or spelled as the literal text
// "null", is coerced to the empty string. This is a normalization choice and
// not a null type: consumers cannot tell a NULL apart from an empty text value.
package sqltype

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"github.com/cockroachdb/errors"
)

var (
	// ErrUnsupportedType is returned when a canonical type tag has no coercion rule.
	ErrUnsupportedType = errors.New("unsupported sql type")
	// ErrValueFormat is returned when text does not parse as the declared type.
	ErrValueFormat = errors.New("malformed sql value")
)

// Null is the value produced for SQL NULL.
const Null = ""

var typeAliases = map[string]string{
	"timestamp without time zone": "timestamp",
	"timestamp with time zone":    "timestampz",
	"time with time zone":         "timez",
	"time without time zone":      "time",
	"character varying":           "varchar",
	"bit varying":                 "varbit",
	"double precision":            "float8",
}

type kind int

const (
	kindInt32 kind = iota + 1
	kindInt64
	kindFloat32
	kindFloat64
	kindBool
	kindDecimal
	kindString
)

var typeKinds = map[string]kind{
	"int":      kindInt32,
	"integer":  kindInt32,
	"smallint": kindInt32,
	"int2":     kindInt32,
	"int4":     kindInt32,

	"oid":    kindInt64,
	"int8":   kindInt64,
	"bigint": kindInt64,

	"real":   kindFloat32,
	"float4": kindFloat32,

	"money":  kindFloat64,
	"float8": kindFloat64,
	"float":  kindFloat64,

	"bool":    kindBool,
	"bit":     kindBool,
	"boolean": kindBool,

	"numeric": kindDecimal,
	"decimal": kindDecimal,

	"char":        kindString,
	"bpchar":      kindString,
	"varchar":     kindString,
	"text":        kindString,
	"name":        kindString,
	"point":       kindString,
	"date":        kindString,
	"time":        kindString,
	"timetz":      kindString,
	"timestamp":   kindString,
	"timestamptz": kindString,
	"varbit":      kindString,
	"json":        kindString,
	"jsonb":       kindString,
	"geometry":    kindString,
	"tsvector":    kindString,

	// NormalizeType emits these two for the zoned time types.
	"timestampz": kindString,
	"timez":      kindString,

	"character": kindString,
	"uuid":      kindString,
	"interval":  kindString,
	"bytea":     kindString,
	"inet":      kindString,
	"cidr":      kindString,
	"macaddr":   kindString,
	"xml":       kindString,
}

// NormalizeType lower-cases a PostgreSQL type name and maps the verbose
// spellings to short canonical tags. Unknown names pass through lower-cased.
func NormalizeType(sqlType string) string {
	t := strings.ToLower(strings.TrimSpace(sqlType))
	if alias, ok := typeAliases[t]; ok {
		return alias
	}
	return t
}

// IsSupported reports whether Coerce knows how to handle the canonical tag.
func IsSupported(tag string) bool {
	_, ok := kindOf(tag)
	return ok
}

func kindOf(tag string) (kind, bool) {
	if k, ok := typeKinds[tag]; ok {
		return k, true
	}
	// array values are kept in their textual form, e.g. '{1,2,3}'
	if strings.HasSuffix(tag, "[]") {
		return kindString, true
	}
	return 0, false
}

// Coerce converts raw text to the Go value for the canonical type tag:
// int32, int64, float32, float64, bool, Decimal or string.
func Coerce(tag string, value *string) (any, error) {
	if value == nil || *value == "null" {
		return Null, nil
	}
	return CoerceText(tag, *value)
}

// CoerceText is Coerce for a value that is known to be present.
func CoerceText(tag, text string) (any, error) {
	if text == "null" {
		return Null, nil
	}
	k, ok := kindOf(tag)
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedType, "%q", tag)
	}

	switch k {
	case kindInt32:
		v, err := strconv.ParseInt(text, 10, 32)
		if err != nil {
			return nil, formatError(tag, text, err)
		}
		return int32(v), nil
	case kindInt64:
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, formatError(tag, text, err)
		}
		return v, nil
	case kindFloat32:
		v, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return nil, formatError(tag, text, err)
		}
		return float32(v), nil
	case kindFloat64:
		if tag == "money" {
			text = strings.NewReplacer("$", "", ",", "").Replace(text)
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, formatError(tag, text, err)
		}
		return v, nil
	case kindBool:
		v, err := strconv.ParseBool(trimBitString(text))
		if err != nil {
			return nil, formatError(tag, text, err)
		}
		return v, nil
	case kindDecimal:
		d, _, err := apd.NewFromString(text)
		if err != nil {
			return nil, formatError(tag, text, err)
		}
		return Decimal{Decimal: *d}, nil
	default:
		return text, nil
	}
}

// trimBitString turns the B'1' bit literal form into its bare digits.
func trimBitString(s string) string {
	if len(s) >= 3 && (s[0] == 'B' || s[0] == 'b') && s[1] == '\'' && s[len(s)-1] == '\'' {
		return s[2 : len(s)-1]
	}
	return s
}

func formatError(tag, text string, cause error) error {
	return errors.Wrapf(errors.Mark(cause, ErrValueFormat), "parse %q as %s", text, tag)
}

// Format renders a coerced value the way it appears in row keys.
func Format(v any) string {
	switch t := v.(type) {
	case nil:
		return Null
	case string:
		return t
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case Decimal:
		return t.String()
	case *Decimal:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
