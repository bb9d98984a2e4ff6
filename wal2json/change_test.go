package wal2json_test

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/web3tea/pgcdc-sentinel/sqltype"
	"github.com/web3tea/pgcdc-sentinel/wal2json"
)

func TestChangeSuite(t *testing.T) {
	suite.Run(t, new(changeSuite))
}

type changeSuite struct {
	suite.Suite
}

func (s *changeSuite) readEvent(name string) *wal2json.ChangeEvent {
	data, err := os.ReadFile(filepath.Join("testdata", name))
	s.Require().NoError(err)
	var ev wal2json.ChangeEvent
	s.Require().NoError(json.Unmarshal(data, &ev))
	return &ev
}

func (s *changeSuite) TestDecodeUpdateCoercesValues() {
	ev := s.readEvent("update.json")

	s.Equal(wal2json.Update, ev.Kind)
	s.Equal("public", ev.Schema)
	s.Equal("table_with_pk", ev.Table)
	s.Require().Len(ev.ColumnValues, 16)
	s.Equal(int32(1), ev.ColumnValues[0])
	s.Equal(int64(2), ev.ColumnValues[2])
	s.Equal(sqltype.MustDecimal("3"), ev.ColumnValues[3])
	s.Equal(float32(3.54), ev.ColumnValues[4])
	s.Equal(-876.563, ev.ColumnValues[5])
	s.Equal("teste     ", ev.ColumnValues[7])
	s.Equal(true, ev.ColumnValues[13])

	s.Require().NotNil(ev.OldKeys)
	s.Equal([]string{"a", "b", "c"}, ev.OldKeys.KeyNames)
	s.Equal([]any{int32(1), int32(2), int64(3)}, ev.OldKeys.KeyValues)
	s.NoError(ev.Validate())
}

func (s *changeSuite) TestDecodeNullBecomesEmptyString() {
	ev := s.readEvent("insert.json")
	s.Equal([]any{int32(1), true, "test1", ""}, ev.ColumnValues)
	s.Nil(ev.OldKeys)
}

func (s *changeSuite) TestDecodeDelete() {
	ev := s.readEvent("delete.json")
	s.Nil(ev.ColumnNames)
	s.Nil(ev.ColumnValues)
	s.Equal([]any{sqltype.MustDecimal("1.23"), false}, ev.OldKeys.KeyValues)
	s.NoError(ev.Validate())
}

func (s *changeSuite) TestDecodeChange() {
	data, err := os.ReadFile(filepath.Join("testdata", "change.json"))
	s.Require().NoError(err)

	c, err := wal2json.Unmarshal(data)
	s.Require().NoError(err)
	s.Equal(uint32(580), c.Xid)
	s.Equal("0/178E570", c.NextLSN)
	s.Require().Len(c.Events, 3)
	s.Equal(wal2json.Delete, c.Events[2].Kind)

	ts, err := c.CommitTime()
	s.Require().NoError(err)
	s.Equal(2016, ts.Year())
	s.Equal(532396000, ts.Nanosecond())
}

func (s *changeSuite) TestRoundTrip() {
	c := &wal2json.Change{
		Xid:       15228819,
		NextLSN:   "16/B374D848",
		Timestamp: "2016-03-29 08:25:43.3+02",
		Events: []*wal2json.ChangeEvent{
			{
				Kind:         wal2json.Insert,
				Schema:       "tmp",
				Table:        "t",
				ColumnNames:  []string{"a", "b", "c", "d", "e", "f", "g"},
				ColumnTypes:  []string{"integer", "text", "bigint", "real", "numeric", "boolean", "date"},
				ColumnValues: []any{int32(1), "x", int64(-7), float32(3.7), sqltype.MustDecimal("10.50"), false, ""},
			},
			{
				Kind:         wal2json.Update,
				Schema:       "tmp",
				Table:        "t",
				ColumnNames:  []string{"a", "b"},
				ColumnTypes:  []string{"integer", "text"},
				ColumnValues: []any{int32(1), "y <b> & 'z'"},
				OldKeys: &wal2json.OldKeys{
					KeyNames:  []string{"a"},
					KeyTypes:  []string{"integer"},
					KeyValues: []any{int32(1)},
				},
			},
			{
				Kind:   wal2json.Delete,
				Schema: "tmp",
				Table:  "t",
				OldKeys: &wal2json.OldKeys{
					KeyNames:  []string{"a"},
					KeyTypes:  []string{"integer"},
					KeyValues: []any{int32(1)},
				},
			},
		},
	}

	data, err := wal2json.Marshal(c)
	s.Require().NoError(err)

	back, err := wal2json.Unmarshal(data)
	s.Require().NoError(err)
	s.Equal(c, back)
}

func (s *changeSuite) TestRoundTripNonFinite() {
	c := &wal2json.Change{
		Xid: 9,
		Events: []*wal2json.ChangeEvent{
			{
				Kind:         wal2json.Insert,
				Schema:       "public",
				Table:        "m",
				ColumnNames:  []string{"id", "r", "d", "n", "i"},
				ColumnTypes:  []string{"integer", "real", "double precision", "numeric", "numeric(10,2)"},
				ColumnValues: []any{int32(1), float32(math.Inf(1)), math.Inf(-1), sqltype.MustDecimal("NaN"), sqltype.MustDecimal("-Infinity")},
			},
			{
				Kind:   wal2json.Delete,
				Schema: "public",
				Table:  "m",
				OldKeys: &wal2json.OldKeys{
					KeyNames:  []string{"d"},
					KeyTypes:  []string{"double precision"},
					KeyValues: []any{math.Inf(1)},
				},
			},
		},
	}

	data, err := wal2json.Marshal(c)
	s.Require().NoError(err)
	s.Contains(string(data), `"columnvalues":[1,"Infinity","-Infinity","NaN","-Infinity"]`)
	s.Contains(string(data), `"keyvalues":["Infinity"]`)

	back, err := wal2json.Unmarshal(data)
	s.Require().NoError(err)
	s.Equal(c, back)

	// the encoder must not rewrite the caller's values
	s.True(math.IsInf(c.Events[1].OldKeys.KeyValues[0].(float64), 1))
}

func (s *changeSuite) TestRoundTripNaNFloat() {
	c := &wal2json.Change{
		Xid: 10,
		Events: []*wal2json.ChangeEvent{{
			Kind:         wal2json.Insert,
			Schema:       "public",
			Table:        "m",
			ColumnNames:  []string{"r", "d"},
			ColumnTypes:  []string{"real", "double precision"},
			ColumnValues: []any{float32(math.NaN()), math.NaN()},
		}},
	}

	data, err := wal2json.Marshal(c)
	s.Require().NoError(err)
	s.Contains(string(data), `"columnvalues":["NaN","NaN"]`)

	back, err := wal2json.Unmarshal(data)
	s.Require().NoError(err)
	values := back.Events[0].ColumnValues
	s.Require().IsType(float32(0), values[0])
	s.True(math.IsNaN(float64(values[0].(float32))))
	s.Require().IsType(float64(0), values[1])
	s.True(math.IsNaN(values[1].(float64)))
}

func (s *changeSuite) TestRowNonFinite() {
	ev := &wal2json.ChangeEvent{
		Kind:         wal2json.Insert,
		Schema:       "public",
		Table:        "m",
		ColumnNames:  []string{"id", "r", "n"},
		ColumnTypes:  []string{"integer", "real", "numeric"},
		ColumnValues: []any{int32(1), float32(math.NaN()), sqltype.MustDecimal("Infinity")},
	}
	row, err := ev.Row()
	s.Require().NoError(err)

	data, err := json.Marshal(row)
	s.Require().NoError(err)
	s.Equal(`{"id":1,"r":"NaN","n":"Infinity"}`, string(data))
}

func (s *changeSuite) TestAbsentFieldsOmitted() {
	data, err := wal2json.Marshal(&wal2json.Change{
		Xid: 1,
		Events: []*wal2json.ChangeEvent{
			{Kind: wal2json.Delete, Schema: "s", Table: "t"},
		},
	})
	s.Require().NoError(err)
	s.JSONEq(`{"xid":1,"change":[{"kind":"delete","schema":"s","table":"t"}]}`, string(data))
	s.NotContains(string(data), "null")
}

func (s *changeSuite) TestRowKeepsColumnOrder() {
	ev := s.readEvent("insert.json")
	row, err := ev.Row()
	s.Require().NoError(err)

	b, err := json.Marshal(row)
	s.Require().NoError(err)
	s.Equal(`{"a":1,"b":true,"c":"test1","d":""}`, string(b))
	s.Equal(map[string]any{"a": int32(1), "b": true, "c": "test1", "d": ""}, row.Map())

	_, err = s.readEvent("delete.json").Row()
	s.Error(err)
}

func (s *changeSuite) TestValidate() {
	ev := &wal2json.ChangeEvent{Kind: wal2json.Insert, Schema: "s", Table: "t"}
	ev.AppendColumn("a", "integer", int32(1))
	s.NoError(ev.Validate())

	ev.AppendOldKey("a", "integer", int32(1))
	s.Error(ev.Validate())

	bad := &wal2json.ChangeEvent{Kind: wal2json.Update, ColumnNames: []string{"a"}}
	s.Error(bad.Validate())

	s.Error((&wal2json.ChangeEvent{Kind: "truncate"}).Validate())
}

func TestParseCommitTime(t *testing.T) {
	cases := map[string]time.Time{
		"2016-03-29 08:25:43.3+02":      time.Date(2016, 3, 29, 6, 25, 43, 300000000, time.UTC),
		"2016-03-29 08:25:43.35+02":     time.Date(2016, 3, 29, 6, 25, 43, 350000000, time.UTC),
		"2000-01-01 01:00:00.303+02":    time.Date(1999, 12, 31, 23, 0, 0, 303000000, time.UTC),
		"2016-07-08 19:58:13.532396+02": time.Date(2016, 7, 8, 17, 58, 13, 532396000, time.UTC),
		"2021-01-01 00:00:00+05:30":     time.Date(2020, 12, 31, 18, 30, 0, 0, time.UTC),
	}
	for in, want := range cases {
		got, err := wal2json.ParseCommitTime(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), "%s: got %s", in, got)
	}

	_, err := wal2json.ParseCommitTime("yesterday")
	assert.Error(t, err)
}
