package testdecoding_test

import (
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/suite"
	"github.com/web3tea/pgcdc-sentinel/sqltype"
	"github.com/web3tea/pgcdc-sentinel/testdecoding"
	"github.com/web3tea/pgcdc-sentinel/wal2json"
)

const geom = "'0106000020EC7A0000010000000103000000010000000C0000003B84A88392C750411155771E44765441'"

func TestDecoderSuite(t *testing.T) {
	suite.Run(t, new(decoderSuite))
}

type decoderSuite struct {
	suite.Suite
	dec *testdecoding.Decoder
}

func (s *decoderSuite) SetupTest() {
	s.dec = testdecoding.NewDecoder()
}

// decodeTx feeds BEGIN, the given lines and COMMIT, and returns the committed change.
func (s *decoderSuite) decodeTx(lines ...string) *wal2json.Change {
	c, err := s.dec.Decode("BEGIN 15228819")
	s.Require().NoError(err)
	s.Require().Nil(c)

	for _, line := range lines {
		c, err = s.dec.Decode(line)
		s.Require().NoError(err, line)
		s.Require().Nil(c)
	}

	c, err = s.dec.Decode("COMMIT 15228819")
	s.Require().NoError(err)
	s.Require().NotNil(c)
	s.Equal(uint32(15228819), c.Xid)
	s.False(s.dec.InTransaction())
	return c
}

func (s *decoderSuite) TestEmptyTransaction() {
	c := s.decodeTx()
	s.Empty(c.Timestamp)
	s.Empty(c.NextLSN)
	s.NotNil(c.Events)
	s.Empty(c.Events)
}

func (s *decoderSuite) TestCommitTimestamps() {
	for _, ts := range []string{
		"2016-03-29 08:25:43.3+02",
		"2016-03-29 08:25:43.35+02",
		"2000-01-01 01:00:00.303+02",
		"2016-07-08 19:58:13.532396+02",
	} {
		_, err := s.dec.Decode("BEGIN 15228819")
		s.Require().NoError(err)
		c, err := s.dec.Decode("COMMIT 15228819 (at " + ts + ")")
		s.Require().NoError(err)
		s.Equal(ts, c.Timestamp)

		at, err := c.CommitTime()
		s.Require().NoError(err)
		s.Equal(ts[:4], at.Format("2006"))
		s.Empty(c.Events)
	}
}

func (s *decoderSuite) TestInsert() {
	c := s.decodeTx("table tmp.landkreis_neu: INSERT: alkis_id[text]:'LANDSBERG' beschriftung_pos[geometry]:null " +
		"datenquelle[integer]:3 erfasst_am[date]:'2015-11-05' erfasst_durch[text]:'Schmidt.Sebastian2' " +
		"the_geom[geometry]:" + geom + " geaendert_am[date]:null geaendert_durch[text]:null " +
		"landkreisschluessel[integer]:1889 name[text]:'Landsberg am Lech' landkreis_id[integer]:35 " +
		"_version[integer]:4854754 kuerzel[text]:'LL'")

	s.Require().Len(c.Events, 1)
	ev := c.Events[0]
	s.Equal(wal2json.Insert, ev.Kind)
	s.Equal("tmp", ev.Schema)
	s.Equal("landkreis_neu", ev.Table)
	s.Nil(ev.OldKeys)
	s.Len(ev.ColumnNames, 13)
	s.Len(ev.ColumnTypes, 13)
	s.Len(ev.ColumnValues, 13)

	row, err := ev.Row()
	s.Require().NoError(err)
	m := row.Map()
	s.Equal("LANDSBERG", m["alkis_id"])
	s.Equal("", m["beschriftung_pos"])
	s.Equal(int32(3), m["datenquelle"])
	s.Equal("Landsberg am Lech", m["name"])
	s.Equal(int32(4854754), m["_version"])
	s.Equal(strings.Trim(geom, "'"), m["the_geom"])
}

func (s *decoderSuite) TestInsertAllSupportedTypes() {
	c := s.decodeTx("table public.allsupportedtypes: INSERT: a_serial[integer]:5 a_numeric[numeric]:null " +
		"a_real[real]:null a_double[double precision]:null a_char[character]:null a_varchar[character varying]:'text' " +
		"a_text[text]:'text with blanks and [ ] brackets' a_boolean[boolean]:null a_json[json]:null a_jsonb[jsonb]:null " +
		"a_date[date]:null a_timestamp[timestamp without time zone]:null a_interval[interval]:null " +
		"a_tsvector[tsvector]:null a_uuid[uuid]:null a_postgis_geom[geometry]:null")

	s.Require().Len(c.Events, 1)
	ev := c.Events[0]
	s.Equal("allsupportedtypes", ev.Table)
	s.Len(ev.ColumnNames, 16)
	s.Len(ev.ColumnTypes, 16)
	s.Len(ev.ColumnValues, 16)
	s.Equal(int32(5), ev.ColumnValues[0])
	s.Equal("float8", ev.ColumnTypes[3])
	s.Equal("varchar", ev.ColumnTypes[5])
	s.Equal("text", ev.ColumnValues[5])
	s.Equal("text with blanks and [ ] brackets", ev.ColumnValues[6])
	s.Equal("timestamp", ev.ColumnTypes[11])
	for _, i := range []int{1, 2, 3, 4, 7, 8, 9, 10, 11, 12, 13, 14, 15} {
		s.Equal(sqltype.Null, ev.ColumnValues[i], ev.ColumnNames[i])
	}
}

func (s *decoderSuite) TestUpdate() {
	c := s.decodeTx("table tmp.landkreis_neu: UPDATE: old-key: alkis_id[text]:'LANDSBERG' datenquelle[integer]:3 " +
		"erfasst_am[date]:'2015-11-05' erfasst_durch[text]:'Schmidt.Sebastian2' the_geom[geometry]:" + geom + " " +
		"landkreisschluessel[integer]:1889 name[text]:'Landsberg am Lech' landkreis_id[integer]:35 " +
		"_version[integer]:4854754 kuerzel[text]:'LL' " +
		"new-tuple: alkis_id[text]:'LANDSBERG' beschriftung_pos[geometry]:null datenquelle[integer]:3 " +
		"erfasst_am[date]:'2015-11-05' erfasst_durch[text]:'Schmidt.Sebastian2' the_geom[geometry]:" + geom + " " +
		"geaendert_am[date]:null geaendert_durch[text]:null landkreisschluessel[integer]:1889 " +
		"name[text]:'Landsberg am Lechtal' landkreis_id[integer]:35 _version[integer]:4854754 kuerzel[text]:'LL'")

	s.Require().Len(c.Events, 1)
	ev := c.Events[0]
	s.Equal(wal2json.Update, ev.Kind)
	s.Require().NotNil(ev.OldKeys)
	s.Len(ev.OldKeys.KeyNames, 10)
	s.Len(ev.OldKeys.KeyTypes, 10)
	s.Len(ev.OldKeys.KeyValues, 10)
	s.Len(ev.ColumnNames, 13)
	s.Len(ev.ColumnTypes, 13)
	s.Len(ev.ColumnValues, 13)
	s.Equal("Landsberg am Lech", ev.OldKeys.KeyValues[6])
	s.Equal("Landsberg am Lechtal", ev.ColumnValues[9])
}

func (s *decoderSuite) TestDelete() {
	c := s.decodeTx("table tmp.landkreis_neu: DELETE: alkis_id[text]:'LANDSBERG' datenquelle[integer]:3 " +
		"erfasst_am[date]:'2015-11-05' erfasst_durch[text]:'Schmidt.Sebastian2' the_geom[geometry]:" + geom + " " +
		"landkreisschluessel[integer]:1889 name[text]:'Landsberg am Lechtal' landkreis_id[integer]:35 " +
		"_version[integer]:4854754 kuerzel[text]:'LL'")

	s.Require().Len(c.Events, 1)
	ev := c.Events[0]
	s.Equal(wal2json.Delete, ev.Kind)
	s.Require().NotNil(ev.OldKeys)
	s.Len(ev.OldKeys.KeyNames, 10)
	s.Len(ev.OldKeys.KeyValues, 10)
	s.Len(ev.OldKeys.KeyTypes, 10)
	s.Nil(ev.ColumnNames)
	s.Nil(ev.ColumnTypes)
	s.Nil(ev.ColumnValues)
}

func (s *decoderSuite) TestDeleteSingleKey() {
	cases := []struct {
		line  string
		name  string
		value any
		typ   string
	}{
		{"table a.a: DELETE: _version[integer]:4854754", "_version", int32(4854754), "integer"},
		{"table a.a: DELETE: landkreisschluessel[integer]:1889", "landkreisschluessel", int32(1889), "integer"},
		{"table a.a: DELETE: landkreisschluessel[integer]:-1889", "landkreisschluessel", int32(-1889), "integer"},
		{"table a.a: DELETE: name[text]:'text am Lech'", "name", "text am Lech", "text"},
		{"table a.a: DELETE: the_geom[geometry]:" + geom, "the_geom", strings.Trim(geom, "'"), "geometry"},
		{"table a.a: DELETE: height[real]:3.7", "height", float32(3.7), "real"},
		{"table a.a: DELETE: toggle[boolean]:true", "toggle", true, "boolean"},
		{`table a.a: DELETE: value[jsonb]:'{"jobsite_id": -2.8}'`, "value", `{"jobsite_id": -2.8}`, "jsonb"},
		{"table a.a: DELETE: quote[text]:'it''s'", "quote", "it's", "text"},
	}

	for _, tc := range cases {
		c := s.decodeTx(tc.line)
		s.Require().Len(c.Events, 1)
		ev := c.Events[0]
		s.Equal(wal2json.Delete, ev.Kind)
		s.Equal("a", ev.Schema)
		s.Equal("a", ev.Table)
		s.Equal([]string{tc.name}, ev.OldKeys.KeyNames)
		s.Equal([]string{tc.typ}, ev.OldKeys.KeyTypes)
		s.Equal([]any{tc.value}, ev.OldKeys.KeyValues)
		s.Nil(ev.ColumnNames)
	}
}

func (s *decoderSuite) TestMultipleEventsKeepOrder() {
	c := s.decodeTx(
		"table public.t: INSERT: id[integer]:1",
		"table public.t: UPDATE: id[integer]:1 body[text]:unchanged-toast-datum",
		"table public.t: DELETE: id[integer]:1",
	)
	s.Require().Len(c.Events, 3)
	s.Equal(wal2json.Insert, c.Events[0].Kind)
	s.Equal(wal2json.Update, c.Events[1].Kind)
	s.Equal(wal2json.Delete, c.Events[2].Kind)
}

func (s *decoderSuite) TestCommitFallsBackToBeginXid() {
	_, err := s.dec.Decode("BEGIN 42")
	s.Require().NoError(err)
	c, err := s.dec.Decode("COMMIT (at 2016-03-29 08:25:43.3+02)")
	s.Require().NoError(err)
	s.Equal(uint32(42), c.Xid)

	_, err = s.dec.Decode("BEGIN")
	s.Require().NoError(err)
	_, err = s.dec.Decode("COMMIT")
	s.True(errors.Is(err, testdecoding.ErrMalformedTransaction))
	s.False(s.dec.InTransaction())
}

func (s *decoderSuite) TestCommitWithoutBegin() {
	_, err := s.dec.Decode("COMMIT 1")
	s.True(errors.Is(err, testdecoding.ErrMalformedTransaction))

	var lineErr *testdecoding.LineError
	s.Require().True(errors.As(err, &lineErr))
	s.Equal("COMMIT 1", lineErr.Line)
}

func (s *decoderSuite) TestOperationOutsideTransaction() {
	_, err := s.dec.Decode("table public.t: INSERT: id[integer]:1")
	s.True(errors.Is(err, testdecoding.ErrMalformedTransaction))
	s.False(s.dec.InTransaction())
}

func (s *decoderSuite) TestNestedBeginStartsOver() {
	_, err := s.dec.Decode("BEGIN 1")
	s.Require().NoError(err)
	_, err = s.dec.Decode("table public.t: INSERT: id[integer]:1")
	s.Require().NoError(err)

	_, err = s.dec.Decode("BEGIN 2")
	s.True(errors.Is(err, testdecoding.ErrMalformedTransaction))
	s.True(s.dec.InTransaction())

	c, err := s.dec.Decode("COMMIT 2")
	s.Require().NoError(err)
	s.Equal(uint32(2), c.Xid)
	s.Empty(c.Events)
}

func (s *decoderSuite) TestFailedLineDiscardsTransaction() {
	bad := []struct {
		line string
		want error
	}{
		{"table public.t: INSERT: id[integer:1", testdecoding.ErrMalformedLine},
		{"table public.t: TRUNCATE: (no-tuple-data)", testdecoding.ErrMalformedLine},
		{"table public.t: INSERT: id[integer]:abc", sqltype.ErrValueFormat},
		{"table public.t: INSERT: loc[box]:'(1,1),(0,0)'", sqltype.ErrUnsupportedType},
		{"table public.t: INSERT: old-key: id[integer]:1", testdecoding.ErrMalformedLine},
		{"BEGIN x1", testdecoding.ErrMalformedLine},
	}

	for _, tc := range bad {
		_, err := s.dec.Decode("BEGIN 7")
		s.Require().NoError(err)
		_, err = s.dec.Decode("table public.t: INSERT: id[integer]:1")
		s.Require().NoError(err)

		_, err = s.dec.Decode(tc.line)
		s.True(errors.Is(err, tc.want), "%s: %v", tc.line, err)
		s.False(s.dec.InTransaction(), tc.line)

		_, err = s.dec.Decode("COMMIT 7")
		s.True(errors.Is(err, testdecoding.ErrMalformedTransaction), tc.line)
	}
}

func (s *decoderSuite) TestReset() {
	_, err := s.dec.Decode("BEGIN 1")
	s.Require().NoError(err)
	s.True(s.dec.InTransaction())
	s.dec.Reset()
	s.False(s.dec.InTransaction())
}

func (s *decoderSuite) TestFeedTokens() {
	tokens := []testdecoding.Token{
		{Kind: testdecoding.TokBegin, Text: "BEGIN"},
		{Kind: testdecoding.TokTxID, Text: "9"},
	}
	c, err := s.dec.Feed(tokens)
	s.Require().NoError(err)
	s.Nil(c)

	c, err = s.dec.Feed([]testdecoding.Token{{Kind: testdecoding.TokCommit, Text: "COMMIT"}})
	s.Require().NoError(err)
	s.Equal(uint32(9), c.Xid)
}
