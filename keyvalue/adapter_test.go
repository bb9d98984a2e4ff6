package keyvalue_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/suite"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/web3tea/pgcdc-sentinel/keyvalue"
	"github.com/web3tea/pgcdc-sentinel/testdecoding"
	"github.com/web3tea/pgcdc-sentinel/wal2json"
)

func TestAdapterSuite(t *testing.T) {
	suite.Run(t, new(adapterSuite))
}

type adapterSuite struct {
	suite.Suite
	ctx     context.Context
	adapter *keyvalue.Adapter
}

func (s *adapterSuite) SetupTest() {
	s.ctx = context.Background()
	s.adapter = keyvalue.NewAdapter(keyvalue.NewMapResolver(map[string][]int{
		"public_xpto":             {2, 3},
		"public_table_with_pk":    {0, 2},
		"public_table_without_pk": {0},
	}, "_"))
}

func (s *adapterSuite) readEvent(name string) *wal2json.ChangeEvent {
	data, err := os.ReadFile(filepath.Join("testdata", name))
	s.Require().NoError(err)
	var ev wal2json.ChangeEvent
	s.Require().NoError(json.Unmarshal(data, &ev))
	return &ev
}

func (s *adapterSuite) TestUpdateKeyFromOldKeys() {
	out, err := s.adapter.Handle(s.ctx, s.readEvent("update.json"))
	s.Require().NoError(err)

	s.Equal(wal2json.Update, out.Kind)
	s.Equal("public_table_with_pk", out.Dataset)
	s.Equal("1_2_3", out.Key)
	s.Equal(`{"a":1,"b":1,"c":2,"d":3,"e":3.54,"f":-876.563,"g":1.23,"h":"teste     ","i":"testando",`+
		`"j":"um texto longo","k":"001110010101010","l":"Sat Nov 02 17:30:52 2013","m":"02-04-2013","n":true,`+
		`"o":"{ \"a\": 123 }","p":"'Old' 'Parr'"}`, out.Value)
	s.False(out.IsDelete())
}

func (s *adapterSuite) TestDeleteHasEmptyValue() {
	out, err := s.adapter.Handle(s.ctx, s.readEvent("delete.json"))
	s.Require().NoError(err)

	s.Equal("public_table_with_unique", out.Dataset)
	s.Equal("1.23_false", out.Key)
	s.Equal("", out.Value)
	s.True(out.IsDelete())
	s.Empty(out.ValueBytes())
}

func (s *adapterSuite) TestInsertKeyFromResolver() {
	out, err := s.adapter.Handle(s.ctx, s.readEvent("insert.json"))
	s.Require().NoError(err)

	s.Equal("public_xpto", out.Dataset)
	s.Equal("test1_", out.Key)
	s.Equal(`{"a":1,"b":true,"c":"test1","d":""}`, out.Value)
}

func (s *adapterSuite) TestNonFiniteValues() {
	dec := testdecoding.NewDecoder()
	var change *wal2json.Change
	for _, line := range []string{
		"BEGIN 3",
		"table public.xpto: INSERT: a[integer]:1 r[real]:NaN d[double precision]:-Infinity n[numeric]:NaN",
		"COMMIT 3",
	} {
		c, err := dec.Decode(line)
		s.Require().NoError(err, line)
		if c != nil {
			change = c
		}
	}
	s.Require().NotNil(change)

	adapter := keyvalue.NewAdapter(keyvalue.NewMapResolver(map[string][]int{"public_xpto": {0}}, ""))
	out, err := adapter.Handle(s.ctx, change.Events[0])
	s.Require().NoError(err)
	s.Equal("1", out.Key)
	s.Equal(`{"a":1,"r":"NaN","d":"-Infinity","n":"NaN"}`, out.Value)

	_, err = wal2json.Marshal(change)
	s.NoError(err)
}

func (s *adapterSuite) TestInsertUnknownDataset() {
	ev := s.readEvent("insert.json")
	ev.Table = "missing"

	_, err := s.adapter.Handle(s.ctx, ev)
	s.True(errors.Is(err, keyvalue.ErrUnknownDataset))

	var evErr *keyvalue.EventError
	s.Require().True(errors.As(err, &evErr))
	s.Equal("missing", evErr.Table)
	s.Equal(wal2json.Insert, evErr.Kind)

	_, err = keyvalue.NewAdapter(nil).Handle(s.ctx, s.readEvent("insert.json"))
	s.True(errors.Is(err, keyvalue.ErrUnknownDataset))
}

func (s *adapterSuite) TestUpdateWithoutOldKeysUsesResolver() {
	ev := &wal2json.ChangeEvent{Kind: wal2json.Update, Schema: "public", Table: "xpto"}
	ev.AppendColumn("a", "integer", int32(7))
	ev.AppendColumn("b", "boolean", false)
	ev.AppendColumn("c", "text", "x")
	ev.AppendColumn("d", "text", "y")

	out, err := s.adapter.Handle(s.ctx, ev)
	s.Require().NoError(err)
	s.Equal("x_y", out.Key)
}

func (s *adapterSuite) TestKeyIndexOutOfRange() {
	ev := &wal2json.ChangeEvent{Kind: wal2json.Insert, Schema: "public", Table: "xpto"}
	ev.AppendColumn("a", "integer", int32(7))

	_, err := s.adapter.Handle(s.ctx, ev)
	s.Error(err)
	s.False(errors.Is(err, keyvalue.ErrUnknownDataset))
}

func (s *adapterSuite) TestDeleteWithoutOldKeys() {
	_, err := s.adapter.Handle(s.ctx, &wal2json.ChangeEvent{Kind: wal2json.Delete, Schema: "public", Table: "xpto"})
	s.Error(err)
}

func (s *adapterSuite) TestHandleChange() {
	data, err := os.ReadFile(filepath.Join("testdata", "change.json"))
	s.Require().NoError(err)
	c, err := wal2json.Unmarshal(data)
	s.Require().NoError(err)

	events, err := s.adapter.HandleChange(s.ctx, c)
	s.Require().NoError(err)
	s.Require().Len(events, 3)

	s.Equal("public_table_with_pk", events[0].Dataset)
	s.Equal("1_2015-08-27 16:46:35.818038", events[0].Key)
	s.Equal("public_table_without_pk", events[1].Dataset)
	s.Equal("1", events[1].Key)
	s.Equal(`{"a":1,"b":2.34,"c":"Tapir"}`, events[1].Value)
	s.Equal("1_2015-08-27 16:46:35.818038", events[2].Key)
	s.Equal("", events[2].Value)

	for _, ev := range events {
		s.Equal(uint32(580), ev.Xid)
		s.Equal(c.Timestamp, ev.Timestamp)
	}
}

func (s *adapterSuite) TestCustomStrategies() {
	a := keyvalue.NewAdapter(
		keyvalue.NewMapResolver(map[string][]int{"public:xpto": {0}}, ":"),
		keyvalue.WithDelimiter(":"),
		keyvalue.WithDatasetNamer(keyvalue.DatasetNamerFunc(func(ev *wal2json.ChangeEvent) string {
			return "region-" + ev.Table
		})),
	)

	out, err := a.Handle(s.ctx, s.readEvent("insert.json"))
	s.Require().NoError(err)
	s.Equal("region-xpto", out.Dataset)
	s.Equal("1", out.Key)

	out, err = a.Handle(s.ctx, s.readEvent("update.json"))
	s.Require().NoError(err)
	s.Equal("1:2:3", out.Key)
}

func (s *adapterSuite) TestMsgpackValue() {
	a := keyvalue.NewAdapter(
		keyvalue.NewMapResolver(map[string][]int{"public_xpto": {0}}, ""),
		keyvalue.WithValueEncoder(keyvalue.MsgpackValue{}),
	)

	out, err := a.Handle(s.ctx, s.readEvent("insert.json"))
	s.Require().NoError(err)
	b, ok := out.Value.([]byte)
	s.Require().True(ok)

	dec := msgpack.NewDecoder(bytes.NewReader(b))
	n, err := dec.DecodeMapLen()
	s.Require().NoError(err)
	s.Equal(4, n)

	var names []string
	values := map[string]any{}
	for i := 0; i < n; i++ {
		name, err := dec.DecodeString()
		s.Require().NoError(err)
		v, err := dec.DecodeInterfaceLoose()
		s.Require().NoError(err)
		names = append(names, name)
		values[name] = v
	}
	s.Equal([]string{"a", "b", "c", "d"}, names)
	s.Equal(map[string]any{"a": int64(1), "b": true, "c": "test1", "d": ""}, values)

	out, err = a.Handle(s.ctx, s.readEvent("delete.json"))
	s.Require().NoError(err)
	s.Equal("", out.Value)
}

func (s *adapterSuite) TestMsgpackDecimal() {
	out, err := keyvalue.MsgpackValue{}.Value(s.readEvent("update.json"))
	s.Require().NoError(err)

	var m map[string]any
	dec := msgpack.NewDecoder(bytes.NewReader(out.([]byte)))
	dec.UseLooseInterfaceDecoding(true)
	s.Require().NoError(dec.Decode(&m))
	s.Equal("1.23", m["g"])
	s.Equal("teste     ", m["h"])
	s.Len(m, 16)
}
