package packline

import (
	"fmt"
	"testing"
	"time"

	"github.com/learn-decentralized-systems/toytlv"
	"github.com/packline/packline/capture"
	"github.com/packline/packline/colorize"
	"github.com/packline/packline/columns"
	"github.com/packline/packline/dissect"
	"github.com/stretchr/testify/assert"
)

type fakeSource struct {
	data  map[uint64][]byte
	fail  map[uint64]bool
	reads int
}

func (f *fakeSource) ReadRecord(seq uint64) ([]byte, bool) {
	f.reads++
	if f.fail[seq] {
		return nil, false
	}
	payload, ok := f.data[seq]
	return payload, ok
}

type countingDissector struct {
	inner dissect.Dissector
	calls int
	trees int
}

func (c *countingDissector) Dissect(payload []byte, desc columns.Descriptor, dctx *dissect.Context) (*dissect.Result, error) {
	c.calls++
	if dctx.BuildTree {
		c.trees++
	}
	return c.inner.Dissect(payload, desc, dctx)
}

func tlvPacket(src, dst, proto, info string, fields ...string) []byte {
	recs := [][]byte{
		toytlv.Record('S', []byte(src)),
		toytlv.Record('D', []byte(dst)),
		toytlv.Record('O', []byte(proto)),
		toytlv.Record('I', []byte(info)),
	}
	for _, f := range fields {
		recs = append(recs, toytlv.Record('F', []byte(f)))
	}
	return toytlv.Concat(recs...)
}

func testSession(t *testing.T, spec string) (*Session, *fakeSource, *countingDissector) {
	t.Helper()
	src := &fakeSource{data: map[uint64][]byte{}, fail: map[uint64]bool{}}
	dis := &countingDissector{inner: dissect.NewTLV(nil)}
	sess := NewSession(src, dis, colorize.NewEngine(), Options{})
	desc, err := columns.ParseSpec(spec)
	assert.NoError(t, err)
	assert.NoError(t, sess.SetColumns(desc))
	return sess, src, dis
}

func addRecord(sess *Session, src *fakeSource, seq uint64, payload []byte) *Row {
	src.data[seq] = payload
	return sess.Append(&capture.RecordMeta{Seq: seq, Time: time.Unix(100, 0), Len: len(payload)})
}

func TestColumnTextIdempotent(t *testing.T) {
	sess, src, dis := testSession(t, "num,src,proto,info")
	row := addRecord(sess, src, 1, tlvPacket("10.0.0.1", "10.0.0.2", "UDP", "hello"))

	first := row.ColumnText(sess, 2, false)
	second := row.ColumnText(sess, 2, false)
	assert.Equal(t, "UDP", first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, dis.calls)
	assert.Equal(t, 1, src.reads)
	assert.Equal(t, sess.Schema().Generation(), row.dataVer)
}

func TestSchemaInvalidation(t *testing.T) {
	sess, src, dis := testSession(t, "num,src,proto,info")
	row := addRecord(sess, src, 1, tlvPacket("10.0.0.1", "10.0.0.2", "TCP", "syn"))

	assert.Equal(t, "TCP", row.ColumnText(sess, 2, false))
	assert.Equal(t, 1, dis.calls)
	gen := sess.Schema().Generation()

	desc, err := columns.ParseSpec("num,src,dst,proto,info")
	assert.NoError(t, err)
	assert.NoError(t, sess.SetColumns(desc))
	assert.Equal(t, gen+1, sess.Schema().Generation())

	assert.Equal(t, "10.0.0.2", row.ColumnText(sess, 2, false))
	assert.Equal(t, 2, dis.calls)
	assert.Len(t, row.colText, 5)
	// settled: further reads hit the cache
	assert.Equal(t, "syn", row.ColumnText(sess, 4, false))
	assert.Equal(t, 2, dis.calls)
}

func TestColorizationMonotonicity(t *testing.T) {
	sess, src, dis := testSession(t, "num,src,proto,info")
	sess.Colorizer().SetRules([]colorize.Rule{
		{Name: "udp", Field: "proto", Value: "UDP", Class: "udp"},
	})
	row := addRecord(sess, src, 1, tlvPacket("a", "b", "UDP", "x"))

	row.ColumnText(sess, 2, false)
	assert.Equal(t, 1, dis.calls)
	assert.False(t, row.Colorized())

	row.ColumnText(sess, 2, true)
	assert.Equal(t, 2, dis.calls)
	assert.True(t, row.Colorized())
	assert.Equal(t, "udp", row.Meta().ColorClass)

	// downgrading the colorization requirement is free
	row.ColumnText(sess, 2, false)
	row.ColumnText(sess, 2, true)
	assert.Equal(t, 2, dis.calls)
}

func TestReadFailureContainment(t *testing.T) {
	sess, src, dis := testSession(t, "num,src,proto,info")
	row := addRecord(sess, src, 7, nil)
	src.fail[7] = true

	assert.Equal(t, ReadErrorText, row.ColumnText(sess, 3, false))
	assert.Equal(t, placeholderText, row.ColumnText(sess, 1, false))
	assert.Equal(t, "7", row.ColumnText(sess, 0, false))
	assert.Equal(t, 0, dis.calls)
	assert.True(t, row.Colorized())

	// failure state is resolved, the source is not driven again
	reads := src.reads
	assert.Equal(t, ReadErrorText, row.ColumnText(sess, 3, false))
	assert.Equal(t, reads, src.reads)
}

type flakyDissector struct {
	inner dissect.Dissector
	fail  bool
	calls int
}

func (f *flakyDissector) Dissect(payload []byte, desc columns.Descriptor, dctx *dissect.Context) (*dissect.Result, error) {
	f.calls++
	if f.fail {
		return nil, fmt.Errorf("corrupt record body")
	}
	return f.inner.Dissect(payload, desc, dctx)
}

func TestDissectFailureContainment(t *testing.T) {
	src := &fakeSource{data: map[uint64][]byte{}, fail: map[uint64]bool{}}
	dis := &flakyDissector{inner: dissect.NewTLV(nil), fail: true}
	sess := NewSession(src, dis, colorize.NewEngine(), Options{})
	desc, err := columns.ParseSpec("num,src,proto,info")
	assert.NoError(t, err)
	assert.NoError(t, sess.SetColumns(desc))
	row := addRecord(sess, src, 9, tlvPacket("a", "b", "TCP", "x"))

	assert.Equal(t, DissectErrorText, row.ColumnText(sess, 3, false))
	assert.Equal(t, placeholderText, row.ColumnText(sess, 1, false))
	assert.Equal(t, "9", row.ColumnText(sess, 0, false))
	assert.Equal(t, sess.Schema().Generation(), row.dataVer)

	// failure state is resolved, the parser is not driven again
	calls := dis.calls
	assert.Equal(t, DissectErrorText, row.ColumnText(sess, 3, false))
	assert.Equal(t, calls, dis.calls)
}

func TestDissectFailureClearsHighlight(t *testing.T) {
	src := &fakeSource{data: map[uint64][]byte{}, fail: map[uint64]bool{}}
	dis := &flakyDissector{inner: dissect.NewTLV(nil)}
	sess := NewSession(src, dis, colorize.NewEngine(), Options{})
	sess.Colorizer().SetRules([]colorize.Rule{
		{Name: "tcp", Field: "proto", Value: "TCP", Class: "tcp"},
	})
	desc, err := columns.ParseSpec("num,src,proto,info")
	assert.NoError(t, err)
	assert.NoError(t, sess.SetColumns(desc))
	row := addRecord(sess, src, 1, tlvPacket("a", "b", "TCP", "x"))

	text := row.ColumnText(sess, 2, true)
	assert.Equal(t, "TCP", text)
	assert.Equal(t, "tcp", row.Meta().ColorClass)

	// the record starts failing to parse: the old verdict must not
	// survive the redissect
	dis.fail = true
	sess.ResetColorization()
	assert.Equal(t, text, row.ColumnText(sess, 2, true))
	assert.Equal(t, "", row.Meta().ColorClass)
	assert.True(t, row.Colorized())
}

func TestBoundsSafety(t *testing.T) {
	sess, src, _ := testSession(t, "num,src,proto,info")
	row := addRecord(sess, src, 1, tlvPacket("a", "b", "TCP", "x"))

	assert.Equal(t, "", row.ColumnText(sess, -1, false))
	assert.Equal(t, "", row.ColumnText(sess, 4, false))
	assert.Nil(t, row.colText)
	assert.Equal(t, 0, src.reads)
}

func TestLineCount(t *testing.T) {
	sess, src, _ := testSession(t, "num,src,proto,info")
	row := addRecord(sess, src, 1, tlvPacket("a", "b", "TCP", "line1\nline2\nline3"))

	row.ColumnText(sess, 3, false)
	assert.Equal(t, 3, row.Lines())
	assert.True(t, row.LineCountChanged())

	// same max after a repopulation: height unchanged
	desc, err := columns.ParseSpec("num,src,proto,info")
	assert.NoError(t, err)
	assert.NoError(t, sess.SetColumns(desc))
	row.ColumnText(sess, 3, false)
	assert.Equal(t, 3, row.Lines())
	assert.False(t, row.LineCountChanged())
}

func TestMetadataOnlyColumnsNeverParse(t *testing.T) {
	sess, src, dis := testSession(t, "num,time,len")
	row := addRecord(sess, src, 1, tlvPacket("a", "b", "TCP", "x"))

	assert.Equal(t, "1", row.ColumnText(sess, 0, false))
	assert.NotEmpty(t, row.ColumnText(sess, 1, false))
	assert.Equal(t, 1, src.reads)
	assert.Equal(t, 0, dis.calls)
}

func TestColorizeWithoutRulesSkipsParse(t *testing.T) {
	sess, src, dis := testSession(t, "num,time,len")
	row := addRecord(sess, src, 1, tlvPacket("a", "b", "TCP", "x"))

	row.ColumnText(sess, 0, true)
	assert.Equal(t, 0, dis.calls)
	assert.True(t, row.Colorized())
}

func TestResetColorizationKeepsTexts(t *testing.T) {
	sess, src, dis := testSession(t, "num,src,proto,info")
	sess.Colorizer().SetRules([]colorize.Rule{
		{Name: "tcp", Field: "proto", Value: "TCP", Class: "tcp"},
	})
	row := addRecord(sess, src, 1, tlvPacket("a", "b", "TCP", "x"))

	text := row.ColumnText(sess, 3, true)
	assert.Equal(t, 1, dis.calls)
	assert.Equal(t, "tcp", row.Meta().ColorClass)

	sess.ResetColorization()
	assert.False(t, row.Colorized())
	assert.Equal(t, text, row.ColumnText(sess, 3, true))
	assert.Equal(t, 2, dis.calls)
}

func TestTreeOnlyWhenNeeded(t *testing.T) {
	sess, src, dis := testSession(t, "num,src,proto,info")
	row := addRecord(sess, src, 1, tlvPacket("a", "b", "TCP", "x", "stream.id=4"))

	row.ColumnText(sess, 2, false)
	assert.Equal(t, 1, dis.calls)
	assert.Equal(t, 0, dis.trees)

	desc, err := columns.ParseSpec("num,field:stream.id,info")
	assert.NoError(t, err)
	assert.NoError(t, sess.SetColumns(desc))
	assert.Equal(t, "4", row.ColumnText(sess, 1, false))
	assert.Equal(t, 2, dis.calls)
	assert.Equal(t, 1, dis.trees)
}

func TestResolveNamesOption(t *testing.T) {
	resolver := dissect.NewResolver(map[string]string{"10.0.0.1": "alpha"})
	src := &fakeSource{data: map[uint64][]byte{}, fail: map[uint64]bool{}}
	desc, err := columns.ParseSpec("num,src,info")
	assert.NoError(t, err)

	raw := NewSession(src, dissect.NewTLV(resolver), nil, Options{})
	assert.NoError(t, raw.SetColumns(desc))
	row := addRecord(raw, src, 1, tlvPacket("10.0.0.1", "b", "TCP", "x"))
	assert.Equal(t, "10.0.0.1", row.ColumnText(raw, 1, false))

	resolved := NewSession(src, dissect.NewTLV(resolver), nil, Options{ResolveNames: true})
	assert.NoError(t, resolved.SetColumns(desc))
	row2 := addRecord(resolved, src, 1, tlvPacket("10.0.0.1", "b", "TCP", "x"))
	assert.Equal(t, "alpha", row2.ColumnText(resolved, 1, false))
}

func TestMissingSchema(t *testing.T) {
	src := &fakeSource{data: map[uint64][]byte{}, fail: map[uint64]bool{}}
	dis := &countingDissector{inner: dissect.NewTLV(nil)}
	sess := NewSession(src, dis, nil, Options{})
	row := addRecord(sess, src, 1, tlvPacket("a", "b", "TCP", "x"))

	assert.Equal(t, "", row.ColumnText(sess, 0, false))
	assert.Equal(t, 0, src.reads)
	assert.Equal(t, 0, dis.calls)
}

func TestFlowAssociationRecomputed(t *testing.T) {
	sess, src, _ := testSession(t, "num,src,proto,info")
	rows := make([]*Row, 0, 4)
	for seq := uint64(1); seq <= 4; seq++ {
		rows = append(rows, addRecord(sess, src, seq, tlvPacket("a", "b", "TCP", fmt.Sprintf("n%d", seq))))
	}
	for _, row := range rows {
		row.ColumnText(sess, 2, false)
	}
	assert.Equal(t, 1, sess.Flows().Len())
	conv := rows[0].Conversation()
	assert.NotNil(t, conv)
	assert.Equal(t, uint64(4), conv.Packets)

	// re-dissection must not double-count
	desc, _ := columns.ParseSpec("num,src,proto,info")
	assert.NoError(t, sess.SetColumns(desc))
	rows[0].ColumnText(sess, 2, false)
	assert.Equal(t, uint64(4), rows[0].Conversation().Packets)
}

func TestInterningSharesColumnText(t *testing.T) {
	sess, src, _ := testSession(t, "num,proto,info")
	a := addRecord(sess, src, 1, tlvPacket("a", "b", "TCP", "x"))
	b := addRecord(sess, src, 2, tlvPacket("c", "d", "TCP", "y"))

	a.ColumnText(sess, 1, false)
	b.ColumnText(sess, 1, false)
	assert.GreaterOrEqual(t, sess.Pool().Hits(), uint64(1))
	assert.Equal(t, a.colText[1], b.colText[1])
}
