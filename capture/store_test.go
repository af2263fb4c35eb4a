package capture

import (
	"testing"
	"time"

	"github.com/learn-decentralized-systems/toyqueue"
	"github.com/learn-decentralized-systems/toytlv"
	"github.com/stretchr/testify/assert"
)

func TestAddReadRoundtrip(t *testing.T) {
	st, err := Create(t.TempDir()+"/cap", Options{})
	assert.NoError(t, err)
	defer st.Close()

	stamp := time.Unix(1700000000, 12345)
	meta, err := st.Add(stamp, []byte("payload-1"))
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), meta.Seq)
	assert.Equal(t, 9, meta.Len)

	payload, ok := st.ReadRecord(1)
	assert.True(t, ok)
	assert.Equal(t, []byte("payload-1"), payload)

	got, err := st.Meta(1)
	assert.NoError(t, err)
	assert.Equal(t, stamp.UnixNano(), got.Time.UnixNano())
	assert.Equal(t, 9, got.Len)
}

func TestReadRecordMissing(t *testing.T) {
	st, err := Create(t.TempDir()+"/cap", Options{})
	assert.NoError(t, err)
	defer st.Close()

	_, ok := st.ReadRecord(99)
	assert.False(t, ok)
	_, err = st.Meta(99)
	assert.Error(t, err)
}

func TestReadRecordTruncated(t *testing.T) {
	st, err := Create(t.TempDir()+"/cap", Options{})
	assert.NoError(t, err)
	defer st.Close()

	_, err = st.Add(time.Now(), []byte("good"))
	assert.NoError(t, err)
	// damage the envelope behind the store's back
	assert.NoError(t, st.db.Set(recKey(1), []byte{'x', 'y'}, st.opts.WriteOptions))

	_, ok := st.ReadRecord(1)
	assert.False(t, ok)
}

func TestDrainBatch(t *testing.T) {
	st, err := Create(t.TempDir()+"/cap", Options{})
	assert.NoError(t, err)
	defer st.Close()

	recs := toyqueue.Records{}
	for i := 0; i < 3; i++ {
		recs = append(recs, toytlv.Record('P',
			envelope(time.Unix(int64(1000+i), 0), []byte{byte(i)}),
		))
	}
	assert.NoError(t, st.Drain(recs))
	assert.Equal(t, uint64(3), st.Count())

	var seqs []uint64
	for meta := range st.Records() {
		seqs = append(seqs, meta.Seq)
	}
	assert.Equal(t, []uint64{1, 2, 3}, seqs)

	assert.Error(t, st.Drain(toyqueue.Records{[]byte("junk")}))
}

func TestOpenRestoresSequence(t *testing.T) {
	dir := t.TempDir() + "/cap"
	st, err := Create(dir, Options{})
	assert.NoError(t, err)
	_, err = st.Add(time.Now(), []byte("a"))
	assert.NoError(t, err)
	_, err = st.Add(time.Now(), []byte("b"))
	assert.NoError(t, err)
	id := st.ID()
	assert.NoError(t, st.Close())

	st2, err := Open(dir, Options{})
	assert.NoError(t, err)
	defer st2.Close()
	assert.Equal(t, id, st2.ID())
	assert.Equal(t, uint64(2), st2.Count())

	meta, err := st2.Add(time.Now(), []byte("c"))
	assert.NoError(t, err)
	assert.Equal(t, uint64(3), meta.Seq)
}

func TestClosedStore(t *testing.T) {
	st, err := Create(t.TempDir()+"/cap", Options{})
	assert.NoError(t, err)
	assert.NoError(t, st.Close())

	_, ok := st.ReadRecord(1)
	assert.False(t, ok)
	_, err = st.Add(time.Now(), nil)
	assert.Error(t, err)
	for range st.Records() {
		t.Fatal("closed store yielded a record")
	}
	assert.Error(t, st.Close())
}
