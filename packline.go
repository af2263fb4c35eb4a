// Package packline caches rendered column text for very large packet
// lists. Dissecting a record is expensive; each row dissects lazily on
// first read and keeps interned column strings until the column schema
// changes, colorization is requested anew, or the record cannot be
// re-read. All shared state (schema, intern pool, flow table) is owned
// by a Session and torn down as a unit.
package packline

import (
	"log/slog"

	"github.com/packline/packline/capture"
	"github.com/packline/packline/colorize"
	"github.com/packline/packline/columns"
	"github.com/packline/packline/dissect"
	"github.com/packline/packline/flows"
	"github.com/packline/packline/intern"
	"github.com/packline/packline/packline_errors"
	"github.com/packline/packline/utils"
)

// RecordSource hands back the raw bytes of one record. ok=false means
// the record could not be read (missing, truncated); the row is then
// filled with placeholders instead of failing.
type RecordSource interface {
	ReadRecord(seq uint64) (payload []byte, ok bool)
}

type Options struct {
	// ResolveNames picks the resolved representation of address
	// columns; off, the raw value is cached instead.
	ResolveNames bool
	Logger       utils.Logger
}

func (o *Options) SetDefaults() {
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(slog.LevelWarn)
	}
}

// Session owns one loaded capture's render state. It is single-thread
// owned: every row read and every schema change must come from the
// same goroutine.
type Session struct {
	log    utils.Logger
	opts   Options
	source RecordSource
	dis    dissect.Dissector
	color  *colorize.Engine
	pool   *intern.Pool
	flows  *flows.Table
	schema *columns.Schema
	rows   []*Row
	avg    utils.AvgVal
	closed bool
}

func NewSession(source RecordSource, dis dissect.Dissector, color *colorize.Engine, opts Options) *Session {
	opts.SetDefaults()
	if color == nil {
		color = colorize.NewEngine()
	}
	return &Session{
		log:    opts.Logger,
		opts:   opts,
		source: source,
		dis:    dis,
		color:  color,
		pool:   intern.NewPool(),
		flows:  flows.NewTable(),
	}
}

// SetColumns installs a new column descriptor and bumps the schema
// generation. No row is touched here; every row notices the stale
// generation on its next read and repopulates itself once.
func (sess *Session) SetColumns(desc columns.Descriptor) error {
	if !desc.Valid() {
		return packline_errors.ErrBadColumnSpec
	}
	if sess.schema == nil {
		sess.schema = columns.NewSchema(desc)
	} else {
		sess.schema.Rebuild(desc)
	}
	sess.log.Debug("columns set", "count", len(desc), "generation", sess.schema.Generation())
	return nil
}

func (sess *Session) Schema() *columns.Schema {
	return sess.schema
}

// Append creates the cache row for one record. The metadata stays
// owned by the caller; the row only keeps a reference.
func (sess *Session) Append(meta *capture.RecordMeta) *Row {
	row := &Row{meta: meta, lines: 1}
	sess.rows = append(sess.rows, row)
	return row
}

// Load appends a row for every record in a capture store and returns
// how many were added.
func (sess *Session) Load(st *capture.Store) (n int) {
	for meta := range st.Records() {
		m := meta
		sess.Append(&m)
		n++
	}
	sess.log.Info("capture loaded", "records", n)
	return
}

func (sess *Session) Len() int {
	return len(sess.rows)
}

func (sess *Session) Row(i int) *Row {
	if i < 0 || i >= len(sess.rows) {
		return nil
	}
	return sess.rows[i]
}

// ResetColorization clears the colorized bit on every row, e.g. after
// the highlighting rules changed. Column texts and the schema
// generation stay untouched; only the next colorize-requested read
// redissects.
func (sess *Session) ResetColorization() {
	for _, row := range sess.rows {
		row.ResetColorized()
	}
}

func (sess *Session) Colorizer() *colorize.Engine {
	return sess.color
}

func (sess *Session) Flows() *flows.Table {
	return sess.flows
}

func (sess *Session) Pool() *intern.Pool {
	return sess.pool
}

// Close drops all rows and the session-scoped pools in bulk.
func (sess *Session) Close() error {
	if sess.closed {
		return packline_errors.ErrClosed
	}
	sess.closed = true
	sess.log.Info("session closed",
		"rows", len(sess.rows),
		"dissects", sess.avg.Count(),
		"dissect_avg_us", sess.avg.Val(),
		"interned", sess.pool.Unique(),
		"intern_hits", sess.pool.Hits(),
	)
	sess.rows = nil
	sess.schema = nil
	sess.pool.Reset()
	sess.flows.Reset()
	return nil
}
