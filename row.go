package packline

import (
	"strconv"
	"strings"
	"time"

	"github.com/packline/packline/capture"
	"github.com/packline/packline/columns"
	"github.com/packline/packline/dissect"
	"github.com/packline/packline/flows"
)

const (
	// ReadErrorText is cached into the info column of a row whose
	// record could not be re-read from the source.
	ReadErrorText = "[ Read error ]"

	// DissectErrorText is cached into the info column when the record
	// was read fine but the dissector rejected it.
	DissectErrorText = "[ Dissection error ]"

	placeholderText = "-"
	timeFormat      = "2006-01-02 15:04:05.000000"
)

// Row is the per-record column-text cache. A row starts empty and
// populates itself on first read; it repopulates when the schema
// generation moved, or when colorization is requested and not yet
// resolved. Rows are created in bulk by the session and never freed
// individually.
type Row struct {
	meta             *capture.RecordMeta
	colText          []string
	lines            int
	lineCountChanged bool
	dataVer          uint64
	colorized        bool
	conv             *flows.Conversation
}

func (row *Row) Meta() *capture.RecordMeta {
	return row.meta
}

// Lines is the row height in text lines, the maximum over all cached
// columns. Always at least 1.
func (row *Row) Lines() int {
	return row.lines
}

// LineCountChanged reports whether the last population changed the
// row height, so the list widget knows to re-measure.
func (row *Row) LineCountChanged() bool {
	return row.lineCountChanged
}

func (row *Row) Colorized() bool {
	return row.colorized
}

// ResetColorized forgets the highlighting verdict. Texts stay cached;
// only the next colorize-requested read triggers a redissect.
func (row *Row) ResetColorized() {
	row.colorized = false
}

// Conversation is the flow this record was last associated with.
// Recomputed on every dissection; do not hold across populations.
func (row *Row) Conversation() *flows.Conversation {
	return row.conv
}

// ColumnText returns the cached text of one display column,
// dissecting the record first if the cache is missing or stale.
// Out-of-range columns yield "" without touching the cache. A
// colorize=false read after a colorized population is free.
func (row *Row) ColumnText(sess *Session, column int, colorize bool) string {
	sch := sess.schema
	if sch == nil || column < 0 || column >= sch.Count() {
		ColumnReads.WithLabelValues("oob").Inc()
		return ""
	}
	dissectColor := colorize && !row.colorized
	if len(row.colText) == 0 || row.dataVer != sch.Generation() || dissectColor {
		ColumnReads.WithLabelValues("miss").Inc()
		row.dissect(sess, dissectColor)
	} else {
		ColumnReads.WithLabelValues("hit").Inc()
	}
	if column >= len(row.colText) {
		return ""
	}
	return row.colText[column]
}

// dissect re-reads the record and repopulates whatever is stale:
// column texts, the highlighting verdict, or both. The structured
// parse only runs when something actually needs parser output.
func (row *Row) dissect(sess *Session, dissectColor bool) {
	sch := sess.schema
	if sch == nil || sch.Count() == 0 {
		return
	}
	dissectColumns := len(row.colText) == 0 || row.dataVer != sch.Generation()

	payload, ok := sess.source.ReadRecord(row.meta.Seq)
	if !ok {
		// Can't re-read the record. Cache placeholder columns with an
		// error marker in the info column and consider the row done,
		// so the source is not hammered on every repaint.
		ReadFailures.Inc()
		sess.log.Warn("record read failed", "seq", row.meta.Seq)
		if dissectColumns {
			row.cacheColumnStrings(sess, errorFill(sch, ReadErrorText))
		}
		row.meta.ColorClass = ""
		row.colorized = true
		row.dataVer = sch.Generation()
		return
	}

	// Metadata-only schemas never pay for a parse; neither does a
	// colorize pass with no active rules.
	needDissect := (dissectColor && sess.color.RulesActive()) ||
		(dissectColumns && sch.HasDissected())

	var res *dissect.Result
	if needDissect {
		buildTree := (dissectColor && sess.color.RulesActive()) ||
			(dissectColumns && sch.HasCustom())
		dctx := &dissect.Context{BuildTree: buildTree}
		if dissectColor {
			sess.color.Prime(dctx, row.meta)
		}
		start := time.Now()
		var err error
		res, err = sess.dis.Dissect(payload, sch.Columns(), dctx)
		elapsed := time.Since(start)
		DissectDuration.Observe(elapsed.Seconds())
		DissectCount.WithLabelValues(dissectReason(dissectColumns, dissectColor)).Inc()
		sess.avg.Add(float64(elapsed.Microseconds()))
		if err != nil {
			// Same treatment as an unreadable record, but with its own
			// marker: placeholder texts, and no highlight verdict can
			// be trusted since the completion hook never ran.
			sess.log.Warn("dissection failed", "seq", row.meta.Seq, "err", err)
			res = errorFill(sch, DissectErrorText)
			if dissectColor {
				row.meta.ColorClass = ""
			}
		} else {
			row.conv = sess.flows.Lookup(res.Flow, row.meta.Seq)
		}
	}

	if dissectColumns {
		row.cacheColumnStrings(sess, res)
	}
	if dissectColor {
		row.colorized = true
	}
	row.dataVer = sch.Generation()
}

// cacheColumnStrings fills the column texts for the current schema.
// Metadata columns come straight from the record metadata; dissected
// columns from the parse result, preferring the raw representation
// when name resolution is off. Everything is interned.
func (row *Row) cacheColumnStrings(sess *Session, res *dissect.Result) {
	sch := sess.schema
	prev := row.lines
	lines := 1
	texts := make([]string, sch.Count())
	for i := 0; i < sch.Count(); i++ {
		var str string
		switch {
		case !sch.NeedsDissect(i):
			str = metaColumnText(sch.Column(i), row.meta)
		case res != nil && i < len(res.Cols):
			if !sess.opts.ResolveNames && i < len(res.Raw) && res.Raw[i] != "" {
				str = res.Raw[i]
			} else {
				str = res.Cols[i]
			}
		}
		texts[i] = sess.pool.Intern(str)
		if n := strings.Count(str, "\n") + 1; n > lines {
			lines = n
		}
	}
	row.colText = texts
	row.lineCountChanged = lines != prev
	row.lines = lines
}

func metaColumnText(col columns.Column, meta *capture.RecordMeta) string {
	switch col.Kind {
	case columns.Number:
		return strconv.FormatUint(meta.Seq, 10)
	case columns.Time:
		return meta.Time.Format(timeFormat)
	case columns.Length:
		return strconv.Itoa(meta.Len)
	}
	return ""
}

func errorFill(sch *columns.Schema, marker string) *dissect.Result {
	res := dissect.NewResult(sch.Count())
	for i := 0; i < sch.Count(); i++ {
		if sch.NeedsDissect(i) {
			res.Cols[i] = placeholderText
		}
	}
	if info := sch.InfoColumn(); info >= 0 {
		res.Cols[info] = marker
	}
	return res
}
