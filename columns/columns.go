package columns

// A column descriptor is the ordered list of columns a packet list
// displays. Metadata columns (number, time, length) are filled straight
// from record metadata; every other kind needs a dissected record.
// Custom columns additionally need the dissector to build a full field
// tree, since they read an arbitrary extracted field by name.

import (
	"strings"

	"github.com/packline/packline/packline_errors"
)

type Kind byte

const (
	Number   Kind = 'N' // record sequence number
	Time     Kind = 'T' // capture timestamp
	Length   Kind = 'L' // captured length
	Source   Kind = 'S'
	Dest     Kind = 'D'
	Protocol Kind = 'P'
	Info     Kind = 'I'
	Custom   Kind = 'C' // extracted field value, by Field name
)

type Column struct {
	Title string
	Kind  Kind
	Field string // set for Custom only
}

// Metadata reports whether the column can be filled from record
// metadata alone, without dissecting the record.
func (c Column) Metadata() bool {
	switch c.Kind {
	case Number, Time, Length:
		return true
	}
	return false
}

func (c Column) Valid() bool {
	switch c.Kind {
	case Number, Time, Length, Source, Dest, Protocol, Info:
		return c.Title != ""
	case Custom:
		return c.Title != "" && c.Field != ""
	}
	return false
}

type Descriptor []Column

func (d Descriptor) Valid() bool {
	for _, c := range d {
		if !c.Valid() {
			return false
		}
	}
	return len(d) > 0
}

// InfoColumn returns the display index of the first Info column, or -1.
// Read errors are reported through this column.
func (d Descriptor) InfoColumn() int {
	for i, c := range d {
		if c.Kind == Info {
			return i
		}
	}
	return -1
}

var specKinds = map[string]Kind{
	"num":   Number,
	"time":  Time,
	"len":   Length,
	"src":   Source,
	"dst":   Dest,
	"proto": Protocol,
	"info":  Info,
}

var specTitles = map[Kind]string{
	Number:   "No.",
	Time:     "Time",
	Length:   "Length",
	Source:   "Source",
	Dest:     "Destination",
	Protocol: "Protocol",
	Info:     "Info",
}

// ParseSpec parses a comma-separated column spec, e.g.
// "num,time,src,dst,proto,len,info" or "num,field:stream.id,info".
func ParseSpec(spec string) (Descriptor, error) {
	var d Descriptor
	for _, tok := range strings.Split(spec, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if name, ok := strings.CutPrefix(tok, "field:"); ok {
			if name == "" {
				return nil, packline_errors.ErrBadColumnSpec
			}
			d = append(d, Column{Title: name, Kind: Custom, Field: name})
			continue
		}
		kind, ok := specKinds[tok]
		if !ok {
			return nil, packline_errors.ErrBadColumnSpec
		}
		d = append(d, Column{Title: specTitles[kind], Kind: kind})
	}
	if !d.Valid() {
		return nil, packline_errors.ErrBadColumnSpec
	}
	return d, nil
}
