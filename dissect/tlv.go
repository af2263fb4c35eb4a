package dissect

import (
	"strings"

	"github.com/cespare/xxhash"
	"github.com/learn-decentralized-systems/toytlv"
	"github.com/packline/packline/columns"
)

// Record layout the TLV dissector understands:
//
//	S source address    D destination address
//	O protocol name     I info text
//	F "key=value"       (repeated; the field tree)
//
// Unknown record types are skipped. A payload that does not parse at
// all still yields a usable Result with a malformed marker in the
// info column; dissection never fails a row.

const (
	MalformedInfo   = "[ Malformed record ]"
	UnknownProtocol = "UNKNOWN"
)

type TLV struct {
	resolver *Resolver
}

func NewTLV(resolver *Resolver) *TLV {
	if resolver == nil {
		resolver = NewResolver(nil)
	}
	return &TLV{resolver: resolver}
}

type tlvFields struct {
	src, dst, proto, info string
	fields                map[string]string
	malformed             bool
}

func (d *TLV) scan(payload []byte, buildTree bool) (f tlvFields) {
	rest := payload
	for len(rest) > 0 {
		lit, body, next, err := toytlv.TakeAnyWary(rest)
		if err != nil || lit == 0 || body == nil {
			f.malformed = true
			break
		}
		switch lit {
		case 'S':
			f.src = string(body)
		case 'D':
			f.dst = string(body)
		case 'O':
			f.proto = string(body)
		case 'I':
			f.info = string(body)
		case 'F':
			if !buildTree {
				break
			}
			if f.fields == nil {
				f.fields = make(map[string]string)
			}
			key, value, ok := strings.Cut(string(body), "=")
			if ok {
				f.fields[key] = value
			}
		}
		rest = next
	}
	if f.proto == "" {
		f.proto = UnknownProtocol
	}
	if f.malformed {
		f.info = MalformedInfo
	}
	return
}

func flowKey(src, dst, proto string) uint64 {
	// Direction-insensitive: both sides of a conversation hash alike.
	lo, hi := src, dst
	if lo > hi {
		lo, hi = hi, lo
	}
	key := make([]byte, 0, len(lo)+len(hi)+len(proto)+2)
	key = append(key, lo...)
	key = append(key, 0)
	key = append(key, hi...)
	key = append(key, 0)
	key = append(key, proto...)
	return xxhash.Sum64(key)
}

func (d *TLV) Dissect(payload []byte, desc columns.Descriptor, dctx *Context) (*Result, error) {
	f := d.scan(payload, dctx.BuildTree)
	if dctx.BuildTree {
		// Built-in fields are part of the tree too, so highlighting
		// rules and custom columns can match on them.
		if f.fields == nil {
			f.fields = make(map[string]string)
		}
		f.fields["proto"] = f.proto
		f.fields["src"] = f.src
		f.fields["dst"] = f.dst
	}

	res := NewResult(len(desc))
	res.Fields = f.fields
	res.Flow = flowKey(f.src, f.dst, f.proto)
	for i, col := range desc {
		switch col.Kind {
		case columns.Source:
			res.Cols[i] = d.resolver.Resolve(f.src)
			res.Raw[i] = f.src
		case columns.Dest:
			res.Cols[i] = d.resolver.Resolve(f.dst)
			res.Raw[i] = f.dst
		case columns.Protocol:
			res.Cols[i] = f.proto
		case columns.Info:
			res.Cols[i] = f.info
		case columns.Custom:
			res.Cols[i] = f.fields[col.Field]
		}
	}
	dctx.Complete(res)
	return res, nil
}
