package columns

// Schema is the versioned column state shared by every row of a
// session. Rebuild bumps the generation exactly once; rows compare
// their stamped generation against it to detect staleness lazily.
type Schema struct {
	gen     uint64
	cols    Descriptor
	dissect map[int]int // display index -> dissect slot
	custom  bool
}

func NewSchema(d Descriptor) *Schema {
	sch := &Schema{}
	sch.Rebuild(d)
	return sch
}

// Rebuild installs a new descriptor and recomputes the dissect-index
// map. Row caches are not touched; they notice the generation change
// on their next read.
func (sch *Schema) Rebuild(d Descriptor) {
	sch.cols = d
	sch.custom = false
	sch.dissect = make(map[int]int)
	j := 0
	for i, c := range d {
		if c.Metadata() {
			continue
		}
		sch.dissect[i] = j
		j++
		if c.Kind == Custom {
			sch.custom = true
		}
	}
	sch.gen++
}

func (sch *Schema) Generation() uint64 {
	return sch.gen
}

func (sch *Schema) Count() int {
	return len(sch.cols)
}

func (sch *Schema) Columns() Descriptor {
	return sch.cols
}

func (sch *Schema) Column(i int) Column {
	return sch.cols[i]
}

// NeedsDissect reports whether display column i can only be filled
// from dissector output.
func (sch *Schema) NeedsDissect(i int) bool {
	_, ok := sch.dissect[i]
	return ok
}

// HasDissected reports whether any displayed column is dissector-derived.
func (sch *Schema) HasDissected() bool {
	return len(sch.dissect) > 0
}

// HasCustom reports whether any displayed column extracts a named
// field, which forces the dissector to build a full tree.
func (sch *Schema) HasCustom() bool {
	return sch.custom
}

func (sch *Schema) InfoColumn() int {
	return sch.cols.InfoColumn()
}
