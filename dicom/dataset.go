package dicom

import (
	"github.com/anthonypark/dicomgo/charset"
	"github.com/anthonypark/dicomgo/tag"
)

// Tag re-exports tag.Tag so callers that only need the dataset API don't
// have to import the tag package directly, matching the teacher's flat
// style of keeping a Tag type alongside Dataset.
type Tag = tag.Tag

// Dataset is an ordered tag->element mapping forming one nesting level of
// a parsed (or to-be-written) DICOM object: the top level, or one
// sequence item. It preserves insertion order (spec.md §4.4's "ordered by
// insertion" requirement) alongside O(1) lookup by tag.
type Dataset struct {
	TransferSyntaxUID string
	Charset           charset.Set

	order    []tag.Tag
	elements map[tag.Tag]*Element
}

// NewDataset returns an empty dataset under the given transfer syntax,
// defaulting its character set to ISO-IR-6.
func NewDataset(transferSyntaxUID string) *Dataset {
	return &Dataset{
		TransferSyntaxUID: transferSyntaxUID,
		Charset:           charset.DefaultSet,
		elements:          make(map[tag.Tag]*Element),
	}
}

// Put inserts or replaces an element, recording insertion order only the
// first time a tag is seen.
func (d *Dataset) Put(e *Element) {
	if d.elements == nil {
		d.elements = make(map[tag.Tag]*Element)
	}
	if _, exists := d.elements[e.Tag]; !exists {
		d.order = append(d.order, e.Tag)
	}
	d.elements[e.Tag] = e
}

// PutValue is a convenience constructor used by callers (command
// builders, test fixtures) that want to add a value without building an
// Element by hand. bigEndian/charset default to this dataset's context.
func (d *Dataset) PutValue(t tag.Tag, code string, val Value) error {
	ts, _ := ResolveTransferSyntax(d.TransferSyntaxUID)
	raw, err := EncodeValue(code, val, ts.BigEndian)
	if err != nil {
		return err
	}
	d.Put(&Element{
		Tag:               t,
		VR:                code,
		Length:            Length{Value: uint32(len(raw))},
		Raw:               raw,
		TransferSyntaxUID: d.TransferSyntaxUID,
		Charset:           d.Charset,
	})
	return nil
}

// PutString is a convenience wrapper for the common single-string case.
func (d *Dataset) PutString(t tag.Tag, code string, s string) error {
	return d.PutValue(t, code, Value{Kind: KindStrings, Strings: []string{s}})
}

// Get returns the element for a tag, or nil if absent (get-by-tag, §4.4).
func (d *Dataset) Get(t tag.Tag) *Element {
	if d == nil {
		return nil
	}
	return d.elements[t]
}

// GetByPath resolves a sequence path of (tag, item-index) hops followed by
// a final leaf tag, implementing §4.4's get-by-tag-path.
func (d *Dataset) GetByPath(path SequencePath, leaf tag.Tag) *Element {
	cur := d
	for _, step := range path {
		seqElem := cur.Get(step.SequenceTag)
		if seqElem == nil || step.ItemIndex >= len(seqElem.Items) {
			return nil
		}
		cur = seqElem.Items[step.ItemIndex]
	}
	return cur.Get(leaf)
}

// GetString returns the decoded string value for a tag, or "" if absent
// or empty, mirroring the common lookup idiom the teacher's handlers use.
func (d *Dataset) GetString(t tag.Tag) string {
	e := d.Get(t)
	if e == nil {
		return ""
	}
	return e.GetString()
}

// Elements returns the elements in insertion order (iterate children,
// §4.4).
func (d *Dataset) Elements() []*Element {
	if d == nil {
		return nil
	}
	out := make([]*Element, 0, len(d.order))
	for _, t := range d.order {
		out = append(out, d.elements[t])
	}
	return out
}

// Len returns the number of top-level elements (count children, §4.4).
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.order)
}

// FlatElement pairs a leaf element with the sequence path locating it,
// the unit returned by Flatten.
type FlatElement struct {
	Path    SequencePath
	Element *Element
}

// Flatten performs a pre-order traversal of all leaf elements with their
// sequence paths (§4.4). Sequence-container elements themselves are not
// included; their items are descended into.
func (d *Dataset) Flatten() []FlatElement {
	var out []FlatElement
	var walk func(ds *Dataset, prefix SequencePath)
	walk = func(ds *Dataset, prefix SequencePath) {
		for _, e := range ds.Elements() {
			if e.IsSequence() {
				for i, item := range e.Items {
					step := append(append(SequencePath{}, prefix...), SequencePathStep{SequenceTag: e.Tag, ItemIndex: i})
					walk(item, step)
				}
				continue
			}
			out = append(out, FlatElement{Path: prefix, Element: e})
		}
	}
	walk(d, nil)
	return out
}
