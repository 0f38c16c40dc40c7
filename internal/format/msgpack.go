package format

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"fastaidx/internal/index"
)

// msgpackDoc is the msgpack shape of a Document. Entries are positional
// arrays to keep the encoding compact.
type msgpackDoc struct {
	ID      string     `msgpack:"id"`
	Marker  byte       `msgpack:"marker,omitempty"`
	Length  int64      `msgpack:"length"`
	Entries [][4]int64 `msgpack:"entries"`
}

// EncodeMsgpack writes doc as one msgpack map.
func EncodeMsgpack(w io.Writer, doc Document) error {
	m := msgpackDoc{
		ID:      doc.ID.String(),
		Marker:  doc.Marker,
		Length:  doc.Index.Length,
		Entries: make([][4]int64, len(doc.Index.Entries)),
	}
	for i, e := range doc.Index.Entries {
		m.Entries[i] = [4]int64{e.HeaderStart, e.HeaderEnd, e.PayloadStart, e.PayloadEnd}
	}
	return msgpack.NewEncoder(w).Encode(&m)
}

// DecodeMsgpack reads one document written by EncodeMsgpack.
func DecodeMsgpack(r io.Reader) (Document, error) {
	var m msgpackDoc
	if err := msgpack.NewDecoder(r).Decode(&m); err != nil {
		return Document{}, fmt.Errorf("decode msgpack index: %w", err)
	}
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return Document{}, fmt.Errorf("decode msgpack index id: %w", err)
	}
	doc := Document{ID: id, Marker: m.Marker, Index: index.Index{Length: m.Length}}
	if len(m.Entries) > 0 {
		doc.Index.Entries = make([]index.Entry, len(m.Entries))
	}
	for i, v := range m.Entries {
		doc.Index.Entries[i] = index.Entry{HeaderStart: v[0], HeaderEnd: v[1], PayloadStart: v[2], PayloadEnd: v[3]}
	}
	return doc, nil
}
