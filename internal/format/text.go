package format

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"fastaidx/internal/index"
)

const textBufferSize = 64 << 10

var ErrMalformedText = errors.New("malformed text index")

// WriteText writes one line per entry:
//
//	header_start header_end payload_start payload_end
//
// in base 10, in index order, and nothing else.
func WriteText(w io.Writer, idx index.Index) error {
	bw := bufio.NewWriterSize(w, textBufferSize)
	line := make([]byte, 0, 4*20+4)
	for _, e := range idx.Entries {
		line = appendFields(line[:0], e.HeaderStart, e.HeaderEnd, e.PayloadStart, e.PayloadEnd)
		if _, err := bw.Write(line); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteHeaders writes only the header range of each entry, one
// "header_start header_end" line per record.
func WriteHeaders(w io.Writer, idx index.Index) error {
	bw := bufio.NewWriterSize(w, textBufferSize)
	line := make([]byte, 0, 2*20+2)
	for _, e := range idx.Entries {
		line = appendFields(line[:0], e.HeaderStart, e.HeaderEnd)
		if _, err := bw.Write(line); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func appendFields(b []byte, vals ...int64) []byte {
	for i, v := range vals {
		if i > 0 {
			b = append(b, ' ')
		}
		b = strconv.AppendInt(b, v, 10)
	}
	return append(b, '\n')
}

// ReadText parses the output of WriteText. The text form does not carry the
// file length; it is taken from the last payload end.
func ReadText(r io.Reader) (index.Index, error) {
	var idx index.Index
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, textBufferSize), textBufferSize)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		fields := bytes.Fields(sc.Bytes())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 4 {
			return index.Index{}, fmt.Errorf("%w: line %d has %d fields", ErrMalformedText, lineNo, len(fields))
		}
		var v [4]int64
		for i, f := range fields {
			n, err := strconv.ParseInt(string(f), 10, 64)
			if err != nil {
				return index.Index{}, fmt.Errorf("%w: line %d: %w", ErrMalformedText, lineNo, err)
			}
			v[i] = n
		}
		idx.Entries = append(idx.Entries, index.Entry{
			HeaderStart:  v[0],
			HeaderEnd:    v[1],
			PayloadStart: v[2],
			PayloadEnd:   v[3],
		})
	}
	if err := sc.Err(); err != nil {
		return index.Index{}, err
	}
	if n := len(idx.Entries); n > 0 {
		idx.Length = idx.Entries[n-1].PayloadEnd + 1
	}
	return idx, nil
}
