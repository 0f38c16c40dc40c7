package scan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
)

// DefaultBlockSize is the read size used by Fold.
const DefaultBlockSize = 1 << 20

// foldState is everything Fold carries from one block to the next.
type foldState struct {
	offset      int64 // file offset of the next byte to read
	atLineStart bool
	// openHeader is the start of a header line whose '\n' has not been
	// read yet, or -1.
	openHeader int64
	// pending is the last record seen; its payload end waits for the next
	// header or the end of input.
	pending    Record
	hasPending bool
}

// Fold scans r sequentially, one block at a time, and calls emit once per
// record in file order with every offset resolved. Only the running state
// between blocks is kept, so memory stays bounded by blockSize regardless of
// input size. It returns the total number of bytes read.
func Fold(ctx context.Context, r io.Reader, marker byte, blockSize int, emit func(Record) error) (int64, error) {
	if blockSize < 1 {
		blockSize = DefaultBlockSize
	}
	st := foldState{atLineStart: true, openHeader: -1}
	buf := make([]byte, blockSize)

	for {
		if err := ctx.Err(); err != nil {
			return st.offset, err
		}
		n, rerr := r.Read(buf)
		if n > 0 {
			if err := st.block(buf[:n], marker, emit); err != nil {
				return st.offset, err
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return st.offset, fmt.Errorf("read at %d: %w", st.offset, rerr)
		}
	}
	return st.offset, st.finish(emit)
}

// block advances the state over b, which starts at st.offset.
func (st *foldState) block(b []byte, marker byte, emit func(Record) error) error {
	off := st.offset
	i := 0

	if st.openHeader >= 0 {
		nl := bytes.IndexByte(b, '\n')
		if nl < 0 {
			st.offset += int64(len(b))
			return nil
		}
		end := off + int64(nl)
		st.pending = Record{HeaderStart: st.openHeader, HeaderEnd: end, PayloadStart: end + 1}
		st.hasPending = true
		st.openHeader = -1
		i = nl + 1
	} else if !st.atLineStart {
		nl := bytes.IndexByte(b, '\n')
		if nl < 0 {
			st.offset += int64(len(b))
			return nil
		}
		i = nl + 1
	}

	// i is a line start from here on.
	for i < len(b) {
		nl := bytes.IndexByte(b[i:], '\n')
		if b[i] == marker {
			start := off + int64(i)
			if st.hasPending {
				st.pending.PayloadEnd = Resolved(start - 1)
				if err := emit(st.pending); err != nil {
					return err
				}
				st.hasPending = false
			}
			if nl < 0 {
				st.openHeader = start
				break
			}
			end := start + int64(nl)
			st.pending = Record{HeaderStart: start, HeaderEnd: end, PayloadStart: end + 1}
			st.hasPending = true
		}
		if nl < 0 {
			break
		}
		i += nl + 1
	}

	st.offset += int64(len(b))
	st.atLineStart = b[len(b)-1] == '\n'
	return nil
}

// finish resolves the last record against the total length.
func (st *foldState) finish(emit func(Record) error) error {
	length := st.offset
	if st.openHeader >= 0 {
		st.pending = Record{HeaderStart: st.openHeader, HeaderEnd: length, PayloadStart: length + 1}
		st.hasPending = true
		st.openHeader = -1
	}
	if !st.hasPending {
		return nil
	}
	st.pending.PayloadEnd = Resolved(length - 1)
	st.hasPending = false
	return emit(st.pending)
}
