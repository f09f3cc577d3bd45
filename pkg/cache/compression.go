package cache

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
)

// CompressionTag selects the compression variant of an archive payload
// envelope, per spec.md §3/§4.2.
type CompressionTag byte

const (
	CompressionNone  CompressionTag = 0
	CompressionBZIP2 CompressionTag = 1
	CompressionGZIP  CompressionTag = 2
)

// bzip2H1Header is the two-byte prefix ("BZ") the original on-disk format
// strips from every bzip2 stream; it must be re-prepended before handing
// bytes to a decompressor and removed again after compressing, per
// spec.md §4.2.
var bzip2H1Header = []byte{'B', 'Z'}

func decompress(tag CompressionTag, data []byte) ([]byte, error) {
	switch tag {
	case CompressionNone:
		return data, nil
	case CompressionBZIP2:
		framed := make([]byte, 0, len(bzip2H1Header)+len(data))
		framed = append(framed, bzip2H1Header...)
		framed = append(framed, data...)
		r, err := bzip2.NewReader(bytes.NewReader(framed), nil)
		if err != nil {
			return nil, fmt.Errorf("%w: bzip2: %v", ErrMalformed, err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("%w: bzip2: %v", ErrMalformed, err)
		}
		return out, nil
	case CompressionGZIP:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %v", ErrMalformed, err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %v", ErrMalformed, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown compression tag %d", ErrMalformed, tag)
	}
}

func compress(tag CompressionTag, data []byte) ([]byte, error) {
	switch tag {
	case CompressionNone:
		return data, nil
	case CompressionBZIP2:
		var buf bytes.Buffer
		w, err := bzip2.NewWriter(&buf, &bzip2.WriterConfig{Level: 6})
		if err != nil {
			return nil, fmt.Errorf("%w: bzip2: %v", ErrIOFailure, err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("%w: bzip2: %v", ErrIOFailure, err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("%w: bzip2: %v", ErrIOFailure, err)
		}
		out := buf.Bytes()
		if len(out) < len(bzip2H1Header) || !bytes.Equal(out[:len(bzip2H1Header)], bzip2H1Header) {
			return nil, fmt.Errorf("%w: bzip2 stream missing expected header", ErrMalformed)
		}
		return out[len(bzip2H1Header):], nil
	case CompressionGZIP:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("%w: gzip: %v", ErrIOFailure, err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("%w: gzip: %v", ErrIOFailure, err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: unknown compression tag %d", ErrMalformed, tag)
	}
}
