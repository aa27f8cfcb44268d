package httpx

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

var (
	ErrDecodedTooLarge     = errors.New("decoded body exceeds limit")
	ErrUnsupportedEncoding = errors.New("unsupported content-encoding")
)

// DecodeBounded decodes a request body according to its Content-Encoding
// header. Chained encodings (e.g. "gzip, br") are undone right to left and
// each stage stops reading once it has produced more than limit bytes.
// A limit <= 0 disables the cap.
// Returns the decoded body and whether it changed.
func DecodeBounded(contentEncoding string, body []byte, limit int64) ([]byte, bool, error) {
	if strings.TrimSpace(contentEncoding) == "" {
		return body, false, nil
	}
	compressions := strings.Split(contentEncoding, ",")
	changed := false
	for i := len(compressions) - 1; i >= 0; i-- {
		var out []byte
		var err error
		switch strings.TrimSpace(strings.ToLower(compressions[i])) {
		case "br":
			out, err = readBounded(brotli.NewReader(bytes.NewReader(body)), limit)
		case "gzip", "x-gzip":
			var gr *gzip.Reader
			gr, err = gzip.NewReader(bytes.NewReader(body))
			if err != nil {
				return nil, false, err
			}
			out, err = readBounded(gr, limit)
			if cerr := gr.Close(); err == nil && cerr != nil {
				err = cerr
			}
		case "zstd":
			var dec *zstd.Decoder
			dec, err = zstd.NewReader(bytes.NewReader(body), zstd.WithDecoderConcurrency(1))
			if err != nil {
				return nil, false, err
			}
			out, err = readBounded(dec, limit)
			dec.Close()
		case "deflate":
			out, err = inflate(body, limit)
		case "identity", "":
			continue
		default:
			return nil, false, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, strings.TrimSpace(compressions[i]))
		}
		if err != nil {
			return nil, false, err
		}
		body = out
		changed = true
	}
	return body, changed, nil
}

// inflate tries zlib-wrapped deflate first, as the RFC requires, then raw.
func inflate(body []byte, limit int64) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(body))
	if err == nil {
		out, rerr := readBounded(zr, limit)
		cerr := zr.Close()
		if rerr != nil {
			return nil, rerr
		}
		return out, cerr
	}
	fr := flate.NewReader(bytes.NewReader(body))
	out, rerr := readBounded(fr, limit)
	cerr := fr.Close()
	if rerr != nil {
		return nil, rerr
	}
	return out, cerr
}

func readBounded(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	out, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(out)) > limit {
		return nil, ErrDecodedTooLarge
	}
	return out, nil
}
