package workday

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// decodeBody undoes the content-encoding of a response body. Encodings are
// applied in the order listed, so they are removed in reverse.
//
// resty inflates responses whose content-encoding is exactly "gzip", those
// bodies are already decoded and may well be gzip files themselves.
func decodeBody(body []byte, contentEncoding string) ([]byte, error) {
	if strings.EqualFold(contentEncoding, "gzip") {
		return body, nil
	}

	encodings := strings.Split(contentEncoding, ",")
	for i := len(encodings) - 1; i >= 0; i-- {
		encoding := strings.ToLower(strings.TrimSpace(encodings[i]))

		var err error
		switch encoding {
		case "", "identity":
			continue
		case "gzip", "x-gzip":
			var r *gzip.Reader
			r, err = gzip.NewReader(bytes.NewReader(body))
			if err == nil {
				body, err = readAll(r)
			}
		case "deflate":
			body, err = inflate(body)
		case "zstd":
			var dec *zstd.Decoder
			dec, err = zstd.NewReader(nil)
			if err == nil {
				body, err = dec.DecodeAll(body, nil)
				dec.Close()
			}
		default:
			return nil, fmt.Errorf("unsupported content-encoding %q", encoding)
		}
		if err != nil {
			return nil, fmt.Errorf("decode %s body: %w", encoding, err)
		}
	}
	return body, nil
}

// "deflate" is zlib wrapped per the RFC, though some servers send raw deflate.
func inflate(body []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(body))
	if err == nil {
		out, err := readAll(r)
		if err == nil {
			return out, nil
		}
	}
	return readAll(flate.NewReader(bytes.NewReader(body)))
}

func readAll(r io.ReadCloser) ([]byte, error) {
	defer r.Close()
	return io.ReadAll(r)
}
