package workday

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

func gzipBytes(t testing.TB, text string) []byte {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte(text))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func zlibBytes(t testing.TB, text string) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write([]byte(text))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func flateBytes(t testing.TB, text string) []byte {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	require.NoError(t, err)
	_, err = w.Write([]byte(text))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func zstdBytes(t testing.TB, text string) []byte {
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close()
	return enc.EncodeAll([]byte(text), nil)
}

func TestDecodeBody(t *testing.T) {
	const text = `{"widget": "page"}`

	testCases := []struct {
		name     string
		body     []byte
		encoding string
	}{
		{name: "no encoding", body: []byte(text), encoding: ""},
		{name: "identity", body: []byte(text), encoding: "identity"},
		{name: "gzip inflated by resty", body: []byte(text), encoding: "gzip"},
		{name: "x-gzip", body: gzipBytes(t, text), encoding: "x-gzip"},
		{name: "padded gzip", body: gzipBytes(t, text), encoding: " gzip"},
		{name: "zlib deflate", body: zlibBytes(t, text), encoding: "deflate"},
		{name: "raw deflate", body: flateBytes(t, text), encoding: "deflate"},
		{name: "zstd", body: zstdBytes(t, text), encoding: "zstd"},
		{name: "case and spaces", body: zstdBytes(t, text), encoding: " ZSTD "},
		{
			name:     "stacked",
			body:     zstdBytes(t, string(zlibBytes(t, text))),
			encoding: "deflate, zstd",
		},
		{
			name:     "stacked gzip",
			body:     zstdBytes(t, string(gzipBytes(t, text))),
			encoding: "gzip, zstd",
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			out, err := decodeBody(test.body, test.encoding)
			require.NoError(t, err)
			require.Equal(t, text, string(out))
		})
	}
}

func TestDecodeBodyKeepsGzipFiles(t *testing.T) {
	archive := gzipBytes(t, "archive contents")

	out, err := decodeBody(archive, "gzip")
	require.NoError(t, err)
	require.Equal(t, archive, out)

	out, err = decodeBody(archive, "identity")
	require.NoError(t, err)
	require.Equal(t, archive, out)
}

func TestDecodeBodyErrors(t *testing.T) {
	_, err := decodeBody([]byte("x"), "br")
	require.ErrorContains(t, err, "unsupported")

	_, err = decodeBody([]byte("definitely not zstd"), "zstd")
	require.Error(t, err)
}
