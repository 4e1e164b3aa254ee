// Package compress implements the reversible text codec used by the message
// store to keep large message and summary text compact at rest. Compressed
// values share TEXT columns with plain values, so the encoded form is
// base64 over a sentinel-prefixed zlib stream. Both directions are total:
// on any internal error the input is returned unchanged.
package compress

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
)

// sentinel marks the start of a compressed payload after base64 decoding.
// A value that decodes but does not start with it was stored uncompressed.
var sentinel = []byte("RCZ1")

// minCompressSize is the UTF-8 byte length below which compression is
// skipped; zlib overhead makes short strings larger, not smaller.
const minCompressSize = 100

// Compress returns the stored form of text. Short strings, already-compressed
// strings, and strings that do not shrink are returned unchanged, so the
// function is idempotent and never fails.
func Compress(text string) string {
	if text == "" {
		return text
	}
	if isEncoded(text) {
		return text
	}
	if len(text) < minCompressSize {
		return text
	}

	var buf bytes.Buffer
	buf.Write(sentinel)
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write([]byte(text)); err != nil {
		slog.Warn("Compression failed, storing text uncompressed", "error", err)
		return text
	}
	if err := zw.Close(); err != nil {
		slog.Warn("Compression failed, storing text uncompressed", "error", err)
		return text
	}

	encoded := base64.StdEncoding.EncodeToString(buf.Bytes())
	if len(encoded) >= len(text) {
		return text
	}
	return encoded
}

// Decompress reverses Compress. Values that were never encoded come back
// unchanged; a corrupt compressed payload is logged and returned as-is
// rather than surfaced to the caller.
func Decompress(stored string) string {
	if stored == "" {
		return stored
	}

	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil || !bytes.HasPrefix(raw, sentinel) {
		return stored
	}

	zr, err := zlib.NewReader(bytes.NewReader(raw[len(sentinel):]))
	if err != nil {
		slog.Warn("Failed to open compressed payload, returning stored form", "error", err)
		return stored
	}
	defer func() {
		if closeErr := zr.Close(); closeErr != nil {
			slog.Debug("Error closing zlib reader", "error", closeErr)
		}
	}()

	text, err := io.ReadAll(zr)
	if err != nil {
		slog.Warn("Failed to inflate compressed payload, returning stored form", "error", err)
		return stored
	}
	return string(text)
}

// isEncoded reports whether s already carries the codec's encoded form.
func isEncoded(s string) bool {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return false
	}
	return bytes.HasPrefix(raw, sentinel)
}

// CompressJSON serializes v to compact JSON and compresses the result.
func CompressJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return Compress(string(data)), nil
}

// DecompressJSON decompresses stored and unmarshals the JSON into v.
// An empty stored value leaves v untouched.
func DecompressJSON(stored string, v any) error {
	if stored == "" {
		return nil
	}
	return json.Unmarshal([]byte(Decompress(stored)), v)
}
