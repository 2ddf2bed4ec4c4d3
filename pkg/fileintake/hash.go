package fileintake

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// DigestBytes computes the content digest for uploaded bytes: hex-encoded
// SHA-256 over the exact byte stream, independent of filename or metadata.
func DigestBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DigestReader computes the content digest of a stream.
func DigestReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
