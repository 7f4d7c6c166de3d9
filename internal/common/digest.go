package common

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"os"
)

// Digest accumulates a SHA-256 over capture bytes as they stream
// through the decoder.
type Digest struct {
	h hash.Hash
}

func NewDigest() *Digest {
	return &Digest{h: sha256.New()}
}

func (d *Digest) Write(p []byte) (int, error) {
	return d.h.Write(p)
}

// Hex returns the accumulated digest as lowercase hex.
func (d *Digest) Hex() string {
	return hex.EncodeToString(d.h.Sum(nil))
}

// FileDigest hashes an entire capture file, returning the hex digest
// and the file size.
func FileDigest(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", 0, err
	}
	d := NewDigest()
	if _, err := io.Copy(d, f); err != nil {
		return "", 0, err
	}
	return d.Hex(), info.Size(), nil
}
