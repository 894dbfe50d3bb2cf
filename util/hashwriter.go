package util

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"hash"
	"io"
	"strings"
)

// Algorithm names as they appear in BagIt manifest file names, e.g.
// "manifest-sha256.txt".
const (
	MD5    = "md5"
	SHA1   = "sha1"
	SHA256 = "sha256"
	SHA512 = "sha512"
)

// ErrUnknownAlgorithm is returned when asked for a checksum algorithm
// that is not one of MD5, SHA1, SHA256, or SHA512.
var ErrUnknownAlgorithm = errors.New("unknown checksum algorithm")

// NewHash returns a new hash.Hash for the named algorithm.
func NewHash(alg string) (hash.Hash, error) {
	switch alg {
	case MD5:
		return md5.New(), nil
	case SHA1:
		return sha1.New(), nil
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	}
	return nil, ErrUnknownAlgorithm
}

// VerifyStreamHash checksums the given io.Reader with the algorithm alg and
// compares the result against goal, which is a hex string. The comparison
// ignores case. It returns the computed hex checksum, whether it matched,
// and the number of bytes read. The reader is not closed when finished.
func VerifyStreamHash(r io.Reader, alg, goal string) (string, bool, int64, error) {
	hw, err := NewHashWriterPlain(alg)
	if err != nil {
		return "", false, 0, err
	}
	n, err := io.Copy(hw, r)
	computed, ok := hw.Check(alg, goal)
	return computed, ok, n, err
}

// An HashWriter wraps an io.Writer and also calculates one or more hashes
// of the bytes written.
type HashWriter struct {
	io.Writer // our io.MultiWriter
	hashes    map[string]hash.Hash
}

// NewHashWriter returns a HashWriter wrapping w and computing a hash for
// each of the given algorithms.
func NewHashWriter(w io.Writer, algs ...string) (*HashWriter, error) {
	hw := &HashWriter{hashes: make(map[string]hash.Hash, len(algs))}
	var writers []io.Writer
	if w != nil {
		writers = append(writers, w)
	}
	for _, alg := range algs {
		if _, ok := hw.hashes[alg]; ok {
			continue
		}
		h, err := NewHash(alg)
		if err != nil {
			return nil, err
		}
		hw.hashes[alg] = h
		writers = append(writers, h)
	}
	hw.Writer = io.MultiWriter(writers...)
	return hw, nil
}

// NewHashWriterPlain return a HashWriter that does not wrap an output stream.
// It will just compute the checksums of the data written to it.
func NewHashWriterPlain(algs ...string) (*HashWriter, error) {
	return NewHashWriter(nil, algs...)
}

// Sum returns the hex encoded checksum for alg, or the empty string if this
// writer is not computing that algorithm.
func (hw *HashWriter) Sum(alg string) string {
	h, ok := hw.hashes[alg]
	if !ok {
		return ""
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Check returns the hex checksum for alg and compares it with the goal
// checksum, ignoring case. If the goal is empty then it is treated as
// matching, and true is returned.
func (hw *HashWriter) Check(alg, goal string) (string, bool) {
	computed := hw.Sum(alg)
	ok := goal == "" || strings.EqualFold(goal, computed)
	return computed, ok
}
