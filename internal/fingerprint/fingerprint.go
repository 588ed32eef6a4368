// Package fingerprint computes content fingerprints for files, symbolic links
// and remote resources. A fingerprint is the git blob hash of the content:
// SHA-1 over "blob <length>\x00" followed by the bytes.
package fingerprint

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

// chunkSize bounds the memory used while hashing a stream.
const chunkSize = 64 * 1024

var (
	// ErrNotSupported is returned for paths that cannot be addressed, such as directories.
	ErrNotSupported = errors.New("not supported")
	// ErrTransport is returned when a remote resource cannot be fetched completely.
	ErrTransport = errors.New("transport error")
	// ErrFileChanged is returned when a local file changes size while it is hashed.
	ErrFileChanged = errors.New("file changed while hashing")
)

// IntegrityError reports a stream whose length differs from the declared one.
type IntegrityError struct {
	Source   string
	Expected int64
	Actual   int64
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s: expected %d bytes, found %d bytes", e.Source, e.Expected, e.Actual)
}

// Is makes errors.Is(err, ErrTransport) match size mismatches.
func (e *IntegrityError) Is(target error) bool {
	return target == ErrTransport
}

func newHasher(size int64) hash.Hash {
	h := sha1.New()
	fmt.Fprintf(h, "blob %d\x00", size)
	return h
}

// HashBytes returns the fingerprint of data.
func HashBytes(data []byte) string {
	h := newHasher(int64(len(data)))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// HashReader streams r in fixed-size chunks and returns its fingerprint.
// The stream is always read to the end before a length mismatch is reported.
func HashReader(r io.Reader, size int64, source string) (string, error) {
	sum, n, err := hashStream(r, size)
	if err != nil {
		return "", fmt.Errorf("%w: reading %s: %v", ErrTransport, source, err)
	}
	if n != size {
		return "", &IntegrityError{Source: source, Expected: size, Actual: n}
	}
	return sum, nil
}

func hashStream(r io.Reader, size int64) (string, int64, error) {
	h := newHasher(size)
	buf := make([]byte, chunkSize)
	n, err := io.CopyBuffer(h, r, buf)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// HashFile returns the fingerprint of a local path. Symbolic links are hashed
// over their target string so a moved link and a retargeted link differ.
func HashFile(path string) (string, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return "", err
	}
	switch {
	case info.IsDir():
		return "", fmt.Errorf("%w: %s is a directory", ErrNotSupported, path)
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(path)
		if err != nil {
			return "", fmt.Errorf("failed to read link %s: %w", path, err)
		}
		return HashBytes([]byte(target)), nil
	case !info.Mode().IsRegular():
		return "", fmt.Errorf("%w: %s is not a regular file", ErrNotSupported, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = f.Close()
	}()
	return hashLocal(f, info.Size(), path)
}

// hashLocal hashes an opened local file whose size was taken before opening.
func hashLocal(r io.Reader, size int64, path string) (string, error) {
	sum, n, err := hashStream(r, size)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	if n != size {
		return "", fmt.Errorf("%w: %s was %d bytes, read %d", ErrFileChanged, path, size, n)
	}
	return sum, nil
}

// IsRemote reports whether location names a network resource.
func IsRemote(location string) bool {
	return strings.Contains(location, "://")
}

// Fetcher opens a remote resource and reports its declared length.
type Fetcher interface {
	Fetch(ctx context.Context, location string) (body io.ReadCloser, size int64, err error)
}

// Addresser fingerprints local paths and remote resources by scheme.
type Addresser struct {
	fetchers map[string]Fetcher
}

// NewAddresser creates an Addresser that serves http and https through the
// given HTTP fetcher. Additional schemes are added with Register.
func NewAddresser(httpFetcher Fetcher) *Addresser {
	a := &Addresser{fetchers: make(map[string]Fetcher)}
	if httpFetcher != nil {
		a.Register("http", httpFetcher)
		a.Register("https", httpFetcher)
	}
	return a
}

// Register binds a URL scheme to a fetcher.
func (a *Addresser) Register(scheme string, f Fetcher) {
	a.fetchers[scheme] = f
}

// Hash returns the fingerprint of a local path or remote URL.
// Remote fetches block until the body is consumed.
func (a *Addresser) Hash(ctx context.Context, location string) (string, error) {
	if !IsRemote(location) {
		return HashFile(location)
	}
	scheme := location[:strings.Index(location, "://")]
	f, ok := a.fetchers[scheme]
	if !ok {
		return "", fmt.Errorf("%w: scheme %s", ErrNotSupported, scheme)
	}
	body, size, err := f.Fetch(ctx, location)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = body.Close()
	}()
	return HashReader(body, size, location)
}
