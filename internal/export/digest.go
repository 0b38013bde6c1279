package export

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/blake2b"
)

// ErrDigestMismatch is returned when a file no longer matches its
// recorded digest.
var ErrDigestMismatch = errors.New("export: digest mismatch")

// Digest returns the hex BLAKE2b-256 digest of r.
func Digest(r io.Reader) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DigestFile returns the digest of the file at path and its size.
func DigestFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", 0, err
	}
	sum, err := Digest(f)
	if err != nil {
		return "", 0, fmt.Errorf("digest %s: %w", path, err)
	}
	return sum, info.Size(), nil
}

// VerifyFile checks that the file at path still has digest want.
func VerifyFile(path, want string) error {
	got, _, err := DigestFile(path)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: %s: got %s, want %s", ErrDigestMismatch, path, got, want)
	}
	return nil
}
