// Package fingerprint derives a stable identity for a media file, used to
// spot an already uploaded source before creating a new record.
//
// The fingerprint is sha256(le64(size) ++ first 2 MiB of content), hex
// encoded. It is a duplicate detector, not an integrity check.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/mediaflow/internal/common"
)

// PrefixSize is how much content takes part in the hash.
const PrefixSize = 2 * common.MiB

// Of fingerprints the first size bytes readable from r.
func Of(r io.ReaderAt, size int64) (string, error) {
	if size < 0 {
		return "", fmt.Errorf("negative size %d: %w", size, common.ErrInvalidArgument)
	}

	h := sha256.New()

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(size))
	h.Write(lenBuf[:])

	n := size
	if n > PrefixSize {
		n = PrefixSize
	}
	if _, err := io.Copy(h, io.NewSectionReader(r, 0, n)); err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read prefix: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// File fingerprints the file at path.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	return Of(f, info.Size())
}
