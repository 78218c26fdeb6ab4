package verify

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tanq16/mirrorget/internal/utils"
)

// FileSHA256 streams path through SHA-256 in fixed-size chunks and returns the lower-case hex digest.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("error opening file for hashing: %w", err)
	}
	defer f.Close()
	h := sha256.New()
	buffer := make([]byte, utils.DefaultBufferSize)
	if _, err := io.CopyBuffer(h, f, buffer); err != nil {
		return "", fmt.Errorf("error hashing file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify reports whether the digest of path starts with expectedPrefix.
// The comparison is a prefix match so short hashes from model catalogues work.
func Verify(path, expectedPrefix string) (bool, error) {
	digest, err := FileSHA256(path)
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(digest, strings.ToLower(strings.TrimSpace(expectedPrefix))), nil
}
