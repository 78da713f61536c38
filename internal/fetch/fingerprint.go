package fetch

import (
	"fmt"
	"io"
	"os"

	"github.com/zeebo/xxh3"
)

// Fingerprint hashes a downloaded file with XXH3-128 and returns the hex
// digest. The pipeline logs it so two runs can be compared against the same
// snapshot without re-reading the data.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("fetch: open %s: %w", path, err)
	}
	defer f.Close()

	h := xxh3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("fetch: hash %s: %w", path, err)
	}
	sum := h.Sum128().Bytes()
	return fmt.Sprintf("%x", sum), nil
}
