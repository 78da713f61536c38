package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// ErrNoSource is returned when every configured URL fails.
var ErrNoSource = errors.New("fetch: all dataset sources failed")

// Download fetches the dataset from the first URL that succeeds, writing it
// to dest atomically (temp file + rename). URLs beyond the first act as
// fallback mirrors.
//
// When the server sends Content-Length, the downloaded size is verified
// against it; a short read counts as a failure and the next mirror is tried.
func (c *Client) Download(ctx context.Context, urls []string, dest string) error {
	if len(urls) == 0 {
		return fmt.Errorf("fetch: no source urls configured")
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("fetch: create data dir: %w", err)
	}

	var lastErr error
	for _, url := range urls {
		err := c.downloadOne(ctx, url, dest)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		c.logf("fetch: source failed url=%s err=%v", url, err)
		lastErr = err
	}
	return fmt.Errorf("%w: %v", ErrNoSource, lastErr)
}

func (c *Client) downloadOne(ctx context.Context, url, dest string) error {
	resp, err := c.get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return fmt.Errorf("fetch: status %d from %s", resp.StatusCode, url)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return fmt.Errorf("fetch: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("fetch: write %s: %w", dest, err)
	}

	if want := resp.Header.Get("Content-Length"); want != "" {
		expected, perr := strconv.ParseInt(want, 10, 64)
		if perr == nil && expected > 0 && n != expected {
			return fmt.Errorf("fetch: size mismatch for %s: got %d bytes, expected %d", url, n, expected)
		}
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("fetch: finalize %s: %w", dest, err)
	}
	c.logf("fetch: downloaded url=%s dest=%s bytes=%d", url, dest, n)
	return nil
}
