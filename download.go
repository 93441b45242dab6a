package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	_url "net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"

	"go.cluttr.dev/formula/internal/metaerr"
)

// Fetcher retrieves source archives into a download cache.
type Fetcher struct {
	Client   *http.Client
	CacheDir string

	// Progress receives a progress bar while downloading; nil disables it.
	Progress io.Writer
}

// Fetch returns the local path of the archive behind url. A cached file is
// reused when its digest equals want, otherwise the archive is downloaded
// again.
func (f *Fetcher) Fetch(ctx context.Context, url string, want string) (string, error) {
	dir := filepath.Join(f.CacheDir, "downloads")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", categorize(ErrDownload, fmt.Errorf("create cache dir: %w", err), "dir", dir)
	}

	dst := filepath.Join(dir, cacheFileName(url))
	if _, err := os.Stat(dst); err == nil {
		if err := Verify(dst, want); err == nil {
			slog.Debug("using cached download", "url", url, "path", dst)
			return dst, nil
		}
		slog.Debug("discarding stale cached download", "url", url, "path", dst)
		_ = os.Remove(dst)
	}

	client := f.Client
	if client == nil {
		client = defaultClient()
	}
	if err := Download(ctx, client, url, dst, f.Progress); err != nil {
		return "", categorize(ErrDownload, fmt.Errorf("download %s: %w", url, err), "url", url)
	}
	return dst, nil
}

// Download retrieves the resource at url and saves it as dst. The content is
// written next to dst first and only moved into place once complete.
func Download(ctx context.Context, client *http.Client, url string, dst string, progress io.Writer) error {
	u, err := _url.Parse(url)
	if err != nil {
		return err
	}

	var (
		body io.ReadCloser
		size int64 = -1
	)
	switch u.Scheme {
	case "file":
		file, err := os.Open(u.Path)
		if err != nil {
			return err
		}
		if info, err := file.Stat(); err == nil {
			size = info.Size()
		}
		body = file
	default:
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			_ = resp.Body.Close()
			return metaerr.WithMetadata(
				fmt.Errorf("%d - %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
				"status", resp.StatusCode,
			)
		}
		body = resp.Body
		size = resp.ContentLength
	}
	defer func() {
		_ = body.Close()
	}()

	tmp := filepath.Join(filepath.Dir(dst), fmt.Sprintf(".%s.new", filepath.Base(dst)))
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer func() {
		_ = file.Close()
		_ = os.Remove(tmp)
	}()

	var w io.Writer = file
	if progress != nil {
		bar := progressbar.NewOptions64(size,
			progressbar.OptionSetWriter(progress),
			progressbar.OptionSetDescription(filepath.Base(u.Path)),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(100*time.Millisecond),
		)
		defer func() {
			_ = bar.Finish()
		}()
		w = io.MultiWriter(file, bar)
	}

	n, err := io.Copy(w, contextReader{ctx: ctx, r: body})
	if err != nil {
		return fmt.Errorf("write output file: %w", err)
	}
	if size >= 0 && n != size {
		return metaerr.WithMetadata(fmt.Errorf("short download: got %d of %d bytes", n, size), "bytes", n)
	}

	// close here, since windows wouldn't let us move the file
	if err := file.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (r contextReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

// cacheFileName keys downloads by url so different versions with the same
// archive name don't collide.
func cacheFileName(url string) string {
	sum := sha256.Sum256([]byte(url))
	name := "archive"
	if u, err := _url.Parse(url); err == nil && u.Path != "" {
		name = filepath.Base(u.Path)
	}
	return hex.EncodeToString(sum[:])[:16] + "--" + name
}
