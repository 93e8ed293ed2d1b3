package pim

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/samcharles93/perceptual/internal/version"
)

// fetch downloads url into memory. The archive is small enough that
// buffering it keeps extraction simple: zip needs random access.
func (l *Loader) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %w", ErrDownload, err)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching %s: %w", ErrDownload, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %w: %s", ErrDownload, ErrNotFound, url)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: fetching %s: status %d", ErrDownload, url, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrDownload, url, err)
	}
	return data, nil
}

// extractZip unpacks the archive in data under dest, creating dest and any
// intermediate directories. Entries that would land outside dest, and
// anything that is not a regular file or directory, are rejected. It returns
// the number of files written.
func extractZip(data []byte, dest string) (int, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrArchive, err)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return 0, err
	}

	files := 0
	for _, zf := range zr.File {
		name := strings.TrimPrefix(filepath.FromSlash(zf.Name), string(filepath.Separator))
		if name == "" || !filepath.IsLocal(name) {
			return files, fmt.Errorf("%w: entry %q escapes the cache directory", ErrArchive, zf.Name)
		}
		target := filepath.Join(dest, name)

		mode := zf.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return files, err
			}
		case mode.IsRegular():
			if err := writeZipFile(zf, target); err != nil {
				return files, err
			}
			files++
		default:
			return files, fmt.Errorf("%w: entry %q has unsupported type %s", ErrArchive, zf.Name, mode.Type())
		}
	}
	return files, nil
}

func writeZipFile(zf *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := zf.Open()
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrArchive, zf.Name, err)
	}
	defer func() { _ = rc.Close() }()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return fmt.Errorf("%w: extract %s: %w", ErrArchive, zf.Name, err)
	}
	return out.Close()
}
