// =============================================================================
// Simland HDX Scraper - Retriever
// =============================================================================
//
// The retriever fetches remote files into the run's temp folder. It supports
// two replay modes used while developing a scraper:
//   - save:      every download is also copied into the saved folder
//   - use-saved: nothing is downloaded, files are read from the saved folder
//
// When a download fails and a fallback folder is configured, a file of the
// same name in that folder is used instead.
//
// USAGE EXAMPLE:
//   r := retriever.New(retriever.Options{TempDir: "tmp"}, nil, logger)
//   path, err := r.DownloadFile(ctx, url, "metadata.csv")
//
// =============================================================================

package retriever

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/simland/hdx-scraper-simland/internal/tabular"
	"github.com/simland/hdx-scraper-simland/pkg/utils"
)

// ErrNotSaved is returned in use-saved mode when the requested file was never
// saved.
var ErrNotSaved = errors.New("file not found in saved data")

// Options configures where files are written and which replay mode is active.
type Options struct {
	TempDir     string
	SavedDir    string
	FallbackDir string
	Save        bool
	UseSaved    bool
	UserAgent   string
}

// DownloadError describes a failed download.
type DownloadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download of %s failed: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("download of %s failed: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// Retriever downloads files for a single run.
type Retriever struct {
	opts   Options
	client *http.Client
	fm     *utils.FileManager
	logger zerolog.Logger
}

// New creates a Retriever. A nil client selects NewClient(opts.UserAgent).
func New(opts Options, client *http.Client, logger zerolog.Logger) *Retriever {
	if client == nil {
		client = NewClient(opts.UserAgent)
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	return &Retriever{
		opts:   opts,
		client: client,
		fm:     utils.NewFileManager(opts.TempDir, opts.SavedDir, ""),
		logger: logger.With().Str("component", "retriever").Logger(),
	}
}

// Client returns the HTTP client used for downloads.
func (r *Retriever) Client() *http.Client {
	return r.client
}

// DownloadFile fetches url into the temp folder under filename.
//
// PARAMETERS:
//   - ctx: Cancels the download.
//   - url: The source URL.
//   - filename: The local file name; the URL path base is used when empty.
//     Unsafe characters are replaced, see SafeFilename.
//
// RETURNS:
//   - The local path of the file.
//   - ErrNotSaved in use-saved mode when the file is missing, or a
//     *DownloadError when the download failed and no fallback exists.
func (r *Retriever) DownloadFile(ctx context.Context, url, filename string) (string, error) {
	if filename == "" {
		filename = filenameFromURL(url)
	} else {
		filename = SafeFilename(filename)
	}

	if r.opts.UseSaved {
		path := r.fm.SavedPath(filename)
		if !utils.FileExists(path) {
			return "", fmt.Errorf("%s: %w", path, ErrNotSaved)
		}
		r.logger.Debug().Str("file", path).Msg("using saved file")
		return path, nil
	}

	path, err := r.download(ctx, url, filename)
	if err != nil {
		if fallback, ok := r.fallback(filename); ok {
			r.logger.Warn().Err(err).Str("file", fallback).Msg("download failed, using fallback")
			return fallback, nil
		}
		return "", err
	}

	if r.opts.Save && r.opts.SavedDir != "" {
		if err := utils.CopyFile(path, r.fm.SavedPath(filename)); err != nil {
			return "", fmt.Errorf("failed to save %s: %w", filename, err)
		}
	}

	return path, nil
}

func (r *Retriever) download(ctx context.Context, url, filename string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &DownloadError{URL: url, Err: err}
	}

	r.logger.Info().Str("url", url).Msg("downloading")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", &DownloadError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &DownloadError{URL: url, StatusCode: resp.StatusCode}
	}

	n, err := utils.WriteFileAtomic(r.opts.TempDir, filename, resp.Body)
	if err != nil {
		return "", &DownloadError{URL: url, Err: err}
	}

	path := r.fm.TempPath(filename)
	r.logger.Debug().Str("file", path).Int64("bytes", n).Msg("downloaded")
	return path, nil
}

func (r *Retriever) fallback(filename string) (string, bool) {
	if r.opts.FallbackDir == "" {
		return "", false
	}
	path := filepath.Join(r.opts.FallbackDir, filename)
	return path, utils.FileExists(path)
}

// GetTabularRows downloads url and opens it as a table.
// The caller must Close the returned reader.
func (r *Retriever) GetTabularRows(ctx context.Context, url, filename, format string) (tabular.Reader, error) {
	if filename == "" {
		filename = filenameFromURL(url)
	}
	path, err := r.DownloadFile(ctx, url, filename)
	if err != nil {
		return nil, err
	}
	if format == "" {
		format = tabular.FormatFromPath(filename)
	}
	return tabular.Open(path, format)
}
