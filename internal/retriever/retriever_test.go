package retriever

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const metadataBody = "Dataset,Field,Value\ncod-ps-sld,title,Simland population\n"

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestDownloadFileWritesTempAndSaved(t *testing.T) {
	var agent string
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		agent = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(metadataBody))
	})

	root := t.TempDir()
	r := New(Options{
		TempDir:   filepath.Join(root, "tmp"),
		SavedDir:  filepath.Join(root, "saved"),
		Save:      true,
		UserAgent: "hdx-scraper-simland",
	}, nil, zerolog.Nop())

	path, err := r.DownloadFile(context.Background(), srv.URL+"/export/metadata.csv", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "tmp", "metadata.csv"), path)
	assert.Equal(t, "hdx-scraper-simland", agent)

	saved, err := os.ReadFile(filepath.Join(root, "saved", "metadata.csv"))
	require.NoError(t, err)
	assert.Equal(t, metadataBody, string(saved))
}

func TestDownloadFileUseSaved(t *testing.T) {
	var hits int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	})

	saved := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(saved, "present.csv"), []byte(metadataBody), 0o644))

	r := New(Options{TempDir: t.TempDir(), SavedDir: saved, UseSaved: true}, nil, zerolog.Nop())

	path, err := r.DownloadFile(context.Background(), srv.URL+"/present.csv", "present.csv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(saved, "present.csv"), path)

	_, err = r.DownloadFile(context.Background(), srv.URL+"/missing.csv", "missing.csv")
	assert.ErrorIs(t, err, ErrNotSaved)
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestDownloadFileHTTPError(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	r := New(Options{TempDir: t.TempDir()}, nil, zerolog.Nop())
	_, err := r.DownloadFile(context.Background(), srv.URL+"/gone.csv", "")

	var dlErr *DownloadError
	require.True(t, errors.As(err, &dlErr))
	assert.Equal(t, http.StatusNotFound, dlErr.StatusCode)
}

func TestDownloadFileFallback(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	fallback := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(fallback, "metadata.csv"), []byte(metadataBody), 0o644))

	r := New(Options{TempDir: t.TempDir(), FallbackDir: fallback}, nil, zerolog.Nop())
	path, err := r.DownloadFile(context.Background(), srv.URL+"/metadata.csv", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(fallback, "metadata.csv"), path)
}

func TestTransportRetriesUnavailable(t *testing.T) {
	var hits int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(metadataBody))
	})

	client := &http.Client{Transport: &Transport{RetryMax: 2, Backoff: time.Millisecond}}
	r := New(Options{TempDir: t.TempDir()}, client, zerolog.Nop())

	_, err := r.DownloadFile(context.Background(), srv.URL+"/metadata.csv", "")
	require.NoError(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&hits))
}

func TestTransportDoesNotRetryPost(t *testing.T) {
	var hits int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	client := &http.Client{Transport: &Transport{RetryMax: 2}}
	req, err := http.NewRequest(http.MethodPost, srv.URL, http.NoBody)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestGetTabularRows(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(metadataBody))
	})

	r := New(Options{TempDir: t.TempDir()}, nil, zerolog.Nop())
	rows, err := r.GetTabularRows(context.Background(), srv.URL+"/pub?output=csv", "metadata.csv", "")
	require.NoError(t, err)
	defer rows.Close()

	assert.Equal(t, []string{"Dataset", "Field", "Value"}, rows.Headers())
	require.True(t, rows.Next())
	v, _ := rows.Row().Get("Value")
	assert.Equal(t, "Simland population", v)
}

func TestSafeFilename(t *testing.T) {
	assert.Equal(t, "pub", filenameFromURL("https://docs.example.org/sheet/pub?output=csv"))
	assert.Equal(t, "download", filenameFromURL("https://example.org/"))
	assert.Equal(t, "sld_adm1_2024_.csv", SafeFilename("sld adm1 (2024).csv"))
	assert.Equal(t, "download", SafeFilename(".."))
	assert.Equal(t, "adm1_sld.csv", SafeFilename("adm1/sld.csv"))
}

func TestDownloadFileCleansResourceName(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(metadataBody))
	})

	root := t.TempDir()
	r := New(Options{
		TempDir:  filepath.Join(root, "tmp"),
		SavedDir: filepath.Join(root, "saved"),
		Save:     true,
	}, nil, zerolog.Nop())

	path, err := r.DownloadFile(context.Background(), srv.URL+"/adm1.csv", "../adm1/sld.csv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "tmp", "adm1_sld.csv"), path)
	assert.FileExists(t, filepath.Join(root, "saved", "adm1_sld.csv"))

	replay := New(Options{TempDir: filepath.Join(root, "tmp"), SavedDir: filepath.Join(root, "saved"), UseSaved: true}, nil, zerolog.Nop())
	path, err = replay.DownloadFile(context.Background(), srv.URL+"/adm1.csv", "../adm1/sld.csv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "saved", "adm1_sld.csv"), path)
}
