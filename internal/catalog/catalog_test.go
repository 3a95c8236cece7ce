package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/frictionlessdata/datapackage-go/datapackage"
	"github.com/frictionlessdata/datapackage-go/validator"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simland/hdx-scraper-simland/internal/dataset"
)

func testDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	file := filepath.Join(t.TempDir(), "sld_adm1.csv")
	require.NoError(t, os.WriteFile(file, []byte("admin1Pcode,population\nSLD01,1000\n"), 0o644))

	return &dataset.Dataset{
		Name:             "cod-ps-sld",
		Title:            "Simland - Subnational Population Statistics",
		Notes:            "Population of Simland.\nReference year 2024.",
		DatasetSource:    "Simland statistics office",
		Methodology:      "Census",
		Caveats:          "None",
		Maintainer:       dataset.MaintainerID,
		Organization:     dataset.OrgUNFPAID,
		OrganizationName: dataset.OrgUNFPA,
		UpdateFrequency:  "365",
		Subnational:      true,
		Locations:        []string{"sld"},
		Tags:             []string{"baseline population"},
		TimePeriod:       dataset.YearPeriod(2024),
		Resources: []dataset.Resource{
			{Name: "sld_adm1.csv", Description: "Admin 1", Format: "csv", FilePath: file},
			{Name: "sld_adm0.geojson", Format: "GeoJSON", URL: "https://example.org/sld_adm0.geojson"},
		},
	}
}

// fakeCKAN records the actions it receives.
type fakeCKAN struct {
	mu       sync.Mutex
	actions  []string
	existing bool
	payloads map[string]map[string]any
	uploads  map[string]string
}

func (f *fakeCKAN) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		assert.Equal(t, "secret", r.Header.Get("Authorization"))
		action := strings.TrimPrefix(r.URL.Path, "/api/3/action/")
		f.actions = append(f.actions, action)

		reply := func(result any) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "result": result})
		}

		switch action {
		case "package_show":
			if !f.existing {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"success": false, "error": {"__type": "Not Found Error", "message": "Not found"}}`))
				return
			}
			reply(map[string]any{
				"id":   "pkg-1",
				"name": r.URL.Query().Get("id"),
				"resources": []any{
					map[string]any{"id": "res-old", "name": "obsolete.csv"},
					map[string]any{"id": "res-1", "name": "sld_adm1.csv"},
				},
			})
		case "package_create", "package_update", "resource_delete", "package_resource_reorder":
			var payload map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			f.payloads[action] = payload
			reply(map[string]any{"id": "pkg-1", "name": payload["name"]})
		case "resource_create", "resource_update":
			if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
				require.NoError(t, r.ParseMultipartForm(1<<20))
				file, _, err := r.FormFile("upload")
				require.NoError(t, err)
				b, _ := io.ReadAll(file)
				f.uploads[r.FormValue("name")] = string(b)
				reply(map[string]any{"id": "res-1", "name": r.FormValue("name")})
				return
			}
			var payload map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			f.payloads[action] = payload
			reply(map[string]any{"id": "res-2", "name": payload["name"]})
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}
}

func newHDX(t *testing.T, f *fakeCKAN) *HDX {
	t.Helper()
	f.payloads = map[string]map[string]any{}
	f.uploads = map[string]string{}
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	h, err := NewHDX(HDXOptions{URL: srv.URL + "/", APIKey: "secret", Dataset: dataset.DefaultOptions()}, srv.Client(), zerolog.Nop())
	require.NoError(t, err)
	return h
}

func TestHDXPublishCreates(t *testing.T) {
	f := &fakeCKAN{}
	h := newHDX(t, f)

	err := h.Publish(context.Background(), testDataset(t), PublishOptions{
		Batch:           "7f1c2b4e-0000-4000-8000-000000000000",
		UpdatedByScript: "HDX Scraper: Simland",
		Static:          map[string]any{"license_id": "cc-by-igo"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"package_show", "package_create", "resource_create", "resource_create", "package_resource_reorder"}, f.actions)

	pkg := f.payloads["package_create"]
	assert.Equal(t, "cod-ps-sld", pkg["name"])
	assert.Equal(t, dataset.OrgUNFPAID, pkg["owner_org"])
	assert.Equal(t, "cc-by-igo", pkg["license_id"])
	assert.Equal(t, "HDX Scraper: Simland", pkg["updated_by_script"])
	assert.Equal(t, "7f1c2b4e-0000-4000-8000-000000000000", pkg["batch"])

	assert.Equal(t, "admin1Pcode,population\nSLD01,1000\n", f.uploads["sld_adm1.csv"])
	link := f.payloads["resource_create"]
	assert.Equal(t, "https://example.org/sld_adm0.geojson", link["url"])
	assert.Equal(t, "pkg-1", link["package_id"])
}

func TestHDXPublishUpdatesAndRemovesExtraResources(t *testing.T) {
	f := &fakeCKAN{existing: true}
	h := newHDX(t, f)

	require.NoError(t, h.Publish(context.Background(), testDataset(t), PublishOptions{}))

	assert.Equal(t, []string{
		"package_show", "package_update", "resource_update", "resource_create",
		"resource_delete", "package_resource_reorder",
	}, f.actions)
	assert.Equal(t, "pkg-1", f.payloads["package_update"]["id"])
	assert.Equal(t, "res-old", f.payloads["resource_delete"]["id"])
	assert.Equal(t, []any{"res-1", "res-2"}, f.payloads["package_resource_reorder"]["order"])
}

func TestHDXPublishKeepsResourceThatFailedToDownload(t *testing.T) {
	f := &fakeCKAN{existing: true}
	h := newHDX(t, f)

	ds := testDataset(t)
	ds.Resources = ds.Resources[1:]
	ds.FailedResources = []string{"sld_adm1.csv"}

	require.NoError(t, h.Publish(context.Background(), ds, PublishOptions{}))

	assert.Equal(t, []string{
		"package_show", "package_update", "resource_create",
		"resource_delete", "package_resource_reorder",
	}, f.actions)
	assert.Equal(t, "res-old", f.payloads["resource_delete"]["id"])
	assert.Equal(t, []any{"res-2", "res-1"}, f.payloads["package_resource_reorder"]["order"])
}

func TestHDXErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "package_show") {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("<html><head><title>502</title></head><body><h1>Bad Gateway</h1></body></html>"))
			return
		}
	}))
	defer srv.Close()

	h, err := NewHDX(HDXOptions{URL: srv.URL, APIKey: "secret"}, srv.Client(), zerolog.Nop())
	require.NoError(t, err)

	err = h.Publish(context.Background(), testDataset(t), PublishOptions{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "Bad Gateway", apiErr.Message)
}

func TestHDXValidationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "package_show") {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"success": false, "error": {"__type": "Not Found Error", "message": "Not found"}}`))
			return
		}
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"success": false, "error": {"__type": "Validation Error", "owner_org": ["Organization does not exist"]}}`))
	}))
	defer srv.Close()

	h, err := NewHDX(HDXOptions{URL: srv.URL, APIKey: "secret"}, srv.Client(), zerolog.Nop())
	require.NoError(t, err)

	err = h.Publish(context.Background(), testDataset(t), PublishOptions{})
	require.Error(t, err)
	assert.Equal(t, `package_create failed (HTTP 409) Validation Error: owner_org: ["Organization does not exist"]`, err.Error())
}

func TestNewHDXRequiresKey(t *testing.T) {
	_, err := NewHDX(HDXOptions{URL: "https://data.humdata.org"}, nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestDataPackagePublish(t *testing.T) {
	out := t.TempDir()
	p := NewDataPackage(out, dataset.DefaultOptions(), zerolog.Nop())

	ds := testDataset(t)
	require.NoError(t, p.Publish(context.Background(), ds, PublishOptions{Batch: "b-1"}))

	dir := filepath.Join(out, "cod-ps-sld")
	assert.FileExists(t, filepath.Join(dir, "sld_adm1.csv"))

	pkg, err := datapackage.Load(filepath.Join(dir, DescriptorFile), validator.InMemoryLoader())
	require.NoError(t, err)
	assert.Equal(t, []string{"sld-adm1.csv", "sld-adm0.geojson"}, pkg.ResourceNames())

	descriptor := pkg.Descriptor()
	hdx, ok := descriptor["hdx"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "b-1", hdx["batch"])
	assert.Equal(t, "[2024-01-01T00:00:00 TO 2024-12-31T23:59:59]", hdx["dataset_date"])
}

func TestPackageName(t *testing.T) {
	assert.Equal(t, "afg-admpop-adm1-2021-v2.csv", PackageName("afg_admpop_adm1_2021_v2.csv"))
	assert.Equal(t, "simland-boundaries", PackageName("Simland Boundaries"))
	assert.Equal(t, "unnamed", PackageName("__"))
	assert.Equal(t, "unnamed", PackageName(".."))
	assert.Equal(t, "evil", PackageName("../../evil"))
	assert.Equal(t, "a-b", PackageName("a/b"))
	assert.Equal(t, "sld-adm1.csv", PackageName("..\\Sld_Adm1.csv"))
}

func TestDataPackageStaysInsideDir(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "out")
	p := NewDataPackage(dir, dataset.DefaultOptions(), zerolog.Nop())
	ds := testDataset(t)
	ds.Name = "../../evil"

	require.NoError(t, p.Publish(context.Background(), ds, PublishOptions{}))
	assert.FileExists(t, filepath.Join(dir, "evil", DescriptorFile))
	assert.NoDirExists(t, filepath.Join(root, "evil"))
}

func TestDataPackageRequiresResources(t *testing.T) {
	p := NewDataPackage(t.TempDir(), dataset.DefaultOptions(), zerolog.Nop())
	ds := testDataset(t)
	ds.Resources = nil
	assert.Error(t, p.Publish(context.Background(), ds, PublishOptions{}))
}
