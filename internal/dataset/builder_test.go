package dataset

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simland/hdx-scraper-simland/internal/errorsonexit"
	"github.com/simland/hdx-scraper-simland/internal/metadata"
	"github.com/simland/hdx-scraper-simland/internal/validation"
)

const resourceURL = "https://data.humdata.org/dataset/17acb541-9431-409a-80a8-50eda7e8ebab/resource/dc7a5656-d557-404f-8b1d-494c7bbd0112/download/afg_admpop_adm1_2021_v2.csv"

type fakeDownloader struct {
	dir   string
	calls []string
	fail  map[string]error
}

func (f *fakeDownloader) DownloadFile(_ context.Context, url, filename string) (string, error) {
	f.calls = append(f.calls, url)
	if err := f.fail[url]; err != nil {
		return "", err
	}
	return filepath.Join(f.dir, filename), nil
}

func fieldsOf(pairs ...string) *metadata.Fields {
	f := metadata.NewFields()
	for i := 0; i+1 < len(pairs); i += 2 {
		f.Add(pairs[i], pairs[i+1])
	}
	return f
}

func testFields(extra ...string) *metadata.Fields {
	pairs := []string{
		"title", "Test - Subnational Population Statistics",
		"notes", "Afghanistan administrative levels 0 (country), and 1 (province) population statistics.\nREFERENCE YEAR: 2021",
		"dataset_source", "National Statistic and Information Authority (NSIA) Afghanistan",
		"methodology", "Other",
		"methodology_other", "Based on micro-census and remote sensing data.",
		"caveats", "Population figures have been rounded off to the nearest integer.",
		"organization", OrgFISS,
		"data_update_frequency", "365",
		"groups", "afg",
		"tags", "baseline population",
		"cod_level", "cod-standard",
		"resource_1_name", "afg_admpop_adm1_2021_v2.csv",
		"resource_1_description", "2021 population estimates for Afghanistan administrative level 1 (province).",
		"resource_1_format", "csv",
		"resource_1_url", resourceURL,
	}
	return fieldsOf(append(pairs, extra...)...)
}

func newTestBuilder(t *testing.T) (*Builder, *fakeDownloader, *errorsonexit.Collector) {
	t.Helper()
	dl := &fakeDownloader{dir: t.TempDir(), fail: map[string]error{}}
	errs := errorsonexit.New()
	return NewBuilder(DefaultOptions(), dl, errs, zerolog.Nop()), dl, errs
}

func TestBuildEndToEnd(t *testing.T) {
	b, dl, errs := newTestBuilder(t)

	ds, err := b.Build(context.Background(), "cod-ps-test", testFields())
	require.NoError(t, err)
	require.NotNil(t, ds)
	assert.Zero(t, errs.Len())

	assert.Equal(t, OrgFISSID, ds.Organization)
	assert.Equal(t, MaintainerID, ds.Maintainer)
	assert.Equal(t, "Based on micro-census and remote sensing data.", ds.MethodologyOther)
	assert.Equal(t, []string{"afg"}, ds.Locations)
	assert.Equal(t, []string{"baseline population"}, ds.Tags)
	assert.Equal(t, "cod-standard", ds.CODLevel)
	assert.True(t, ds.Subnational)
	assert.Equal(t, YearPeriod(2024), ds.TimePeriod)

	require.Len(t, ds.Resources, 1)
	res := ds.Resources[0]
	assert.Equal(t, "afg_admpop_adm1_2021_v2.csv", res.Name)
	assert.Empty(t, res.URL)
	assert.Equal(t, filepath.Join(dl.dir, "afg_admpop_adm1_2021_v2.csv"), res.FilePath)
	assert.Equal(t, []string{resourceURL}, dl.calls)
}

func TestBuildMethodologyOtherOnlyForOther(t *testing.T) {
	b, _, _ := newTestBuilder(t)
	ds, err := b.Build(context.Background(), "cod-ps-test", testFields("methodology", "Census"))
	require.NoError(t, err)
	assert.Empty(t, ds.MethodologyOther)
}

func TestBuildMissingMandatory(t *testing.T) {
	b, _, errs := newTestBuilder(t)
	fields := fieldsOf("title", "T", "organization", OrgUNFPA)

	ds, err := b.Build(context.Background(), "cod-ps-sld", fields)
	assert.Nil(t, ds)
	require.Error(t, err)

	var verr *validation.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "notes", verr.Field)
	assert.Contains(t, err.Error(), "caveats")
	assert.Zero(t, errs.Len())
}

func TestBuildUnknownDataset(t *testing.T) {
	b, _, _ := newTestBuilder(t)
	_, err := b.Build(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, ErrUnknownDataset)
}

func TestBuildUnknownOrganization(t *testing.T) {
	b, dl, errs := newTestBuilder(t)

	ds, err := b.Build(context.Background(), "cod-ps-xyz", testFields("organization", "World Bank"))
	assert.NoError(t, err)
	assert.Nil(t, ds)
	assert.Equal(t, []string{"Could not find organization for cod-ps-xyz"}, errs.Errors())
	assert.Empty(t, dl.calls)
}

func TestBuildLocations(t *testing.T) {
	b, _, _ := newTestBuilder(t)

	ds, err := b.Build(context.Background(), "cod-ps-sld", testFields("groups", "Simland"))
	require.NoError(t, err)
	assert.Equal(t, []string{"sld"}, ds.Locations)

	ds, err = b.Build(context.Background(), "cod-ps-rur", testFields("groups", "Ruritania"))
	require.NoError(t, err)
	assert.Equal(t, []string{"ruritania"}, ds.Locations)

	b.ReviewMode = true
	ds, err = b.Build(context.Background(), "cod-ps-sld", testFields("groups", "Simland, Westland"))
	require.NoError(t, err)
	assert.Equal(t, []string{"can"}, ds.Locations)
}

func TestBuildTags(t *testing.T) {
	b, _, _ := newTestBuilder(t)

	ds, err := b.Build(context.Background(), "cod-ps-sld", testFields("tags", "a, b ,c"))
	require.NoError(t, err)
	assert.Equal(t, []string{"baseline population", "a", "b", "c"}, ds.Tags)

	fields := testFields()
	emptyTags := fieldsOf()
	for _, k := range fields.Keys() {
		if k == "tags" {
			emptyTags.Add(k, "")
			continue
		}
		emptyTags.Add(k, fields.Value(k))
	}
	ds, err = b.Build(context.Background(), "cod-ps-sld", emptyTags)
	require.NoError(t, err)
	assert.Empty(t, ds.Tags)
}

func TestBuildThemeTags(t *testing.T) {
	b, _, _ := newTestBuilder(t)
	base := testFields()

	withoutTags := func() *metadata.Fields {
		f := metadata.NewFields()
		for _, k := range base.Keys() {
			if k != "tags" {
				f.Add(k, base.Value(k))
			}
		}
		return f
	}

	ds, err := b.Build(context.Background(), "cod-ab-sld", withoutTags())
	require.NoError(t, err)
	assert.Equal(t, []string{"administrative boundaries-divisions"}, ds.Tags)

	ds, err = b.Build(context.Background(), "cod-ps-sld", withoutTags())
	require.NoError(t, err)
	assert.Equal(t, []string{"baseline population"}, ds.Tags)

	ds, err = b.Build(context.Background(), "cod-hp-sld", withoutTags())
	require.NoError(t, err)
	assert.Empty(t, ds.Tags)
}

func TestBuildTimePeriod(t *testing.T) {
	b, _, _ := newTestBuilder(t)

	ds, err := b.Build(context.Background(), "cod-ps-sld", testFields(
		"dataset_start_date", "2021-03-01",
		"dataset_end_date", "2022-02-28",
	))
	require.NoError(t, err)
	assert.False(t, ds.TimePeriod.Ongoing)
	assert.Equal(t, time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC), ds.TimePeriod.Start)
	assert.Equal(t, time.Date(2022, 2, 28, 0, 0, 0, 0, time.UTC), ds.TimePeriod.End)

	ds, err = b.Build(context.Background(), "cod-ps-sld", testFields(
		"dataset_start_date", "2021-03-01",
		"dataset_end_date", "",
	))
	require.NoError(t, err)
	assert.True(t, ds.TimePeriod.Ongoing)
	assert.Equal(t, "[2021-03-01T00:00:00 TO *]", ds.TimePeriod.String())

	ds, err = b.Build(context.Background(), "cod-ps-sld", testFields("dataset_year", "2019"))
	require.NoError(t, err)
	assert.Equal(t, "[2019-01-01T00:00:00 TO 2019-12-31T23:59:59]", ds.TimePeriod.String())

	_, err = b.Build(context.Background(), "cod-ps-sld", testFields(
		"dataset_start_date", "2022-01-01",
		"dataset_end_date", "2021-01-01",
	))
	assert.Error(t, err)

	opts := DefaultOptions()
	opts.DefaultReferenceYear = 0
	noDefault := NewBuilder(opts, &fakeDownloader{}, errorsonexit.New(), zerolog.Nop())
	_, err = noDefault.Build(context.Background(), "cod-ps-sld", testFields())
	assert.Error(t, err)
}

func TestBuildSkipsServiceResources(t *testing.T) {
	b, dl, errs := newTestBuilder(t)

	ds, err := b.Build(context.Background(), "cod-ab-sld", testFields(
		"resource_2_name", "Simland boundaries service",
		"resource_2_format", "Geoservice",
		"resource_2_url", "https://gis.example.org/arcgis/rest/services/sld",
		"resource_3_name", "Another service",
		"resource_3_format", "GEOSERVICE",
		"resource_3_url", "https://gis.example.org/arcgis/rest/services/sld2",
		"resource_4_name", "sld_adm0.geojson",
		"resource_4_format", "GeoJSON",
		"resource_4_url", "https://example.org/sld_adm0.geojson",
	))
	require.NoError(t, err)
	assert.Zero(t, errs.Len())

	require.Len(t, ds.Resources, 2)
	assert.Equal(t, "afg_admpop_adm1_2021_v2.csv", ds.Resources[0].Name)
	assert.Equal(t, "sld_adm0.geojson", ds.Resources[1].Name)
	assert.Equal(t, "https://example.org/sld_adm0.geojson", ds.Resources[1].URL)
	assert.False(t, ds.Resources[1].IsUpload())
	assert.Len(t, dl.calls, 1)
}

func TestBuildResourceFailureKeepsDataset(t *testing.T) {
	b, dl, errs := newTestBuilder(t)
	dl.fail[resourceURL] = errors.New("HTTP 404")

	ds, err := b.Build(context.Background(), "cod-ps-test", testFields(
		"resource_2_name", "afg_admpop_adm2.xlsx",
		"resource_2_format", "XLSX",
		"resource_2_url", "https://example.org/afg_admpop_adm2.xlsx",
		"resource_3_format", "csv",
	))
	require.NoError(t, err)
	require.NotNil(t, ds)

	require.Len(t, ds.Resources, 1)
	assert.Equal(t, "afg_admpop_adm2.xlsx", ds.Resources[0].Name)

	require.Equal(t, 1, errs.Len())
	msg := errs.Errors()[0]
	assert.Contains(t, msg, "Dataset: cod-ps-test resources could not be added. Error: ")
	assert.Contains(t, msg, "resource_1: HTTP 404")
	assert.Contains(t, msg, "resource_3: resource has no name")

	// groups without a name cannot match a published resource
	assert.Equal(t, []string{"afg_admpop_adm1_2021_v2.csv"}, ds.FailedResources)
}

func TestBuildExtraResourceAttributes(t *testing.T) {
	b, _, _ := newTestBuilder(t)
	ds, err := b.Build(context.Background(), "cod-ps-test", testFields("resource_1_p_coded", "True"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"p_coded": "True"}, ds.Resources[0].Extra)
}
