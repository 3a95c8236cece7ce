package dataset

import (
	"sort"
	"strings"
)

// CatalogDict serializes d into the catalog's dataset schema. Keys in static
// are defaults; values derived from metadata replace them.
func (d *Dataset) CatalogDict(static map[string]any, opts Options) map[string]any {
	out := make(map[string]any, len(static)+16)
	for k, v := range static {
		out[k] = v
	}

	out["name"] = d.Name
	out["title"] = d.Title
	// markdown needs two trailing spaces for a line break
	out["notes"] = strings.ReplaceAll(d.Notes, "\n", "  \n")
	out["dataset_source"] = d.DatasetSource
	out["methodology"] = d.Methodology
	if d.MethodologyOther != "" {
		out["methodology_other"] = d.MethodologyOther
	}
	out["caveats"] = d.Caveats
	if d.LicenseTitle != "" {
		out["license_title"] = d.LicenseTitle
	}
	out["maintainer"] = d.Maintainer
	out["owner_org"] = d.Organization
	if d.UpdateFrequency != "" {
		out["data_update_frequency"] = d.UpdateFrequency
	}
	if d.Subnational {
		out["subnational"] = "1"
	} else {
		out["subnational"] = "0"
	}

	groups := make([]map[string]any, 0, len(d.Locations))
	for _, loc := range d.Locations {
		groups = append(groups, map[string]any{"name": loc})
	}
	out["groups"] = groups

	if len(d.Tags) > 0 {
		tags := make([]map[string]any, 0, len(d.Tags))
		for _, tag := range d.Tags {
			t := map[string]any{"name": tag}
			if opts.TagVocabularyID != "" {
				t["vocabulary_id"] = opts.TagVocabularyID
			}
			tags = append(tags, t)
		}
		out["tags"] = tags
	}

	out["dataset_date"] = d.TimePeriod.String()
	if d.CODLevel != "" {
		out["cod_level"] = d.CODLevel
	}

	return out
}

// CatalogDict serializes r into the catalog's resource schema. The url of an
// upload is filled in by the publisher.
func (r Resource) CatalogDict() map[string]any {
	out := map[string]any{
		"name":        r.Name,
		"description": r.Description,
		"format":      r.Format,
	}

	keys := make([]string, 0, len(r.Extra))
	for k := range r.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out[k] = r.Extra[k]
	}

	if r.IsUpload() {
		out["url_type"] = "upload"
		out["resource_type"] = "file.upload"
	} else {
		out["url"] = r.URL
		out["url_type"] = "api"
		out["resource_type"] = "api"
	}
	return out
}
