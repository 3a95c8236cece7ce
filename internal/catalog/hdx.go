// =============================================================================
// Simland HDX Scraper - HDX Publisher
// =============================================================================
//
// Publish creates or updates one dataset through the CKAN action API:
//
//   1. package_show         find the existing dataset, if any
//   2. package_create or    write the dataset fields
//      package_update
//   3. resource_create or   one call per resource; file resources are sent
//      resource_update      as multipart uploads
//   4. resource_delete      resources that are no longer in the metadata
//   5. package_resource_reorder
//
// =============================================================================

package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/simland/hdx-scraper-simland/internal/dataset"
)

// HDXOptions configures the HDX publisher.
type HDXOptions struct {
	// URL is the site root, e.g. https://data.humdata.org.
	URL string

	// APIKey is sent in the Authorization header.
	APIKey string

	// Dataset supplies the tag vocabulary used in the catalog form.
	Dataset dataset.Options
}

// HDX publishes datasets to an HDX site.
type HDX struct {
	opts   HDXOptions
	client *http.Client
	logger zerolog.Logger
}

// NewHDX creates an HDX publisher.
func NewHDX(opts HDXOptions, client *http.Client, logger zerolog.Logger) (*HDX, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("hdx url is not set")
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("hdx api key is not set")
	}
	if client == nil {
		client = http.DefaultClient
	}
	opts.URL = strings.TrimRight(opts.URL, "/")
	return &HDX{
		opts:   opts,
		client: client,
		logger: logger.With().Str("component", "hdx").Logger(),
	}, nil
}

type ckanResponse struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   *ckanError      `json:"error"`
}

type ckanResource struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ckanPackage struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Resources []ckanResource `json:"resources"`
}

// Publish implements Publisher.
func (h *HDX) Publish(ctx context.Context, ds *dataset.Dataset, opts PublishOptions) error {
	logger := h.logger.With().Str("dataset", ds.Name).Logger()

	pkg := ds.CatalogDict(opts.Static, h.opts.Dataset)
	if opts.UpdatedByScript != "" {
		pkg["updated_by_script"] = opts.UpdatedByScript
	}
	if opts.Batch != "" {
		pkg["batch"] = opts.Batch
	}

	existing, err := h.packageShow(ctx, ds.Name)
	if err != nil {
		return err
	}

	var current ckanPackage
	if existing == nil {
		logger.Info().Msg("creating dataset")
		if err := h.call(ctx, "package_create", pkg, &current); err != nil {
			return err
		}
	} else {
		logger.Info().Msg("updating dataset")
		pkg["id"] = existing.ID
		if err := h.call(ctx, "package_update", pkg, &current); err != nil {
			return err
		}
		current.Resources = existing.Resources
	}

	byName := make(map[string]string, len(current.Resources))
	for _, r := range current.Resources {
		byName[r.Name] = r.ID
	}

	var order []string
	keep := make(map[string]bool)
	for _, res := range ds.Resources {
		id, err := h.putResource(ctx, current.ID, byName[res.Name], res)
		if err != nil {
			return fmt.Errorf("resource %s: %w", res.Name, err)
		}
		keep[id] = true
		order = append(order, id)
	}

	failed := make(map[string]bool, len(ds.FailedResources))
	for _, name := range ds.FailedResources {
		failed[name] = true
	}

	for _, r := range current.Resources {
		if keep[r.ID] {
			continue
		}
		if failed[r.Name] {
			logger.Warn().Str("resource", r.Name).Msg("keeping published resource that could not be refreshed")
			order = append(order, r.ID)
			continue
		}
		logger.Info().Str("resource", r.Name).Msg("deleting resource no longer in metadata")
		if err := h.call(ctx, "resource_delete", map[string]any{"id": r.ID}, nil); err != nil {
			return err
		}
	}

	if len(order) > 1 {
		if err := h.call(ctx, "package_resource_reorder", map[string]any{
			"id":    current.ID,
			"order": order,
		}, nil); err != nil {
			return err
		}
	}

	logger.Info().Int("resources", len(order)).Msg("dataset published")
	return nil
}

// packageShow returns nil when the dataset does not exist.
func (h *HDX) packageShow(ctx context.Context, name string) (*ckanPackage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		h.actionURL("package_show")+"?"+url.Values{"id": {name}}.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var pkg ckanPackage
	err = h.do(req, "package_show", &pkg)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.NotFound() {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pkg, nil
}

// putResource creates or updates one resource and returns its id.
func (h *HDX) putResource(ctx context.Context, packageID, resourceID string, res dataset.Resource) (string, error) {
	fields := res.CatalogDict()
	action := "resource_create"
	if resourceID != "" {
		action = "resource_update"
		fields["id"] = resourceID
	} else {
		fields["package_id"] = packageID
	}

	var out ckanResource
	if !res.IsUpload() {
		if err := h.call(ctx, action, fields, &out); err != nil {
			return "", err
		}
		return out.ID, nil
	}

	req, err := h.uploadRequest(ctx, action, fields, res.FilePath)
	if err != nil {
		return "", err
	}
	if err := h.do(req, action, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (h *HDX) uploadRequest(ctx context.Context, action string, fields map[string]any, path string) (*http.Request, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, fmt.Sprint(fields[k])); err != nil {
			return nil, err
		}
	}

	part, err := w.CreateFormFile("upload", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.actionURL(action), &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req, nil
}

// call posts a JSON action and decodes the result into out, if non-nil.
func (h *HDX) call(ctx context.Context, action string, payload any, out any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.actionURL(action), bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return h.do(req, action, out)
}

func (h *HDX) do(req *http.Request, action string, out any) error {
	req.Header.Set("Authorization", h.opts.APIKey)

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}

	var cr ckanResponse
	if jerr := json.Unmarshal(body, &cr); jerr != nil {
		apiErr := &APIError{Action: action, StatusCode: resp.StatusCode}
		if strings.Contains(resp.Header.Get("Content-Type"), "html") {
			apiErr.Message = htmlErrorMessage(body)
		} else {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return apiErr
	}

	if !cr.Success || resp.StatusCode >= 300 {
		apiErr := &APIError{Action: action, StatusCode: resp.StatusCode}
		if cr.Error != nil {
			apiErr.Type = cr.Error.Type
			apiErr.Message = cr.Error.text()
		}
		return apiErr
	}

	if out != nil && len(cr.Result) > 0 {
		if err := json.Unmarshal(cr.Result, out); err != nil {
			return fmt.Errorf("%s: decoding result: %w", action, err)
		}
	}
	return nil
}

func (h *HDX) actionURL(action string) string {
	return h.opts.URL + "/api/3/action/" + action
}

func sorted(s []string) []string {
	sort.Strings(s)
	return s
}
