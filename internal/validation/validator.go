// =============================================================================
// Simland HDX Scraper - Validation Engine
// =============================================================================
//
// This module provides presence checks for the folded metadata of a dataset.
// It does not judge data quality; it only answers whether a dataset has what
// the builder needs:
//   - Mandatory fields (title, notes, dataset_source, methodology, caveats)
//   - Known organization
//   - Location groups
//   - Complete resource groups (name, format, url)
//   - Parseable dates
//
// SEVERITY:
//   - "error":   the dataset cannot be built (or would be dropped)
//   - "warning": the dataset can be built but something looks off
//
// The builder only runs Check on the mandatory fields. The full Validator is
// used by the `validate` command to review a metadata sheet before a run.
//
// =============================================================================

package validation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/simland/hdx-scraper-simland/internal/metadata"
)

// Severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// DateLayout is the layout of dataset_start_date and dataset_end_date.
const DateLayout = "2006-01-02"

// Mandatory lists the fields every dataset must carry.
var Mandatory = []string{"title", "notes", "dataset_source", "methodology", "caveats"}

// =============================================================================
// VALIDATION ERROR TYPES
// =============================================================================

// ValidationError represents a single validation problem.
type ValidationError struct {
	// Severity is SeverityError or SeverityWarning.
	Severity string

	// Dataset is the identifier of the dataset.
	Dataset string

	// Field is the metadata field that failed validation.
	Field string

	// Value is the offending value, if any.
	Value string

	// Rule is the rule that was violated.
	Rule string

	// Message is a human-readable error message.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("[%s] Dataset %s, Field '%s': %s (value: '%s')",
			strings.ToUpper(e.Severity), e.Dataset, e.Field, e.Message, e.Value)
	}
	return fmt.Sprintf("[%s] Dataset %s, Field '%s': %s",
		strings.ToUpper(e.Severity), e.Dataset, e.Field, e.Message)
}

// Check reports every name in required that is absent from fields.
//
// PARAMETERS:
//   - name: The dataset identifier, used in messages.
//   - fields: The folded metadata of the dataset.
//   - required: The field names that must be present.
//
// RETURNS:
//   - One ValidationError per missing field, nil when all are present.
func Check(name string, fields *metadata.Fields, required []string) []*ValidationError {
	var errs []*ValidationError
	for _, field := range required {
		if fields != nil && fields.Has(field) {
			continue
		}
		errs = append(errs, &ValidationError{
			Severity: SeverityError,
			Dataset:  name,
			Field:    field,
			Rule:     "required",
			Message:  fmt.Sprintf("Mandatory field '%s' is missing", field),
		})
	}
	return errs
}

// =============================================================================
// VALIDATION RESULT
// =============================================================================

// ValidationResult contains the results of validation.
type ValidationResult struct {
	// IsValid is true if there are no fatal errors.
	IsValid bool

	// Errors contains all validation errors (including warnings).
	Errors []*ValidationError

	// ErrorCount is the number of fatal errors.
	ErrorCount int

	// WarningCount is the number of warnings.
	WarningCount int

	// DatasetsValidated is the total number of datasets validated.
	DatasetsValidated int
}

// =============================================================================
// VALIDATOR
// =============================================================================

// ValidationOptions contains options for validation.
type ValidationOptions struct {
	// Organizations are the organization names the builder can resolve.
	// An empty list disables the organization check.
	Organizations []string

	// SkipFormats are resource formats the builder drops. Groups with these
	// formats are not checked.
	SkipFormats []string

	// TreatWarningsAsErrors treats warnings as fatal errors.
	// Default: false
	TreatWarningsAsErrors bool
}

// Validator runs all checks on indexed metadata.
type Validator struct {
	options ValidationOptions
}

// NewValidator creates a new Validator with the given options.
func NewValidator(options ValidationOptions) *Validator {
	return &Validator{options: options}
}

// ValidateAll validates every dataset of idx and returns a detailed result.
func (v *Validator) ValidateAll(idx *metadata.Index) *ValidationResult {
	result := &ValidationResult{
		IsValid: true,
		Errors:  make([]*ValidationError, 0),
	}

	for _, name := range idx.Names() {
		result.DatasetsValidated++
		for _, err := range v.ValidateDataset(name, idx.Get(name)) {
			result.Errors = append(result.Errors, err)
			if err.Severity == SeverityError {
				result.ErrorCount++
				result.IsValid = false
			} else {
				result.WarningCount++
				if v.options.TreatWarningsAsErrors {
					result.IsValid = false
				}
			}
		}
	}

	return result
}

// ValidateDataset runs every check on one dataset.
func (v *Validator) ValidateDataset(name string, fields *metadata.Fields) []*ValidationError {
	errs := Check(name, fields, Mandatory)
	if fields == nil {
		return errs
	}

	for _, field := range Mandatory {
		if value, ok := fields.Lookup(field); ok && strings.TrimSpace(value) == "" {
			errs = append(errs, warning(name, field, "", "not_empty",
				fmt.Sprintf("Mandatory field '%s' is empty", field)))
		}
	}

	if fields.Value("methodology") == "Other" && strings.TrimSpace(fields.Value("methodology_other")) == "" {
		errs = append(errs, warning(name, "methodology_other", "", "conditional",
			"Methodology is 'Other' but no description is given"))
	}

	errs = append(errs, v.checkOrganization(name, fields)...)

	if strings.TrimSpace(fields.Value("groups")) == "" {
		errs = append(errs, warning(name, "groups", "", "required",
			"No location groups are set"))
	}

	errs = append(errs, checkDates(name, fields)...)
	errs = append(errs, v.checkResources(name, fields)...)

	return errs
}

func (v *Validator) checkOrganization(name string, fields *metadata.Fields) []*ValidationError {
	if len(v.options.Organizations) == 0 {
		return nil
	}
	org := fields.Value("organization")
	for _, known := range v.options.Organizations {
		if org == known {
			return nil
		}
	}
	return []*ValidationError{{
		Severity: SeverityError,
		Dataset:  name,
		Field:    "organization",
		Value:    org,
		Rule:     "known_organization",
		Message:  "Organization is not known",
	}}
}

func checkDates(name string, fields *metadata.Fields) []*ValidationError {
	var errs []*ValidationError
	for _, field := range []string{"dataset_start_date", "dataset_end_date"} {
		value := strings.TrimSpace(fields.Value(field))
		if value == "" {
			continue
		}
		if _, err := time.Parse(DateLayout, value); err != nil {
			errs = append(errs, &ValidationError{
				Severity: SeverityError,
				Dataset:  name,
				Field:    field,
				Value:    value,
				Rule:     "date",
				Message:  fmt.Sprintf("Date must use the format %s", DateLayout),
			})
		}
	}
	if year := strings.TrimSpace(fields.Value("dataset_year")); year != "" {
		if _, err := strconv.Atoi(year); err != nil {
			errs = append(errs, &ValidationError{
				Severity: SeverityError,
				Dataset:  name,
				Field:    "dataset_year",
				Value:    year,
				Rule:     "year",
				Message:  "Year must be a number",
			})
		}
	}
	return errs
}

func (v *Validator) checkResources(name string, fields *metadata.Fields) []*ValidationError {
	var errs []*ValidationError
	groups := metadata.ResourceGroups(fields)
	if len(groups) == 0 {
		errs = append(errs, warning(name, "resource", "", "required", "Dataset has no resources"))
	}

	for _, g := range groups {
		if v.skipped(g.Get("format")) {
			continue
		}
		for _, attr := range []string{"name", "format", "url"} {
			if strings.TrimSpace(g.Get(attr)) != "" {
				continue
			}
			errs = append(errs, &ValidationError{
				Severity: SeverityError,
				Dataset:  name,
				Field:    g.Key + "_" + attr,
				Rule:     "required",
				Message:  fmt.Sprintf("Resource attribute '%s' is missing", attr),
			})
		}
		for _, attr := range g.Repeated {
			errs = append(errs, warning(name, g.Key+"_"+attr, "", "single_value",
				"Resource attribute is given more than once; the last value is used"))
		}
	}
	return errs
}

func (v *Validator) skipped(format string) bool {
	for _, f := range v.options.SkipFormats {
		if strings.EqualFold(strings.TrimSpace(format), f) {
			return true
		}
	}
	return false
}

func warning(dataset, field, value, rule, message string) *ValidationError {
	return &ValidationError{
		Severity: SeverityWarning,
		Dataset:  dataset,
		Field:    field,
		Value:    value,
		Rule:     rule,
		Message:  message,
	}
}
