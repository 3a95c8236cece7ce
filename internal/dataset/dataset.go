package dataset

import (
	"fmt"
	"time"
)

// Dataset is a publishable catalog dataset. It is built once by Builder and
// not modified afterwards.
type Dataset struct {
	Name             string
	Title            string
	Notes            string
	DatasetSource    string
	Methodology      string
	MethodologyOther string
	Caveats          string
	LicenseTitle     string

	// Maintainer and Organization are catalog ids.
	Maintainer       string
	Organization     string
	OrganizationName string

	// UpdateFrequency is a day count or a frequency token, passed through.
	UpdateFrequency string
	Subnational     bool

	Locations  []string
	Tags       []string
	TimePeriod TimePeriod
	CODLevel   string

	Resources []Resource

	// FailedResources names the resource groups that could not be added.
	// Publishers keep existing catalog resources with these names.
	FailedResources []string
}

// Resource is one file or link of a dataset. Exactly one of URL and FilePath
// is set.
type Resource struct {
	Name        string
	Description string
	Format      string
	URL         string
	FilePath    string

	// Extra holds further resource_<n>_<attribute> values, keyed by attribute.
	Extra map[string]string
}

// IsUpload reports whether the resource carries a local file.
func (r Resource) IsUpload() bool {
	return r.FilePath != ""
}

// TimePeriod is the reference period of a dataset. An ongoing period has no
// end.
type TimePeriod struct {
	Start   time.Time
	End     time.Time
	Ongoing bool
}

// YearPeriod returns the period covering the calendar year.
func YearPeriod(year int) TimePeriod {
	return TimePeriod{
		Start: time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC),
	}
}

// RangePeriod returns the closed period from start to end. A zero end makes
// the period ongoing.
func RangePeriod(start, end time.Time) (TimePeriod, error) {
	if end.IsZero() {
		return TimePeriod{Start: start, Ongoing: true}, nil
	}
	if end.Before(start) {
		return TimePeriod{}, fmt.Errorf("end date %s is before start date %s",
			end.Format(dateLayout), start.Format(dateLayout))
	}
	return TimePeriod{Start: start, End: end}, nil
}

// String renders the period in the catalog's dataset_date form.
//
// EXAMPLE:
//
//	[2024-01-01T00:00:00 TO 2024-12-31T23:59:59]
//	[2024-01-01T00:00:00 TO *]
func (p TimePeriod) String() string {
	start := p.Start.Format("2006-01-02") + "T00:00:00"
	if p.Ongoing {
		return fmt.Sprintf("[%s TO *]", start)
	}
	return fmt.Sprintf("[%s TO %sT23:59:59]", start, p.End.Format("2006-01-02"))
}
