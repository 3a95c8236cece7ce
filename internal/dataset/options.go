package dataset

// Fixed catalog identifiers.
const (
	MaintainerID = "9429fda5-d84f-42e4-890d-e03bf8297f7b"

	OrgFISS    = "OCHA Field Information Services Section (FISS)"
	OrgFISSID  = "b3a25ac4-ac05-4991-923c-d25f47bef1ec"
	OrgUNFPA   = "UNFPA"
	OrgUNFPAID = "95aa8d05-b110-4607-9330-f2a779885493"

	// ReviewLocation replaces every location in review mode.
	ReviewLocation = "can"

	// ApprovedTagsVocabularyID is the catalog's approved tag vocabulary.
	ApprovedTagsVocabularyID = "b891512e-9516-4bf5-962a-7a289772a2a1"
)

// ThemeTags assigns tags to datasets whose identifier starts with Prefix.
type ThemeTags struct {
	Prefix string
	Tags   []string
}

// Options holds the fixed lookup tables used by Builder.
type Options struct {
	Maintainer string

	// Organizations maps organization names to catalog ids. Matching is
	// exact.
	Organizations map[string]string

	// LocationAliases maps lower-cased country names to location codes.
	LocationAliases map[string]string

	ReviewLocation string

	// Themes are checked in order when a dataset has no tags field.
	Themes []ThemeTags

	// FetchFormats are downloaded and uploaded as files, SkipFormats are
	// dropped. Both are compared case-insensitively.
	FetchFormats []string
	SkipFormats  []string

	// DefaultReferenceYear is used when no period fields are present.
	// Zero disables it.
	DefaultReferenceYear int

	TagVocabularyID string
}

// DefaultOptions returns the options of the Simland scraper.
func DefaultOptions() Options {
	return Options{
		Maintainer: MaintainerID,
		Organizations: map[string]string{
			OrgFISS:  OrgFISSID,
			OrgUNFPA: OrgUNFPAID,
		},
		LocationAliases: map[string]string{
			"eastland":  "etl",
			"northland": "ntl",
			"simland":   "sld",
			"southland": "stl",
			"westland":  "wtl",
		},
		ReviewLocation: ReviewLocation,
		Themes: []ThemeTags{
			{Prefix: "cod-ps", Tags: []string{"baseline population"}},
			{Prefix: "cod-ab", Tags: []string{"administrative boundaries-divisions"}},
			{Prefix: "cod-em", Tags: []string{"administrative boundaries-divisions"}},
		},
		FetchFormats:         []string{"csv"},
		SkipFormats:          []string{"geoservice"},
		DefaultReferenceYear: 2024,
		TagVocabularyID:      ApprovedTagsVocabularyID,
	}
}

// OrganizationNames returns the names of the known organizations.
func (o Options) OrganizationNames() []string {
	names := make([]string, 0, len(o.Organizations))
	for name := range o.Organizations {
		names = append(names, name)
	}
	return names
}
