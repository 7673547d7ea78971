package model

// CompetitorProfile identifies the competitor under analysis. It is created
// once per analysis request and not mutated afterwards; discovery and
// collection read from it but never write back.
type CompetitorProfile struct {
	Name            string   `json:"name"`
	RootURL         string   `json:"root_url"`
	ManualOverrides []string `json:"manual_overrides,omitempty"`
	CountryCode     string   `json:"country_code,omitempty"`
}

// Country returns the profile's country code, defaulting to US.
func (p CompetitorProfile) Country() string {
	if p.CountryCode == "" {
		return "US"
	}
	return p.CountryCode
}
