package models

// Crisis resource categories.
const (
	CategorySuicide       = "suicide"
	CategoryMentalHealth  = "mental_health"
	CategoryDomesticAbuse = "domestic_abuse"
	CategorySexualAssault = "sexual_assault"
	CategoryChildAbuse    = "child_abuse"
	CategoryLGBTQSupport  = "lgbtq_support"
)

// Regions the allowlist covers.
const (
	RegionUS        = "us"
	RegionUK        = "uk"
	RegionCanada    = "canada"
	RegionAustralia = "australia"
	RegionGlobal    = "global"
)

// AllowlistEntry is one protected help resource. Immutable, loaded once at
// startup; read by every guard check.
type AllowlistEntry struct {
	Domain   string   `json:"domain" yaml:"domain"`
	Aliases  []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Category string   `json:"category" yaml:"category"`
	Region   string   `json:"region" yaml:"region"`
}
