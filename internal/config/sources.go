package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/jonesrussell/goharvest/internal/domain"
)

// EgressRequirementsConfig declares a source's egress constraints.
type EgressRequirementsConfig struct {
	// Residential requires a residential-class egress point.
	Residential bool `mapstructure:"residential"`
	// Geo is the preferred geography tag.
	Geo string `mapstructure:"geo"`
	// StrictGeo turns the geography preference into a hard filter.
	StrictGeo bool `mapstructure:"strict_geo"`
}

// SourceConfig declares one harvesting source.
type SourceConfig struct {
	// Name uniquely identifies the source.
	Name string `mapstructure:"name"`
	// Enabled marks the source as schedulable.
	Enabled bool `mapstructure:"enabled"`
	// Tier is the priority class (1 = critical .. 4 = low).
	Tier int `mapstructure:"tier"`
	// Category labels what the source yields (e.g. "listings").
	Category string `mapstructure:"category"`
	// URLs are the entry points jobs are generated for.
	URLs []string `mapstructure:"urls"`
	// MaxConcurrent caps simultaneous jobs against this source.
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// RateLimit is the minimum spacing between requests.
	RateLimit time.Duration `mapstructure:"rate_limit"`
	// Timeout bounds one job against this source.
	Timeout time.Duration `mapstructure:"timeout"`
	// ProductSelectors are the CSS selectors that indicate expected
	// content on this source's pages.
	ProductSelectors []string `mapstructure:"product_selectors"`
	// Egress constrains which egress points the source may use.
	Egress EgressRequirementsConfig `mapstructure:"egress"`
}

func (c *SourceConfig) applyDefaults() {
	if c.Tier == 0 {
		c.Tier = int(domain.TierMedium)
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultSourceMaxConcurrent
	}
	if c.RateLimit <= 0 {
		c.RateLimit = DefaultSourceRateLimit
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultSourceTimeout
	}
}

// Validate checks if the source declaration is valid.
func (c *SourceConfig) Validate() error {
	if c.Name == "" {
		return ErrSourceNameRequired
	}
	if len(c.URLs) == 0 {
		return fmt.Errorf("%s: %w", c.Name, ErrSourceURLRequired)
	}
	for _, raw := range c.URLs {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s: invalid url %q", c.Name, raw)
		}
	}
	if _, err := domain.ParseTier(c.Tier); err != nil {
		return fmt.Errorf("%s: %w", c.Name, err)
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("%s: %w", c.Name, ErrInvalidConcurrency)
	}
	return nil
}

// Profile converts the declaration into a runtime source profile.
func (c *SourceConfig) Profile() *domain.SourceProfile {
	return &domain.SourceProfile{
		Name:          c.Name,
		Enabled:       c.Enabled,
		Tier:          domain.Tier(c.Tier),
		Category:      c.Category,
		URLs:          append([]string(nil), c.URLs...),
		MaxConcurrent: c.MaxConcurrent,
		RateLimit:     c.RateLimit,
		Timeout:       c.Timeout,
		Egress: domain.EgressRequirements{
			Residential: c.Egress.Residential,
			Geo:         c.Egress.Geo,
			StrictGeo:   c.Egress.StrictGeo,
		},
	}
}

// ValidateSources checks every source declaration and rejects
// duplicate names.
func (c *Config) ValidateSources() error {
	seen := make(map[string]bool, len(c.Sources))
	for i := range c.Sources {
		src := &c.Sources[i]
		if err := src.Validate(); err != nil {
			return err
		}
		if seen[src.Name] {
			return fmt.Errorf("%s: %w", src.Name, ErrDuplicateSource)
		}
		seen[src.Name] = true
	}
	return nil
}

// Source returns the declaration for the named source.
func (c *Config) Source(name string) (*SourceConfig, bool) {
	for i := range c.Sources {
		if c.Sources[i].Name == name {
			return &c.Sources[i], true
		}
	}
	return nil, false
}

// SourceProfiles converts every declaration into a runtime profile
// keyed by source name.
func (c *Config) SourceProfiles() map[string]*domain.SourceProfile {
	profiles := make(map[string]*domain.SourceProfile, len(c.Sources))
	for i := range c.Sources {
		profiles[c.Sources[i].Name] = c.Sources[i].Profile()
	}
	return profiles
}

// ProductSelectors collects the per-source content selectors for the
// blocking detector.
func (c *Config) ProductSelectors() map[string][]string {
	selectors := make(map[string][]string)
	for i := range c.Sources {
		if len(c.Sources[i].ProductSelectors) > 0 {
			selectors[c.Sources[i].Name] = c.Sources[i].ProductSelectors
		}
	}
	return selectors
}
