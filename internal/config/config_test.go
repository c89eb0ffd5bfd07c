package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/goharvest/internal/config"
	"github.com/jonesrussell/goharvest/internal/domain"
)

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg := config.New()

	assert.Equal(t, config.DefaultAppName, cfg.App.Name)
	assert.Equal(t, config.DefaultEnvironment, cfg.App.Environment)
	assert.Equal(t, config.DefaultServerAddress, cfg.Server.Address)
	assert.Equal(t, config.DefaultMaxConcurrent, cfg.Orchestrator.MaxConcurrent)
	assert.Equal(t, config.DefaultBackoffBase, cfg.Orchestrator.BackoffBase)
	assert.Equal(t, config.DefaultBackoffCap, cfg.Orchestrator.BackoffCap)
	assert.InDelta(t, config.DefaultFailureRateThreshold, cfg.Orchestrator.FailureRateThreshold, 0.001)
	assert.InDelta(t, config.DefaultSuccessRateFloor, cfg.Egress.SuccessRateFloor, 0.001)
	assert.Equal(t, config.DefaultQuarantineThreshold, cfg.Egress.QuarantineThreshold)
	assert.Equal(t, config.DefaultPatternRetention, cfg.Detector.PatternRetention)
	assert.Equal(t, config.DefaultRedisAddr, cfg.Redis.Addr)
	assert.Equal(t, config.DefaultEventStream, cfg.Events.Stream)
	assert.Equal(t, config.DefaultArchiveQueueSize, cfg.Archive.QueueSize)

	require.NoError(t, cfg.Validate())
}

func TestOrchestratorConfig_Validate(t *testing.T) {
	t.Parallel()

	valid := func() config.OrchestratorConfig {
		cfg := config.New()
		return cfg.Orchestrator
	}

	tests := []struct {
		name    string
		mutate  func(*config.OrchestratorConfig)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(*config.OrchestratorConfig) {},
			wantErr: false,
		},
		{
			name:    "zero concurrency",
			mutate:  func(c *config.OrchestratorConfig) { c.MaxConcurrent = 0 },
			wantErr: true,
		},
		{
			name:    "cap below base",
			mutate:  func(c *config.OrchestratorConfig) { c.BackoffCap = c.BackoffBase / 2 },
			wantErr: true,
		},
		{
			name:    "failure rate above one",
			mutate:  func(c *config.OrchestratorConfig) { c.FailureRateThreshold = 1.5 },
			wantErr: true,
		},
		{
			name:    "blocking confidence above one",
			mutate:  func(c *config.OrchestratorConfig) { c.BlockingConfidence = 2 },
			wantErr: true,
		},
	}

	for i := range tests {
		test := &tests[i]
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid()
			test.mutate(&cfg)

			err := cfg.Validate()
			if test.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestEgressConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		points  []config.EgressPointConfig
		wantErr bool
	}{
		{
			name: "valid points",
			points: []config.EgressPointConfig{
				{ID: "dc-1", Address: "10.0.0.1:8080", Protocol: "http", Geo: "us"},
				{ID: "res-1", Address: "10.0.0.2:8080", Residential: true},
			},
			wantErr: false,
		},
		{
			name: "missing id",
			points: []config.EgressPointConfig{
				{Address: "10.0.0.1:8080"},
			},
			wantErr: true,
		},
		{
			name: "missing address",
			points: []config.EgressPointConfig{
				{ID: "dc-1"},
			},
			wantErr: true,
		},
		{
			name: "duplicate id",
			points: []config.EgressPointConfig{
				{ID: "dc-1", Address: "10.0.0.1:8080"},
				{ID: "dc-1", Address: "10.0.0.2:8080"},
			},
			wantErr: true,
		},
	}

	for i := range tests {
		test := &tests[i]
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.New()
			cfg.Egress.Points = test.points

			err := cfg.Egress.Validate()
			if test.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateSources(t *testing.T) {
	t.Parallel()

	source := func(name string) config.SourceConfig {
		return config.SourceConfig{
			Name:          name,
			Enabled:       true,
			Tier:          2,
			Category:      "listings",
			URLs:          []string{"https://" + name + ".example.com/catalog"},
			MaxConcurrent: 2,
			RateLimit:     time.Second,
			Timeout:       time.Minute,
		}
	}

	tests := []struct {
		name    string
		sources func() []config.SourceConfig
		wantErr error
	}{
		{
			name: "valid sources",
			sources: func() []config.SourceConfig {
				return []config.SourceConfig{source("acme"), source("blueco")}
			},
		},
		{
			name: "duplicate name",
			sources: func() []config.SourceConfig {
				return []config.SourceConfig{source("acme"), source("acme")}
			},
			wantErr: config.ErrDuplicateSource,
		},
		{
			name: "missing name",
			sources: func() []config.SourceConfig {
				s := source("acme")
				s.Name = ""
				return []config.SourceConfig{s}
			},
			wantErr: config.ErrSourceNameRequired,
		},
		{
			name: "no urls",
			sources: func() []config.SourceConfig {
				s := source("acme")
				s.URLs = nil
				return []config.SourceConfig{s}
			},
			wantErr: config.ErrSourceURLRequired,
		},
	}

	for i := range tests {
		test := &tests[i]
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.New()
			cfg.Sources = test.sources()

			err := cfg.ValidateSources()
			if test.wantErr != nil {
				require.ErrorIs(t, err, test.wantErr)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestSourceConfig_ValidateRejectsBadInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.SourceConfig)
	}{
		{
			name:   "relative url",
			mutate: func(s *config.SourceConfig) { s.URLs = []string{"/catalog"} },
		},
		{
			name:   "tier out of range",
			mutate: func(s *config.SourceConfig) { s.Tier = 7 },
		},
		{
			name:   "zero concurrency",
			mutate: func(s *config.SourceConfig) { s.MaxConcurrent = -1 },
		},
	}

	for i := range tests {
		test := &tests[i]
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			src := config.SourceConfig{
				Name:          "acme",
				Tier:          2,
				URLs:          []string{"https://acme.example.com"},
				MaxConcurrent: 2,
			}
			test.mutate(&src)

			require.Error(t, src.Validate())
		})
	}
}

func TestSourceConfig_Profile(t *testing.T) {
	t.Parallel()

	src := config.SourceConfig{
		Name:          "acme",
		Enabled:       true,
		Tier:          1,
		Category:      "listings",
		URLs:          []string{"https://acme.example.com/catalog"},
		MaxConcurrent: 3,
		RateLimit:     2 * time.Second,
		Timeout:       90 * time.Second,
		Egress: config.EgressRequirementsConfig{
			Residential: true,
			Geo:         "us",
			StrictGeo:   true,
		},
	}

	profile := src.Profile()

	assert.Equal(t, "acme", profile.Name)
	assert.True(t, profile.Enabled)
	assert.Equal(t, domain.TierCritical, profile.Tier)
	assert.Equal(t, []string{"https://acme.example.com/catalog"}, profile.URLs)
	assert.Equal(t, 3, profile.MaxConcurrent)
	assert.Equal(t, 90*time.Second, profile.Timeout)
	assert.True(t, profile.Egress.Residential)
	assert.Equal(t, "us", profile.Egress.Geo)
	assert.True(t, profile.Egress.StrictGeo)
}

func TestProductSelectorsSkipsSourcesWithoutSelectors(t *testing.T) {
	t.Parallel()

	cfg := config.New()
	cfg.Sources = []config.SourceConfig{
		{
			Name:             "acme",
			URLs:             []string{"https://acme.example.com"},
			ProductSelectors: []string{"[data-testid=sku-tile]"},
		},
		{
			Name: "blueco",
			URLs: []string{"https://blueco.example.com"},
		},
	}

	selectors := cfg.ProductSelectors()

	require.Len(t, selectors, 1)
	assert.Equal(t, []string{"[data-testid=sku-tile]"}, selectors["acme"])
}

func TestSourceLookup(t *testing.T) {
	t.Parallel()

	cfg := config.New()
	cfg.Sources = []config.SourceConfig{
		{Name: "acme", URLs: []string{"https://acme.example.com"}},
	}

	src, ok := cfg.Source("acme")
	require.True(t, ok)
	assert.Equal(t, "acme", src.Name)

	_, ok = cfg.Source("missing")
	assert.False(t, ok)
}
