package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"llmnexus/internal/llm"
	"llmnexus/internal/router"
)

//go:embed default_catalog.toml
var defaultCatalog []byte

// Catalog is the set of models and the objective routing table built on them.
type Catalog struct {
	Models []llm.ModelDescriptor
	Routes router.Table
	byID   map[string]int
}

type catalogFile struct {
	Models []modelEntry          `toml:"models"`
	Routes map[string]routeEntry `toml:"routes"`
}

type modelEntry struct {
	ID           string   `toml:"id"`
	Provider     string   `toml:"provider"`
	Model        string   `toml:"model"`
	Tags         []string `toml:"tags"`
	CostPerToken float64  `toml:"cost_per_token"`
	AvgLatency   string   `toml:"avg_latency"`
	MaxTokens    int      `toml:"max_tokens"`
	RPS          float64  `toml:"rps"`
	Burst        int      `toml:"burst"`
	RPM          int      `toml:"rpm"`
}

type routeEntry struct {
	Candidates []string `toml:"candidates"`
	FanOut     int      `toml:"fanout"`
}

// LoadCatalog reads a catalog file, or the built-in catalog when path is
// empty.
func LoadCatalog(path string) (*Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return ParseCatalog(defaultCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	c, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// ParseCatalog decodes and validates a catalog. Any problem rejects the
// catalog as a whole.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	md, err := toml.Decode(string(data), &f)
	if err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown catalog keys: %s", strings.Join(keys, ", "))
	}

	c := &Catalog{Routes: router.Table{}, byID: map[string]int{}}
	var errs []error
	for i, m := range f.Models {
		desc, err := m.descriptor()
		if err != nil {
			errs = append(errs, fmt.Errorf("models[%d]: %w", i, err))
			continue
		}
		k := catalogKey(desc.ID)
		if _, dup := c.byID[k]; dup {
			errs = append(errs, fmt.Errorf("models[%d]: duplicate id %q", i, desc.ID))
			continue
		}
		c.byID[k] = len(c.Models)
		c.Models = append(c.Models, desc)
	}
	for name, r := range f.Routes {
		obj, err := router.ParseObjective(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("routes.%s: %w", name, err))
			continue
		}
		if _, dup := c.Routes[obj]; dup {
			errs = append(errs, fmt.Errorf("routes.%s: objective %s routed twice", name, obj))
			continue
		}
		c.Routes[obj] = router.Route{Candidates: r.Candidates, FanOut: r.FanOut}
	}
	if len(errs) == 0 {
		if err := router.Validate(c.Routes, c); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return c, nil
}

func (m modelEntry) descriptor() (llm.ModelDescriptor, error) {
	desc := llm.ModelDescriptor{
		ID:           strings.TrimSpace(m.ID),
		Provider:     strings.ToLower(strings.TrimSpace(m.Provider)),
		Model:        strings.TrimSpace(m.Model),
		Tags:         m.Tags,
		CostPerToken: m.CostPerToken,
		MaxTokens:    m.MaxTokens,
	}
	switch {
	case desc.ID == "":
		return desc, fmt.Errorf("id is required")
	case desc.Provider == "" || desc.Model == "":
		return desc, fmt.Errorf("%s: provider and model are required", desc.ID)
	case desc.CostPerToken < 0:
		return desc, fmt.Errorf("%s: cost_per_token must not be negative", desc.ID)
	case m.MaxTokens < 0 || m.RPS < 0 || m.Burst < 0 || m.RPM < 0:
		return desc, fmt.Errorf("%s: limits must not be negative", desc.ID)
	}
	if s := strings.TrimSpace(m.AvgLatency); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return desc, fmt.Errorf("%s: avg_latency: %w", desc.ID, err)
		}
		desc.AvgLatency = d
	}
	if m.RPS > 0 || m.RPM > 0 {
		desc.RateLimit = &llm.RateLimitConfig{RPS: m.RPS, Burst: m.Burst, RPM: m.RPM}
	}
	return desc, nil
}

func catalogKey(id string) string { return strings.ToLower(strings.TrimSpace(id)) }

// Descriptor looks a model up by id.
func (c *Catalog) Descriptor(id string) (llm.ModelDescriptor, bool) {
	i, ok := c.byID[catalogKey(id)]
	if !ok {
		return llm.ModelDescriptor{}, false
	}
	return c.Models[i], true
}
