package internal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"path"
	"regexp"
	"slices"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/quarry/internal/checksum"
	"github.com/starford/quarry/internal/ident"
	"github.com/starford/quarry/internal/query"
	"github.com/starford/quarry/internal/schema"
	"github.com/starford/quarry/internal/storage"
	"github.com/starford/quarry/internal/store"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// DefaultExtensions are the content file types scanned when a collection
// does not list its own.
var DefaultExtensions = []string{".md", ".markdown", ".json"}

var (
	collectionNameRe = regexp.MustCompile(`^[a-z0-9-]+$`)
	fieldNameRe      = regexp.MustCompile(`^\S+$`)
)

// Config represents the application configuration.
type Config struct {
	App         ApplicationConfig           `yaml:"app"`
	Auth        AuthConfig                  `yaml:"auth"`
	Engine      EngineConfig                `yaml:"engine"`
	Collections map[string]CollectionConfig `yaml:"collections"`
}

// Validate validates the process-wide parts of the configuration and the
// collection names. Problems inside a single collection are reported by
// Definitions instead, so one broken collection does not stop the others.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	for _, name := range slices.Sorted(maps.Keys(c.Collections)) {
		if err := validation.Validate(name, validation.Required, validation.Match(collectionNameRe)); err != nil {
			return fmt.Errorf("collections: %q: %w", name, err)
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// EngineConfig holds settings shared by every collection.
type EngineConfig struct {
	// DebounceWindow is how long a path must stay quiet before its changes
	// are applied.
	DebounceWindow time.Duration `yaml:"debounce_window" json:"-"`
	// ItemBudget bounds the time spent on one file during a scan.
	ItemBudget  time.Duration `yaml:"item_budget" json:"item_budget"`
	ScanWorkers int           `yaml:"scan_workers" json:"scan_workers"`
	MaxPageSize int           `yaml:"max_page_size" json:"-"`
	// StripDatePrefix is the default for collections that do not set it.
	StripDatePrefix bool `yaml:"strip_date_prefix" json:"strip_date_prefix"`
	// EventThrottle limits collection.rebuilt notifications on the event
	// stream to one per collection per interval.
	EventThrottle time.Duration `yaml:"event_throttle" json:"-"`
}

// Validate validates the engine configuration.
func (c *EngineConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DebounceWindow, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.ItemBudget, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.ScanWorkers, validation.Required, validation.Min(1), validation.Max(256)),
		validation.Field(&c.MaxPageSize, validation.Required, validation.Min(1), validation.Max(10000)),
		validation.Field(&c.EventThrottle, validation.Min(time.Duration(0))),
	)
}

// CollectionConfig describes one collection: where its files live and the
// schema they are checked against.
type CollectionConfig struct {
	Folder    string `yaml:"folder" json:"folder"`
	SlugField string `yaml:"slug_field" json:"slug_field,omitempty"`
	// StripDatePrefix overrides the engine default when set.
	StripDatePrefix *bool             `yaml:"strip_date_prefix" json:"strip_date_prefix,omitempty"`
	Extensions      []string          `yaml:"extensions" json:"extensions,omitempty"`
	Schema          schema.Definition `yaml:"schema" json:"schema"`
}

// Validate validates the collection settings. The schema itself is checked
// by schema.Compile.
func (c *CollectionConfig) Validate() error {
	exts := make([]any, len(DefaultExtensions))
	for i, e := range DefaultExtensions {
		exts[i] = e
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Folder, validation.Required),
		validation.Field(&c.SlugField, validation.Match(fieldNameRe)),
		validation.Field(&c.Extensions, validation.Each(validation.In(exts...))),
	)
}

func (c *CollectionConfig) extensions() []string {
	if len(c.Extensions) == 0 {
		return DefaultExtensions
	}
	return c.Extensions
}

func (c *CollectionConfig) stripDatePrefix(engine EngineConfig) bool {
	if c.StripDatePrefix != nil {
		return *c.StripDatePrefix
	}
	return engine.StripDatePrefix
}

// QueryOptions returns the query builder limits.
func (c *Config) QueryOptions() query.Options {
	return query.Options{MaxPageSize: c.Engine.MaxPageSize}
}

// Definitions builds one store definition per configured collection. A
// collection whose settings or schema are invalid, or whose folder cannot be
// opened, gets a Definition carrying the error and nothing else.
func (c *Config) Definitions() map[string]store.Definition {
	defs := make(map[string]store.Definition, len(c.Collections))
	for name, cc := range c.Collections {
		defs[name] = c.definition(name, cc)
	}
	return defs
}

func (c *Config) definition(name string, cc CollectionConfig) store.Definition {
	fingerprint, err := c.fingerprint(cc)
	fail := func(err error) store.Definition {
		return store.Definition{Err: fmt.Errorf("collection %q: %w", name, err), Fingerprint: fingerprint}
	}
	if err != nil {
		return fail(err)
	}

	if err := cc.Validate(); err != nil {
		return fail(err)
	}
	sch, err := schema.Compile(cc.Schema)
	if err != nil {
		return fail(err)
	}
	src, err := storage.NewFS(cc.Folder, extensionMatcher(cc.extensions()))
	if err != nil {
		return fail(err)
	}
	return store.Definition{
		Config: store.Config{
			Name:       name,
			Schema:     sch,
			Source:     src,
			SlugField:  cc.SlugField,
			Ident:      ident.Options{StripDatePrefix: cc.stripDatePrefix(c.Engine)},
			Workers:    c.Engine.ScanWorkers,
			ItemBudget: c.Engine.ItemBudget,
		},
		Fingerprint: fingerprint,
	}
}

// fingerprint identifies everything that affects how a collection is built.
func (c *Config) fingerprint(cc CollectionConfig) (string, error) {
	data, err := json.Marshal(struct {
		Collection CollectionConfig `json:"collection"`
		Engine     EngineConfig     `json:"engine"`
	}{cc, c.Engine})
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return checksum.Sum(data), nil
}

func extensionMatcher(exts []string) func(name string) bool {
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		set[strings.ToLower(e)] = struct{}{}
	}
	return func(name string) bool {
		_, ok := set[strings.ToLower(path.Ext(name))]
		return ok
	}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Engine: EngineConfig{
			DebounceWindow: 300 * time.Millisecond,
			ItemBudget:     store.DefaultItemBudget,
			ScanWorkers:    store.DefaultWorkers,
			MaxPageSize:    query.DefaultMaxPageSize,
			EventThrottle:  2 * time.Second,
		},
		Collections: map[string]CollectionConfig{},
	}
}
