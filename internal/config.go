package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/interlink/internal/collector"
	"github.com/starford/interlink/internal/commit"
	"github.com/starford/interlink/internal/datastore"
	"github.com/starford/interlink/internal/reconcile"
	"github.com/starford/interlink/internal/wordpress"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Data      DataConfig        `yaml:"data"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Auth      AuthConfig        `yaml:"auth"`
	WordPress WordPressConfig   `yaml:"wordpress"`
	Linking   LinkingConfig     `yaml:"linking"`
	Commit    CommitConfig      `yaml:"commit"`
}

// Validate validates the configuration. Credentials are checked by the
// operations that need them, not here.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Data.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.WordPress.Validate(); err != nil {
		return err
	}
	if err := c.Linking.Validate(); err != nil {
		return err
	}
	if c.Commit.Enabled {
		return c.Commit.Validate()
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

// DataConfig locates the JSON snapshots.
type DataConfig struct {
	Dir          string `yaml:"dir"`
	RegistryFile string `yaml:"registry_file"`
	LedgerFile   string `yaml:"ledger_file"`
	ArticlesFile string `yaml:"articles_file"`
}

// Files returns the snapshot names for the datastore.
func (c *DataConfig) Files() datastore.Files {
	return datastore.Files{
		Registry: c.RegistryFile,
		Ledger:   c.LedgerFile,
		Articles: c.ArticlesFile,
	}
}

// Validate validates the data configuration.
func (c *DataConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
		validation.Field(&c.RegistryFile, validation.Required, validation.By(jsonFile)),
		validation.Field(&c.LedgerFile, validation.Required, validation.By(jsonFile)),
		validation.Field(&c.ArticlesFile, validation.Required, validation.By(jsonFile)),
	)
}

func jsonFile(value any) error {
	s, _ := value.(string)
	if path.Ext(s) != ".json" || strings.ContainsAny(s, `/\`) {
		return errors.New("must be a plain .json file name")
	}
	return nil
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
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
	// Normalise empty mode to "disabled" for backward compatibility.
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

// WordPressConfig configures the content store.
type WordPressConfig struct {
	BaseURL    string              `yaml:"base_url"`
	Username   string              `yaml:"username"`
	Password   string              `yaml:"password"`
	Timeout    time.Duration       `yaml:"timeout"`
	Retries    int                 `yaml:"retries"`
	RetryWait  time.Duration       `yaml:"retry_wait"`
	UserAgent  string              `yaml:"user_agent"`
	BodyField  wordpress.BodyField `yaml:"body_field"`
	PerPage    int                 `yaml:"per_page"`
	MaxPages   int                 `yaml:"max_pages"`
	PathFilter string              `yaml:"path_filter"`
}

// Configured reports whether a base URL is set.
func (c *WordPressConfig) Configured() bool {
	return c.BaseURL != ""
}

// Validate validates the WordPress configuration.
func (c *WordPressConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, is.URL),
		validation.Field(&c.Retries, validation.Min(0), validation.Max(10)),
		validation.Field(&c.BodyField, validation.In(wordpress.BodyRaw, wordpress.BodyRendered)),
		validation.Field(&c.PerPage, validation.Min(0), validation.Max(100)),
		validation.Field(&c.MaxPages, validation.Min(0)),
	)
}

// ValidateCredentials checks what pushing bodies back requires.
func (c *WordPressConfig) ValidateCredentials() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.Username, validation.Required),
		validation.Field(&c.Password, validation.Required),
	)
}

// Client builds the WordPress client.
func (c *WordPressConfig) Client(logger *slog.Logger) *wordpress.Client {
	return wordpress.New(wordpress.Config{
		BaseURL:   c.BaseURL,
		Username:  c.Username,
		Password:  c.Password,
		Timeout:   c.Timeout,
		Retries:   c.Retries,
		RetryWait: c.RetryWait,
		UserAgent: c.UserAgent,
		BodyField: c.BodyField,
	}, logger)
}

// CollectOptions returns the collector bounds.
func (c *WordPressConfig) CollectOptions() collector.Options {
	return collector.Options{PerPage: c.PerPage, MaxPages: c.MaxPages, PathFilter: c.PathFilter}
}

// LinkingConfig holds the reconciliation tunables.
type LinkingConfig struct {
	MaxLinksPerDocument int                    `yaml:"max_links_per_document"`
	DetectMode          reconcile.DetectMode   `yaml:"detect_mode"`
	DetectSource        reconcile.DetectSource `yaml:"detect_source"`
}

// Validate validates the linking configuration.
func (c *LinkingConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxLinksPerDocument, validation.Min(0)),
		validation.Field(&c.DetectMode, validation.Required, validation.In(reconcile.DetectLiteral, reconcile.DetectHTML)),
		validation.Field(&c.DetectSource, validation.Required, validation.In(reconcile.SourcePage, reconcile.SourceContent)),
	)
}

// Driver returns the driver configuration.
func (c *LinkingConfig) Driver() reconcile.Config {
	return reconcile.Config{
		MaxLinks:     c.MaxLinksPerDocument,
		DetectMode:   c.DetectMode,
		DetectSource: c.DetectSource,
	}
}

// CommitConfig configures committing snapshots to a GitHub repository.
type CommitConfig struct {
	Enabled bool          `yaml:"enabled"`
	APIURL  string        `yaml:"api_url"`
	Owner   string        `yaml:"owner"`
	Repo    string        `yaml:"repo"`
	Branch  string        `yaml:"branch"`
	Token   string        `yaml:"token"`
	Path    string        `yaml:"path"`
	Timeout time.Duration `yaml:"timeout"`
}

// Validate validates the commit configuration.
func (c *CommitConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.APIURL, validation.Required, is.URL),
		validation.Field(&c.Owner, validation.Required),
		validation.Field(&c.Repo, validation.Required),
		validation.Field(&c.Branch, validation.Required),
		validation.Field(&c.Token, validation.Required),
	)
}

// Committer returns the GitHub committer, or a no-op one when committing is
// disabled.
func (c *CommitConfig) Committer(logger *slog.Logger) commit.Committer {
	if !c.Enabled {
		return commit.Nop{}
	}
	return commit.NewGitHub(commit.GitHubConfig{
		APIURL:  c.APIURL,
		Owner:   c.Owner,
		Repo:    c.Repo,
		Branch:  c.Branch,
		Token:   c.Token,
		Timeout: c.Timeout,
	}, logger)
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
		Data: DataConfig{
			Dir:          "./data",
			RegistryFile: "linkMapping.json",
			LedgerFile:   "linkUsage.json",
			ArticlesFile: "articles.json",
		},
		SQLite: SQLiteConfig{
			Path: "./interlink.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		WordPress: WordPressConfig{
			Timeout:    10 * time.Second,
			Retries:    2,
			RetryWait:  500 * time.Millisecond,
			UserAgent:  "Mozilla/5.0 (compatible; interlink/1.0)",
			BodyField:  wordpress.BodyRaw,
			PerPage:    50,
			MaxPages:   10,
			PathFilter: collector.DefaultPathFilter,
		},
		Linking: LinkingConfig{
			MaxLinksPerDocument: 3,
			DetectMode:          reconcile.DetectLiteral,
			DetectSource:        reconcile.SourcePage,
		},
		Commit: CommitConfig{
			APIURL:  "https://api.github.com",
			Branch:  "main",
			Path:    "data",
			Timeout: 15 * time.Second,
		},
	}
}
