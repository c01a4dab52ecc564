package internal

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Export  ExportConfig      `yaml:"export"`
	Backup  BackupConfig      `yaml:"backup"`
	Rewrite RewriteConfig     `yaml:"rewrite"`
	Watch   WatchConfig       `yaml:"watch"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Export.Validate(); err != nil {
		return err
	}
	if err := c.Backup.Validate(); err != nil {
		return err
	}
	if err := c.Rewrite.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
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

// ExportConfig locates the exported notes, their notebook index and the
// backup output root.
type ExportConfig struct {
	Path     string `yaml:"path"`
	Database string `yaml:"database"`
	Output   string `yaml:"output"`
}

// Validate validates the export configuration.
func (c *ExportConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Output, validation.Required),
	)
}

// InPlace reports whether notes are converted inside the export directory.
func (c *ExportConfig) InPlace() bool {
	a, errA := filepath.Abs(c.Path)
	b, errB := filepath.Abs(c.Output)
	return errA == nil && errB == nil && a == b
}

// Error policies.
const (
	OnErrorSkip   = "skip"
	OnErrorAbort  = "abort"
	OnErrorPrompt = "prompt"
)

// BackupConfig selects the steps of a backup run.
type BackupConfig struct {
	NotebooksToDirs bool   `yaml:"notebooks_to_dirs"`
	ToMarkdown      bool   `yaml:"to_markdown"`
	ZimSyntax       bool   `yaml:"zim_syntax"`
	Workers         int    `yaml:"workers"`
	OnError         string `yaml:"on_error"`
}

// Validate validates the backup configuration.
func (c *BackupConfig) Validate() error {
	if c.OnError == "" {
		c.OnError = OnErrorSkip
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Workers, validation.Min(0)),
		validation.Field(&c.OnError, validation.In(OnErrorSkip, OnErrorAbort, OnErrorPrompt)),
	)
}

// Convert reports whether notes are converted at all. Zim output needs
// the markdown step first.
func (c *BackupConfig) Convert() bool {
	return c.ToMarkdown || c.ZimSyntax
}

// RewriteConfig tunes the Zim rewrite of image embeds. FetchRemote saves
// remotely hosted images into the asset directory during a backup.
type RewriteConfig struct {
	AssetDir    string `yaml:"asset_dir"`
	ImageWidth  int    `yaml:"image_width"`
	FetchRemote bool   `yaml:"fetch_remote"`
}

// Validate validates the rewrite configuration.
func (c *RewriteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.AssetDir, validation.By(relativeDir)),
		validation.Field(&c.ImageWidth, validation.Min(0)),
	)
}

// WatchConfig enables inbox conversion in serve mode. An empty Path watches
// the output root itself.
type WatchConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

func relativeDir(value interface{}) error {
	dir, _ := value.(string)
	if filepath.IsAbs(dir) || strings.Contains(dir, "..") {
		return fmt.Errorf("must be a directory inside the output root")
	}
	return nil
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

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Export: ExportConfig{
			Path:   "./export",
			Output: "./backup",
		},
		Backup: BackupConfig{
			NotebooksToDirs: true,
			ToMarkdown:      true,
			OnError:         OnErrorSkip,
		},
		Rewrite: RewriteConfig{
			AssetDir:   "uncategorized",
			ImageWidth: 800,
		},
		Watch: WatchConfig{
			Enabled: true,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
