package internal

import (
	"log/slog"

	"github.com/starford/everzim/internal/backup"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config   *Config
	logger   *slog.Logger
	prompter backup.Prompter
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogger replaces the default JSON logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *application) {
		a.logger = l
	}
}

// WithPrompter sets where the prompt error policy asks for confirmation.
func WithPrompter(p backup.Prompter) Option {
	return func(a *application) {
		a.prompter = p
	}
}
