package internal

// Option configures the application before Run starts it.
type Option func(*application)

type application struct {
	config *Config
}

// WithConfig overrides the default configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}
