package config

// Option adjusts how Load discovers configuration.
type Option func(*options)

type options struct {
	configPath string
	envPrefix  string
}

// WithConfigFile specifies an explicit configuration file path.
func WithConfigFile(path string) Option {
	return func(o *options) {
		o.configPath = path
	}
}

// WithEnvPrefix specifies a custom environment variable prefix.
// Default is "BOOSTCTL".
func WithEnvPrefix(prefix string) Option {
	return func(o *options) {
		o.envPrefix = prefix
	}
}
