package session

// Config holds session defaults loaded from configuration.
type Config struct {
	// Autocommit disables implicit transactions.
	Autocommit bool `mapstructure:"autocommit"`

	// Autoflush flushes pending changes before Get, Find and Count. Defaults to true.
	Autoflush *bool `mapstructure:"autoflush"`

	// TracerName names the OpenTelemetry tracer used for session spans.
	TracerName string `mapstructure:"tracer_name"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Autoflush == nil {
		on := true
		c.Autoflush = &on
	}
	if c.TracerName == "" {
		c.TracerName = defaultTracerName
	}
}

// Options converts the configuration into session options.
func (c Config) Options() []Option {
	c.ApplyDefaults()
	opts := []Option{
		WithAutoflush(*c.Autoflush),
		WithTracerName(c.TracerName),
	}
	if c.Autocommit {
		opts = append(opts, WithAutocommit())
	}
	return opts
}
