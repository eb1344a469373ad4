package wsess

// DefaultWorkers is the scheduler pool width used when Config leaves it
// unset. Connect and send work items are short-lived, so a narrow pool
// serves many sessions.
const DefaultWorkers = 2

// Config carries the client construction options.
type Config struct {
	// NewTransport builds one fresh transport per connect attempt. Required.
	NewTransport TransportFactory
	// Workers sets the scheduler pool width. Defaults to DefaultWorkers.
	Workers int
}

// WithDefaults returns a copy of the config with unset fields filled in.
func (c Config) WithDefaults() Config {
	out := c
	if out.Workers <= 0 {
		out.Workers = DefaultWorkers
	}
	return out
}

func (c Config) validate() error {
	if c.NewTransport == nil {
		return ErrTransportFactoryRequired
	}
	return nil
}
