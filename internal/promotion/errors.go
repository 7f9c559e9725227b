package promotion

// ConfigError reports a bad caller-supplied configuration, e.g. a
// target stage that is not on the ladder. It is detected before any
// network call is made.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return e.Msg
}
