package config

const (
	defaultAPIURL            = "http://localhost:3000/api"
	defaultEventsURL         = "ws://localhost:3000/ws"
	defaultRequestTimeout    = 30
	defaultStateDir          = "~/.local/share/tutorcast/state"
	defaultLogDir            = "~/.local/share/tutorcast/logs"
	defaultReconnectAttempts = 5
	defaultReconnectDelay    = 1
	defaultCompanionTimeout  = 5
	defaultPageLimit         = 10
	defaultTargetLanguage    = "en"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Server: Server{
			APIURL:         defaultAPIURL,
			EventsURL:      defaultEventsURL,
			RequestTimeout: defaultRequestTimeout,
		},
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Events: Events{
			ReconnectAttempts: defaultReconnectAttempts,
			ReconnectDelay:    defaultReconnectDelay,
		},
		Companion: Companion{
			RequestTimeout: defaultCompanionTimeout,
		},
		Recordings: Recordings{
			PageLimit:      defaultPageLimit,
			TargetLanguage: defaultTargetLanguage,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
