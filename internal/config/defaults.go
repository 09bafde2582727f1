package config

const (
	defaultConfigPath     = "~/.config/clipforge/config.toml"
	defaultBaseURL        = "http://localhost:8000/api"
	defaultAuthScheme     = "Token"
	defaultRequestTimeout = 30
	defaultUploadTimeout  = 600
	defaultMaxAttempts    = 20
	defaultPollDelayMS    = 3000
	defaultExpectedShorts = 3
	defaultPollMode       = PollModeShorts
	defaultDataDir        = "~/.local/share/clipforge"
	defaultCacheDir       = "~/.cache/clipforge"
	defaultSessionFile    = "~/.config/clipforge/session.json"
	defaultPort           = 8788
	defaultMaxPages       = 50
	defaultLogLevel       = "info"
	defaultLogFormat      = "auto"
)

// Poll modes select how the workflow decides a run is complete.
const (
	PollModeShorts = "shorts"
	PollModeStatus = "status"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Backend: Backend{
			BaseURL:        defaultBaseURL,
			AuthScheme:     defaultAuthScheme,
			RequestTimeout: defaultRequestTimeout,
			UploadTimeout:  defaultUploadTimeout,
		},
		Workflow: Workflow{
			MaxAttempts:    defaultMaxAttempts,
			PollDelayMS:    defaultPollDelayMS,
			ExpectedShorts: defaultExpectedShorts,
			PollMode:       defaultPollMode,
		},
		Paths: Paths{
			DataDir:     defaultDataDir,
			CacheDir:    defaultCacheDir,
			SessionFile: defaultSessionFile,
		},
		API: API{
			Port: defaultPort,
		},
		Library: Library{
			MaxPages: defaultMaxPages,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
