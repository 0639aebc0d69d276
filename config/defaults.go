package config

const (
	ImageTypeAPI  = "image_api"
	ImageTypeChat = "chat"

	HistoryBackendFile   = "file"
	HistoryBackendSQLite = "sqlite"
	HistoryBackendMemory = "memory"
)

const (
	defaultConfigPath       = "~/.config/inkink/config.toml"
	defaultAddr             = ":12398"
	defaultBaseURL          = "https://api.openai.com/v1"
	defaultTextModel        = "gpt-4o-mini"
	defaultImageModel       = "gpt-image-1"
	defaultTemperature      = 0.7
	defaultMaxRetries       = 2
	defaultRequestTimeout   = 120
	defaultRetryConcurrency = 2
	defaultTaskTTLMinutes   = 60
	defaultHistoryBackend   = HistoryBackendFile
	defaultHistoryDir       = "~/.local/share/inkink"
	defaultLogFormat        = "auto"
	defaultLogLevel         = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Server: Server{
			Addr:                  defaultAddr,
			CORSOrigin:            "*",
			RequestTimeoutSeconds: defaultRequestTimeout,
		},
		Text: Provider{
			Name:        "openai",
			Type:        "openai_compatible",
			Model:       defaultTextModel,
			BaseURL:     defaultBaseURL,
			Temperature: defaultTemperature,
			MaxRetries:  defaultMaxRetries,
		},
		Image: Provider{
			Name:        "openai_image",
			Type:        ImageTypeAPI,
			Model:       defaultImageModel,
			BaseURL:     defaultBaseURL,
			Temperature: defaultTemperature,
			MaxRetries:  defaultMaxRetries,
		},
		Pipeline: Pipeline{
			RetryConcurrency: defaultRetryConcurrency,
			TaskTTLMinutes:   defaultTaskTTLMinutes,
		},
		History: History{
			Backend: defaultHistoryBackend,
			Dir:     defaultHistoryDir,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
