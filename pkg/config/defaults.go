package config

const (
	defaultSubscriptionURL = "http://127.0.0.1:4000/v1/graphql-sub"
	defaultReadBufferSize  = 32 * 1024
	defaultWatchTimeout    = "2m"
	defaultAPIListen       = ":8081"
	defaultKafkaTopic      = "substream.status"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Subscription: SubscriptionConfig{
			URL:            defaultSubscriptionURL,
			ReadBufferSize: defaultReadBufferSize,
		},
		Watch: WatchConfig{
			Timeout: defaultWatchTimeout,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		EventStream: EventStreamConfig{
			KafkaTopic: defaultKafkaTopic,
		},
	}
}
