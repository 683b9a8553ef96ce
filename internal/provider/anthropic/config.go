package anthropic

// Config contains Anthropic adapter configuration.
//
// The generous default timeout covers long drafting calls; it is a client
// configuration detail, not part of the dispatch algorithm. StreamThreshold
// is the prompt length (in characters) above which calls always stream.
type Config struct {
	APIKey          string `env:"ANTHROPIC_API_KEY"`
	BaseURL         string `env:"ANTHROPIC_BASE_URL"         envDefault:"https://api.anthropic.com/v1"`
	Timeout         int    `env:"ANTHROPIC_TIMEOUT"          envDefault:"600"`
	StreamThreshold int    `env:"ANTHROPIC_STREAM_THRESHOLD" envDefault:"1000"`
}
