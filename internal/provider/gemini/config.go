package gemini

// Config contains Gemini adapter configuration.
type Config struct {
	APIKey  string `env:"GOOGLE_API_KEY"`
	BaseURL string `env:"GOOGLE_BASE_URL" envDefault:"https://generativelanguage.googleapis.com"`
	Timeout int    `env:"GOOGLE_TIMEOUT"  envDefault:"120"`
}
