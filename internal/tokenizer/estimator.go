// Package tokenizer estimates token counts with tiktoken byte-pair
// encodings, degrading to a character heuristic when an encoding is
// unavailable. Estimation never fails; it is the safety net under the
// cost accounting, not another failure source.
package tokenizer

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/lexgate/dispatch/internal/domain"
)

const (
	// cl100k_base approximates GPT-4-class vocabularies and is the default
	// for providers without a public tokenizer.
	defaultEncoding = "cl100k_base"

	// o200k_base is the encoding for GPT-4o and the o-series.
	modernOpenAIEncoding = "o200k_base"

	// Fallback heuristic: roughly one token per four characters.
	charsPerToken = 4
)

// Model id prefixes that use the o200k_base encoding.
var modernOpenAIPrefixes = []string{"gpt-4o", "gpt-4.1", "gpt-5", "o1", "o3", "o4", "chatgpt-4o"}

// TiktokenEstimator implements domain.TokenEstimator.
//
// Encodings are expensive to construct, so they are cached per encoding
// family rather than per model id. The cache is populated at most once per
// family and is safe for concurrent use.
type TiktokenEstimator struct {
	mu       sync.Mutex
	encoders map[string]*tiktoken.Tiktoken

	// Seam for tests; defaults to tiktoken.GetEncoding.
	loadEncoding func(name string) (*tiktoken.Tiktoken, error)
}

// New creates a new estimator.
func New() *TiktokenEstimator {
	return &TiktokenEstimator{
		encoders:     make(map[string]*tiktoken.Tiktoken),
		loadEncoding: tiktoken.GetEncoding,
	}
}

// Estimate returns the approximate token count of text for the given model.
// A nil descriptor selects the default encoding. Any tokenizer problem
// falls back to len(text)/4; this method never fails.
func (e *TiktokenEstimator) Estimate(text string, model *domain.ModelDescriptor) int {
	if text == "" {
		return 0
	}

	enc := e.encoder(encodingFor(model))
	if enc == nil {
		return len(text) / charsPerToken
	}

	return countTokens(enc, text)
}

// countTokens isolates the encode call so a misbehaving encoding can only
// ever degrade to the character heuristic.
func countTokens(enc *tiktoken.Tiktoken, text string) (n int) {
	defer func() {
		if r := recover(); r != nil {
			n = len(text) / charsPerToken
		}
	}()
	return len(enc.Encode(text, nil, nil))
}

// encoder returns the cached encoding, constructing it on first use.
// Concurrent first calls converge on a single cached instance. Load
// failures are not cached so a transient failure can heal.
func (e *TiktokenEstimator) encoder(name string) *tiktoken.Tiktoken {
	e.mu.Lock()
	defer e.mu.Unlock()

	if enc, ok := e.encoders[name]; ok {
		return enc
	}

	enc, err := e.loadEncoding(name)
	if err != nil || enc == nil {
		return nil
	}

	e.encoders[name] = enc
	return enc
}

// encodingFor selects the tokenizer family for a model. OpenAI ids map to
// their real encodings; everything else approximates with cl100k_base,
// since no public exact tokenizer exists for those providers.
func encodingFor(model *domain.ModelDescriptor) string {
	if model == nil || model.Provider != domain.ProviderOpenAI {
		return defaultEncoding
	}
	for _, prefix := range modernOpenAIPrefixes {
		if strings.HasPrefix(model.ID, prefix) {
			return modernOpenAIEncoding
		}
	}
	return defaultEncoding
}
