package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// MessageOverhead is added to every estimate for provider framing.
const MessageOverhead = 3

// DefaultEncoding is used when the model id has no known encoding.
const DefaultEncoding = "cl100k_base"

func init() {
	// Encoding tables ship with the binary; never download them at runtime.
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// Estimator counts tokens with the encoding associated with a model id.
// Encodings are cached per model after first use.
type Estimator struct {
	mu        sync.Mutex
	encodings map[string]*tiktoken.Tiktoken
}

// NewEstimator creates an empty estimator.
func NewEstimator() *Estimator {
	return &Estimator{encodings: make(map[string]*tiktoken.Tiktoken)}
}

// Estimate returns the encoded length of text plus MessageOverhead.
// Unknown models fall back to DefaultEncoding.
func (e *Estimator) Estimate(model, text string) int {
	enc := e.encoding(model)
	if enc == nil {
		// No table at all; approximate four bytes per token.
		return len(text)/4 + MessageOverhead
	}
	return len(enc.Encode(text, nil, nil)) + MessageOverhead
}

func (e *Estimator) encoding(model string) *tiktoken.Tiktoken {
	e.mu.Lock()
	defer e.mu.Unlock()

	if enc, ok := e.encodings[model]; ok {
		return enc
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(DefaultEncoding)
		if err != nil {
			return nil
		}
	}
	e.encodings[model] = enc
	return enc
}
