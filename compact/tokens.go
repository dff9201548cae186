package compact

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const defaultEncoding = "cl100k_base"

// TokenCounter estimates token counts for text.
type TokenCounter interface {
	Count(text string) int
}

// TiktokenCounter counts tokens with the tiktoken BPE for a model or
// encoding name.
type TiktokenCounter struct {
	encodingName string
	tke          *tiktoken.Tiktoken
	mu           sync.RWMutex
}

// NewTiktokenCounter creates a counter for the given model or encoding name,
// falling back to cl100k_base when the name is unknown.
func NewTiktokenCounter(modelOrEncoding string) (*TiktokenCounter, error) {
	if modelOrEncoding == "" {
		modelOrEncoding = defaultEncoding
	}

	encodingName := modelOrEncoding
	tke, err := tiktoken.GetEncoding(modelOrEncoding)
	if err != nil {
		tke, err = tiktoken.EncodingForModel(modelOrEncoding)
		if err != nil {
			tke, err = tiktoken.GetEncoding(defaultEncoding)
			if err != nil {
				return nil, fmt.Errorf("get default encoding %s: %w", defaultEncoding, err)
			}
			encodingName = defaultEncoding
		}
	}

	return &TiktokenCounter{encodingName: encodingName, tke: tke}, nil
}

// Count returns the number of tokens in text.
func (c *TiktokenCounter) Count(text string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.tke == nil {
		return heuristicCount(text)
	}
	return len(c.tke.Encode(text, nil, nil))
}

// Encoding returns the name of the encoding in use.
func (c *TiktokenCounter) Encoding() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.encodingName
}

// HeuristicCounter approximates tokens as chars/4. It is the fallback when
// tiktoken's encoding data is unavailable (e.g. offline environments).
type HeuristicCounter struct{}

// Count returns the chars/4 approximation.
func (HeuristicCounter) Count(text string) int {
	return heuristicCount(text)
}

func heuristicCount(text string) int {
	n := len(text) / 4
	if n == 0 && len(text) > 0 {
		n = 1
	}
	return n
}

// NewTokenCounter returns a tiktoken counter when possible and the chars/4
// heuristic otherwise.
func NewTokenCounter(modelOrEncoding string) TokenCounter {
	if c, err := NewTiktokenCounter(modelOrEncoding); err == nil {
		return c
	}
	return HeuristicCounter{}
}
