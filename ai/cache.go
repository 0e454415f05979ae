// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ai

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dgraph-io/ristretto/v2"
)

// DefaultCacheBytes is the default budget for cached query vectors.
const DefaultCacheBytes = 32 << 20

// CachedEmbedder memoizes single-text embeddings. Batch embeddings bypass the cache.
type CachedEmbedder struct {
	next   Embedder
	cache  *ristretto.Cache[string, []float32]
	logger *slog.Logger
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps next with a cache holding at most maxBytes of vectors.
func NewCachedEmbedder(next Embedder, maxBytes int64) (*CachedEmbedder, error) {
	if next == nil {
		return nil, errors.New("cached embedder: embedder required")
	}
	if maxBytes <= 0 {
		maxBytes = DefaultCacheBytes
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, []float32]{
		// ~10x the number of vectors we expect to hold (384 floats each)
		NumCounters: max(maxBytes/(384*4)*10, 1000),
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &CachedEmbedder{
		next:   next,
		cache:  cache,
		logger: slog.Default().With("component", "embedding-cache"),
	}, nil
}

// EmbedText returns the cached vector for text or embeds and caches it.
// Returned vectors are shared and must not be modified.
func (c *CachedEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.cache.Get(text); ok {
		c.logger.Debug("embedding cache hit", "length", len(text))
		return vec, nil
	}
	vec, err := c.next.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) > 0 {
		c.cache.Set(text, vec, int64(len(vec)*4))
	}
	return vec, nil
}

// EmbedTexts delegates to the wrapped embedder.
func (c *CachedEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return c.next.EmbedTexts(ctx, texts)
}

// Wait blocks until pending cache writes are applied.
func (c *CachedEmbedder) Wait() {
	c.cache.Wait()
}

// Close releases the cache.
func (c *CachedEmbedder) Close() {
	c.cache.Close()
}
