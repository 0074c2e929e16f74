package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Sternrassler/coin-sync/pkg/cache"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const jsonContentType = "application/json; charset=utf-8"

type loadFunc func(ctx context.Context) (any, error)

// errorFunc renders a failed load.
type errorFunc func(c *gin.Context, err error)

// responder serves JSON reads through the optional response cache.
type responder struct {
	cache  ResponseCache
	logger zerolog.Logger
}

// serve answers a read from the response cache when possible and otherwise
// renders with load, caches the body and sends it with an ETag. Cache
// failures degrade to an uncached response.
func (r responder) serve(c *gin.Context, load loadFunc, fail errorFunc) {
	ctx := c.Request.Context()

	if r.cache == nil {
		r.serveUncached(c, load, fail)
		return
	}

	generation, err := r.cache.Generation(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Cache generation unavailable - serving uncached")
		r.serveUncached(c, load, fail)
		return
	}

	key := cache.KeyFromRequest(c.Request, generation)
	key.Route = c.FullPath()

	entry, err := r.cache.Get(ctx, key)
	if err == nil {
		cache.WriteEntry(c.Writer, c.Request, entry, cache.CacheStatusHit)
		return
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		r.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache read failed")
	}

	value, err := load(ctx)
	if err != nil {
		fail(c, err)
		return
	}

	body, err := json.Marshal(value)
	if err != nil {
		r.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Failed to encode response")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to encode response"})
		return
	}

	entry = cache.NewEntry(body, http.StatusOK, jsonContentType, r.cache.TTL())
	if err := r.cache.Set(ctx, key, entry); err != nil {
		r.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache write failed")
	}

	cache.WriteEntry(c.Writer, c.Request, entry, cache.CacheStatusMiss)
}

func (r responder) serveUncached(c *gin.Context, load loadFunc, fail errorFunc) {
	value, err := load(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, value)
}

// invalidate bumps the cache generation after a mutation.
func (r responder) invalidate(ctx context.Context) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Invalidate(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("Cache invalidation failed")
	}
}
