package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"safewalk-api/observability"
	"safewalk-api/services"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// PaginationParams carries a keyset cursor. Rows sharing a timestamp are
// told apart by BeforeID, so a page boundary inside a tie loses nothing.
type PaginationParams struct {
	Limit    int
	Before   *time.Time
	BeforeID string
}

// cursor renders Before for cache keys; empty when unset.
func (p PaginationParams) cursor() string {
	if p.Before == nil {
		return ""
	}
	return encodeCursor(*p.Before, p.BeforeID)
}

// encodeCursor joins a timestamp and a row id with '_', which RFC 3339 never
// contains.
func encodeCursor(ts time.Time, id string) string {
	out := ts.UTC().Format(time.RFC3339Nano)
	if id != "" {
		out += "_" + id
	}
	return out
}

// keyset orders q newest first by (tsCol, idCol) and starts it after the
// cursor. A cursor without an id falls back to the timestamp alone.
func (p PaginationParams) keyset(q *gorm.DB, tsCol, idCol string) *gorm.DB {
	q = q.Order(tsCol + " DESC").Order(idCol + " DESC")
	switch {
	case p.Before == nil:
		return q
	case p.BeforeID == "":
		return q.Where(tsCol+" < ?", *p.Before)
	default:
		return q.Where(fmt.Sprintf("(%s, %s) < (?, ?)", tsCol, idCol), *p.Before, p.BeforeID)
	}
}

type CursorResponse struct {
	Data       interface{} `json:"data"`
	NextCursor string      `json:"next_cursor,omitempty"`
	HasMore    bool        `json:"has_more"`
}

func ParsePagination(c *gin.Context) PaginationParams {
	p := PaginationParams{Limit: DefaultLimit}

	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			p.Limit = l
		}
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}

	if beforeStr := c.Query("before"); beforeStr != "" {
		tsPart, id, _ := strings.Cut(beforeStr, "_")
		if t, err := time.Parse(time.RFC3339Nano, tsPart); err == nil {
			p.Before = &t
			p.BeforeID = id
		}
	}

	return p
}

// paginate trims rows fetched with limit+1 and points the cursor at the last
// row kept.
func paginate[T any](rows []T, limit int, key func(T) (time.Time, string)) CursorResponse {
	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	var nextCursor string
	if hasMore && len(rows) > 0 {
		nextCursor = encodeCursor(key(rows[len(rows)-1]))
	}
	return CursorResponse{Data: rows, NextCursor: nextCursor, HasMore: hasMore}
}

// serveCached answers from cache when key is present, otherwise runs load,
// responds, and stores the result for ttl in the background.
func serveCached(c *gin.Context, cache *services.CacheService, key string, ttl time.Duration, load func() (any, error)) {
	var cached map[string]any
	if found, err := cache.GetJSON(c.Request.Context(), key, &cached); err == nil && found {
		c.Header("X-Cache", "HIT")
		c.JSON(http.StatusOK, cached)
		return
	}

	resp, err := load()
	if err != nil {
		observability.GetLogger().Error("database query failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database query failed"})
		return
	}

	go func() {
		if err := cache.SetJSON(context.Background(), key, resp, ttl); err != nil {
			observability.GetLogger().Debug("cache set failed", zap.String("key", key), zap.Error(err))
		}
	}()

	c.Header("X-Cache", "MISS")
	c.JSON(http.StatusOK, resp)
}
