package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

type Params struct {
	Page       int
	Limit      int
	UnreadOnly bool
}

// Parse reads page, limit and unread from the query string, clamping out of range values.
func Parse(c *gin.Context) Params {
	page, err := strconv.Atoi(c.Query("page"))
	if err != nil || page < 1 {
		page = DefaultPage
	}
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	unread, _ := strconv.ParseBool(c.Query("unread"))

	return Params{Page: page, Limit: limit, UnreadOnly: unread}
}
