package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-post-scheduler/internal/repo"
	"github.com/tbourn/go-post-scheduler/internal/utils"
)

// TopPostsResponse lists published posts by engagement.
type TopPostsResponse struct {
	Posts []repo.PostEngagement `json:"posts"`
}

// TimeSlotsResponse lists average engagement per UTC publish hour.
type TimeSlotsResponse struct {
	Slots []repo.HourSlot `json:"slots"`
}

// TopPosts godoc
// @ID          topPosts
// @Summary     Top posts by engagement
// @Description Engagement = impressions + 2·likes + 3·replies + 2·reposts + bookmarks of the latest snapshot.
// @Tags        Analytics
// @Produce     json
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       limit      query   int     false "Max items"  minimum(1) maximum(50) default(10)
// @Success     200  {object} handlers.TopPostsResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /analytics/top-posts [get]
func (h *Handlers) TopPosts(c *gin.Context) {
	limit := utils.AtoiDefault(c.Query("limit"), 10)
	items, err := h.analytics.TopPosts(c.Request.Context(), userID(c), limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, TopPostsResponse{Posts: items})
}

// TimeSlots godoc
// @ID          timeSlots
// @Summary     Engagement by publish hour
// @Tags        Analytics
// @Produce     json
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Success     200  {object} handlers.TimeSlotsResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /analytics/time-slots [get]
func (h *Handlers) TimeSlots(c *gin.Context) {
	slots, err := h.analytics.TimeSlots(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, TimeSlotsResponse{Slots: slots})
}
