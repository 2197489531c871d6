package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tapntrack/internal/attendance"
	"tapntrack/internal/bulk"
	"tapntrack/internal/model"
	"tapntrack/internal/query"
)

// logFilter reads the log view parameters from the query string. A named
// range overrides the explicit date filters.
func logFilter(c *gin.Context, now time.Time) (query.LogFilter, error) {
	f := query.LogFilter{
		Search:    c.Query("search"),
		TeacherID: c.Query("teacherId"),
		Date:      c.Query("date"),
		StartDate: c.Query("startDate"),
		EndDate:   c.Query("endDate"),
		SortBy:    query.ParseLogSort(c.Query("sortBy")),
	}
	if v := c.Query("status"); v != "" && v != "ALL" {
		st, ok := model.ParseStatus(v)
		if !ok {
			return f, model.Invalid("status", "unknown status %q", v)
		}
		f.Status = st
	}
	switch rng := c.Query("range"); rng {
	case "":
	case attendance.RangeToday, attendance.RangeWeek, attendance.RangeMonth:
		f = attendance.ResolveRange(f, rng, now)
	default:
		return f, model.Invalid("range", "unknown range %q", rng)
	}
	return f, nil
}

// userFilter reads the roster view parameters from the query string.
func userFilter(c *gin.Context) (query.UserFilter, error) {
	f := query.UserFilter{
		Search: c.Query("search"),
		SortBy: query.ParseUserSort(c.Query("sortBy")),
	}
	if v := c.Query("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			return f, model.Invalid("active", "must be true or false")
		}
		f.Active = &active
	}
	return f, nil
}

func (s *Server) listLogs(c *gin.Context) {
	f, err := logFilter(c, s.svc.Now())
	if err != nil {
		fail(c, err)
		return
	}
	_, who := caller(c)
	logs, err := s.svc.ListLogs(c.Request.Context(), who, f)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs, "total": len(logs)})
}

func (s *Server) logSummary(c *gin.Context) {
	f, err := logFilter(c, s.svc.Now())
	if err != nil {
		fail(c, err)
		return
	}
	_, who := caller(c)
	sum, err := s.svc.SummarizeLogs(c.Request.Context(), who, f)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *Server) getLog(c *gin.Context) {
	_, who := caller(c)
	t, err := s.svc.GetLog(c.Request.Context(), who, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) updateLog(c *gin.Context) {
	var p attendance.LogPatch
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, err)
		return
	}
	_, who := caller(c)
	t, err := s.svc.UpdateLog(c.Request.Context(), who, c.Param("id"), p)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) deleteLog(c *gin.Context) {
	_, who := caller(c)
	if err := s.svc.DeleteLog(c.Request.Context(), who, c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type bulkRequest struct {
	Action string   `json:"action"`
	IDs    []string `json:"ids" binding:"required,min=1"`
}

func (s *Server) bulkDeleteLogs(c *gin.Context) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	f, err := logFilter(c, s.svc.Now())
	if err != nil {
		fail(c, err)
		return
	}
	_, who := caller(c)
	res := s.svc.BulkDeleteLogs(c.Request.Context(), who, req.IDs, f)
	writeBulk(c, res.Report, res.View)
}

// writeBulk answers 200 when every item succeeded and 207 otherwise, with
// per-item results either way.
func writeBulk[T any](c *gin.Context, r bulk.Report, view []T) {
	status := http.StatusOK
	if !r.AllSucceeded() {
		status = http.StatusMultiStatus
	}
	body := gin.H{
		"action":    r.Action,
		"total":     r.Total(),
		"succeeded": r.SucceededCount(),
		"items":     r.Items,
		"refreshed": r.Refreshed,
		"retry_ids": r.RetryIDs(),
	}
	if r.Refreshed {
		body["view"] = view
	}
	c.JSON(status, body)
}
