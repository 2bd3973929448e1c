package apiserver

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "brokle-tracehub/pkg/errors"

	"brokle-tracehub/internal/engine"
	"brokle-tracehub/internal/filterlang"
	"brokle-tracehub/internal/tracedata"
	"brokle-tracehub/pkg/pagination"
)

// parseQuery builds an engine.Query from a request's filter/order/
// limit/start/end/previous query-string parameters (spec.md §4.4
// "Query"). An empty filter matches everything (filterlang.Parse's
// empty-input AND).
func parseQuery(c *gin.Context) (engine.Query, error) {
	node, err := filterlang.Parse(c.Query("filter"))
	if err != nil {
		return engine.Query{}, err
	}
	if err := filterlang.Validate(node); err != nil {
		return engine.Query{}, err
	}

	order, err := pagination.ParseOrder(c.Query("order"))
	if err != nil {
		return engine.Query{}, err
	}

	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return engine.Query{}, err
		}
		limit = n
	}

	start, err := parseTimestamp(c.Query("start"))
	if err != nil {
		return engine.Query{}, err
	}
	end, err := parseTimestamp(c.Query("end"))
	if err != nil {
		return engine.Query{}, err
	}

	var previous *tracedata.Timestamp
	if s := c.Query("previous"); s != "" {
		ts, err := parseTimestamp(s)
		if err != nil {
			return engine.Query{}, err
		}
		previous = &ts
	}

	return engine.Query{Filter: node, Order: order, Limit: limit, Start: start, End: end, Previous: previous}, nil
}

func parseTimestamp(s string) (tracedata.Timestamp, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return tracedata.Timestamp(n), nil
}

func (s *Server) handleQuerySpans(c *gin.Context) {
	q, err := parseQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	spans, err := s.facade.QuerySpan(q)
	if err != nil {
		ae := apperrors.FromDomainError(err)
		c.JSON(ae.StatusCode, ae)
		return
	}
	c.JSON(http.StatusOK, gin.H{"spans": spans})
}

func (s *Server) handleQueryEvents(c *gin.Context) {
	q, err := parseQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	events, err := s.facade.QueryEvent(q)
	if err != nil {
		ae := apperrors.FromDomainError(err)
		c.JSON(ae.StatusCode, ae)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) handleCountSpans(c *gin.Context) {
	q, err := parseQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": s.facade.QuerySpanCount(q)})
}

func (s *Server) handleCountEvents(c *gin.Context) {
	q, err := parseQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": s.facade.QueryEventCount(q)})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.facade.QueryStats())
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.facade.GetStatus())
}
