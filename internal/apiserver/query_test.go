package apiserver

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brokle-tracehub/pkg/pagination"
)

func testContext(t *testing.T, rawQuery string) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/v1/spans?"+rawQuery, nil)
	return c
}

func TestParseQueryDefaults(t *testing.T) {
	c := testContext(t, "")
	q, err := parseQuery(c)
	require.NoError(t, err)
	assert.Equal(t, pagination.Desc, q.Order)
	assert.Equal(t, 0, q.Limit)
	assert.Nil(t, q.Previous)
}

func TestParseQueryParsesFilterOrderLimitWindow(t *testing.T) {
	c := testContext(t, `filter=%40"name"%3A+boot&order=asc&limit=50&start=10&end=20&previous=15`)
	q, err := parseQuery(c)
	require.NoError(t, err)
	assert.Equal(t, pagination.Asc, q.Order)
	assert.Equal(t, 50, q.Limit)
	assert.EqualValues(t, 10, q.Start)
	assert.EqualValues(t, 20, q.End)
	require.NotNil(t, q.Previous)
	assert.EqualValues(t, 15, *q.Previous)
}

func TestParseQueryRejectsBadOrder(t *testing.T) {
	c := testContext(t, "order=sideways")
	_, err := parseQuery(c)
	assert.Error(t, err)
}

func TestParseQueryRejectsBadFilter(t *testing.T) {
	c := testContext(t, "filter=%21") // a bare "!" has no predicate to negate
	_, err := parseQuery(c)
	assert.Error(t, err)
}
