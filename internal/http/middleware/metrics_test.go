package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountsByRouteAndStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	r.POST("/api/v1/send", func(c *gin.Context) { c.Status(http.StatusTooManyRequests) })
	r.GET("/history/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	baseSend := testutil.ToFloat64(httpReqs.WithLabelValues("POST", "/api/v1/send", "429"))
	baseHist := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/history/:id", "200"))
	baseMiss := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "unmatched", "404"))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/send", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/history/a", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/history/b", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/random/path", nil))

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("POST", "/api/v1/send", "429")); got != baseSend+1 {
		t.Fatalf("send count=%v", got)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/history/:id", "200")); got != baseHist+2 {
		t.Fatalf("route label should collapse ids, got %v", got)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "unmatched", "404")); got != baseMiss+1 {
		t.Fatalf("unmatched count=%v", got)
	}
	if got := testutil.ToFloat64(httpInflight); got != 0 {
		t.Fatalf("inflight should return to 0, got %v", got)
	}
}

func TestMetricsHandler_Exposition(t *testing.T) {
	rejections.WithLabelValues("rate_limited").Add(0)
	w := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), "maildispatch_http_rejections_total") {
		t.Fatalf("exposition missing rejection counter")
	}
}
