package adminapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cast"

	"github.com/talkincode/chatgate/internal/webserver"
	"github.com/talkincode/chatgate/pkg/metrics"
)

func registerMetricsRoutes() {
	webserver.ApiGET("/metrics/:name", getMetricPoints)
}

// getMetricPoints returns stored data points for one metric. Defaults to the
// last 24 hours.
func getMetricPoints(c echo.Context) error {
	name := c.Param("name")
	end := time.Now().Unix()
	start := end - 86400
	if v := cast.ToInt64(c.QueryParam("start")); v > 0 {
		start = v
	}
	if v := cast.ToInt64(c.QueryParam("end")); v > 0 {
		end = v
	}

	points, err := metrics.GetPoints(name, start, end)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "METRICS_ERROR", "Failed to query metric", err.Error())
	}
	return ok(c, map[string]interface{}{
		"metric": name,
		"points": points,
	})
}
