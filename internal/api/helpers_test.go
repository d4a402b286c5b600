package api_test

import (
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/doctrail/internal/middleware"
)

const testActor = "alice"

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)

	return l
}

// newTestRouter creates a gin engine with the tracking middleware installed.
func newTestRouter() *gin.Engine {
	r := gin.New()
	r.Use(middleware.Tracking())

	return r
}

// doRequest performs an HTTP request as testActor and returns the recorder.
func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, http.NoBody)
	}

	req.Header.Set(middleware.ActorHeader, testActor)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}
