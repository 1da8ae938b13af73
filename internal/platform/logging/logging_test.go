package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeroom-backend/internal/platform/config"
)

func TestNewParsesLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, New(config.LogConfig{Level: "debug"}).GetLevel())
	assert.Equal(t, logrus.InfoLevel, New(config.LogConfig{Level: "loud"}).GetLevel())
}

func TestLogErrorFields(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	LogError(logger, "items", "Release", "updating stock", map[string]int{"qty": 3}, errors.New("boom"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "items", line["module"])
	assert.Equal(t, "Release", line["funcName"])
	assert.Equal(t, "boom", line["msg"])
	assert.NotNil(t, line["data"])
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	r := gin.New()
	r.Use(RequestLogger(logger))
	r.GET("/fail", func(c *gin.Context) {
		_ = c.Error(errors.New("db down"))
		c.Status(http.StatusInternalServerError)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))

	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	assert.Contains(t, buf.String(), "db down")
	assert.Contains(t, buf.String(), `"level":"error"`)
}
