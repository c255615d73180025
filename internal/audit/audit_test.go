package audit

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologLogger_MasksSensitiveMetadata(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerologLogger(zerolog.New(&buf))

	l.Log(LogEntry{
		Timestamp: time.Now(),
		ClientID:  "1.2.3.4",
		ActorID:   "a@b.com",
		Action:    "POST /api/auth/login",
		Resource:  "/api/auth/login",
		Status:    http.StatusUnauthorized,
		Metadata: map[string]interface{}{
			"password":      "Passw0rd",
			"Authorization": "Bearer abc",
			"user_agent":    "curl/8",
		},
	})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "audit", line["component"])
	assert.Equal(t, "a@b.com", line["actor"])
	assert.Equal(t, "***REDACTED***", line["password"])
	assert.Equal(t, "***REDACTED***", line["Authorization"])
	assert.Equal(t, "curl/8", line["user_agent"])
	assert.NotContains(t, buf.String(), "Passw0rd")
}

func TestZerologLogger_LevelByStatus(t *testing.T) {
	for status, want := range map[int]string{200: "info", 429: "warn", 503: "error"} {
		var buf bytes.Buffer
		NewZerologLogger(zerolog.New(&buf)).Log(LogEntry{Status: status, Rejection: "ratelimit"})

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, want, line["level"], status)
		assert.Equal(t, "ratelimit", line["rejected_by"])
	}
}
