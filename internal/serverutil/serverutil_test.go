package serverutil_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/hostrun/internal/serverutil"
)

type testRequest struct {
	Host    string `json:"host" validate:"required"`
	Command string `json:"command" validate:"required"`
}

func TestValidationHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			name:       "valid request",
			body:       `{"host":"web-1","command":"uptime"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "malformed json",
			body:       `{"host":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing required field",
			body:       `{"host":"web-1"}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got testRequest
			var reached bool
			next := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
				reached = true
				req, ok := serverutil.RequestFromContext[testRequest](r.Context())
				require.True(t, ok)
				got = req
			})

			handler := serverutil.NewValidationHandler[testRequest](next)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/run", strings.NewReader(tt.body)))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.True(t, reached)
				assert.Equal(t, "web-1", got.Host)
				assert.Equal(t, "uptime", got.Command)
			} else {
				assert.False(t, reached)
			}
		})
	}
}
