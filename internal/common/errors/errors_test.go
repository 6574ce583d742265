package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

type recordingLogger struct {
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ map[string]interface{}) { l.errors = append(l.errors, msg) }
func (l *recordingLogger) Warn(msg string, _ map[string]interface{})  { l.warns = append(l.warns, msg) }

// ==========================
// Constructor and Inspection Tests
// ==========================

func TestPredicates(t *testing.T) {
	cause := stderrors.New("connection refused")

	tests := []struct {
		name     string
		err      error
		code     ErrorCode
		validate func(t *testing.T, err error)
	}{
		{
			name: "validation",
			err:  NewValidationError("frequency must be > 0"),
			code: ErrCodeValidation,
			validate: func(t *testing.T, err error) {
				assert.True(t, IsValidation(err))
				assert.False(t, IsNotFound(err))
			},
		},
		{
			name: "not found",
			err:  NewNotFoundError("query", "q-1"),
			code: ErrCodeNotFound,
			validate: func(t *testing.T, err error) {
				assert.True(t, IsNotFound(err))
				assert.Contains(t, err.Error(), "q-1")
			},
		},
		{
			name: "store error keeps cause",
			err:  NewStoreError("insertQuery", cause),
			code: ErrCodeStore,
			validate: func(t *testing.T, err error) {
				assert.True(t, IsStore(err))
				assert.ErrorIs(t, err, cause)
			},
		},
		{
			name: "source error wrapped with fmt",
			err:  fmt.Errorf("tick: %w", NewSourceError("q-2", cause)),
			code: ErrCodeSource,
			validate: func(t *testing.T, err error) {
				assert.True(t, IsSource(err))
				assert.ErrorIs(t, err, cause)
			},
		},
		{
			name: "foreign error is internal",
			err:  cause,
			code: ErrCodeInternal,
			validate: func(t *testing.T, err error) {
				assert.False(t, IsStore(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, CodeOf(tt.err))
			tt.validate(t, tt.err)
		})
	}

	assert.False(t, IsValidation(nil))
}

func TestRetryableAndCategory(t *testing.T) {
	assert.True(t, IsRetryableErrorCode(ErrCodeStore))
	assert.True(t, IsRetryableErrorCode(ErrCodeSource))
	assert.False(t, IsRetryableErrorCode(ErrCodeValidation))

	assert.Equal(t, "DATABASE", GetErrorCategory(ErrCodeStore))
	assert.Equal(t, "SEARCH", GetErrorCategory(ErrCodeSource))
	assert.Equal(t, "LOOKUP", GetErrorCategory(ErrCodeNotFound))
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeValidation))
	assert.Equal(t, "OTHER", GetErrorCategory(ErrCodeInternal))
}

// ==========================
// HTTP Handler Tests
// ==========================

func TestErrorHandler_WriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantWarn   bool
	}{
		{"validation -> 400", NewValidationError("bad"), http.StatusBadRequest, "VALIDATION_ERROR", true},
		{"not found -> 404", NewNotFoundError("query", "x"), http.StatusNotFound, "NOT_FOUND", true},
		{"store -> 503", NewStoreError("op", stderrors.New("down")), http.StatusServiceUnavailable, "STORE_ERROR", false},
		{"source -> 502", NewSourceError("q", stderrors.New("down")), http.StatusBadGateway, "SOURCE_ERROR", false},
		{"plain -> 500", stderrors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &recordingLogger{}
			rec := httptest.NewRecorder()

			NewErrorHandler(log).WriteError(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body struct {
				Status int `json:"status"`
				Error  struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantStatus, body.Status)
			assert.Equal(t, tt.wantCode, body.Error.Code)

			if tt.wantWarn {
				assert.Len(t, log.warns, 1)
				assert.Empty(t, log.errors)
			} else {
				assert.Len(t, log.errors, 1)
			}
		})
	}
}
