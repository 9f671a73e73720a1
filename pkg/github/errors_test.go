package github

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-github/v66/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGitHubError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *GitHubError
		expected string
	}{
		{
			name: "error with resource",
			err: &GitHubError{
				Type:     ErrorTypeAuth,
				Message:  "invalid token",
				Resource: "repository hackload-kz/rocket",
			},
			expected: "authentication error for repository hackload-kz/rocket: invalid token",
		},
		{
			name: "error without resource",
			err: &GitHubError{
				Type:    ErrorTypeValidation,
				Message: "validation failed",
			},
			expected: "validation error: validation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestNewGitHubError(t *testing.T) {
	cause := errors.New("underlying error")
	err := NewGitHubError(ErrorTypeNetwork, "connection dropped", cause)

	assert.Equal(t, ErrorTypeNetwork, err.Type)
	assert.Equal(t, cause, err.Unwrap())
	assert.True(t, err.IsRetryable())
	assert.False(t, NewGitHubError(ErrorTypeAuth, "bad", nil).IsRetryable())
}

func apiError(status int, message string, details ...github.Error) *github.ErrorResponse {
	return &github.ErrorResponse{
		Response: &http.Response{StatusCode: status, Request: &http.Request{Method: http.MethodGet}},
		Message:  message,
		Errors:   details,
	}
}

func TestWrapGitHubError(t *testing.T) {
	tests := []struct {
		name          string
		inputError    error
		resource      string
		expectedType  ErrorType
		expectedMsg   string
		expectedRetry bool
	}{
		{
			name:         "already GitHubError keeps its type",
			inputError:   &GitHubError{Type: ErrorTypeAuth, Message: "auth error"},
			resource:     "repository hackload-kz/rocket",
			expectedType: ErrorTypeAuth,
			expectedMsg:  "auth error",
		},
		{
			name:         "401 with token message",
			inputError:   apiError(http.StatusUnauthorized, "Bad token"),
			resource:     "repository hackload-kz/rocket",
			expectedType: ErrorTypeAuth,
			expectedMsg:  "Invalid or expired GitHub token",
		},
		{
			name:          "403 rate limit",
			inputError:    apiError(http.StatusForbidden, "API rate limit exceeded"),
			resource:      "collaborator alice on hackload-kz/rocket",
			expectedType:  ErrorTypeRateLimit,
			expectedMsg:   "rate limit exceeded",
			expectedRetry: true,
		},
		{
			name:         "403 on organization asks for read:org",
			inputError:   apiError(http.StatusForbidden, "Must have admin rights"),
			resource:     "organization hackload-kz members",
			expectedType: ErrorTypePermission,
			expectedMsg:  "read:org",
		},
		{
			name:         "404 collaborator",
			inputError:   apiError(http.StatusNotFound, "Not Found"),
			resource:     "collaborator ghost on hackload-kz/rocket",
			expectedType: ErrorTypeNotFound,
			expectedMsg:  "User not found",
		},
		{
			name: "422 with field errors",
			inputError: apiError(http.StatusUnprocessableEntity, "Repository creation failed.",
				github.Error{Resource: "Repository", Field: "name", Code: "custom", Message: "name already exists on this account"}),
			resource:     "repository rocket",
			expectedType: ErrorTypeValidation,
			expectedMsg:  "name: name already exists on this account",
		},
		{
			name:          "502 is retryable network error",
			inputError:    apiError(http.StatusBadGateway, "Bad Gateway"),
			resource:      "repository hackload-kz/rocket",
			expectedType:  ErrorTypeNetwork,
			expectedMsg:   "temporarily unavailable",
			expectedRetry: true,
		},
		{
			name:          "primary rate limit",
			inputError:    &github.RateLimitError{Rate: github.Rate{Reset: github.Timestamp{Time: time.Now().Add(time.Minute)}}},
			resource:      "repository hackload-kz/rocket",
			expectedType:  ErrorTypeRateLimit,
			expectedMsg:   "Rate limit exceeded",
			expectedRetry: true,
		},
		{
			name:          "secondary rate limit",
			inputError:    &github.AbuseRateLimitError{Message: "slow down"},
			resource:      "collaborator alice on hackload-kz/rocket",
			expectedType:  ErrorTypeRateLimit,
			expectedMsg:   "sync.operation_delay",
			expectedRetry: true,
		},
		{
			name:          "dial failure",
			inputError:    errors.New("dial tcp 140.82.112.6:443: connection refused"),
			resource:      "repository hackload-kz/rocket",
			expectedType:  ErrorTypeNetwork,
			expectedMsg:   "Network error",
			expectedRetry: true,
		},
		{
			name:         "unknown",
			inputError:   errors.New("something odd"),
			resource:     "repository hackload-kz/rocket",
			expectedType: ErrorTypeUnknown,
			expectedMsg:  "something odd",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := WrapGitHubError(tt.inputError, tt.resource)
			require.NotNil(t, result)
			assert.Equal(t, tt.expectedType, result.Type)
			assert.Contains(t, result.Message, tt.expectedMsg)
			assert.Equal(t, tt.expectedRetry, result.Retryable)
			assert.Equal(t, tt.resource, result.Resource)
		})
	}

	assert.Nil(t, WrapGitHubError(nil, "anything"))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(WrapGitHubError(apiError(http.StatusNotFound, "Not Found"), "repository x/y")))
	assert.False(t, IsNotFound(WrapGitHubError(apiError(http.StatusForbidden, "nope"), "repository x/y")))
	assert.False(t, IsNotFound(errors.New("plain")))
}

func TestIsAlreadyExists(t *testing.T) {
	byDetail := apiError(http.StatusUnprocessableEntity, "Repository creation failed.",
		github.Error{Field: "name", Code: "custom", Message: "name already exists on this account"})
	byCode := apiError(http.StatusUnprocessableEntity, "Validation Failed", github.Error{Code: "already_exists"})
	other := apiError(http.StatusUnprocessableEntity, "Validation Failed", github.Error{Field: "name", Code: "invalid"})

	assert.True(t, isAlreadyExists(WrapGitHubError(byDetail, "repository rocket")))
	assert.True(t, isAlreadyExists(byCode))
	assert.False(t, isAlreadyExists(other))
	assert.False(t, isAlreadyExists(apiError(http.StatusConflict, "name already exists")))
}

func TestWithRetry(t *testing.T) {
	retryable := NewGitHubError(ErrorTypeNetwork, "flaky", nil)
	fatal := NewGitHubError(ErrorTypeAuth, "bad token", nil)

	fastConfig := &RetryConfig{
		MaxRetries:      2,
		InitialDelay:    time.Millisecond,
		MaxDelay:        time.Millisecond,
		BackoffFactor:   2,
		RetryableErrors: []ErrorType{ErrorTypeNetwork},
	}

	t.Run("default config makes a single attempt", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return retryable
		}, nil)
		assert.Equal(t, 1, calls)
		assert.Equal(t, retryable, err)
	})

	t.Run("retries retryable errors until success", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return retryable
			}
			return nil
		}, fastConfig)
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on non-retryable errors", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return fatal
		}, fastConfig)
		assert.Equal(t, 1, calls)
		assert.Equal(t, fatal, err)
	})

	t.Run("reports exhausted retries", func(t *testing.T) {
		err := WithRetry(context.Background(), func() error { return retryable }, fastConfig)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "after 2 retries")
		assert.ErrorIs(t, err, retryable)
	})

	t.Run("honors cancellation between attempts", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		slow := *fastConfig
		slow.InitialDelay = time.Hour
		err := WithRetry(ctx, func() error { return retryable }, &slow)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestPartialFailureError(t *testing.T) {
	err := NewPartialFailureError([]string{"grant alice"}, map[string]error{
		"revoke zed": errors.New("boom"),
		"grant bob":  errors.New("boom"),
	})

	assert.Equal(t, "Operation completed with partial success: 1 operations succeeded, 2 failed", err.Error())
	assert.Equal(t, []string{"grant bob", "revoke zed"}, err.GetFailedOperations())
	assert.Equal(t, []string{"grant alice"}, err.GetSucceededOperations())
}
