package cmd

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hackops/pkg/envapi"
	"hackops/pkg/teamenv"
)

func newServiceFixture(t *testing.T) (*fakeService, string) {
	t.Helper()
	svc := newFakeService()
	server := httptest.NewServer(svc.handler())
	t.Cleanup(server.Close)
	return svc, writeConfig(t, "", server.URL, writeRoster(t, testRoster), nil)
}

func TestEnvSet(t *testing.T) {
	svc, cfgPath := newServiceFixture(t)

	output, err := executeCommand(t, "env", "set", "DB_PASSWORD", "s3cret-value-123", "--config", cfgPath,
		"--secure", "--readonly", "--category", "database", "--description", "Database password")
	require.NoError(t, err, output)

	assert.Contains(t, output, "DB_PASSWORD=s3cret***123")
	assert.Contains(t, output, "✅ rocket")
	assert.Contains(t, output, "✅ comet")
	assert.NotContains(t, output, "nova")

	writes := svc.writes()
	require.Len(t, writes, 2)
	assert.Equal(t, "/api/service/teams/rocket/environment/DB_PASSWORD", writes[0].Path)
	assert.Equal(t, map[string]any{
		"value":       "s3cret-value-123",
		"description": "Database password",
		"category":    "database",
		"isSecure":    true,
		"isEditable":  false,
	}, writes[0].Body)
}

func TestEnvSet_SingleTeamFailure(t *testing.T) {
	svc, cfgPath := newServiceFixture(t)
	svc.fail["comet"] = true

	output, err := executeCommand(t, "env", "set", "API_TIMEOUT", "30", "--config", cfgPath, "--team", "comet")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotConverged)
	assert.Contains(t, output, "❌ comet")
	assert.Len(t, svc.writes(), 1)
}

func TestEnvSet_InvalidKeyMakesNoCall(t *testing.T) {
	svc, cfgPath := newServiceFixture(t)

	_, err := executeCommand(t, "env", "set", "BAD KEY", "x", "--config", cfgPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, envapi.ErrInvalidVariable)
	assert.Empty(t, svc.calls)
}

func TestEnvSet_DryRun(t *testing.T) {
	svc, cfgPath := newServiceFixture(t)

	output, err := executeCommand(t, "env", "set", "API_TIMEOUT", "30", "--config", cfgPath, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, output, "~ rocket: would set API_TIMEOUT")
	assert.Empty(t, svc.calls)
}

func TestEnvGet(t *testing.T) {
	svc, cfgPath := newServiceFixture(t)
	svc.envs = []map[string]any{
		{
			"teamSlug": "rocket",
			"teamName": "Rocket",
			"environment": []map[string]any{
				{"key": "MERCHANT_PASSWORD", "value": "abcdefghijklmnop", "category": "payment", "isSecure": true, "isEditable": false},
				{"key": "Repo", "value": "https://github.com/hackload-kz/rocket", "category": "development", "isSecure": false, "isEditable": true},
			},
		},
	}

	output, err := executeCommand(t, "env", "get", "--config", cfgPath)
	require.NoError(t, err, output)
	assert.Contains(t, output, "📦 Rocket (rocket): 2 variables")
	assert.Contains(t, output, "MERCHANT_PASSWORD=abcdef***nop [payment] 🔒 (read-only)")
	assert.Contains(t, output, "Repo=https://github.com/hackload-kz/rocket [development]")
	assert.NotContains(t, output, "abcdefghijklmnop")

	output, err = executeCommand(t, "env", "get", "--config", cfgPath, "--team", "rocket")
	require.NoError(t, err, output)
	assert.Contains(t, output, "📦 Rocket (rocket)")

	_, err = executeCommand(t, "env", "get", "--config", cfgPath, "--team", "ghost")
	require.Error(t, err)
	assert.True(t, envapi.IsNotFound(err))
}

func TestEnvDelete(t *testing.T) {
	svc, cfgPath := newServiceFixture(t)

	output, err := executeCommand(t, "env", "delete", "API_TIMEOUT", "--config", cfgPath)
	require.NoError(t, err, output)
	assert.Contains(t, output, "✅ comet")

	writes := svc.writes()
	require.Len(t, writes, 2)
	assert.Equal(t, "DELETE", writes[0].Method)
	assert.Equal(t, "/api/service/teams/rocket/environment/API_TIMEOUT", writes[0].Path)
}

func TestEnvPublish(t *testing.T) {
	svc, cfgPath := newServiceFixture(t)

	output, err := executeCommand(t, "env", "publish", "ENDPOINT_URL", "MERCHANT_ID", "--config", cfgPath, "--team", "rocket")
	require.NoError(t, err, output)

	writes := svc.writes()
	require.Len(t, writes, 2)
	assert.Equal(t, "/api/service/teams/rocket/environment/ENDPOINT_URL", writes[0].Path)
	assert.Equal(t, "https://rocket.hub.hackload.kz", writes[0].Body["value"])
	assert.Equal(t, "api", writes[0].Body["category"])
	assert.Equal(t, false, writes[0].Body["isEditable"])
	assert.Equal(t, "/api/service/teams/rocket/environment/MERCHANT_ID", writes[1].Path)
	assert.Equal(t, "rocket", writes[1].Body["value"])
}

func TestEnvPublish_ValueRequiresDocument(t *testing.T) {
	svc, cfgPath := newServiceFixture(t)

	output, err := executeCommand(t, "env", "publish", "MERCHANT_PASSWORD", "--config", cfgPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotConverged)
	assert.Contains(t, output, "no value available")
	assert.Empty(t, svc.writes())
}

func TestEnvPublish_UnknownKey(t *testing.T) {
	_, cfgPath := newServiceFixture(t)

	_, err := executeCommand(t, "env", "publish", "NOPE", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOPE")
}

func TestEnvGenerateThenPublishFromConfig(t *testing.T) {
	svc, cfgPath := newServiceFixture(t)
	docPath := filepath.Join(t.TempDir(), "team-env-config.json")

	output, err := executeCommand(t, "env", "generate", "--config", cfgPath, "--output", docPath, "--pretty")
	require.NoError(t, err, output)
	assert.Contains(t, output, "🔑 Generated variables for 2 teams")

	info, err := os.Stat(docPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	doc, err := teamenv.Load(docPath)
	require.NoError(t, err)
	password := doc.Values("rocket")[envapi.KeyMerchantPassword]
	assert.Len(t, password, teamenv.PasswordLength)
	assert.NotContains(t, output, password)

	output, err = executeCommand(t, "env", "publish", "MERCHANT_PASSWORD", "--config", cfgPath,
		"--from-config", "--document", docPath, "--team", "rocket")
	require.NoError(t, err, output)

	writes := svc.writes()
	require.Len(t, writes, 1)
	assert.Equal(t, password, writes[0].Body["value"])
	assert.Equal(t, true, writes[0].Body["isSecure"])
}

func TestEnvPublish_Bulk(t *testing.T) {
	svc, cfgPath := newServiceFixture(t)

	output, err := executeCommand(t, "env", "publish", "--config", cfgPath, "--team", "comet", "--bulk")
	require.NoError(t, err, output)

	writes := svc.writes()
	require.Len(t, writes, 1)
	assert.Equal(t, "/api/service/teams/environment", writes[0].Path)
	assert.Equal(t, "comet", writes[0].Body["teamSlug"])
	updates, ok := writes[0].Body["updates"].([]any)
	require.True(t, ok)
	// every templated catalog entry: ENDPOINT_URL, EVENT_PROVIDER, PAYMENT_ENDPOINT, MERCHANT_ID, Repo
	assert.Len(t, updates, 5)
}
