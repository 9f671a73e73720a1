//go:build integration && github_e2e
// +build integration,github_e2e

package integration

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"
)

// TestGitHubE2ESync runs a sync against a real GitHub organization.
// This test requires:
// - GITHUB_TOKEN environment variable with repo and read:org scopes
// - GITHUB_TEST_ORG environment variable with test organization name
// - GITHUB_TEST_COLLABORATOR, an existing account outside the organization
func TestGitHubE2ESync(t *testing.T) {
	if os.Getenv("GITHUB_E2E_TESTS") != "true" {
		t.Skip("Skipping E2E tests. Set GITHUB_E2E_TESTS=true to run.")
	}

	token := os.Getenv("GITHUB_TOKEN")
	testOrg := os.Getenv("GITHUB_TEST_ORG")
	collaborator := os.Getenv("GITHUB_TEST_COLLABORATOR")
	if token == "" || testOrg == "" || collaborator == "" {
		t.Skip("GITHUB_TOKEN, GITHUB_TEST_ORG or GITHUB_TEST_COLLABORATOR not set, skipping E2E tests")
	}

	binaryPath := getBinaryPath(t)
	slug := fmt.Sprintf("hackops-test-%d", time.Now().Unix())
	config, roster := createE2EFiles(t, testOrg, slug, collaborator)

	defer cleanupTestRepository(t, token, testOrg, slug)

	run := func(args ...string) string {
		cmd := exec.Command(binaryPath, append([]string{"github", "sync", "--config", config, "--teams-file", roster, "--no-env-vars"}, args...)...)
		cmd.Env = append(os.Environ(), "GITHUB_TOKEN="+token)
		output, err := cmd.CombinedOutput()
		if err != nil {
			t.Fatalf("sync failed: %v\nOutput: %s", err, output)
		}
		return string(output)
	}

	t.Run("dry-run shows planned changes", func(t *testing.T) {
		output := run("--dry-run")
		for _, expected := range []string{"Dry-run mode", "would create", "+ Collaborator: " + collaborator} {
			if !strings.Contains(output, expected) {
				t.Errorf("Expected dry-run output to contain %q, got: %s", expected, output)
			}
		}
	})

	t.Run("sync creates repository and invites the member", func(t *testing.T) {
		output := run()
		if !strings.Contains(output, fmt.Sprintf("Repository created: https://github.com/%s/%s", testOrg, slug)) {
			t.Errorf("unexpected output: %s", output)
		}
		verifyRepositoryExists(t, token, testOrg, slug)
	})

	t.Run("second sync is idempotent", func(t *testing.T) {
		time.Sleep(2 * time.Second)
		output := run()
		if !strings.Contains(output, "Repository already exists") {
			t.Errorf("Expected second sync to find the repository, got: %s", output)
		}
	})
}

func createE2EFiles(t *testing.T, org, slug, collaborator string) (string, string) {
	t.Helper()
	dir := t.TempDir()

	roster := filepath.Join(dir, "approved-teams.json")
	content := fmt.Sprintf(`{"data":[{"teamName":"E2E %[1]s","teamNickname":%[1]q,"teamStatus":"APPROVED","members":[{"name":"E2E","email":"e2e@example.com","githubUrl":"https://github.com/%[2]s"}]}]}`, slug, collaborator)
	if err := os.WriteFile(roster, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	config := filepath.Join(dir, "config.yaml")
	yaml := fmt.Sprintf("github:\n  organization: %s\n  private: true\nsync:\n  team_delay: 0s\nlog:\n  format: structured\n", org)
	if err := os.WriteFile(config, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	return config, roster
}

func verifyRepositoryExists(t *testing.T, token, owner, name string) {
	t.Helper()
	client := github.NewClient(oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})))
	if _, _, err := client.Repositories.Get(context.Background(), owner, name); err != nil {
		t.Errorf("Repository %s/%s was not created: %v", owner, name, err)
	}
}

func cleanupTestRepository(t *testing.T, token, owner, name string) {
	t.Helper()
	client := github.NewClient(oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})))
	if _, err := client.Repositories.Delete(context.Background(), owner, name); err != nil {
		t.Logf("Failed to delete test repository %s/%s: %v", owner, name, err)
	}
}
