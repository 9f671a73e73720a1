package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// resetFlags restores every flag of the tree to its default so package-level
// flag variables do not leak between executions
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(bytes.NewReader(nil))
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// writeConfig writes a configuration file pointing at the given servers
func writeConfig(t *testing.T, githubURL, serviceURL, teamsPath string, extra map[string]any) string {
	t.Helper()
	dir := t.TempDir()

	doc := map[string]any{
		"github": map[string]any{
			"token":        "test-token",
			"organization": "hackload-kz",
			"api_url":      githubURL,
			"cache":        false,
		},
		"service": map[string]any{
			"base_url": serviceURL,
			"api_key":  "service-key",
		},
		"sync": map[string]any{
			"operation_delay":  "0s",
			"team_delay":       "0s",
			"repo_description": "Team {{.Name}}",
		},
		"files": map[string]any{
			"teams":       teamsPath,
			"members":     filepath.Join(dir, "missing-members.json"),
			"environment": filepath.Join(dir, "team-env-config.json"),
		},
		"log": map[string]any{
			"level":  "error",
			"format": "structured",
		},
	}
	for section, values := range extra {
		merged, _ := doc[section].(map[string]any)
		if merged == nil {
			merged = map[string]any{}
		}
		for k, v := range values.(map[string]any) {
			merged[k] = v
		}
		doc[section] = merged
	}

	data, err := yaml.Marshal(doc)
	require.NoError(t, err)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

const testRoster = `{
  "data": [
    {
      "teamName": "Rocket",
      "teamNickname": "rocket",
      "teamStatus": "APPROVED",
      "teamLevel": "PRO",
      "members": [
        {"name": "Alice", "email": "alice@example.com", "githubUrl": "https://github.com/alice"},
        {"name": "Bob", "email": "bob@example.com", "githubUrl": "github.com/Bob"},
        {"name": "Carol", "email": "carol@example.com", "githubUrl": ""}
      ]
    },
    {
      "teamName": "Comet",
      "teamNickname": "comet",
      "teamStatus": "APPROVED",
      "members": [
        {"name": "Dave", "email": "dave@example.com", "githubUrl": "dave"}
      ]
    },
    {
      "teamName": "Nova",
      "teamNickname": "nova",
      "teamStatus": "DRAFT",
      "members": []
    }
  ]
}`

func writeRoster(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "approved-teams.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

type serviceCall struct {
	Method string
	Path   string
	Body   map[string]any
}

// fakeService records every call made to the service API
type fakeService struct {
	mu    sync.Mutex
	calls []serviceCall
	envs  []map[string]any
	fail  map[string]bool
}

func newFakeService() *fakeService {
	return &fakeService{fail: map[string]bool{}}
}

func (s *fakeService) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("PUT /api/service/teams/{team}/environment/{key}", func(w http.ResponseWriter, r *http.Request) {
		s.record(r)
		if s.fail[r.PathValue("team")] {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"error":"Internal server error"}`)
			return
		}
		_, _ = io.WriteString(w, `{"message":"ok"}`)
	})
	mux.HandleFunc("DELETE /api/service/teams/{team}/environment/{key}", func(w http.ResponseWriter, r *http.Request) {
		s.record(r)
		if r.PathValue("team") == "comet" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":"Variable not found"}`)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("PUT /api/service/teams/environment", func(w http.ResponseWriter, r *http.Request) {
		s.record(r)
		_, _ = io.WriteString(w, `{"teamId":"1","updatedEntries":0,"createdEntries":4}`)
	})
	mux.HandleFunc("GET /api/service/teams/environment", func(w http.ResponseWriter, r *http.Request) {
		s.record(r)
		s.mu.Lock()
		defer s.mu.Unlock()
		if team := r.URL.Query().Get("team"); team != "" {
			for _, env := range s.envs {
				if env["teamSlug"] == team {
					_ = json.NewEncoder(w).Encode(map[string]any{"team": env})
					return
				}
			}
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":"Team not found"}`)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"teams": s.envs})
	})
	mux.HandleFunc("GET /api/service/teams", func(w http.ResponseWriter, r *http.Request) {
		s.record(r)
		_, _ = io.WriteString(w, `{"teams":[{"id":"1","name":"Rocket","nickname":"rocket","status":"APPROVED","level":"PRO"}],"count":1}`)
	})

	return mux
}

func (s *fakeService) record(r *http.Request) {
	call := serviceCall{Method: r.Method, Path: r.URL.Path}
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		_ = json.Unmarshal(data, &call.Body)
	}
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
}

func (s *fakeService) writes() []serviceCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []serviceCall
	for _, c := range s.calls {
		if c.Method != http.MethodGet {
			out = append(out, c)
		}
	}
	return out
}
