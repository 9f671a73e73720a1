package envapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

type recordedRequest struct {
	Method    string
	Path      string
	RawPath   string
	Query     string
	APIKey    string
	RequestID string
	Body      map[string]any
}

var _ = Describe("Service API client", func() {
	var (
		ctx      context.Context
		server   *httptest.Server
		mux      *http.ServeMux
		requests []recordedRequest
		client   *Client
	)

	record := func(r *http.Request) {
		rec := recordedRequest{
			Method:    r.Method,
			Path:      r.URL.Path,
			RawPath:   r.URL.EscapedPath(),
			Query:     r.URL.RawQuery,
			APIKey:    r.Header.Get("X-API-Key"),
			RequestID: r.Header.Get("X-Request-ID"),
		}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			Expect(json.Unmarshal(data, &rec.Body)).To(Succeed())
		}
		requests = append(requests, rec)
	}

	BeforeEach(func() {
		ctx = context.Background()
		requests = nil
		mux = http.NewServeMux()
		server = httptest.NewServer(mux)

		var err error
		client, err = NewClient(Options{BaseURL: server.URL + "/", APIKey: "service-key"})
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	It("should refuse to build without an API key", func() {
		_, err := NewClient(Options{BaseURL: server.URL, APIKey: "  "})
		Expect(err).To(MatchError(ErrMissingAPIKey))
	})

	Describe("SetVariable", func() {
		It("should PUT the value with its attributes", func() {
			mux.HandleFunc("PUT /api/service/teams/rocket/environment/Repo", func(w http.ResponseWriter, r *http.Request) {
				record(r)
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"key":"Repo"}`))
			})

			err := client.SetVariable(ctx, "rocket", "Repo", "https://github.com/hack-org/rocket", VariableOptions{
				Description: "Репозиторий",
				Category:    "development",
				Editable:    true,
			})
			Expect(err).ToNot(HaveOccurred())

			Expect(requests).To(HaveLen(1))
			req := requests[0]
			Expect(req.APIKey).To(Equal("service-key"))
			Expect(req.RequestID).ToNot(BeEmpty())
			Expect(req.Body).To(Equal(map[string]any{
				"value":       "https://github.com/hack-org/rocket",
				"description": "Репозиторий",
				"category":    "development",
				"isSecure":    false,
				"isEditable":  true,
			}))
		})

		It("should default the category", func() {
			mux.HandleFunc("PUT /api/service/teams/rocket/environment/PSID", func(w http.ResponseWriter, r *http.Request) {
				record(r)
			})

			Expect(client.SetVariable(ctx, "rocket", "PSID", "42", VariableOptions{})).To(Succeed())
			Expect(requests[0].Body["category"]).To(Equal(DefaultCategory))
		})

		It("should escape the team slug", func() {
			mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
				record(r)
			})

			Expect(client.SetVariable(ctx, "team one", "PSID", "42", VariableOptions{})).To(Succeed())
			Expect(requests[0].RawPath).To(Equal("/api/service/teams/team%20one/environment/PSID"))
		})

		It("should reject invalid keys without a request", func() {
			err := client.SetVariable(ctx, "rocket", "BAD KEY", "x", VariableOptions{})
			Expect(err).To(MatchError(ErrInvalidVariable))

			err = client.SetVariable(ctx, "rocket", "KEY", "", VariableOptions{})
			Expect(err).To(MatchError(ErrInvalidVariable))
			Expect(requests).To(BeEmpty())
		})

		It("should surface the service error", func() {
			mux.HandleFunc("PUT /api/service/teams/ghost/environment/Repo", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"error":"Team not found"}`))
			})

			err := client.SetVariable(ctx, "ghost", "Repo", "x", VariableOptions{})
			Expect(err).To(HaveOccurred())
			Expect(IsNotFound(err)).To(BeTrue())

			var apiErr *APIError
			Expect(err).To(BeAssignableToTypeOf(apiErr))
			Expect(err.Error()).To(ContainSubstring("Team not found"))
		})
	})

	Describe("DeleteVariable", func() {
		It("should DELETE the variable", func() {
			mux.HandleFunc("DELETE /api/service/teams/rocket/environment/OLD", func(w http.ResponseWriter, r *http.Request) {
				record(r)
				w.WriteHeader(http.StatusNoContent)
			})

			Expect(client.DeleteVariable(ctx, "rocket", "OLD")).To(Succeed())
			Expect(requests).To(HaveLen(1))
		})
	})

	Describe("reading variables", func() {
		BeforeEach(func() {
			mux.HandleFunc("GET /api/service/teams/environment", func(w http.ResponseWriter, r *http.Request) {
				record(r)
				if r.URL.Query().Get("team") == "rocket" {
					_, _ = w.Write([]byte(`{"team":{"teamSlug":"rocket","teamName":"Rocket","environment":[
						{"key":"PSID","value":"42","category":"cloud","isSecure":false},
						{"key":"MERCHANT_PASSWORD","value":"secret","category":"payment","isSecure":true}
					]}}`))
					return
				}
				_, _ = w.Write([]byte(`{"teams":[
					{"teamSlug":"rocket","teamName":"Rocket","environment":[{"key":"PSID","value":"42"}]},
					{"teamSlug":"comet","teamName":"Comet","environment":[]}
				]}`))
			})
		})

		It("should read one team", func() {
			env, err := client.TeamVariables(ctx, "rocket")
			Expect(err).ToNot(HaveOccurred())
			Expect(requests[0].Query).To(Equal("team=rocket"))
			Expect(env.Environment).To(HaveLen(2))

			psid, ok := env.Lookup("PSID")
			Expect(ok).To(BeTrue())
			Expect(psid.Value).To(Equal("42"))

			password, ok := env.Lookup("MERCHANT_PASSWORD")
			Expect(ok).To(BeTrue())
			Expect(password.IsSecure).To(BeTrue())
		})

		It("should read every team", func() {
			teams, err := client.AllVariables(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(teams).To(HaveLen(2))
			Expect(teams[0].TeamSlug).To(Equal("rocket"))
			Expect(teams[1].Environment).To(BeEmpty())
		})
	})

	Describe("BulkSet", func() {
		It("should send all updates in one request", func() {
			mux.HandleFunc("PUT /api/service/teams/environment", func(w http.ResponseWriter, r *http.Request) {
				record(r)
				_, _ = w.Write([]byte(`{"teamId":"t1","updatedEntries":1,"createdEntries":1}`))
			})

			result, err := client.BulkSet(ctx, "rocket", []Variable{
				{Key: "A", Value: "1"},
				{Key: "B", Value: "2", IsSecure: true},
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(result.CreatedEntries).To(Equal(1))
			Expect(result.UpdatedEntries).To(Equal(1))
			Expect(requests[0].Body["teamSlug"]).To(Equal("rocket"))
			Expect(requests[0].Body["updates"]).To(HaveLen(2))
		})
	})

	Describe("ListTeams", func() {
		It("should list approved teams", func() {
			mux.HandleFunc("GET /api/service/teams", func(w http.ResponseWriter, r *http.Request) {
				record(r)
				_, _ = w.Write([]byte(`{"teams":[{"id":"1","name":"Rocket","nickname":"rocket","status":"APPROVED"}],"count":1,"status":"APPROVED"}`))
			})

			teams, err := client.ListTeams(ctx, "APPROVED")
			Expect(err).ToNot(HaveOccurred())
			Expect(teams).To(HaveLen(1))
			Expect(teams[0].Nickname).To(Equal("rocket"))
			Expect(requests[0].Query).To(Equal("status=APPROVED"))
		})
	})

	Describe("retries", func() {
		It("should retry server errors when enabled", func() {
			var calls int32
			mux.HandleFunc("PUT /api/service/teams/rocket/environment/PSID", func(w http.ResponseWriter, r *http.Request) {
				if atomic.AddInt32(&calls, 1) == 1 {
					w.WriteHeader(http.StatusBadGateway)
					return
				}
				w.WriteHeader(http.StatusOK)
			})

			retrying, err := NewClient(Options{BaseURL: server.URL, APIKey: "service-key", RetryMax: 2})
			Expect(err).ToNot(HaveOccurred())
			retrying.client.RetryWaitMin = 0
			retrying.client.RetryWaitMax = 0

			Expect(retrying.SetVariable(ctx, "rocket", "PSID", "42", VariableOptions{})).To(Succeed())
			Expect(atomic.LoadInt32(&calls)).To(Equal(int32(2)))
		})

		It("should not retry by default", func() {
			var calls int32
			mux.HandleFunc("PUT /api/service/teams/rocket/environment/PSID", func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(http.StatusServiceUnavailable)
			})

			err := client.SetVariable(ctx, "rocket", "PSID", "42", VariableOptions{})
			Expect(err).To(HaveOccurred())
			Expect(atomic.LoadInt32(&calls)).To(Equal(int32(1)))
		})
	})

	Describe("RepositoryPublisher", func() {
		It("should publish Repo with catalog attributes", func() {
			mux.HandleFunc("PUT /api/service/teams/rocket/environment/Repo", func(w http.ResponseWriter, r *http.Request) {
				record(r)
			})

			publisher, err := NewRepositoryPublisher(client, nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(publisher.PublishRepository(ctx, "rocket", "https://github.com/hack-org/rocket")).To(Succeed())

			Expect(requests[0].Body["category"]).To(Equal("development"))
			Expect(requests[0].Body["isEditable"]).To(BeTrue())
		})
	})
})
