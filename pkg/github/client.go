package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v66/github"
	"github.com/hashicorp/go-cleanhttp"
	"golang.org/x/oauth2"
)

const listPageSize = 100

// ClientOptions configures the GitHub API client
type ClientOptions struct {
	// Host is github.com or a GitHub Enterprise Server host name
	Host string
	// BaseURL overrides the API endpoint entirely. Used against test servers.
	BaseURL string
	// MaxRetries enables retries of rate limit and network failures. Zero disables them.
	MaxRetries int
	// Cache enables conditional requests through an in-memory HTTP cache
	Cache bool
	// Transport is the base transport. Defaults to a pooled cleanhttp transport.
	Transport http.RoundTripper
}

// Client implements the APIClient interface using the GitHub REST API
type Client struct {
	client *github.Client
	retry  *RetryConfig
}

// NewClient creates a new GitHub API client with the provided token
func NewClient(token string, opts ClientOptions) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("GitHub token cannot be empty")
	}

	base := opts.Transport
	if base == nil {
		base = cleanhttp.DefaultPooledTransport()
	}

	var transport http.RoundTripper = &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
		Base:   base,
	}
	if opts.Cache {
		transport = NewHTTPCacheTransport(transport)
	}

	client := github.NewClient(&http.Client{Transport: transport})

	switch {
	case opts.BaseURL != "":
		baseURL, err := url.Parse(strings.TrimRight(opts.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API URL %q: %w", opts.BaseURL, err)
		}
		client.BaseURL = baseURL
	case opts.Host != "" && !strings.EqualFold(opts.Host, "github.com"):
		enterpriseURL := "https://" + opts.Host + "/"
		var err error
		client, err = client.WithEnterpriseURLs(enterpriseURL, enterpriseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub Enterprise host %q: %w", opts.Host, err)
		}
	}

	retry := DefaultRetryConfig()
	retry.MaxRetries = opts.MaxRetries

	return &Client{client: client, retry: retry}, nil
}

// GetRepository retrieves a repository by owner and name
func (c *Client) GetRepository(ctx context.Context, owner, name string) (*Repository, error) {
	var repo *github.Repository

	err := WithRetry(ctx, func() error {
		var err error
		repo, _, err = c.client.Repositories.Get(ctx, owner, name)
		if err != nil {
			return WrapGitHubError(err, fmt.Sprintf("repository %s/%s", owner, name))
		}
		return nil
	}, c.retry)

	if err != nil {
		return nil, err
	}

	return convertGitHubRepository(repo), nil
}

// CreateRepository creates a new repository in the owner organization
func (c *Client) CreateRepository(ctx context.Context, owner string, config RepositoryConfig) (*Repository, error) {
	repo := &github.Repository{
		Name:        github.String(config.Name),
		Description: github.String(config.Description),
		Private:     github.Bool(config.Private),
		AutoInit:    github.Bool(config.AutoInit),
	}
	if config.LicenseTemplate != "" {
		repo.LicenseTemplate = github.String(config.LicenseTemplate)
	}

	var created *github.Repository

	err := WithRetry(ctx, func() error {
		var err error
		created, _, err = c.client.Repositories.Create(ctx, owner, repo)
		if err != nil {
			return WrapGitHubError(err, fmt.Sprintf("repository %s/%s", owner, config.Name))
		}
		return nil
	}, c.retry)

	if err != nil {
		return nil, err
	}

	return convertGitHubRepository(created), nil
}

// ListCollaborators returns every collaborator of the repository
func (c *Client) ListCollaborators(ctx context.Context, owner, name string) ([]Collaborator, error) {
	opts := &github.ListCollaboratorsOptions{
		ListOptions: github.ListOptions{PerPage: listPageSize},
	}

	var collaborators []Collaborator
	for {
		var users []*github.User
		var resp *github.Response

		err := WithRetry(ctx, func() error {
			var err error
			users, resp, err = c.client.Repositories.ListCollaborators(ctx, owner, name, opts)
			if err != nil {
				return WrapGitHubError(err, fmt.Sprintf("repository %s/%s collaborators", owner, name))
			}
			return nil
		}, c.retry)
		if err != nil {
			return nil, err
		}

		for _, u := range users {
			collaborators = append(collaborators, Collaborator{
				Username:   u.GetLogin(),
				Permission: u.GetRoleName(),
			})
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return collaborators, nil
}

// AddCollaborator grants username the permission on the repository.
// GitHub answers 201 with an invitation or 204 when access already exists; both are success.
func (c *Client) AddCollaborator(ctx context.Context, owner, name, username, permission string) error {
	opts := &github.RepositoryAddCollaboratorOptions{Permission: permission}

	return WithRetry(ctx, func() error {
		_, _, err := c.client.Repositories.AddCollaborator(ctx, owner, name, username, opts)
		if err != nil {
			return WrapGitHubError(err, fmt.Sprintf("collaborator %s on %s/%s", username, owner, name))
		}
		return nil
	}, c.retry)
}

// RemoveCollaborator revokes username's access to the repository
func (c *Client) RemoveCollaborator(ctx context.Context, owner, name, username string) error {
	return WithRetry(ctx, func() error {
		_, err := c.client.Repositories.RemoveCollaborator(ctx, owner, name, username)
		if err != nil {
			return WrapGitHubError(err, fmt.Sprintf("collaborator %s on %s/%s", username, owner, name))
		}
		return nil
	}, c.retry)
}

// ListOrganizationMembers returns the logins of every member of org
func (c *Client) ListOrganizationMembers(ctx context.Context, org string) ([]string, error) {
	opts := &github.ListMembersOptions{
		ListOptions: github.ListOptions{PerPage: listPageSize},
	}

	var logins []string
	for {
		var users []*github.User
		var resp *github.Response

		err := WithRetry(ctx, func() error {
			var err error
			users, resp, err = c.client.Organizations.ListMembers(ctx, org, opts)
			if err != nil {
				return WrapGitHubError(err, fmt.Sprintf("organization %s members", org))
			}
			return nil
		}, c.retry)
		if err != nil {
			return nil, err
		}

		for _, u := range users {
			logins = append(logins, u.GetLogin())
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return logins, nil
}

func convertGitHubRepository(repo *github.Repository) *Repository {
	if repo == nil {
		return nil
	}
	return &Repository{
		ID:          repo.GetID(),
		Name:        repo.GetName(),
		FullName:    repo.GetFullName(),
		Description: repo.GetDescription(),
		Private:     repo.GetPrivate(),
		HTMLURL:     repo.GetHTMLURL(),
		CreatedAt:   repo.GetCreatedAt().Time,
	}
}
