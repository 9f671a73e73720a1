package envapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"unicode/utf8"
)

const (
	teamsPath       = "/api/service/teams"
	environmentPath = "/api/service/teams/environment"

	// DefaultCategory is used when a variable is published without one
	DefaultCategory = "general"

	maxKeyLength         = 100
	maxValueLength       = 2000
	maxDescriptionLength = 500
	maxCategoryLength    = 50
)

var keyPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Variable is one team environment entry
type Variable struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	IsSecure    bool   `json:"isSecure"`
	IsEditable  bool   `json:"isEditable"`
}

// VariableOptions are the attributes stored alongside a value
type VariableOptions struct {
	Description string
	Category    string
	Secure      bool
	Editable    bool
}

// TeamEnvironment is the variable list of one team
type TeamEnvironment struct {
	TeamSlug    string     `json:"teamSlug"`
	TeamName    string     `json:"teamName"`
	Environment []Variable `json:"environment"`
}

// Lookup returns the variable named key
func (t *TeamEnvironment) Lookup(key string) (Variable, bool) {
	for _, v := range t.Environment {
		if v.Key == key {
			return v, true
		}
	}
	return Variable{}, false
}

// Team is a team as listed by the service
type Team struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Nickname    string `json:"nickname"`
	Status      string `json:"status"`
	Level       string `json:"level,omitempty"`
	HackathonID string `json:"hackathonId,omitempty"`
}

// BulkResult reports a bulk update
type BulkResult struct {
	TeamID         string       `json:"teamId"`
	UpdatedEntries int          `json:"updatedEntries"`
	CreatedEntries int          `json:"createdEntries"`
	Errors         []EntryError `json:"errors,omitempty"`
}

// EntryError is a per-key failure inside a bulk update
type EntryError struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

type setRequest struct {
	Value       string `json:"value"`
	Description string `json:"description"`
	Category    string `json:"category"`
	IsSecure    bool   `json:"isSecure"`
	IsEditable  bool   `json:"isEditable"`
}

type bulkUpdate struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	IsSecure    bool   `json:"isSecure"`
}

// ValidateVariable checks key and value against the service's constraints
func ValidateVariable(key, value string, opts VariableOptions) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: key is empty", ErrInvalidVariable)
	case len(key) > maxKeyLength:
		return fmt.Errorf("%w: key %s is longer than %d characters", ErrInvalidVariable, key, maxKeyLength)
	case !keyPattern.MatchString(key):
		return fmt.Errorf("%w: key %s must contain only letters, numbers, underscores and hyphens", ErrInvalidVariable, key)
	case value == "":
		return fmt.Errorf("%w: value of %s is empty", ErrInvalidVariable, key)
	case utf8.RuneCountInString(value) > maxValueLength:
		return fmt.Errorf("%w: value of %s is longer than %d characters", ErrInvalidVariable, key, maxValueLength)
	case utf8.RuneCountInString(opts.Description) > maxDescriptionLength:
		return fmt.Errorf("%w: description of %s is longer than %d characters", ErrInvalidVariable, key, maxDescriptionLength)
	case utf8.RuneCountInString(opts.Category) > maxCategoryLength:
		return fmt.Errorf("%w: category of %s is longer than %d characters", ErrInvalidVariable, key, maxCategoryLength)
	}
	return nil
}

// SetVariable creates or replaces one variable of a team
func (c *Client) SetVariable(ctx context.Context, teamSlug, key, value string, opts VariableOptions) error {
	if err := ValidateVariable(key, value, opts); err != nil {
		return err
	}
	if opts.Category == "" {
		opts.Category = DefaultCategory
	}

	req, err := c.newRequest(ctx, http.MethodPut, variablePath(teamSlug, key), nil, setRequest{
		Value:       value,
		Description: opts.Description,
		Category:    opts.Category,
		IsSecure:    opts.Secure,
		IsEditable:  opts.Editable,
	})
	if err != nil {
		return err
	}

	if err := c.do(req, nil); err != nil {
		return err
	}

	c.logger.V(1).Info("variable set", "team", teamSlug, "key", key, "secure", opts.Secure)
	return nil
}

// DeleteVariable removes one variable of a team
func (c *Client) DeleteVariable(ctx context.Context, teamSlug, key string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, variablePath(teamSlug, key), nil, nil)
	if err != nil {
		return err
	}
	if err := c.do(req, nil); err != nil {
		return err
	}

	c.logger.V(1).Info("variable deleted", "team", teamSlug, "key", key)
	return nil
}

// TeamVariables returns the environment of one team
func (c *Client) TeamVariables(ctx context.Context, teamSlug string) (*TeamEnvironment, error) {
	req, err := c.newRequest(ctx, http.MethodGet, environmentPath, url.Values{"team": {teamSlug}}, nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Team TeamEnvironment `json:"team"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	if out.Team.TeamSlug == "" {
		out.Team.TeamSlug = teamSlug
	}
	return &out.Team, nil
}

// AllVariables returns the environment of every team
func (c *Client) AllVariables(ctx context.Context) ([]TeamEnvironment, error) {
	req, err := c.newRequest(ctx, http.MethodGet, environmentPath, nil, nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Teams []TeamEnvironment `json:"teams"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out.Teams, nil
}

// BulkSet writes several variables of one team in a single request.
// Editability cannot be set through this endpoint.
func (c *Client) BulkSet(ctx context.Context, teamSlug string, vars []Variable) (*BulkResult, error) {
	updates := make([]bulkUpdate, 0, len(vars))
	for _, v := range vars {
		if err := ValidateVariable(v.Key, v.Value, VariableOptions{Description: v.Description, Category: v.Category}); err != nil {
			return nil, err
		}
		updates = append(updates, bulkUpdate{
			Key:         v.Key,
			Value:       v.Value,
			Description: v.Description,
			Category:    v.Category,
			IsSecure:    v.IsSecure,
		})
	}

	req, err := c.newRequest(ctx, http.MethodPut, environmentPath, nil, struct {
		TeamSlug string       `json:"teamSlug"`
		Updates  []bulkUpdate `json:"updates"`
	}{teamSlug, updates})
	if err != nil {
		return nil, err
	}

	var out BulkResult
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTeams returns the service's teams with the given status, APPROVED when empty
func (c *Client) ListTeams(ctx context.Context, status string) ([]Team, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}

	req, err := c.newRequest(ctx, http.MethodGet, teamsPath, query, nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Teams []Team `json:"teams"`
		Count int    `json:"count"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out.Teams, nil
}

func variablePath(teamSlug, key string) string {
	return fmt.Sprintf("%s/%s/environment/%s", teamsPath, url.PathEscape(teamSlug), url.PathEscape(key))
}
