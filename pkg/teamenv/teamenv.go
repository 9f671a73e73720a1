// Package teamenv generates the per-team environment document: the computed
// service variables of every approved team plus a random merchant password.
package teamenv

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"hackops/pkg/envapi"
	"hackops/pkg/roster"
)

const (
	// PasswordLength is the length of generated merchant passwords
	PasswordLength = 26
	// PasswordAlphabet is the character set of generated merchant passwords
	PasswordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789#-@"

	documentDescription = "Environment variables configuration for HackLoad 2025 approved teams"
)

// Meta describes how a document was generated
type Meta struct {
	GeneratedAt time.Time `json:"generated_at"`
	TotalTeams  int       `json:"total_teams"`
	BaseURL     string    `json:"base_url"`
	GitHubOrg   string    `json:"github_org"`
	Description string    `json:"description"`
}

// TeamInfo is the roster summary stored with a team's variables
type TeamInfo struct {
	Name        string `json:"name"`
	Nickname    string `json:"nickname"`
	Status      string `json:"status"`
	MemberCount int    `json:"member_count"`
	Level       string `json:"level"`
}

// TeamEntry is one team of the document
type TeamEntry struct {
	TeamInfo    TeamInfo          `json:"team_info"`
	Environment map[string]string `json:"environment_variables"`
}

// Document is the generated environment configuration, keyed by team slug
type Document struct {
	Meta  Meta                 `json:"meta"`
	Teams map[string]TeamEntry `json:"teams"`
}

// Values returns the variables of slug, nil when the team is absent
func (d *Document) Values(slug string) map[string]string {
	entry, ok := d.Teams[slug]
	if !ok {
		return nil
	}
	return entry.Environment
}

// Generator renders documents from a roster
type Generator struct {
	Catalog    *envapi.Catalog
	Org        string
	Host       string
	BaseURL    string
	BaseDomain string
	// Password generates merchant passwords. Defaults to GeneratePassword(PasswordLength).
	Password func() (string, error)
	Now      func() time.Time
}

// Generate builds the document for teams. Every team must be approved.
func (g *Generator) Generate(teams []roster.Team) (*Document, error) {
	if err := roster.ValidateApproved(teams); err != nil {
		return nil, err
	}

	catalog := g.Catalog
	if catalog == nil {
		catalog = envapi.DefaultCatalog()
	}
	password := g.Password
	if password == nil {
		password = func() (string, error) { return GeneratePassword(PasswordLength) }
	}
	now := g.Now
	if now == nil {
		now = time.Now
	}

	doc := &Document{
		Meta: Meta{
			GeneratedAt: now(),
			BaseURL:     g.BaseURL,
			GitHubOrg:   g.Org,
			Description: documentDescription,
		},
		Teams: make(map[string]TeamEntry, len(teams)),
	}

	for _, team := range teams {
		env, err := g.environment(catalog, team, password)
		if err != nil {
			return nil, err
		}

		level := team.Level
		if level == "" {
			level = "UNKNOWN"
		}
		doc.Teams[team.Nickname] = TeamEntry{
			TeamInfo: TeamInfo{
				Name:        team.Name,
				Nickname:    team.Nickname,
				Status:      team.Status,
				MemberCount: team.Size(),
				Level:       level,
			},
			Environment: env,
		}
	}
	doc.Meta.TotalTeams = len(doc.Teams)

	return doc, nil
}

func (g *Generator) environment(catalog *envapi.Catalog, team roster.Team, password func() (string, error)) (map[string]string, error) {
	data := envapi.TemplateData{
		Slug:       team.Nickname,
		Name:       team.Name,
		Org:        g.Org,
		Host:       g.Host,
		BaseURL:    g.BaseURL,
		BaseDomain: g.BaseDomain,
	}

	env := map[string]string{}
	defs, _ := catalog.Definitions()
	for _, def := range defs {
		switch {
		case def.Key == envapi.KeyMerchantPassword:
			p, err := password()
			if err != nil {
				return nil, fmt.Errorf("failed to generate merchant password: %w", err)
			}
			env[def.Key] = p
		case def.Templated():
			v, err := def.Render(data)
			if err != nil {
				return nil, err
			}
			env[def.Key] = v
		}
	}
	return env, nil
}

// GeneratePassword returns length characters drawn uniformly from PasswordAlphabet
func GeneratePassword(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("password length must be positive")
	}

	limit := big.NewInt(int64(len(PasswordAlphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		out[i] = PasswordAlphabet[n.Int64()]
	}
	return string(out), nil
}

// Mask hides all but the edges of a secret
func Mask(secret string) string {
	if len(secret) <= 9 {
		return "***"
	}
	return secret[:6] + "***" + secret[len(secret)-3:]
}

// Load reads a document file
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("team environment document %s not found, run `hackops env generate` first: %w", path, err)
		}
		return nil, fmt.Errorf("failed to read team environment document: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse team environment document %s: %w", path, err)
	}
	if doc.Teams == nil {
		return nil, fmt.Errorf("team environment document %s has no teams section", path)
	}
	return &doc, nil
}

// Save writes doc to path, owner-readable only since it carries secrets
func Save(path string, doc *Document, pretty bool) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode team environment document: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write team environment document: %w", err)
	}
	return nil
}
