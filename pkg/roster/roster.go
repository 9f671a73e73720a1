// Package roster loads hackathon team rosters and guards the approval invariant.
package roster

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// StatusApproved is the only team status eligible for provisioning
const StatusApproved = "APPROVED"

// ErrInvalidRoster marks malformed input data. It is fatal before any external call.
var ErrInvalidRoster = errors.New("invalid roster")

// Member is a single participant of a team
type Member struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	ProfileLink string `json:"githubUrl"`
}

// Team is one roster record. Nickname is the slug used as repository name and variable scope.
type Team struct {
	Name        string   `json:"teamName"`
	Nickname    string   `json:"teamNickname"`
	Status      string   `json:"teamStatus"`
	MemberCount *int     `json:"memberCount,omitempty"`
	Level       string   `json:"teamLevel,omitempty"`
	Members     []Member `json:"members"`
}

// Approved reports whether the team may be provisioned
func (t Team) Approved() bool {
	return t.Status == StatusApproved
}

// Size returns the declared member count, falling back to the members list
func (t Team) Size() int {
	if t.MemberCount != nil {
		return *t.MemberCount
	}
	return len(t.Members)
}

// document is the roster envelope. Data is a pointer so an absent key is an error.
type document struct {
	Data *[]Team `json:"data"`
}

// Load reads a roster file
func Load(path string) ([]Team, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open teams file: %w", err)
	}
	defer f.Close()

	teams, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return teams, nil
}

// Parse decodes a roster document and checks required fields
func Parse(r io.Reader) ([]Team, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoster, err)
	}
	if doc.Data == nil {
		return nil, fmt.Errorf("%w: missing top-level data list", ErrInvalidRoster)
	}
	teams := *doc.Data

	seen := make(map[string]int, len(teams))
	for i, team := range teams {
		nickname := strings.TrimSpace(team.Nickname)
		if nickname == "" {
			return nil, fmt.Errorf("%w: team #%d (%q) has no teamNickname", ErrInvalidRoster, i+1, team.Name)
		}
		if prev, ok := seen[nickname]; ok {
			return nil, fmt.Errorf("%w: teamNickname %q appears in teams #%d and #%d", ErrInvalidRoster, nickname, prev+1, i+1)
		}
		seen[nickname] = i
		teams[i].Nickname = nickname
	}

	return teams, nil
}

type memberRecord struct {
	Email       string `json:"email"`
	ProfileLink string `json:"githubUrl"`
}

// LoadMembers reads the members file and returns an email to profile link mapping.
// Records without an email or a profile link are skipped.
func LoadMembers(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read members file: %w", err)
	}

	var doc struct {
		Data []memberRecord `json:"data"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRoster, path, err)
	}

	links := make(map[string]string, len(doc.Data))
	for _, m := range doc.Data {
		email := normalizeEmail(m.Email)
		link := strings.TrimSpace(m.ProfileLink)
		if email == "" || link == "" {
			continue
		}
		links[email] = link
	}
	return links, nil
}

// JoinProfiles fills missing member profile links from the email mapping.
// Inline links always win. The input slice is not modified.
func JoinProfiles(teams []Team, byEmail map[string]string) []Team {
	joined := make([]Team, len(teams))
	for i, team := range teams {
		joined[i] = team
		joined[i].Members = make([]Member, len(team.Members))
		for j, m := range team.Members {
			if strings.TrimSpace(m.ProfileLink) == "" {
				m.ProfileLink = byEmail[normalizeEmail(m.Email)]
			}
			joined[i].Members[j] = m
		}
	}
	return joined
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NonApprovedError reports a team that must not be provisioned
type NonApprovedError struct {
	Name     string
	Nickname string
	Status   string
}

// Error implements the error interface
func (e *NonApprovedError) Error() string {
	status := e.Status
	if status == "" {
		status = "UNKNOWN"
	}
	return fmt.Sprintf("team %s (%s) is not approved: %s", e.Name, e.Nickname, status)
}

// ValidateApproved returns an aggregated error naming every non-approved team
func ValidateApproved(teams []Team) error {
	var result *multierror.Error
	for _, team := range teams {
		if !team.Approved() {
			result = multierror.Append(result, &NonApprovedError{
				Name:     team.Name,
				Nickname: team.Nickname,
				Status:   team.Status,
			})
		}
	}
	return result.ErrorOrNil()
}

// FilterApproved splits teams by approval status, preserving order
func FilterApproved(teams []Team) (approved, rejected []Team) {
	for _, team := range teams {
		if team.Approved() {
			approved = append(approved, team)
		} else {
			rejected = append(rejected, team)
		}
	}
	return approved, rejected
}

// Select restricts teams to the given slugs, preserving roster order.
// An empty selection returns all teams.
func Select(teams []Team, slugs []string) ([]Team, error) {
	if len(slugs) == 0 {
		return teams, nil
	}

	wanted := make(map[string]bool, len(slugs))
	for _, slug := range slugs {
		if slug = strings.TrimSpace(slug); slug != "" {
			wanted[slug] = false
		}
	}

	var selected []Team
	for _, team := range teams {
		if _, ok := wanted[team.Nickname]; ok {
			wanted[team.Nickname] = true
			selected = append(selected, team)
		}
	}

	var missing []string
	for slug, found := range wanted {
		if !found {
			missing = append(missing, slug)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: unknown team(s): %s", ErrInvalidRoster, strings.Join(missing, ", "))
	}

	return selected, nil
}
