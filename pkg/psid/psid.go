// Package psid imports and exports team payment account ids (PSID).
package psid

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"hackops/pkg/envapi"
	"hackops/pkg/roster"
)

// Placeholder is the value the hub shows for a PSID nobody filled in
const Placeholder = "Заполни меня"

var (
	teamColumns = []string{"team", "teamNickname", "nickname", "Team"}
	psidColumns = []string{"psid", "PSID", "id", "ID"}

	// ErrEmptyMapping is returned when a mapping file yields no team
	ErrEmptyMapping = errors.New("no PSID mappings found")
)

// Mapping maps team slug to PSID
type Mapping map[string]string

// IsSet reports whether v is a real PSID
func IsSet(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && v != Placeholder
}

// Load reads a mapping file, CSV or JSON detected from its content
func Load(path string) (Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PSID file: %w", err)
	}
	defer f.Close()

	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read PSID file %s: %w", path, err)
	}
	return m, nil
}

// Parse reads a mapping. JSON input is either an object of slug to PSID or a
// list of objects; anything else is read as CSV with a header row.
func Parse(r io.Reader) (Mapping, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	trimmed := bytes.TrimSpace(data)
	var m Mapping
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		m, err = parseJSON(trimmed)
	} else {
		m, err = parseCSV(data)
	}
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, ErrEmptyMapping
	}
	return m, nil
}

func parseJSON(data []byte) (Mapping, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	m := Mapping{}
	switch v := raw.(type) {
	case map[string]any:
		for team, psid := range v {
			if s := stringify(psid); team != "" && s != "" {
				m[strings.TrimSpace(team)] = s
			}
		}
	case []any:
		for _, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			team := firstField(obj, teamColumns)
			psid := firstField(obj, psidColumns)
			if team != "" && psid != "" {
				m[team] = psid
			}
		}
	}
	return m, nil
}

func firstField(obj map[string]any, names []string) string {
	for _, name := range names {
		if s := stringify(obj[name]); s != "" {
			return s
		}
	}
	return ""
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func parseCSV(data []byte) (Mapping, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return Mapping{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invalid CSV: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(h)] = i
	}

	m := Mapping{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid CSV: %w", err)
		}

		team := firstColumn(record, index, teamColumns)
		psid := firstColumn(record, index, psidColumns)
		if team != "" && psid != "" {
			m[team] = psid
		}
	}
	return m, nil
}

func firstColumn(record []string, index map[string]int, names []string) string {
	for _, name := range names {
		i, ok := index[name]
		if !ok || i >= len(record) {
			continue
		}
		if v := strings.TrimSpace(record[i]); v != "" {
			return v
		}
	}
	return ""
}

// Export writes current PSIDs as JSON when path ends in .json, CSV otherwise.
// Rows follow the order of slugs.
func Export(path string, current Mapping, slugs []string) error {
	var buf bytes.Buffer

	if strings.EqualFold(filepath.Ext(path), ".json") {
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(current); err != nil {
			return err
		}
	} else {
		w := csv.NewWriter(&buf)
		_ = w.Write([]string{"team", "psid"})
		for _, slug := range slugs {
			if v, ok := current[slug]; ok {
				_ = w.Write([]string{slug, v})
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return err
		}
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to export PSID values: %w", err)
	}
	return nil
}

// Current collects each team's PSID variable from the service's environments
func Current(envs []envapi.TeamEnvironment) Mapping {
	m := Mapping{}
	for i := range envs {
		if v, ok := envs[i].Lookup(envapi.KeyPSID); ok {
			m[envs[i].TeamSlug] = v.Value
		}
	}
	return m
}

// Change is one pending PSID update
type Change struct {
	Team    roster.Team
	Current string
	Desired string
}

// Plan splits roster teams by what an update would do to them
type Plan struct {
	Changes   []Change
	Unchanged []string
	// Unmapped lists roster teams absent from the mapping
	Unmapped []string
	// Unknown lists mapping entries that match no roster team
	Unknown []string
}

// PlanUpdates compares the mapping against current values, in roster order
func PlanUpdates(teams []roster.Team, mapping, current Mapping) Plan {
	var plan Plan
	seen := make(map[string]bool, len(teams))

	for _, team := range teams {
		seen[team.Nickname] = true
		desired, ok := mapping[team.Nickname]
		if !ok {
			plan.Unmapped = append(plan.Unmapped, team.Nickname)
			continue
		}
		if current[team.Nickname] == desired {
			plan.Unchanged = append(plan.Unchanged, team.Nickname)
			continue
		}
		plan.Changes = append(plan.Changes, Change{
			Team:    team,
			Current: current[team.Nickname],
			Desired: desired,
		})
	}

	for slug := range mapping {
		if !seen[slug] {
			plan.Unknown = append(plan.Unknown, slug)
		}
	}
	sort.Strings(plan.Unknown)

	return plan
}
