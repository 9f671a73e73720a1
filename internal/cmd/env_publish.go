package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hackops/pkg/envapi"
	"hackops/pkg/metrics"
	"hackops/pkg/roster"
	"hackops/pkg/teamenv"
)

var (
	publishCatalog    string
	publishFromConfig bool
	publishDocument   string
	publishTeam       string
	publishDryRun     bool
	publishBulk       bool
)

var envPublishCmd = &cobra.Command{
	Use:   "publish [KEY...]",
	Short: "Publish catalog variables to approved teams",
	Long: `Publish variables described by the variable catalog to every approved team.

Each catalog entry carries the variable's description, category and flags, and
either a value template rendered per team or no template, in which case the
value must come from the team environment document (--from-config).

Without KEY arguments every catalog variable that has a value is published.

Built-in catalog:
  ENDPOINT_URL       https://<team>.<base domain>                 (api, read-only)
  EVENT_PROVIDER     <service>/event/<team>/event-provider        (api, read-only)
  PAYMENT_ENDPOINT   <service>/event/<team>/payments              (api, read-only)
  MERCHANT_ID        <team>                                       (payment, read-only)
  MERCHANT_PASSWORD  from the document                            (payment, secure, read-only)
  Repo               https://<host>/<organization>/<team>         (development)
  PSID               from the document                            (cloud)

Examples:
  hackops env publish ENDPOINT_URL EVENT_PROVIDER
  hackops env publish MERCHANT_ID MERCHANT_PASSWORD --from-config
  hackops env publish --catalog my-catalog.yaml --team rocket --dry-run`,
	RunE: runEnvPublish,
}

func init() {
	envPublishCmd.Flags().StringVar(&publishCatalog, "catalog", "", "Variable catalog YAML file (default built-in catalog)")
	envPublishCmd.Flags().BoolVar(&publishFromConfig, "from-config", false, "Take values from the team environment document")
	envPublishCmd.Flags().StringVar(&publishDocument, "document", "", "Team environment document (overrides files.environment)")
	envPublishCmd.Flags().StringVar(&publishTeam, "team", "", "Team nickname (default every approved team)")
	envPublishCmd.Flags().BoolVar(&publishDryRun, "dry-run", false, "Show values without calling the service")
	envPublishCmd.Flags().BoolVar(&publishBulk, "bulk", false, "Send each team's variables in one request (editability is not updated)")
	envCmd.AddCommand(envPublishCmd)
}

type pendingVariable struct {
	def   envapi.Definition
	value string
}

func runEnvPublish(cmd *cobra.Command, args []string) error {
	started := time.Now()
	out := cmd.OutOrStdout()

	catalog, err := envapi.LoadCatalog(publishCatalog)
	if err != nil {
		return err
	}
	defs, err := catalog.Definitions(args...)
	if err != nil {
		return err
	}
	explicit := len(args) > 0

	rt, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	var doc *teamenv.Document
	if publishFromConfig {
		path := rt.cfg.Files.Environment
		if publishDocument != "" {
			path = publishDocument
		}
		if doc, err = teamenv.Load(path); err != nil {
			return err
		}
	}

	teams, err := rt.approvedTeams(selectedTeams(publishTeam))
	if err != nil {
		return err
	}

	var client *envapi.Client
	if !publishDryRun {
		if client, err = rt.serviceClient(); err != nil {
			return err
		}
	}

	var recorder *metrics.Recorder
	if rt.cfg.Metrics.File != "" {
		recorder = metrics.NewRecorder()
		defer func() {
			recorder.Finish(started)
			if err := recorder.WriteTextfile(rt.cfg.Metrics.File); err != nil {
				rt.logger.Warn("failed to write metrics", zap.Error(err))
			}
		}()
	}

	fmt.Fprintf(out, "🔧 Publishing %d variables to %d teams\n", len(defs), len(teams))

	failed := forEachTeam(cmd.Context(), out, rt.logger, teams, func(ctx context.Context, team roster.Team) error {
		data := rt.templateData(team)
		if doc != nil {
			data.Values = doc.Values(team.Nickname)
		}

		vars, err := renderVariables(defs, data, explicit)
		if err != nil {
			return err
		}

		if publishDryRun {
			for _, v := range vars {
				fmt.Fprintf(out, "  ~ %s: %s=%s\n", team.Nickname, v.def.Key, displayValue(v))
			}
			return nil
		}

		if publishBulk {
			return publishTeamBulk(ctx, client, recorder, team, vars)
		}
		return publishTeamVariables(ctx, client, recorder, team, vars)
	})

	return teamSummary(out, len(teams), failed)
}

// renderVariables skips definitions without a value unless they were asked for by name
func renderVariables(defs []envapi.Definition, data envapi.TemplateData, explicit bool) ([]pendingVariable, error) {
	var vars []pendingVariable
	var result *multierror.Error

	for _, def := range defs {
		value, err := def.Render(data)
		switch {
		case errors.Is(err, envapi.ErrNoValue) && !explicit:
			continue
		case err != nil:
			result = multierror.Append(result, err)
			continue
		}
		vars = append(vars, pendingVariable{def: def, value: value})
	}

	return vars, result.ErrorOrNil()
}

func publishTeamVariables(ctx context.Context, client *envapi.Client, recorder *metrics.Recorder, team roster.Team, vars []pendingVariable) error {
	var result *multierror.Error
	for _, v := range vars {
		err := client.SetVariable(ctx, team.Nickname, v.def.Key, v.value, v.def.Options())
		if recorder != nil {
			recorder.VariablePublished(v.def.Key, err)
		}
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", v.def.Key, err))
		}
	}
	return result.ErrorOrNil()
}

func publishTeamBulk(ctx context.Context, client *envapi.Client, recorder *metrics.Recorder, team roster.Team, vars []pendingVariable) error {
	if len(vars) == 0 {
		return nil
	}

	batch := make([]envapi.Variable, 0, len(vars))
	for _, v := range vars {
		batch = append(batch, envapi.Variable{
			Key:         v.def.Key,
			Value:       v.value,
			Description: v.def.Description,
			Category:    v.def.Category,
			IsSecure:    v.def.Secure,
		})
	}

	res, err := client.BulkSet(ctx, team.Nickname, batch)
	if err != nil {
		if recorder != nil {
			for _, v := range vars {
				recorder.VariablePublished(v.def.Key, err)
			}
		}
		return err
	}

	failedKeys := make(map[string]error, len(res.Errors))
	var result *multierror.Error
	for _, e := range res.Errors {
		entryErr := fmt.Errorf("%s: %s", e.Key, e.Error)
		failedKeys[e.Key] = entryErr
		result = multierror.Append(result, entryErr)
	}
	if recorder != nil {
		for _, v := range vars {
			recorder.VariablePublished(v.def.Key, failedKeys[v.def.Key])
		}
	}
	return result.ErrorOrNil()
}

func displayValue(v pendingVariable) string {
	if v.def.Secure {
		return teamenv.Mask(v.value)
	}
	return v.value
}
