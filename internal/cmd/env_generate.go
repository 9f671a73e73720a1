package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hackops/pkg/envapi"
	"hackops/pkg/teamenv"
)

var (
	generateOutput  string
	generatePretty  bool
	generateCatalog string
)

var envGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate the team environment document",
	Long: `Generate the environment document for every approved team: the computed service
URLs, the merchant id, the repository URL and a fresh random merchant password.

The document is the input of "hackops env publish --from-config". It contains
secrets and is written readable by its owner only.`,
	Args: cobra.NoArgs,
	RunE: runEnvGenerate,
}

func init() {
	envGenerateCmd.Flags().StringVarP(&generateOutput, "output", "o", "", "Output file (overrides files.environment)")
	envGenerateCmd.Flags().BoolVar(&generatePretty, "pretty", false, "Indent the JSON output")
	envGenerateCmd.Flags().StringVar(&generateCatalog, "catalog", "", "Variable catalog YAML file (default built-in catalog)")
	envCmd.AddCommand(envGenerateCmd)
}

func runEnvGenerate(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	catalog, err := envapi.LoadCatalog(generateCatalog)
	if err != nil {
		return err
	}

	rt, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	teams, err := rt.approvedTeams(nil)
	if err != nil {
		return err
	}
	if len(teams) == 0 {
		return fmt.Errorf("no approved teams found in %s", rt.cfg.Files.Teams)
	}

	generator := &teamenv.Generator{
		Catalog:    catalog,
		Org:        rt.cfg.GitHub.Organization,
		Host:       rt.cfg.GitHub.Host,
		BaseURL:    rt.cfg.Service.BaseURL,
		BaseDomain: rt.cfg.Service.BaseDomain,
	}
	doc, err := generator.Generate(teams)
	if err != nil {
		return err
	}

	path := rt.cfg.Files.Environment
	if generateOutput != "" {
		path = generateOutput
	}
	if err := teamenv.Save(path, doc, generatePretty); err != nil {
		return err
	}
	rt.logger.Info("team environment document written", zap.String("file", path), zap.Int("teams", doc.Meta.TotalTeams))

	slugs := make([]string, 0, len(doc.Teams))
	for slug := range doc.Teams {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)

	fmt.Fprintf(out, "🔑 Generated variables for %d teams\n", doc.Meta.TotalTeams)
	for _, slug := range slugs {
		env := doc.Teams[slug].Environment
		fmt.Fprintf(out, "  %s: %d variables, %s=%s\n", slug, len(env),
			envapi.KeyMerchantPassword, teamenv.Mask(env[envapi.KeyMerchantPassword]))
	}
	fmt.Fprintf(out, "✅ Written to %s\n", path)

	return nil
}
