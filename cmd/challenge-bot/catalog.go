package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/terra-clan/challenge-bot/internal/catalog"
)

var (
	catalogChallengesDir string
	catalogTemplatesDir  string
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the challenge catalog",
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check challenge descriptors and synthesis templates",
	Long: `Loads every template and challenge descriptor and fails when a template
is malformed or a language offered by a challenge has no template.`,
	Args: cobra.NoArgs,
	RunE: runCatalogValidate,
}

func init() {
	catalogValidateCmd.Flags().StringVar(&catalogChallengesDir, "challenges", "./challenges", "challenge descriptors directory")
	catalogValidateCmd.Flags().StringVar(&catalogTemplatesDir, "templates", "./templates", "synthesis templates directory")
	catalogCmd.AddCommand(catalogValidateCmd)
}

func runCatalogValidate(cmd *cobra.Command, _ []string) error {
	c := catalog.New()

	templates, err := c.LoadTemplates(catalogTemplatesDir)
	if err != nil {
		return err
	}
	challenges, err := c.LoadChallenges(catalogChallengesDir)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LEVEL\tNAME\tCHALLENGES")
	for _, lvl := range c.Levels() {
		fmt.Fprintf(w, "%d\t%s\t%d\n", lvl.Level, lvl.Name, lvl.Challenges)
	}
	w.Flush()
	fmt.Fprintf(out, "%d templates, %d challenges\n", templates, challenges)

	if missing := c.MissingTemplates(); len(missing) > 0 {
		return fmt.Errorf("no synthesis template for: %v", missing)
	}
	if challenges == 0 {
		return fmt.Errorf("no challenges found in %s", catalogChallengesDir)
	}
	fmt.Fprintln(out, "catalog OK")
	return nil
}
