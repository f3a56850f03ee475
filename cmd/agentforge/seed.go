package main

import (
	"fmt"
	"slices"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hupe1980/agentforge"
	"github.com/hupe1980/agentforge/definition"
	"github.com/hupe1980/agentforge/docstore"
)

var seedForce bool

var seedCmd = &cobra.Command{
	Use:   "seed <file>",
	Short: "Load a YAML seed file into the document store",
	Args:  cobra.ExactArgs(1),
	RunE:  runSeed,
}

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate the agent definitions of a YAML seed file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := docstore.LoadSeedFile(args[0])
		if err != nil {
			return err
		}

		if n := reportInvalid(f); n > 0 {
			return fmt.Errorf("%d invalid agent definition(s)", n)
		}

		printStatus("✓", fmt.Sprintf("%d agent definition(s) valid", len(f.Agents)), color.FgGreen)
		return nil
	},
}

func init() {
	seedCmd.Flags().BoolVar(&seedForce, "force", false, "Seed even when agent definitions are invalid")
}

func runSeed(cmd *cobra.Command, args []string) error {
	f, err := docstore.LoadSeedFile(args[0])
	if err != nil {
		return err
	}

	if n := reportInvalid(f); n > 0 && !seedForce {
		return fmt.Errorf("%d invalid agent definition(s), use --force to seed anyway", n)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	docs, err := agentforge.OpenStore(cfg.Store)
	if err != nil {
		return err
	}
	defer docs.Close()

	n, err := docstore.Seed(cmd.Context(), docs, f)
	if err != nil {
		return err
	}

	printStatus("✓", fmt.Sprintf("seeded %d document(s) into %s store", n, cfg.Store.Driver), color.FgGreen)
	return nil
}

// reportInvalid prints every invalid agent definition of f and returns how
// many agents failed.
func reportInvalid(f *docstore.SeedFile) int {
	ids := make([]string, 0, len(f.Agents))
	for id := range f.Agents {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	invalid := 0
	for _, id := range ids {
		errs := definition.ValidateTree(f.Agents[id])
		if len(errs) == 0 {
			continue
		}
		invalid++
		for _, err := range errs {
			printStatus("✗", fmt.Sprintf("agents/%s %v", id, err), color.FgRed)
		}
	}

	return invalid
}
