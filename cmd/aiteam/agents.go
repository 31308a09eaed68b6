package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/m4xw311/aiteam/config"
	"github.com/m4xw311/aiteam/errors"
	"github.com/m4xw311/aiteam/llm"
)

func newAgentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List the configured agent profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return errors.Wrapf(err, "error loading configuration")
			}
			return printAgents(cmd.OutOrStdout(), cfg, config.EnvCredentials{})
		},
	}
}

// printAgents lists profiles with a marker for the active one and whether a
// key is available.
func printAgents(w io.Writer, cfg *config.Config, creds config.CredentialStore) error {
	if len(cfg.Agents) == 0 {
		_, err := fmt.Fprintf(w, "No agents configured. Add some to %s/config.yaml.\n", config.Dir)
		return err
	}
	active, _ := cfg.Agent("")

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tNAME\tMODEL\tPROVIDER\tKEY")
	for _, p := range cfg.Agents {
		marker := ""
		if p.ID == active.ID {
			marker = "*"
		}
		provider := p.Provider
		if provider == "" {
			provider = llm.ProviderOpenAI
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", marker, p.ID, p.Name, p.Model, provider, keyStatus(p, creds))
	}
	return tw.Flush()
}

func keyStatus(p config.AgentProfile, creds config.CredentialStore) string {
	if !llm.RequiresCredential(p.Provider) {
		return "not needed"
	}
	key, err := creds.Credential(p.ID)
	if err != nil || key == "" {
		return "missing"
	}
	return "set"
}
