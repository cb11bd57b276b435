package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"campaign-console/internal/campaign"
	"campaign-console/internal/segment"
)

// draftFlags are the form inputs shared by the composer commands.
type draftFlags struct {
	name        string
	description string
	rulesFile   string
	logic       string
	sets        []string
}

func (f *draftFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.name, "name", "n", "", "campaign name")
	cmd.Flags().StringVarP(&f.description, "description", "d", "", "campaign description")
	cmd.Flags().StringVarP(&f.rulesFile, "rules", "r", "", "YAML or JSON segment rules file")
	cmd.Flags().StringVar(&f.logic, "logic", "", "combine predicates with AND or OR")
	cmd.Flags().StringArrayVar(&f.sets, "set", nil, `predicate override, e.g. --set "spend>5000" (repeatable)`)
}

// composer builds a view from the flags; the caller must Close it.
func (a *app) composer(cmd *cobra.Command, f *draftFlags) (*campaign.Composer, error) {
	c := campaign.NewComposer(cmd.Context(), a.client)
	if err := c.SetDetails(f.name, f.description); err != nil {
		c.Close()
		return nil, err
	}
	if f.rulesFile != "" {
		rs, err := loadRules(f.rulesFile)
		if err != nil {
			c.Close()
			return nil, err
		}
		if err := c.ReplaceAll(rs); err != nil {
			c.Close()
			return nil, err
		}
	}
	if f.logic != "" {
		if err := c.SetLogic(segment.Logic(strings.ToUpper(f.logic))); err != nil {
			c.Close()
			return nil, err
		}
	}
	for _, expr := range f.sets {
		field, u, err := parseSet(expr)
		if err == nil {
			err = c.SetPredicate(field, u)
		}
		if err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

func printStatus(w io.Writer, s campaign.Status) {
	if line := s.String(); line != "" {
		fmt.Fprintln(w, line)
	}
}

func printList(w io.Writer, items []string) {
	for i, item := range items {
		fmt.Fprintf(w, "%d. %s\n", i+1, item)
	}
}

func newPreviewCmd(a *app) *cobra.Command {
	f := &draftFlags{}
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show how many customers the segment rules select",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.composer(cmd, f)
			if err != nil {
				return err
			}
			defer c.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "Rules:", c.Rules().Describe())
			_, err = c.PreviewAudience(cmd.Context())
			printStatus(cmd.OutOrStdout(), c.Status())
			return err
		},
	}
	f.register(cmd)
	return cmd
}

func newCreateCmd(a *app) *cobra.Command {
	f := &draftFlags{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a campaign from a name, description and segment rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.composer(cmd, f)
			if err != nil {
				return err
			}
			defer c.Close()
			created, err := c.CreateCampaign(cmd.Context())
			printStatus(cmd.OutOrStdout(), c.Status())
			if err != nil {
				return err
			}
			if created.ID != "" {
				fmt.Fprintln(cmd.OutOrStdout(), "ID:", created.ID)
			}
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newParseCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "parse <description>",
		Short: "Turn a plain-language audience description into segment rules",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := campaign.NewComposer(cmd.Context(), a.client)
			defer c.Close()
			rs, err := c.ParseSegment(cmd.Context(), strings.Join(args, " "))
			printStatus(cmd.ErrOrStderr(), c.Status())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rs.Serialize())
			}
			out, err := renderRules(rs)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the rules as JSON instead of YAML")
	return cmd
}

func newSuggestCmd(a *app) *cobra.Command {
	f := &draftFlags{}
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Ask the AI for message suggestions for a campaign",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.composer(cmd, f)
			if err != nil {
				return err
			}
			defer c.Close()
			msgs, err := c.FetchSuggestions(cmd.Context())
			printStatus(cmd.ErrOrStderr(), c.Status())
			if err != nil {
				return err
			}
			printList(cmd.OutOrStdout(), msgs)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newTagsCmd(a *app) *cobra.Command {
	f := &draftFlags{}
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "Ask the AI for tags describing a campaign",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.composer(cmd, f)
			if err != nil {
				return err
			}
			defer c.Close()
			tags, err := c.FetchTags(cmd.Context())
			printStatus(cmd.ErrOrStderr(), c.Status())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(tags, ", "))
			return nil
		},
	}
	f.register(cmd)
	return cmd
}
