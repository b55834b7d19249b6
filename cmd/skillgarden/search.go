package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillgarden/pkg/client"
	"github.com/jingkaihe/skillgarden/pkg/presenter"
	"github.com/jingkaihe/skillgarden/pkg/service"
	"github.com/jingkaihe/skillgarden/pkg/skills"
)

// OutputConfig controls how skill commands print their results
type OutputConfig struct {
	JSON              bool
	ShowContent       bool
	IncludeReferences bool
	// Server is the base URL of a running skillgarden server to query instead
	// of the sources
	Server string
}

func addOutputFlags(cmd *cobra.Command, showContentDefault bool) {
	cmd.Flags().Bool("json", false, "Print the result as JSON")
	cmd.Flags().Bool("content", showContentDefault, "Print the SKILL.md body")
	cmd.Flags().Bool("references", false, "Also fetch reference documents next to the SKILL.md")
}

func addServerFlag(cmd *cobra.Command) {
	cmd.Flags().String("server", "", "Query a running skillgarden server at this URL instead of the sources")
}

func getOutputConfigFromFlags(cmd *cobra.Command) OutputConfig {
	var config OutputConfig
	if v, err := cmd.Flags().GetBool("json"); err == nil {
		config.JSON = v
	}
	if v, err := cmd.Flags().GetBool("content"); err == nil {
		config.ShowContent = v
	}
	if v, err := cmd.Flags().GetBool("references"); err == nil {
		config.IncludeReferences = v
	}
	if v, err := cmd.Flags().GetString("server"); err == nil {
		config.Server = v
	}
	return config
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search for skills",
	Long: `Search every configured source for skills matching the query, fetch their
SKILL.md documents and print them ranked by relevance.`,
	Example: `  skillgarden search react performance
  skillgarden search "api testing" --limit 3 --content
  skillgarden search terraform --json
  skillgarden search terraform --server http://localhost:8000`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		runSearchCommand(cmd.Context(), strings.Join(args, " "), limit, getOutputConfigFromFlags(cmd))
	},
}

var getCmd = &cobra.Command{
	Use:   "get <owner/repo> <skill-id>",
	Short: "Get a specific skill",
	Long:  `Fetch one skill directly from its GitHub repository, bypassing search.`,
	Example: `  skillgarden get anthropics/skills frontend-design
  skillgarden get vercel-labs/agent-skills react-best-practices --references`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runGetCommand(cmd.Context(), args[0], args[1], getOutputConfigFromFlags(cmd))
	},
}

var addCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Resolve a skill by name and print its latest content",
	Long: `Resolve a skill by plain name, returning the best search match, or by its
owner/repo/skill path, and print its content for context injection.`,
	Example: `  skillgarden add react-best-practices
  skillgarden add anthropics/skills/frontend-design`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runAddCommand(cmd.Context(), args[0], getOutputConfigFromFlags(cmd))
	},
}

func init() {
	searchCmd.Flags().Int("limit", service.DefaultLimit, "Maximum number of results")
	addOutputFlags(searchCmd, false)
	addOutputFlags(getCmd, true)
	addOutputFlags(addCmd, true)
	addServerFlag(searchCmd)
	addServerFlag(getCmd)
}

func runSearchCommand(ctx context.Context, query string, limit int, out OutputConfig) {
	if limit < 1 {
		presenter.Error(errors.Errorf("limit must be positive, got %d", limit), "invalid arguments")
		os.Exit(1)
	}

	req := skills.SearchRequest{
		Query:             query,
		Limit:             limit,
		IncludeContent:    true,
		IncludeReferences: out.IncludeReferences,
	}

	if out.Server != "" {
		resp, err := newRemoteClient(out.Server).Search(ctx, req)
		if err != nil {
			presenter.Error(err, "search failed")
			os.Exit(1)
		}
		printSearch(resp, out)
		return
	}

	svc, _, err := newService(ctx)
	if err != nil {
		presenter.Error(err, "failed to start")
		os.Exit(1)
	}
	defer closeService(ctx, svc)

	resp, err := svc.Search(ctx, req)
	if err != nil {
		presenter.Error(err, "search failed")
		os.Exit(1)
	}
	printSearch(resp, out)
}

func printSearch(resp *skills.SearchResponse, out OutputConfig) {
	if out.JSON {
		printJSON(resp)
		return
	}
	presenter.SkillList(resp, out.ShowContent)
}

func runGetCommand(ctx context.Context, source, skillID string, out OutputConfig) {
	if !strings.Contains(source, "/") {
		presenter.Error(errors.Errorf("invalid source format '%s', expected owner/repo", source), "invalid arguments")
		os.Exit(1)
	}

	if out.Server != "" {
		skill, err := newRemoteClient(out.Server).GetSkill(ctx, source, skillID, client.GetSkillOptions{IncludeReferences: out.IncludeReferences})
		if err != nil {
			presenter.Error(err, "get failed")
			os.Exit(1)
		}
		printSkill(skill, out)
		return
	}

	svc, _, err := newService(ctx)
	if err != nil {
		presenter.Error(err, "failed to start")
		os.Exit(1)
	}
	defer closeService(ctx, svc)

	skill, ok := svc.GetSkill(ctx, source, skillID, false, out.IncludeReferences)
	if !ok {
		presenter.Error(&service.NotFoundError{Name: source + "/" + skillID, Path: true}, "")
		os.Exit(1)
	}
	printSkill(skill, out)
}

func runAddCommand(ctx context.Context, name string, out OutputConfig) {
	svc, _, err := newService(ctx)
	if err != nil {
		presenter.Error(err, "failed to start")
		os.Exit(1)
	}
	defer closeService(ctx, svc)

	skill, err := svc.AddSkill(ctx, name, out.IncludeReferences)
	if err != nil {
		presenter.Error(err, "")
		os.Exit(1)
	}
	printSkill(skill, out)
}

func newRemoteClient(server string) *client.Client {
	c, err := client.New(server)
	if err != nil {
		presenter.Error(err, "invalid --server")
		os.Exit(1)
	}
	return c
}

func printSkill(skill *skills.Skill, out OutputConfig) {
	if out.JSON {
		printJSON(skill)
		return
	}
	presenter.SkillCard(skill, out.ShowContent)
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		presenter.Error(err, "failed to encode JSON")
		os.Exit(1)
	}
	fmt.Println(string(b))
}
