package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lisahligono/semantique/internal/cli/output"
	"github.com/lisahligono/semantique/internal/engine"
)

// NewDepsCommand creates the deps command.
func NewDepsCommand() *cobra.Command {
	var (
		upstream bool
		focus    string
	)

	cmd := &cobra.Command{
		Use:   "deps [recipe]",
		Short: "Show the dependency levels of a recipe",
		Long: `Group the results of a recipe into levels: every result only depends on
results of earlier levels. Results of one level are evaluated concurrently
with --parallel.

With --result, only that result, the results it depends on and the results
depending on it are shown.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeps(cmd, args, upstream, focus)
		},
	}

	cmd.Flags().BoolVar(&upstream, "upstream", false, "Also list the concepts and layers each result depends on")
	cmd.Flags().StringVar(&focus, "result", "", "Only show the dependencies of this result")
	return cmd
}

func runDeps(cmd *cobra.Command, args []string, upstream bool, focus string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	if err := useRecipeArg(cc, args); err != nil {
		return err
	}

	project, err := cc.LoadProject()
	if err != nil {
		return err
	}
	eng, err := cc.PlanningEngine(project)
	if err != nil {
		return err
	}

	plan := eng.Plan(project.Recipe)
	if focus != "" {
		if plan, err = plan.Focus(focus); err != nil {
			return err
		}
	}
	levels, err := plan.ResultLevels()
	if err != nil {
		return fmt.Errorf("failed to get dependency levels: %w", err)
	}

	r := cc.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return depsJSON(r, plan, levels, upstream)
	case output.ModeMarkdown:
		return depsMarkdown(r, plan, levels, upstream)
	default:
		return depsText(r, plan, levels, upstream)
	}
}

// depsText outputs levels in styled text format.
func depsText(r *output.Renderer, plan *engine.Plan, levels [][]string, upstream bool) error {
	styles := r.Styles()
	r.Header(1, "Dependency Levels")

	for i, level := range levels {
		r.Println(styles.Header2.Render(fmt.Sprintf("Level %d:", i)))
		for _, name := range level {
			r.Printf("  %s\n", styles.Name.Render(name))
			if deps := plan.Dependencies(name); len(deps) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("depends on:"), strings.Join(deps, ", "))
			}
			if users := plan.UsedBy(name); len(users) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("used by:"), strings.Join(users, ", "))
			}
			if upstream {
				if up := plan.Upstream(name); len(up) > 0 {
					r.Printf("    %s %s\n", styles.Muted.Render("upstream:"), strings.Join(up, ", "))
				}
			}
		}
		r.Println("")
	}

	r.Println(styles.Muted.Render(fmt.Sprintf("Total: %d levels, %d nodes, %d edges", len(levels), plan.Graph.NodeCount(), plan.Graph.EdgeCount())))
	return nil
}

// depsMarkdown outputs levels in markdown format.
func depsMarkdown(r *output.Renderer, plan *engine.Plan, levels [][]string, upstream bool) error {
	r.Println(output.FormatHeader(1, "Dependency Levels"))
	r.Println("")

	for i, level := range levels {
		r.Println(output.FormatHeader(2, fmt.Sprintf("Level %d", i)))
		for _, name := range level {
			r.Printf("- %s\n", name)
			if deps := plan.Dependencies(name); len(deps) > 0 {
				r.Printf("  - depends on: %s\n", strings.Join(deps, ", "))
			}
			if users := plan.UsedBy(name); len(users) > 0 {
				r.Printf("  - used by: %s\n", strings.Join(users, ", "))
			}
			if upstream {
				if up := plan.Upstream(name); len(up) > 0 {
					r.Printf("  - upstream: %s\n", strings.Join(up, ", "))
				}
			}
		}
		r.Println("")
	}

	r.Println(output.FormatHeader(2, "Summary"))
	r.Println(output.FormatKeyValue("Levels", fmt.Sprintf("%d", len(levels))))
	r.Println(output.FormatKeyValue("Nodes", fmt.Sprintf("%d", plan.Graph.NodeCount())))
	r.Println(output.FormatKeyValue("Edges", fmt.Sprintf("%d", plan.Graph.EdgeCount())))
	return nil
}

// depsJSON outputs levels in JSON format.
func depsJSON(r *output.Renderer, plan *engine.Plan, levels [][]string, upstream bool) error {
	out := output.DepsOutput{Levels: make([]output.DepsLevel, 0, len(levels))}
	for i, level := range levels {
		dl := output.DepsLevel{Level: i, Results: make([]output.DepsNode, 0, len(level))}
		for _, name := range level {
			node := output.DepsNode{
				Name:      name,
				DependsOn: plan.Dependencies(name),
				UsedBy:    plan.UsedBy(name),
			}
			if upstream {
				node.Upstream = plan.Upstream(name)
			}
			dl.Results = append(dl.Results, node)
		}
		out.Levels = append(out.Levels, dl)
	}
	return r.JSON(out)
}
