package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lisahligono/semantique/internal/cli/output"
)

// ErrInvalidRecipe is returned when static validation finds problems.
var ErrInvalidRecipe = errors.New("recipe is invalid")

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [recipe]",
		Short: "Check a recipe without fetching data",
		Long: `Check that every concept and layer a recipe references exists in the
mapping and layout, that every referenced result is defined, and that the
references do not form a cycle. No data is fetched.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
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
	var problems []string
	for _, e := range plan.Missing {
		problems = append(problems, e.Error())
	}
	if plan.Cycle != nil {
		problems = append(problems, "dependency cycle: "+strings.Join(plan.Cycle, " -> "))
	}

	r := cc.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		if err := r.JSON(output.ValidateOutput{
			Valid:   len(problems) == 0,
			Results: project.Recipe.Len(),
			Errors:  problems,
			Cycle:   plan.Cycle,
		}); err != nil {
			return err
		}
	default:
		for _, p := range problems {
			r.Error(p)
		}
		if len(problems) == 0 {
			r.Success(fmt.Sprintf("Recipe is valid: %d results, %d dependencies", project.Recipe.Len(), plan.Graph.EdgeCount()))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %d problems", ErrInvalidRecipe, len(problems))
	}
	return nil
}
