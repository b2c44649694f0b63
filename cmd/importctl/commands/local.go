package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cuongbtq/recipe-import/internal/api/dto"
	"github.com/cuongbtq/recipe-import/internal/fetcher"
	"github.com/cuongbtq/recipe-import/internal/importer"
	"github.com/cuongbtq/recipe-import/internal/importer/domain"
	"github.com/cuongbtq/recipe-import/internal/importer/storage"
	"github.com/cuongbtq/recipe-import/internal/recipe"
	"github.com/cuongbtq/recipe-import/internal/recipe/store"
	"github.com/cuongbtq/recipe-import/internal/worker"
	"github.com/cuongbtq/recipe-import/shared/logger"
	"github.com/urfave/cli/v3"
)

// ParseAction prints the draft parsed from a caption file
func ParseAction(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("file")

	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(input(cmd))
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("failed to read caption: %w", err)
	}

	draft, err := recipe.NewParser().Parse(&recipe.RawContent{
		PostID:  cmd.String("post-id"),
		Caption: string(data),
	})
	if err != nil {
		return err
	}
	return printJSON(cmd, draft)
}

// StepsAction prints generated steps for a title and ingredient lines
func StepsAction(ctx context.Context, cmd *cli.Command) error {
	var ingredients []recipe.Ingredient
	for _, line := range cmd.StringSlice("ingredient") {
		ing, ok := recipe.ParseIngredientLine(line)
		if !ok {
			return fmt.Errorf("cannot parse ingredient %q", line)
		}
		ingredients = append(ingredients, ing)
	}

	return printJSON(cmd, dto.GenerateStepsResponse{
		Steps: recipe.GenerateSteps(cmd.String("title"), ingredients),
	})
}

type runReport struct {
	Job   dto.JobStatusDTO `json:"job"`
	Items []dto.ItemDTO    `json:"items"`
}

// RunAction imports posts from a fixtures file through the full pipeline
// using in-memory stores. Without arguments every fixture post is imported.
func RunAction(ctx context.Context, cmd *cli.Command) error {
	posts, err := fetcher.LoadStaticFetcher(cmd.String("fixtures"))
	if err != nil {
		return err
	}

	postIDs := cmd.Args().Slice()
	if len(postIDs) == 0 {
		postIDs = posts.PostIDs()
	}

	log := logger.NewDiscard().Logger
	jobs := storage.NewMemoryStore()
	recipes := store.NewMemoryRepository()

	pool := worker.NewPool(&worker.PoolConfig{
		Logger:  log,
		Store:   jobs,
		Fetcher: posts,
		Saver:   recipes,
	})
	dispatcher := importer.NewInProcessDispatcher(ctx, pool, cmd.Int("concurrency"), log)
	orchestrator := importer.NewOrchestrator(&importer.Config{
		Logger:     log,
		Jobs:       jobs,
		Recipes:    recipes,
		Dispatcher: dispatcher,
	})

	res, err := orchestrator.SubmitBulkImport(ctx, postIDs)
	if err != nil {
		return err
	}
	dispatcher.Wait()

	status, err := orchestrator.GetJobStatus(ctx, res.JobID)
	if err != nil {
		return err
	}
	items, err := orchestrator.ListJobItems(ctx, res.JobID, domain.ItemFilter{})
	if err != nil {
		return err
	}

	report := runReport{Job: dto.NewJobStatusDTO(status), Items: make([]dto.ItemDTO, len(items))}
	for i, it := range items {
		report.Items[i] = dto.NewItemDTO(it)
	}
	if err := printJSON(cmd, report); err != nil {
		return err
	}

	if status.Status == domain.JobStatusFailed {
		return fmt.Errorf("import job failed: %s", strings.TrimSpace(status.ErrorMessage))
	}
	return nil
}
