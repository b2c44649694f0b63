package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuongbtq/recipe-import/internal/api/dto"
	"github.com/urfave/cli/v3"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// SubmitAction posts the given ids to the API service
func SubmitAction(ctx context.Context, cmd *cli.Command) error {
	postIDs := cmd.Args().Slice()
	if len(postIDs) == 0 {
		return fmt.Errorf("at least one post id is required")
	}

	var res dto.CreateImportResponse
	if err := callAPI(ctx, http.MethodPost, cmd.String("api"), "/api/v1/imports", dto.CreateImportRequest{PostIDs: postIDs}, &res); err != nil {
		return err
	}
	return printJSON(cmd, res)
}

// StatusAction prints the status of a job, and optionally all of its items
func StatusAction(ctx context.Context, cmd *cli.Command) error {
	jobID := cmd.Args().First()
	if jobID == "" {
		return fmt.Errorf("job id is required")
	}
	base := cmd.String("api")

	var status dto.JobStatusDTO
	if err := callAPI(ctx, http.MethodGet, base, "/api/v1/imports/"+url.PathEscape(jobID), nil, &status); err != nil {
		return err
	}
	if !cmd.Bool("items") {
		return printJSON(cmd, status)
	}

	report := runReport{Job: status}
	cursor := ""
	for {
		var page dto.ListItemsResponse
		path := "/api/v1/imports/" + url.PathEscape(jobID) + "/items?page_size=200&cursor=" + url.QueryEscape(cursor)
		if err := callAPI(ctx, http.MethodGet, base, path, nil, &page); err != nil {
			return err
		}
		report.Items = append(report.Items, page.Items...)
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	return printJSON(cmd, report)
}

func callAPI(ctx context.Context, method, base, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(base, "/")+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to API service failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("API returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("API returned %d", resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
