package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/recipe-import/internal/api/dto"
	"github.com/cuongbtq/recipe-import/internal/recipe"
)

func runApp(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	app := NewApp()
	app.Writer = &out
	app.ErrWriter = &out
	app.Reader = strings.NewReader(stdin)

	err := app.Run(context.Background(), append([]string{"importctl"}, args...))
	return out.String(), err
}

func TestParseCommand(t *testing.T) {
	out, err := runApp(t, "", "parse", "--file", "testdata/caption.txt", "--post-id", "p9")
	require.NoError(t, err)

	var draft recipe.Draft
	require.NoError(t, json.Unmarshal([]byte(out), &draft))
	assert.Equal(t, "Garlic Butter Pasta", draft.Title)
	assert.Equal(t, "p9", draft.SourcePostID)
	require.Len(t, draft.Components, 1)
	assert.Len(t, draft.Components[0].Ingredients, 3)
	assert.Len(t, draft.Components[0].Steps, 2)
}

func TestParseCommand_Stdin(t *testing.T) {
	out, err := runApp(t, "Toast\nIngredients:\n- 1 slice bread\n", "parse", "--file", "-")
	require.NoError(t, err)
	assert.Contains(t, out, `"title": "Toast"`)

	_, err = runApp(t, "just words, nothing else", "parse", "--file", "-")
	assert.Error(t, err)
}

func TestStepsCommand(t *testing.T) {
	out, err := runApp(t, "", "steps", "--title", "Roasted Carrots", "--ingredient", "500 g carrots", "--ingredient", "2 tbsp olive oil")
	require.NoError(t, err)

	var res dto.GenerateStepsResponse
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.NotEmpty(t, res.Steps)
	for i, s := range res.Steps {
		assert.Equal(t, i+1, s.Order)
	}
	assert.Contains(t, res.Steps[0].Instruction, "carrots")

	_, err = runApp(t, "", "steps")
	assert.Error(t, err, "title is required")
}

func TestRunCommand(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantStatus string
		wantOK     int
		wantFailed int
	}{
		{
			name:       "every fixture post",
			args:       []string{"run", "--fixtures", "testdata/posts.json"},
			wantStatus: "COMPLETED",
			wantOK:     2,
		},
		{
			name:       "unknown post fails its item",
			args:       []string{"run", "--fixtures", "testdata/posts.json", "--concurrency", "1", "p1", "missing"},
			wantStatus: "COMPLETED_WITH_ERRORS",
			wantOK:     1,
			wantFailed: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runApp(t, "", tt.args...)
			require.NoError(t, err)

			var report runReport
			require.NoError(t, json.Unmarshal([]byte(out), &report))
			assert.Equal(t, tt.wantStatus, report.Job.Status)
			assert.Equal(t, tt.wantOK, report.Job.SuccessfulPosts)
			assert.Equal(t, tt.wantFailed, report.Job.FailedPosts)
			assert.Equal(t, 0, report.Job.RemainingPosts)
			require.Len(t, report.Items, tt.wantOK+tt.wantFailed)
			for i, it := range report.Items {
				assert.Equal(t, i+1, it.Position)
			}
		})
	}
}

func TestRunCommand_MissingFixtures(t *testing.T) {
	_, err := runApp(t, "", "run", "--fixtures", "testdata/nope.json")
	assert.Error(t, err)
}

func TestSubmitAndStatusCommands(t *testing.T) {
	var submitted dto.CreateImportRequest
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/imports", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&submitted))
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(dto.CreateImportResponse{JobID: "job-1", Status: "PENDING", TotalPosts: len(submitted.PostIDs)})
	})
	mux.HandleFunc("GET /api/v1/imports/job-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(dto.JobStatusDTO{ID: "job-1", Status: "COMPLETED", TotalPosts: 3, ProcessedPosts: 3, SuccessfulPosts: 3})
	})
	mux.HandleFunc("GET /api/v1/imports/job-1/items", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cursor") == "" {
			json.NewEncoder(w).Encode(dto.ListItemsResponse{
				Items:      []dto.ItemDTO{{PostID: "a", Position: 1}, {PostID: "b", Position: 2}},
				NextCursor: "next",
			})
			return
		}
		json.NewEncoder(w).Encode(dto.ListItemsResponse{Items: []dto.ItemDTO{{PostID: "c", Position: 3}}})
	})
	mux.HandleFunc("GET /api/v1/imports/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"job not found"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	out, err := runApp(t, "", "submit", "--api", srv.URL, "a", "b", "c")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, submitted.PostIDs)
	assert.Contains(t, out, `"job_id": "job-1"`)

	out, err = runApp(t, "", "status", "--api", srv.URL, "--items", "job-1")
	require.NoError(t, err)
	var report runReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "COMPLETED", report.Job.Status)
	assert.Equal(t, "job-1", report.Job.ID)
	require.Len(t, report.Items, 3)
	assert.Equal(t, "c", report.Items[2].PostID)

	_, err = runApp(t, "", "status", "--api", srv.URL, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job not found")

	_, err = runApp(t, "", "submit", "--api", srv.URL)
	assert.Error(t, err)
}
