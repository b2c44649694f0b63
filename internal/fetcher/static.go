package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/cuongbtq/recipe-import/internal/recipe"
)

// StaticFetcher serves posts from memory. Unknown ids fail with NOT_FOUND.
type StaticFetcher struct {
	mu       sync.Mutex
	posts    map[string]recipe.RawContent
	failures map[string]*FetchError
	calls    map[string]int
}

// NewStaticFetcher creates a fetcher over the given posts, keyed by post id
func NewStaticFetcher(posts map[string]recipe.RawContent) *StaticFetcher {
	f := &StaticFetcher{
		posts:    make(map[string]recipe.RawContent, len(posts)),
		failures: make(map[string]*FetchError),
		calls:    make(map[string]int),
	}
	for id, p := range posts {
		p.PostID = id
		f.posts[id] = p
	}
	return f
}

// LoadStaticFetcher reads posts from a JSON file holding an array of post
// documents, the same shape the HTTP source serves.
func LoadStaticFetcher(path string) (*StaticFetcher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures: %w", err)
	}

	var docs []postResponse
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("failed to parse fixtures: %w", err)
	}

	posts := make(map[string]recipe.RawContent, len(docs))
	for _, d := range docs {
		posts[d.ID] = recipe.RawContent{
			Title:      d.Title,
			Caption:    d.Caption,
			Structured: d.Recipe,
			SourceURL:  d.URL,
			Author:     d.Author,
		}
	}
	return NewStaticFetcher(posts), nil
}

// PostIDs returns the ids of every known post in sorted order
func (f *StaticFetcher) PostIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]string, 0, len(f.posts))
	for id := range f.posts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Fail makes every fetch of postID return err
func (f *StaticFetcher) Fail(postID string, err *FetchError) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[postID] = err
}

// Calls returns how many times postID was fetched
func (f *StaticFetcher) Calls(postID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[postID]
}

func (f *StaticFetcher) Fetch(ctx context.Context, postID string) (*recipe.RawContent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[postID]++

	if err := ctx.Err(); err != nil {
		return nil, &FetchError{Code: CodeTimeout, Message: "fetch canceled", Err: err}
	}
	if err, ok := f.failures[postID]; ok {
		return nil, err
	}
	post, ok := f.posts[postID]
	if !ok {
		return nil, &FetchError{Code: CodeNotFound, Message: fmt.Sprintf("post %s not found", postID)}
	}
	return &post, nil
}
