// Package githubsync refreshes a Project's cached GitHub open-issue and
// open-PR counts (spec §6: "enabling triggers an immediate background
// sync"). It talks to the GitHub REST API directly over net/http — the
// exercised surface (two paginated search counts) is too small to justify
// an API client library, and no example repo in the pack wires one.
package githubsync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/project"
	"github.com/davidrudduck/vk-swarm-sub003/internal/httpclient"
)

// maxSearchResponseBytes bounds how much of a GitHub search response this
// package will buffer; the two fields it decodes never warrant more.
const maxSearchResponseBytes = 1 << 20

// Syncer fetches open issue/PR counts for a project's linked GitHub repo
// and records them via project.Store.
type Syncer struct {
	httpClient *http.Client
	store      project.Store
	baseURL    string
}

// New builds a Syncer. baseURL defaults to the public GitHub API.
func New(store project.Store, httpClient *http.Client, baseURL string) *Syncer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &Syncer{httpClient: httpClient, store: store, baseURL: baseURL}
}

type searchResult struct {
	TotalCount int `json:"total_count"`
}

// SyncOnce fetches current open-issue and open-PR counts for owner/repo and
// persists them on projectID. GitHub's search API counts issues and pull
// requests together, so the issue query is restricted with `is:issue`.
func (s *Syncer) SyncOnce(ctx context.Context, projectID, owner, repo string) error {
	issues, err := s.searchCount(ctx, fmt.Sprintf("repo:%s/%s is:issue is:open", owner, repo))
	if err != nil {
		return fmt.Errorf("github sync: count issues: %w", err)
	}
	prs, err := s.searchCount(ctx, fmt.Sprintf("repo:%s/%s is:pr is:open", owner, repo))
	if err != nil {
		return fmt.Errorf("github sync: count prs: %w", err)
	}
	return s.store.UpdateGitHubSyncStats(ctx, projectID, issues, prs, time.Now().UTC())
}

func (s *Syncer) searchCount(ctx context.Context, query string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/search/issues", nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	q := req.URL.Query()
	q.Set("q", query)
	q.Set("per_page", "1")
	req.URL.RawQuery = q.Encode()

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("github search returned status %d", resp.StatusCode)
	}
	body, err := httpclient.ReadAllWithLimit(resp.Body, maxSearchResponseBytes)
	if err != nil {
		return 0, fmt.Errorf("read github search response: %w", err)
	}
	var result searchResult
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, err
	}
	return result.TotalCount, nil
}
