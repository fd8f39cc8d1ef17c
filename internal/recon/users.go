package recon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/tbckr/posture/internal/validate"
)

// Confidence levels of a discovered account.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// usersNote is attached to every user discovery result.
const usersNote = "Passive third-party user discovery; validate association before action."

// User is one public account that may belong to the organisation.
type User struct {
	Handle     string   `json:"handle"`
	ProfileURL string   `json:"profile_url"`
	Type       string   `json:"type"`
	Score      *float64 `json:"score,omitempty"`
	Source     string   `json:"source"`
	Query      string   `json:"query"`
	Confidence string   `json:"confidence"`
}

// UserSource is one public account search.
type UserSource struct {
	Name  string
	URL   func(term string, maxResults int) string
	Parse func(body []byte) ([]User, error)
}

// DefaultUserSources are queried for every search term by PassiveUsers.
var DefaultUserSources = []UserSource{
	{Name: "github_search", URL: githubUsersURL, Parse: parseGitHubUsers},
	{Name: "gitlab_search", URL: gitlabUsersURL, Parse: parseGitLabUsers},
	{Name: "keybase_autocomplete", URL: keybaseUsersURL, Parse: parseKeybaseUsers},
}

func githubUsersURL(term string, maxResults int) string {
	return fmt.Sprintf("https://api.github.com/search/users?q=%s&per_page=%d", url.QueryEscape(term), maxResults)
}

func gitlabUsersURL(term string, maxResults int) string {
	return fmt.Sprintf("https://gitlab.com/api/v4/users?search=%s&per_page=%d", url.QueryEscape(term), maxResults)
}

func keybaseUsersURL(term string, _ int) string {
	return "https://keybase.io/_/api/1.0/user/autocomplete.json?q=" + url.QueryEscape(term)
}

func parseGitHubUsers(body []byte) ([]User, error) {
	var doc struct {
		Items []struct {
			Login   string   `json:"login"`
			HTMLURL string   `json:"html_url"`
			Type    string   `json:"type"`
			Score   *float64 `json:"score"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	users := make([]User, 0, len(doc.Items))
	for _, it := range doc.Items {
		users = append(users, User{Handle: it.Login, ProfileURL: it.HTMLURL, Type: it.Type, Score: it.Score})
	}
	return users, nil
}

func parseGitLabUsers(body []byte) ([]User, error) {
	var rows []struct {
		Username string `json:"username"`
		WebURL   string `json:"web_url"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, err
	}
	users := make([]User, 0, len(rows))
	for _, r := range rows {
		users = append(users, User{Handle: r.Username, ProfileURL: r.WebURL, Type: "User"})
	}
	return users, nil
}

func parseKeybaseUsers(body []byte) ([]User, error) {
	var doc struct {
		Completions []struct {
			Components struct {
				Username struct {
					Val string `json:"val"`
				} `json:"username"`
			} `json:"components"`
		} `json:"completions"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	var users []User
	for _, c := range doc.Completions {
		handle := c.Components.Username.Val
		if handle == "" {
			continue
		}
		users = append(users, User{Handle: handle, ProfileURL: "https://keybase.io/" + handle, Type: "User"})
	}
	return users, nil
}

// UsersResult is the outcome of the passive users module.
type UsersResult struct {
	Users           []User         `json:"users"`
	Queries         []string       `json:"queries"`
	Sources         []string       `json:"sources"`
	PerSourceCounts map[string]int `json:"per_source_counts"`
	Warnings        []string       `json:"warnings,omitempty"`
	Note            string         `json:"note"`
}

// UserQueryTerms returns the domain, its first label and, when company is set, the company
// name as written, without spaces and hyphenated, deduplicated in that order.
func UserQueryTerms(domain, company string) []string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	root, _, _ := strings.Cut(domain, ".")
	terms := []string{domain, root}
	if c := strings.TrimSpace(company); c != "" {
		lower := strings.ToLower(c)
		terms = append(terms, c, strings.ReplaceAll(lower, " ", ""), strings.ReplaceAll(lower, " ", "-"))
	}
	out := make([]string, 0, len(terms))
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Confidence rates how likely handle belongs to domain: high for an exact match of the
// query or domain, medium when it contains the query or the domain's first label.
func Confidence(handle, query, domain string) string {
	h, q, d := strings.ToLower(handle), strings.ToLower(query), strings.ToLower(domain)
	root, _, _ := strings.Cut(d, ".")
	switch {
	case h == q || h == d:
		return ConfidenceHigh
	case strings.Contains(h, q) || strings.Contains(h, root):
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

var confidenceRank = map[string]int{ConfidenceHigh: 0, ConfidenceMedium: 1, ConfidenceLow: 2}

// PassiveUsers searches DefaultUserSources for accounts named after domain or company.
func PassiveUsers(ctx context.Context, http HTTPClient, cache Cache, domain, company string, maxResults int) (*UsersResult, error) {
	return PassiveUsersFrom(ctx, http, cache, domain, company, maxResults, DefaultUserSources)
}

// PassiveUsersFrom is PassiveUsers over an explicit source list. Every search is third-party
// HTTP; a failing search becomes a warning. Users are deduplicated per source and handle,
// ordered by confidence then handle, and capped at maxResults.
func PassiveUsersFrom(ctx context.Context, http HTTPClient, cache Cache, domain, company string,
	maxResults int, sources []UserSource) (*UsersResult, error) {
	domain, err := validate.Domain(domain)
	if err != nil {
		return nil, err
	}
	maxResults = max(maxResults, 1)

	res := &UsersResult{
		Users:           []User{},
		Queries:         UserQueryTerms(domain, company),
		PerSourceCounts: make(map[string]int, len(sources)),
		Note:            usersNote,
	}
	for _, src := range sources {
		res.Sources = append(res.Sources, src.Name)
		res.PerSourceCounts[src.Name] = 0
	}

	var found []User
	for _, term := range res.Queries {
		for _, src := range sources {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			users, err := searchUsers(ctx, http, cache, src, term, maxResults)
			if err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s search for %q failed: %v", src.Name, term, err))
				continue
			}
			if len(users) > maxResults {
				users = users[:maxResults]
			}
			for i := range users {
				users[i].Source = src.Name
				users[i].Query = term
				users[i].Confidence = Confidence(users[i].Handle, term, domain)
			}
			res.PerSourceCounts[src.Name] += len(users)
			found = append(found, users...)
		}
	}

	// An account found by several terms keeps its most confident match.
	seen := make(map[string]int, len(found))
	for _, u := range found {
		if u.Handle == "" {
			continue
		}
		key := u.Source + "\x00" + strings.ToLower(u.Handle)
		if i, ok := seen[key]; ok {
			if confidenceRank[u.Confidence] < confidenceRank[res.Users[i].Confidence] {
				res.Users[i] = u
			}
			continue
		}
		seen[key] = len(res.Users)
		res.Users = append(res.Users, u)
	}
	sort.SliceStable(res.Users, func(i, j int) bool {
		a, b := res.Users[i], res.Users[j]
		if confidenceRank[a.Confidence] != confidenceRank[b.Confidence] {
			return confidenceRank[a.Confidence] < confidenceRank[b.Confidence]
		}
		return a.Handle < b.Handle
	})
	if len(res.Users) > maxResults {
		res.Users = res.Users[:maxResults]
	}
	return res, nil
}

func searchUsers(ctx context.Context, http HTTPClient, cache Cache, src UserSource, term string, maxResults int) ([]User, error) {
	key := fmt.Sprintf("users:%s:%s:%d", src.Name, term, maxResults)
	if cache != nil {
		var users []User
		if ok, err := cache.Get(ctx, key, &users); ok && err == nil {
			return users, nil
		}
	}
	users, err := fetchJSON(ctx, http, src.URL(term, maxResults), src.Parse)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		_ = cache.Set(ctx, key, users)
	}
	return users, nil
}
