package connector

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

	"github.com/orbit-hq/orbit/config"
)

const (
	notionAPIVersion = "2022-06-28"
	notionTaskLimit  = 10
)

type notionConnector struct {
	cfg      config.OAuthClientConfig
	client   *http.Client
	authURL  string
	tokenURL string
	apiBase  string
}

func newNotion(cfg config.OAuthClientConfig, client *http.Client) *notionConnector {
	return &notionConnector{
		cfg:      cfg,
		client:   client,
		authURL:  "https://api.notion.com/v1/oauth/authorize",
		tokenURL: "https://api.notion.com/v1/oauth/token",
		apiBase:  "https://api.notion.com/v1",
	}
}

func (n *notionConnector) Provider() string { return ProviderNotion }

func (n *notionConnector) AuthURL(state string) string {
	params := url.Values{}
	params.Set("client_id", n.cfg.ClientID)
	params.Set("redirect_uri", n.cfg.RedirectURI)
	params.Set("response_type", "code")
	params.Set("state", state)
	params.Set("owner", "user")
	return n.authURL + "?" + params.Encode()
}

// ExchangeCode performs Notion's basic-auth token exchange. Notion issues
// non-expiring tokens without a refresh counterpart.
func (n *notionConnector) ExchangeCode(ctx context.Context, code string) (TokenResponse, error) {
	body, err := json.Marshal(map[string]string{
		"grant_type":   "authorization_code",
		"code":         code,
		"redirect_uri": n.cfg.RedirectURI,
	})
	if err != nil {
		return TokenResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.tokenURL, bytes.NewReader(body))
	if err != nil {
		return TokenResponse{}, err
	}
	req.SetBasicAuth(n.cfg.ClientID, n.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return TokenResponse{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return TokenResponse{}, &CredentialError{Provider: ProviderNotion, Detail: strings.TrimSpace(string(detail))}
	}
	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return TokenResponse{}, err
	}
	return TokenResponse{AccessToken: payload.AccessToken, Scopes: []string{}}, nil
}

func (n *notionConnector) RefreshToken(ctx context.Context, refreshToken string) (TokenResponse, error) {
	return TokenResponse{}, ErrRefreshUnsupported
}

type notionProperty struct {
	Type  string `json:"type"`
	Title []struct {
		PlainText string `json:"plain_text"`
	} `json:"title"`
	Checkbox bool `json:"checkbox"`
	Status   struct {
		Name string `json:"name"`
	} `json:"status"`
}

// FetchData searches the 20 most recently edited pages and keeps the ones
// that expose a completion-style property and are not yet complete.
func (n *notionConnector) FetchData(ctx context.Context, accessToken string) (ProviderData, error) {
	body, err := json.Marshal(map[string]interface{}{
		"filter":    map[string]string{"property": "object", "value": "page"},
		"sort":      map[string]string{"direction": "descending", "timestamp": "last_edited_time"},
		"page_size": 20,
	})
	if err != nil {
		return ProviderData{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.apiBase+"/search", bytes.NewReader(body))
	if err != nil {
		return ProviderData{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Notion-Version", notionAPIVersion)
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return ProviderData{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ProviderData{}, fmt.Errorf("notion api status %d", resp.StatusCode)
	}

	var result struct {
		Results []struct {
			ID             string                    `json:"id"`
			URL            string                    `json:"url"`
			LastEditedTime string                    `json:"last_edited_time"`
			Properties     map[string]notionProperty `json:"properties"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return ProviderData{}, err
	}

	tasks := []map[string]interface{}{}
	for _, page := range result.Results {
		title := "Untitled"
		for _, prop := range page.Properties {
			if prop.Type == "title" && len(prop.Title) > 0 {
				title = prop.Title[0].PlainText
				break
			}
		}

		hasStatus := false
		isDone := false
		for _, prop := range page.Properties {
			switch prop.Type {
			case "checkbox":
				hasStatus = true
				isDone = prop.Checkbox
			case "status":
				hasStatus = true
				name := strings.ToLower(prop.Status.Name)
				isDone = name == "done" || name == "complete" || name == "completed"
			default:
				continue
			}
			break
		}

		if hasStatus && !isDone {
			tasks = append(tasks, map[string]interface{}{
				"id":          page.ID,
				"title":       title,
				"url":         page.URL,
				"last_edited": page.LastEditedTime,
			})
		}
	}
	if len(tasks) > notionTaskLimit {
		tasks = tasks[:notionTaskLimit]
	}

	return ProviderData{
		Provider:  ProviderNotion,
		Data:      map[string]interface{}{"tasks": tasks},
		FetchedAt: time.Now().UTC(),
	}, nil
}
