package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/orbit-hq/orbit/config"
)

var slackScopes = []string{
	"channels:history",
	"channels:read",
	"im:history",
	"im:read",
	"mpim:history",
	"mpim:read",
	"users:read",
}

const slackMessageLimit = 20

type slackConnector struct {
	cfg      config.OAuthClientConfig
	client   *http.Client
	authURL  string
	tokenURL string
	apiBase  string
}

func newSlack(cfg config.OAuthClientConfig, client *http.Client) *slackConnector {
	return &slackConnector{
		cfg:      cfg,
		client:   client,
		authURL:  "https://slack.com/oauth/v2/authorize",
		tokenURL: "https://slack.com/api/oauth.v2.access",
		apiBase:  "https://slack.com/api",
	}
}

func (s *slackConnector) Provider() string { return ProviderSlack }

func (s *slackConnector) AuthURL(state string) string {
	params := url.Values{}
	params.Set("client_id", s.cfg.ClientID)
	params.Set("redirect_uri", s.cfg.RedirectURI)
	params.Set("scope", strings.Join(slackScopes, ","))
	params.Set("state", state)
	return s.authURL + "?" + params.Encode()
}

// slackTokenPayload is shared by exchange and refresh; Slack signals failure
// with ok=false and a 200 status.
type slackTokenPayload struct {
	OK           bool   `json:"ok"`
	Error        string `json:"error"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

func (s *slackConnector) ExchangeCode(ctx context.Context, code string) (TokenResponse, error) {
	form := url.Values{}
	form.Set("client_id", s.cfg.ClientID)
	form.Set("client_secret", s.cfg.ClientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", s.cfg.RedirectURI)
	return s.tokenCall(ctx, form, "")
}

func (s *slackConnector) RefreshToken(ctx context.Context, refreshToken string) (TokenResponse, error) {
	form := url.Values{}
	form.Set("client_id", s.cfg.ClientID)
	form.Set("client_secret", s.cfg.ClientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return s.tokenCall(ctx, form, refreshToken)
}

func (s *slackConnector) tokenCall(ctx context.Context, form url.Values, fallbackRefresh string) (TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return TokenResponse{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := s.client.Do(req)
	if err != nil {
		return TokenResponse{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return TokenResponse{}, &CredentialError{Provider: ProviderSlack, Detail: fmt.Sprintf("status %d", resp.StatusCode)}
	}
	var payload slackTokenPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return TokenResponse{}, err
	}
	if !payload.OK {
		return TokenResponse{}, &CredentialError{Provider: ProviderSlack, Detail: payload.Error}
	}
	out := TokenResponse{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
	}
	if out.RefreshToken == "" {
		out.RefreshToken = fallbackRefresh
	}
	if payload.Scope != "" {
		out.Scopes = strings.Split(payload.Scope, ",")
	}
	return out, nil
}

// FetchData returns DMs and mentions of the authenticated identity from the
// last 24 hours, across at most 10 conversations, capped at 20 messages.
func (s *slackConnector) FetchData(ctx context.Context, accessToken string) (ProviderData, error) {
	var identity struct {
		UserID string `json:"user_id"`
	}
	if err := s.getJSON(ctx, accessToken, s.apiBase+"/auth.test", &identity); err != nil {
		return ProviderData{}, err
	}
	mention := "<@" + identity.UserID + ">"

	var convos struct {
		Channels []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			IsIM bool   `json:"is_im"`
		} `json:"channels"`
	}
	listURL := s.apiBase + "/conversations.list?types=" + url.QueryEscape("public_channel,private_channel,im,mpim")
	if err := s.getJSON(ctx, accessToken, listURL, &convos); err != nil {
		return ProviderData{}, err
	}

	oldest := time.Now().UTC().Add(-24 * time.Hour).Unix()
	messages := []map[string]interface{}{}

	for i, channel := range convos.Channels {
		if i >= 10 {
			break
		}
		params := url.Values{}
		params.Set("channel", channel.ID)
		params.Set("oldest", strconv.FormatInt(oldest, 10))
		params.Set("limit", "20")
		var history struct {
			Messages []struct {
				User string `json:"user"`
				Text string `json:"text"`
				TS   string `json:"ts"`
			} `json:"messages"`
		}
		if err := s.getJSON(ctx, accessToken, s.apiBase+"/conversations.history?"+params.Encode(), &history); err != nil {
			continue
		}
		for _, msg := range history.Messages {
			isMention := strings.Contains(msg.Text, mention)
			if !isMention && !channel.IsIM {
				continue
			}
			name := channel.Name
			if name == "" {
				name = channel.ID
			}
			messages = append(messages, map[string]interface{}{
				"channel":    name,
				"is_dm":      channel.IsIM,
				"is_mention": isMention,
				"user":       msg.User,
				"text":       truncate(msg.Text, 200),
				"timestamp":  msg.TS,
			})
		}
	}

	if len(messages) > slackMessageLimit {
		messages = messages[:slackMessageLimit]
	}
	return ProviderData{
		Provider:  ProviderSlack,
		Data:      map[string]interface{}{"messages": messages},
		FetchedAt: time.Now().UTC(),
	}, nil
}

func (s *slackConnector) getJSON(ctx context.Context, accessToken, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack api status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
