package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"

	"github.com/orbit-hq/orbit/config"
)

var googleScopes = []string{
	"https://www.googleapis.com/auth/calendar.readonly",
	"https://www.googleapis.com/auth/gmail.readonly",
}

// googleConnector covers both Calendar and Gmail behind one OAuth grant.
type googleConnector struct {
	oauth        *oauth2.Config
	client       *http.Client
	calendarBase string
	gmailBase    string
}

func newGoogle(cfg config.OAuthClientConfig, client *http.Client) *googleConnector {
	return &googleConnector{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       googleScopes,
			Endpoint:     googleoauth.Endpoint,
		},
		client:       client,
		calendarBase: "https://www.googleapis.com/calendar/v3",
		gmailBase:    "https://www.googleapis.com/gmail/v1",
	}
}

func (g *googleConnector) Provider() string { return ProviderGoogle }

func (g *googleConnector) AuthURL(state string) string {
	return g.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

func (g *googleConnector) ExchangeCode(ctx context.Context, code string) (TokenResponse, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.client)
	tok, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return TokenResponse{}, &CredentialError{Provider: ProviderGoogle, Detail: err.Error()}
	}
	return googleTokenResponse(tok, ""), nil
}

func (g *googleConnector) RefreshToken(ctx context.Context, refreshToken string) (TokenResponse, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.client)
	tok, err := g.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return TokenResponse{}, &CredentialError{Provider: ProviderGoogle, Detail: err.Error()}
	}
	// Google omits the refresh token on refresh; keep the current one.
	return googleTokenResponse(tok, refreshToken), nil
}

func googleTokenResponse(tok *oauth2.Token, fallbackRefresh string) TokenResponse {
	out := TokenResponse{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if out.RefreshToken == "" {
		out.RefreshToken = fallbackRefresh
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		out.ExpiresAt = &exp
	}
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		out.Scopes = strings.Fields(scope)
	}
	return out
}

// FetchData pulls today's calendar events and up to 10 unread important
// emails. The two sub-fetches are independent: a failing one contributes an
// empty list instead of failing the whole fetch.
func (g *googleConnector) FetchData(ctx context.Context, accessToken string) (ProviderData, error) {
	events, err := g.fetchCalendarEvents(ctx, accessToken)
	if err != nil {
		events = []map[string]interface{}{}
	}
	emails, err := g.fetchImportantEmails(ctx, accessToken)
	if err != nil {
		emails = []map[string]interface{}{}
	}
	return ProviderData{
		Provider: ProviderGoogle,
		Data: map[string]interface{}{
			"calendar_events": events,
			"emails":          emails,
		},
		FetchedAt: time.Now().UTC(),
	}, nil
}

type googleCalendarEvent struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
	Start   struct {
		DateTime string `json:"dateTime"`
		Date     string `json:"date"`
	} `json:"start"`
	End struct {
		DateTime string `json:"dateTime"`
		Date     string `json:"date"`
	} `json:"end"`
	Attendees []struct {
		Email string `json:"email"`
	} `json:"attendees"`
	Location string `json:"location"`
}

func (g *googleConnector) fetchCalendarEvents(ctx context.Context, accessToken string) ([]map[string]interface{}, error) {
	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24*time.Hour - time.Second)

	params := url.Values{}
	params.Set("timeMin", dayStart.Format(time.RFC3339))
	params.Set("timeMax", dayEnd.Format(time.RFC3339))
	params.Set("singleEvents", "true")
	params.Set("orderBy", "startTime")

	var result struct {
		Items []googleCalendarEvent `json:"items"`
	}
	if err := g.getJSON(ctx, accessToken, g.calendarBase+"/calendars/primary/events?"+params.Encode(), &result); err != nil {
		return nil, err
	}

	events := make([]map[string]interface{}, 0, len(result.Items))
	for _, ev := range result.Items {
		summary := ev.Summary
		if summary == "" {
			summary = "No title"
		}
		attendees := make([]string, 0, len(ev.Attendees))
		for _, a := range ev.Attendees {
			attendees = append(attendees, a.Email)
		}
		events = append(events, map[string]interface{}{
			"id":        ev.ID,
			"summary":   summary,
			"start":     firstNonEmpty(ev.Start.DateTime, ev.Start.Date),
			"end":       firstNonEmpty(ev.End.DateTime, ev.End.Date),
			"attendees": attendees,
			"location":  ev.Location,
		})
	}
	return events, nil
}

func (g *googleConnector) fetchImportantEmails(ctx context.Context, accessToken string) ([]map[string]interface{}, error) {
	params := url.Values{}
	params.Set("q", "is:unread is:important")
	params.Set("maxResults", "10")

	var list struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := g.getJSON(ctx, accessToken, g.gmailBase+"/users/me/messages?"+params.Encode(), &list); err != nil {
		return nil, err
	}

	emails := make([]map[string]interface{}, 0, len(list.Messages))
	for i, msg := range list.Messages {
		if i >= 10 {
			break
		}
		detailURL := fmt.Sprintf("%s/users/me/messages/%s?format=metadata&metadataHeaders=From&metadataHeaders=Subject&metadataHeaders=Date", g.gmailBase, msg.ID)
		var detail struct {
			Snippet string `json:"snippet"`
			Payload struct {
				Headers []struct {
					Name  string `json:"name"`
					Value string `json:"value"`
				} `json:"headers"`
			} `json:"payload"`
		}
		if err := g.getJSON(ctx, accessToken, detailURL, &detail); err != nil {
			continue
		}
		headers := map[string]string{}
		for _, h := range detail.Payload.Headers {
			headers[h.Name] = h.Value
		}
		from := headers["From"]
		if from == "" {
			from = "Unknown"
		}
		subject := headers["Subject"]
		if subject == "" {
			subject = "No subject"
		}
		emails = append(emails, map[string]interface{}{
			"id":      msg.ID,
			"from":    from,
			"subject": subject,
			"date":    headers["Date"],
			"snippet": detail.Snippet,
		})
	}
	return emails, nil
}

func (g *googleConnector) getJSON(ctx context.Context, accessToken, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("google api status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
