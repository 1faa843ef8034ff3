package briefing

import (
	"fmt"
	"strings"
)

const briefingPrompt = `You are a personal assistant for a busy startup founder. Your task is to synthesize data from multiple sources into a clear, actionable daily briefing that takes about 2 minutes to read.

Based on the following data from the founder's connected tools, generate a briefing with:

1. **Top 3 Priorities**: The most important things to focus on today, based on calendar, urgent messages, and pending tasks.

2. **Summary**: A natural language summary (2-3 paragraphs) covering:
   - Today's schedule and key meetings
   - Important messages requiring attention
   - Current business metrics status
   - Pending tasks that need progress

3. **Alerts**: Any urgent items requiring immediate attention (e.g., failed payments, urgent messages, overdue tasks). Only include if there are genuinely urgent items.

Here is the data from connected integrations:

## Calendar Events (Today)
%s

## Unread Important Emails
%s

## Slack Messages (Mentions & DMs from last 24h)
%s

## Pending Notion Tasks
%s

## Stripe Metrics
%s

---

Respond in JSON format:
{
    "priorities": ["Priority 1", "Priority 2", "Priority 3"],
    "summary": "Natural language summary here...",
    "alerts": ["Alert 1", "Alert 2"] // Can be empty array if no urgent items
}

Be concise but comprehensive. Focus on actionable insights, not just listing data.`

// Placeholder sentences keep every prompt section non-empty.
const (
	placeholderCalendar = "No calendar events today."
	placeholderEmails   = "No unread important emails."
	placeholderSlack    = "No recent mentions or DMs."
	placeholderNotion   = "No pending tasks."
	placeholderStripe   = "Stripe not connected."
)

// renderPrompt interpolates the five data blocks into the briefing prompt.
func renderPrompt(b Bundle) string {
	return fmt.Sprintf(briefingPrompt,
		orPlaceholder(formatCalendar(b.CalendarEvents), placeholderCalendar),
		orPlaceholder(formatEmails(b.Emails), placeholderEmails),
		orPlaceholder(formatSlack(b.SlackMessages), placeholderSlack),
		orPlaceholder(formatNotion(b.NotionTasks), placeholderNotion),
		orPlaceholder(formatStripe(b.StripeMetrics), placeholderStripe),
	)
}

func orPlaceholder(s, placeholder string) string {
	if s == "" {
		return placeholder
	}
	return s
}

func formatCalendar(events []map[string]interface{}) string {
	if len(events) == 0 {
		return ""
	}
	lines := make([]string, 0, len(events))
	for _, event := range events {
		timeStr := stringField(event, "start", "TBD")
		summary := stringField(event, "summary", "No title")
		attendees := stringListField(event, "attendees")
		attendeeStr := ""
		if len(attendees) > 0 {
			if len(attendees) > 3 {
				attendees = attendees[:3]
			}
			attendeeStr = fmt.Sprintf(" (with %s)", strings.Join(attendees, ", "))
		}
		lines = append(lines, fmt.Sprintf("- %s: %s%s", timeStr, summary, attendeeStr))
	}
	return strings.Join(lines, "\n")
}

func formatEmails(emails []map[string]interface{}) string {
	if len(emails) == 0 {
		return ""
	}
	lines := make([]string, 0, len(emails))
	for _, email := range emails {
		sender := stringField(email, "from", "Unknown")
		subject := stringField(email, "subject", "No subject")
		lines = append(lines, fmt.Sprintf("- From: %s\n  Subject: %s", sender, subject))
	}
	return strings.Join(lines, "\n")
}

func formatSlack(messages []map[string]interface{}) string {
	if len(messages) == 0 {
		return ""
	}
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		channel := stringField(msg, "channel", "Unknown")
		text := stringField(msg, "text", "")
		msgType := "Mention"
		if isDM, _ := msg["is_dm"].(bool); isDM {
			msgType = "DM"
		}
		lines = append(lines, fmt.Sprintf("- [%s] in #%s: %s", msgType, channel, text))
	}
	return strings.Join(lines, "\n")
}

func formatNotion(tasks []map[string]interface{}) string {
	if len(tasks) == 0 {
		return ""
	}
	lines := make([]string, 0, len(tasks))
	for _, task := range tasks {
		lines = append(lines, fmt.Sprintf("- [ ] %s", stringField(task, "title", "Untitled")))
	}
	return strings.Join(lines, "\n")
}

func formatStripe(metrics map[string]interface{}) string {
	if len(metrics) == 0 {
		return ""
	}
	return fmt.Sprintf("MRR: $%.2f\nActive Subscriptions: %d\nNew Subscriptions Today: %d\nChurned Today: %d",
		floatField(metrics, "mrr"),
		intField(metrics, "active_subscriptions"),
		intField(metrics, "new_subscriptions_today"),
		intField(metrics, "churned_today"))
}

func stringField(m map[string]interface{}, key, def string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return def
}

func stringListField(m map[string]interface{}, key string) []string {
	switch v := m[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func floatField(m map[string]interface{}, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func intField(m map[string]interface{}, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
