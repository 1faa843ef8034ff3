package briefing

// Bundle is the transient, per-request aggregation of all connectors' fetched
// data for one user. Every slot defaults to empty; connectors fill their own
// slot opportunistically.
type Bundle struct {
	CalendarEvents []map[string]interface{} `json:"calendar_events"`
	Emails         []map[string]interface{} `json:"emails"`
	SlackMessages  []map[string]interface{} `json:"slack_messages"`
	NotionTasks    []map[string]interface{} `json:"notion_tasks"`
	StripeMetrics  map[string]interface{}   `json:"stripe_metrics"`
}

// NewBundle returns a bundle with every slot at its empty default.
func NewBundle() Bundle {
	return Bundle{
		CalendarEvents: []map[string]interface{}{},
		Emails:         []map[string]interface{}{},
		SlackMessages:  []map[string]interface{}{},
		NotionTasks:    []map[string]interface{}{},
		StripeMetrics:  map[string]interface{}{},
	}
}
