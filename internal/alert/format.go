package alert

import (
	"encoding/json"
	"fmt"
)

const timestampFormat = "2006-01-02T15:04:05.000Z"

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event Event) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event Event) ([]byte, error) {
	return json.Marshal(event)
}

func title(event Event) string {
	switch event.Type {
	case EventSafeMode:
		return fmt.Sprintf("aegis: safe mode %s", event.SafeMode)
	case EventRecovery:
		return "aegis: safe mode cleared"
	default:
		return fmt.Sprintf("aegis: %s rejected (%s)", event.Kind, event.Code)
	}
}

func formatSlack(event Event) ([]byte, error) {
	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": title(event),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Envelope:* %s", event.EnvelopeID)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Safe mode:* %s", event.SafeMode)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Trust:* %.2f", event.Trust)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:* %s", event.Reason)},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event Event) ([]byte, error) {
	action := "trigger"
	if event.Type == EventRecovery {
		action = "resolve"
	}

	payload := map[string]any{
		"event_action": action,
		"dedup_key":    "aegis-" + event.SessionID,
		"payload": map[string]any{
			"summary":  title(event) + ": " + event.Reason,
			"severity": severityFor(event),
			"source":   "aegis",
			"custom_details": map[string]any{
				"envelope_id": event.EnvelopeID,
				"kind":        event.Kind,
				"code":        event.Code,
				"trust":       event.Trust,
				"safe_mode":   event.SafeMode,
				"session_id":  event.SessionID,
			},
		},
	}
	return json.Marshal(payload)
}

func severityFor(event Event) string {
	switch {
	case event.SafeMode == "RTL":
		return "critical"
	case event.Type == EventRecovery:
		return "info"
	case event.SafeMode == "HOLD":
		return "warning"
	default:
		return "error"
	}
}
