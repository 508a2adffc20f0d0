package telegram

import "strings"

// Callback payloads are "<action>" or "<action>:<userID>". Telegram ids
// never contain the separator, but parsing stays tolerant of a payload
// without one.
const (
	payloadSep = ":"

	actionRequestAccess = "request_access"
	actionApprove       = "approve"
	actionDeny          = "deny"
)

func parsePayload(data string) (action, target string) {
	action, target, found := strings.Cut(data, payloadSep)
	if !found {
		return data, ""
	}
	return action, target
}
