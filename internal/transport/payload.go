package transport

import "github.com/tidwall/gjson"

// PayloadField extracts one field from message's serialized JSON payload by
// gjson path, without deserializing the whole payload through the
// Serializer collaborator. Adapters use this to route or filter on a
// payload field the caller doesn't otherwise need in typed form.
func PayloadField(message Message, path string) (string, bool) {
	result := gjson.GetBytes(message.Payload, path)
	if !result.Exists() {
		return "", false
	}
	return result.String(), true
}
