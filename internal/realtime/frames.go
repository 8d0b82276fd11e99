package realtime

import "encoding/json"

// Channel protocol events. Anything that is not a row change is control
// traffic and never reaches subscribers.
const (
	eventJoin      = "phx_join"
	eventLeave     = "phx_leave"
	eventReply     = "phx_reply"
	eventError     = "phx_error"
	eventClose     = "phx_close"
	eventHeartbeat = "heartbeat"

	heartbeatTopic = "phoenix"
	topicPrefix    = "realtime:public:"
)

// frame is one websocket message on the channel protocol.
type frame struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
}

var emptyPayload = json.RawMessage(`{}`)

// changeTopic builds the channel topic for a table subscription with an
// optional row filter, e.g. "realtime:public:messages:user_id=eq.42".
func changeTopic(table, filter string) string {
	topic := topicPrefix + table
	if filter != "" {
		topic += ":" + filter
	}
	return topic
}

// tableFromTopic recovers the table name from a subscription topic.
func tableFromTopic(topic string) string {
	rest := topic[len(topicPrefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == ':' {
			return rest[:i]
		}
	}
	return rest
}

func isChangeEvent(event string) bool {
	return event == "INSERT" || event == "UPDATE" || event == "DELETE"
}
