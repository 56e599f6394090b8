package dto

// Event is the envelope every published message is wrapped in.
type Event struct {
	Event    EventDetails  `json:"event"`
	Metadata EventMetadata `json:"metadata"`
}

type EventDetails struct {
	Id        string      `json:"id"`
	AccountId string      `json:"accountId"`
	EventType string      `json:"eventType"`
	Data      interface{} `json:"data"`
}

type EventMetadata struct {
	UberTraceId string `json:"uber-trace-id"`
	AppSource   string `json:"appSource"`
	Timestamp   string `json:"timestamp"`
}
