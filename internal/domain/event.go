package domain

import "encoding/json"

// Event is the closed set of outbound payloads. One event is one text frame on the wire.
type Event interface {
	isEvent()
}

type Chat struct {
	Speaker string `json:"user"`
	Text    string `json:"text"`
	Channel string `json:"channel,omitempty"`
	Action  bool   `json:"action,omitempty"`
}

type System struct {
	Text string `json:"system"`
}

// ContentExpired is a System notice keyed to the ephemeral content it retires.
type ContentExpired struct {
	Text string `json:"system"`
	ID   string `json:"expired"`
}

type PresenceList struct {
	DisplayNames []string `json:"userList"`
}

type TopicChanged struct {
	Topic string `json:"topic"`
}

type Ephemeral struct {
	ID         string `json:"id"`
	Owner      string `json:"user"`
	PayloadRef string `json:"image"`
	TTLSeconds int    `json:"expires"`
	Channel    string `json:"channel,omitempty"`
}

type Private struct {
	From string
	To   string
	Text string
}

func (Chat) isEvent()           {}
func (System) isEvent()         {}
func (ContentExpired) isEvent() {}
func (PresenceList) isEvent()   {}
func (TopicChanged) isEvent()   {}
func (Ephemeral) isEvent()      {}
func (Private) isEvent()        {}

func (p Private) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		User string `json:"user"`
		To   string `json:"to"`
		Text string `json:"text"`
		Pvt  bool   `json:"pvt"`
	}{p.From, p.To, p.Text, true})
}

func (p PresenceList) MarshalJSON() ([]byte, error) {
	names := p.DisplayNames
	if names == nil {
		names = []string{}
	}
	return json.Marshal(struct {
		DisplayNames []string `json:"userList"`
	}{names})
}

// Encode serializes an event into its wire form.
func Encode(e Event) ([]byte, error) {
	return json.Marshal(e)
}
