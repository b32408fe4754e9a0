package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Frame is the only accepted inbound shape.
type Frame struct {
	Text    *string `json:"text,omitempty"`
	Channel *string `json:"channel,omitempty"`
	Image   *string `json:"image,omitempty"`
}

// DecodeFrame parses one inbound text frame. Unknown fields, trailing data and frames carrying
// neither text nor image are protocol errors.
func DecodeFrame(data []byte) (Frame, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var f Frame
	if err := dec.Decode(&f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if dec.More() {
		return Frame{}, fmt.Errorf("%w: trailing data", ErrProtocol)
	}
	if f.Text == nil && f.Image == nil {
		return Frame{}, fmt.Errorf("%w: missing text", ErrProtocol)
	}
	return f, nil
}

// ChannelOrDefault returns the addressed channel, "#main" when none was given.
func (f Frame) ChannelOrDefault() string {
	if f.Channel == nil || *f.Channel == "" {
		return DefaultChannel
	}
	return *f.Channel
}
