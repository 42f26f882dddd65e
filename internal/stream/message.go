package stream

import (
	"encoding/json"
	"fmt"
)

// Kind identifies which field an inbound message carried.
type Kind string

const (
	KindError        Kind = "error"
	KindIntermediate Kind = "intermediate_result"
	KindFinal        Kind = "final_text"
)

// Message is one decoded inbound relay message.
type Message struct {
	Kind Kind
	Text string
}

// wireMessage keeps pointers so an absent field is distinguishable from "".
type wireMessage struct {
	Error              *string `json:"error"`
	IntermediateResult *string `json:"intermediate_result"`
	FinalText          *string `json:"final_text"`
}

// endOfStream is the text control message closing the audio stream.
var endOfStream = []byte(`{"end_stream":true}`)

// Decode parses one inbound text payload. Exactly one of the known fields
// must be present; anything else is ErrProtocol.
func Decode(data []byte) (Message, error) {
	var wire wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrProtocol, err)
	}

	var (
		msg   Message
		count int
	)
	if wire.Error != nil {
		msg = Message{Kind: KindError, Text: *wire.Error}
		count++
	}
	if wire.IntermediateResult != nil {
		msg = Message{Kind: KindIntermediate, Text: *wire.IntermediateResult}
		count++
	}
	if wire.FinalText != nil {
		msg = Message{Kind: KindFinal, Text: *wire.FinalText}
		count++
	}

	switch count {
	case 1:
		return msg, nil
	case 0:
		return Message{}, fmt.Errorf("%w: no recognized field", ErrProtocol)
	default:
		return Message{}, fmt.Errorf("%w: %d fields set, want exactly one", ErrProtocol, count)
	}
}
