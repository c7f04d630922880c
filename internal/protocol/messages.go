package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeIdentify   MessageType = "identify"
	TypeIdentified MessageType = "identified"
	TypeChat       MessageType = "chat"
	TypeResponse   MessageType = "response"
	TypeTTS        MessageType = "tts"
	TypeAudio      MessageType = "audio"
	TypeError      MessageType = "error"
)

var (
	ErrUnsupportedType = errors.New("unsupported message type")
	ErrMalformed       = errors.New("malformed message")
)

type Envelope struct {
	Type MessageType `json:"type"`
}

// Identify asks the server to bind the connection to a user. A missing
// UserID requests a generated one.
type Identify struct {
	Type   MessageType `json:"type"`
	UserID string      `json:"userId,omitempty"`
}

type Identified struct {
	Type   MessageType `json:"type"`
	UserID string      `json:"userId"`
}

type Chat struct {
	Type        MessageType `json:"type"`
	Provider    string      `json:"provider"`
	Model       string      `json:"model"`
	UserMessage string      `json:"userMessage"`
}

type Response struct {
	Type     MessageType `json:"type"`
	Text     string      `json:"text"`
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
}

type TTS struct {
	Type MessageType `json:"type"`
	Text string      `json:"text"`
}

type Audio struct {
	Type      MessageType `json:"type"`
	AudioData string      `json:"audioData"`
}

type Error struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

func NewIdentified(userID string) Identified {
	return Identified{Type: TypeIdentified, UserID: userID}
}

func NewResponse(text, provider, model string) Response {
	return Response{Type: TypeResponse, Text: text, Provider: provider, Model: model}
}

func NewAudio(audioBase64 string) Audio {
	return Audio{Type: TypeAudio, AudioData: audioBase64}
}

func NewError(message string) Error {
	return Error{Type: TypeError, Message: message}
}

// ParseClientMessage decodes one inbound frame into Identify, Chat or TTS.
// Errors wrap ErrMalformed or ErrUnsupportedType.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case TypeIdentify:
		var msg Identify
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("%w: identify: %v", ErrMalformed, err)
		}
		msg.UserID = strings.TrimSpace(msg.UserID)
		return msg, nil
	case TypeChat:
		var msg Chat
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("%w: chat: %v", ErrMalformed, err)
		}
		msg.Provider = strings.TrimSpace(msg.Provider)
		msg.Model = strings.TrimSpace(msg.Model)
		if strings.TrimSpace(msg.UserMessage) == "" {
			return nil, fmt.Errorf("%w: chat requires userMessage", ErrMalformed)
		}
		return msg, nil
	case TypeTTS:
		var msg TTS
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("%w: tts: %v", ErrMalformed, err)
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedType, env.Type)
	}
}
