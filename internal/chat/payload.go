// ABOUTME: Tagged message payload union keyed by message_type
// ABOUTME: Each variant carries only the fields relevant to its type

package chat

import (
	"encoding/json"
	"fmt"
)

// Message type tags carried in Message.Type.
const (
	TypeText     = "text"
	TypeImage    = "image"
	TypeSticker  = "sticker"
	TypeFile     = "file"
	TypeFlex     = "flex"
	TypeLocation = "location"
)

// Payload is the type-specific content of a message. Text messages carry a
// nil payload; their content lives in Message.Content.
type Payload interface {
	payloadType() string
}

// ImagePayload references a delivered image and its preview.
type ImagePayload struct {
	OriginalURL string `json:"original_url"`
	PreviewURL  string `json:"preview_url,omitempty"`
}

// StickerPayload identifies a sticker within a sticker package.
type StickerPayload struct {
	PackageID string `json:"package_id"`
	StickerID string `json:"sticker_id"`
}

// FilePayload references an uploaded file.
type FilePayload struct {
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size,omitempty"`
	URL      string `json:"url,omitempty"`
}

// FlexPayload carries opaque rich content; the console renders a placeholder.
type FlexPayload struct {
	AltText  string          `json:"alt_text,omitempty"`
	Contents json.RawMessage `json:"contents,omitempty"`
}

// LocationPayload is a shared map location.
type LocationPayload struct {
	Title     string  `json:"title,omitempty"`
	Address   string  `json:"address,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (ImagePayload) payloadType() string    { return TypeImage }
func (StickerPayload) payloadType() string  { return TypeSticker }
func (FilePayload) payloadType() string     { return TypeFile }
func (FlexPayload) payloadType() string     { return TypeFlex }
func (LocationPayload) payloadType() string { return TypeLocation }

// DecodePayload parses the raw payload object for the given message type.
// Unknown types and text messages yield a nil payload without error; a
// malformed payload for a known type is an error.
func DecodePayload(messageType string, raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var (
		p   Payload
		err error
	)
	switch messageType {
	case TypeImage:
		var v ImagePayload
		err = json.Unmarshal(raw, &v)
		p = v
	case TypeSticker:
		var v StickerPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case TypeFile:
		var v FilePayload
		err = json.Unmarshal(raw, &v)
		p = v
	case TypeFlex:
		var v FlexPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case TypeLocation:
		var v LocationPayload
		err = json.Unmarshal(raw, &v)
		p = v
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", messageType, err)
	}
	return p, nil
}

// PreviewText returns the sidebar/plain-text rendering for a message,
// substituting placeholders for non-text content.
func PreviewText(m Message) string {
	payload, _ := DecodePayload(m.Type, m.Payload)
	switch m.Type {
	case TypeText, "":
		return m.Content
	case TypeImage:
		return "[image]"
	case TypeSticker:
		return "[sticker]"
	case TypeFile:
		if p, ok := payload.(FilePayload); ok && p.FileName != "" {
			return "[file] " + p.FileName
		}
		return "[file]"
	case TypeFlex:
		return "[rich content]"
	case TypeLocation:
		if p, ok := payload.(LocationPayload); ok && p.Title != "" {
			return "[location] " + p.Title
		}
		return "[location]"
	default:
		return m.Content
	}
}
