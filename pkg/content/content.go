// Package content implements the bidirectional mapping between the
// polymorphic message payload variants (metadata, text, image, tool_call,
// tool_result, image_batch) and the on-disk triple
// (content_type, content_data, content_metadata).
//
// The codec is schema-light: it validates only presence of each variant's
// required fields, never the shape of opaque sub-documents like tool
// arguments or results. Unknown content_type values round-trip as Opaque
// so that newer writers never break older readers.
package content

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Tag identifies which content variant a Content value carries.
type Tag string

const (
	TagMetadata   Tag = "metadata"
	TagText       Tag = "text"
	TagImage      Tag = "image"
	TagToolCall   Tag = "tool_call"
	TagToolResult Tag = "tool_result"
	TagImageBatch Tag = "image_batch"
)

// Content is a closed sum type over the variants above, plus an Opaque
// escape hatch for tags this codec does not recognize. Exactly one of the
// typed fields is non-nil, matching Tag; Opaque is set only when Tag does
// not match any known variant.
type Content struct {
	Tag Tag

	Metadata   *Metadata
	Text       *Text
	Image      *Image
	ToolCall   *ToolCall
	ToolResult *ToolResult
	ImageBatch *ImageBatch

	Opaque *OpaqueContent
}

// Metadata is synthesized by the service for root messages and carried on
// forked conversations' roots to record human-readable provenance.
type Metadata struct {
	Title                  string     `json:"title"`
	Description            string     `json:"description,omitempty"`
	IsPublic               bool       `json:"is_public,omitempty"`
	ForkFromConversationID *uuid.UUID `json:"fork_from_conversation_id,omitempty"`
	ForkFromMessageID      *uuid.UUID `json:"fork_from_message_id,omitempty"`
}

// Text is plain-text message content.
type Text struct {
	Text string `json:"text"`
}

// Image points at S3-compatible storage; the service never fetches it.
type Image struct {
	ImageURL     string `json:"image_url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
	SizeBytes    int64  `json:"size_bytes,omitempty"`
}

// ToolCall carries an opaque arguments object; the codec never inspects
// its shape.
type ToolCall struct {
	ToolName   string          `json:"tool_name"`
	ToolCallID string          `json:"tool_call_id"`
	Arguments  json.RawMessage `json:"arguments"`
}

// ToolResult carries an opaque result object, correlated to a ToolCall by
// ToolCallID.
type ToolResult struct {
	ToolCallID string          `json:"tool_call_id"`
	Success    bool            `json:"success"`
	Result     json.RawMessage `json:"result"`
}

// ImageBatch is a batch of images; per-element fields beyond ImageURL are
// open, matching the spec's "per-element fields are open" note.
type ImageBatch struct {
	Images []ImageBatchItem `json:"images"`
}

type ImageBatchItem struct {
	ImageURL string `json:"image_url"`
	Prompt   string `json:"prompt,omitempty"`
	Model    string `json:"model,omitempty"`
}

// OpaqueContent preserves the original type/data strings for a content_type
// this codec build does not recognize, so a newer writer's variants never
// break an older reader.
type OpaqueContent struct {
	Type string
	Data json.RawMessage
}

// Encode produces the persisted triple for c. meta is returned unchanged;
// the codec never touches content_metadata.
func Encode(c Content, meta map[string]string) (contentType string, contentData string, contentMetadata map[string]string, err error) {
	var payload any
	switch c.Tag {
	case TagMetadata:
		if c.Metadata == nil {
			return "", "", nil, fmt.Errorf("content: metadata tag with nil payload")
		}
		payload = c.Metadata
	case TagText:
		if c.Text == nil {
			return "", "", nil, fmt.Errorf("content: text tag with nil payload")
		}
		payload = c.Text
	case TagImage:
		if c.Image == nil {
			return "", "", nil, fmt.Errorf("content: image tag with nil payload")
		}
		payload = c.Image
	case TagToolCall:
		if c.ToolCall == nil {
			return "", "", nil, fmt.Errorf("content: tool_call tag with nil payload")
		}
		payload = c.ToolCall
	case TagToolResult:
		if c.ToolResult == nil {
			return "", "", nil, fmt.Errorf("content: tool_result tag with nil payload")
		}
		payload = c.ToolResult
	case TagImageBatch:
		if c.ImageBatch == nil {
			return "", "", nil, fmt.Errorf("content: image_batch tag with nil payload")
		}
		payload = c.ImageBatch
	default:
		if c.Opaque == nil {
			return "", "", nil, fmt.Errorf("content: unknown tag %q with no opaque payload", c.Tag)
		}
		return c.Opaque.Type, string(c.Opaque.Data), meta, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", "", nil, fmt.Errorf("content: serializing %s: %w", c.Tag, err)
	}

	if err := validateRequired(c); err != nil {
		return "", "", nil, err
	}

	return string(c.Tag), string(data), meta, nil
}

// Decode is the inverse of Encode for every known tag; on an unrecognized
// contentType it returns an Opaque variant carrying the original strings
// unchanged, per the forward-compatibility contract in the component
// design for the content codec.
func Decode(contentType string, contentData string) (Content, error) {
	tag := Tag(contentType)
	raw := json.RawMessage(contentData)

	switch tag {
	case TagMetadata:
		var m Metadata
		if err := json.Unmarshal(raw, &m); err != nil {
			return Content{}, fmt.Errorf("content: decoding metadata: %w", err)
		}
		c := Content{Tag: tag, Metadata: &m}
		if err := validateRequired(c); err != nil {
			return Content{}, err
		}
		return c, nil

	case TagText:
		var t Text
		if err := json.Unmarshal(raw, &t); err != nil {
			return Content{}, fmt.Errorf("content: decoding text: %w", err)
		}
		c := Content{Tag: tag, Text: &t}
		if err := validateRequired(c); err != nil {
			return Content{}, err
		}
		return c, nil

	case TagImage:
		var i Image
		if err := json.Unmarshal(raw, &i); err != nil {
			return Content{}, fmt.Errorf("content: decoding image: %w", err)
		}
		c := Content{Tag: tag, Image: &i}
		if err := validateRequired(c); err != nil {
			return Content{}, err
		}
		return c, nil

	case TagToolCall:
		var tc ToolCall
		if err := json.Unmarshal(raw, &tc); err != nil {
			return Content{}, fmt.Errorf("content: decoding tool_call: %w", err)
		}
		c := Content{Tag: tag, ToolCall: &tc}
		if err := validateRequired(c); err != nil {
			return Content{}, err
		}
		return c, nil

	case TagToolResult:
		var tr ToolResult
		if err := json.Unmarshal(raw, &tr); err != nil {
			return Content{}, fmt.Errorf("content: decoding tool_result: %w", err)
		}
		c := Content{Tag: tag, ToolResult: &tr}
		if err := validateRequired(c); err != nil {
			return Content{}, err
		}
		return c, nil

	case TagImageBatch:
		var ib ImageBatch
		if err := json.Unmarshal(raw, &ib); err != nil {
			return Content{}, fmt.Errorf("content: decoding image_batch: %w", err)
		}
		c := Content{Tag: tag, ImageBatch: &ib}
		if err := validateRequired(c); err != nil {
			return Content{}, err
		}
		return c, nil

	default:
		return Content{
			Tag: tag,
			Opaque: &OpaqueContent{
				Type: contentType,
				Data: raw,
			},
		}, nil
	}
}

// validateRequired checks only presence of each variant's required fields,
// never the shape of opaque sub-documents.
func validateRequired(c Content) error {
	switch c.Tag {
	case TagMetadata:
		if c.Metadata.Title == "" {
			return fmt.Errorf("content: metadata requires title")
		}
	case TagText:
		if c.Text.Text == "" {
			return fmt.Errorf("content: text requires text")
		}
	case TagImage:
		if c.Image.ImageURL == "" {
			return fmt.Errorf("content: image requires image_url")
		}
	case TagToolCall:
		if c.ToolCall.ToolName == "" || c.ToolCall.ToolCallID == "" {
			return fmt.Errorf("content: tool_call requires tool_name and tool_call_id")
		}
	case TagToolResult:
		if c.ToolResult.ToolCallID == "" {
			return fmt.Errorf("content: tool_result requires tool_call_id")
		}
	case TagImageBatch:
		if len(c.ImageBatch.Images) == 0 {
			return fmt.Errorf("content: image_batch requires at least one image")
		}
	}
	return nil
}

// NewMetadata builds a metadata-tagged Content, used for root messages and
// forked conversation roots.
func NewMetadata(title, description string, isPublic bool, forkConv, forkMsg *uuid.UUID) Content {
	return Content{
		Tag: TagMetadata,
		Metadata: &Metadata{
			Title:                  title,
			Description:            description,
			IsPublic:               isPublic,
			ForkFromConversationID: forkConv,
			ForkFromMessageID:      forkMsg,
		},
	}
}

// NewText builds a text-tagged Content.
func NewText(text string) Content {
	return Content{Tag: TagText, Text: &Text{Text: text}}
}
