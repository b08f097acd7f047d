package content_test

import (
	"encoding/json"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/branchweave/branchweave/pkg/content"
)

var _ = Describe("Content", func() {
	Describe("Encode/Decode round trip", func() {
		It("round-trips text content", func() {
			c := content.NewText("hello world")

			contentType, contentData, meta, err := content.Encode(c, map[string]string{"k": "v"})
			Expect(err).NotTo(HaveOccurred())
			Expect(contentType).To(Equal("text"))
			Expect(meta).To(Equal(map[string]string{"k": "v"}))

			decoded, err := content.Decode(contentType, contentData)
			Expect(err).NotTo(HaveOccurred())
			Expect(decoded.Tag).To(Equal(content.TagText))
			Expect(decoded.Text.Text).To(Equal("hello world"))
		})

		It("round-trips metadata content", func() {
			forkConv := uuid.New()
			c := content.NewMetadata("My Conversation", "a description", true, &forkConv, nil)

			contentType, contentData, _, err := content.Encode(c, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(contentType).To(Equal("metadata"))

			decoded, err := content.Decode(contentType, contentData)
			Expect(err).NotTo(HaveOccurred())
			Expect(decoded.Metadata.Title).To(Equal("My Conversation"))
			Expect(decoded.Metadata.IsPublic).To(BeTrue())
			Expect(*decoded.Metadata.ForkFromConversationID).To(Equal(forkConv))
		})

		It("round-trips image content", func() {
			c := content.Content{
				Tag: content.TagImage,
				Image: &content.Image{
					ImageURL: "https://example.com/a.png",
					MimeType: "image/png",
				},
			}

			contentType, contentData, _, err := content.Encode(c, nil)
			Expect(err).NotTo(HaveOccurred())

			decoded, err := content.Decode(contentType, contentData)
			Expect(err).NotTo(HaveOccurred())
			Expect(decoded.Image.ImageURL).To(Equal("https://example.com/a.png"))
		})

		It("round-trips tool_call content with opaque arguments", func() {
			c := content.Content{
				Tag: content.TagToolCall,
				ToolCall: &content.ToolCall{
					ToolName:   "search",
					ToolCallID: "call-1",
					Arguments:  json.RawMessage(`{"query":"go generics"}`),
				},
			}

			contentType, contentData, _, err := content.Encode(c, nil)
			Expect(err).NotTo(HaveOccurred())

			decoded, err := content.Decode(contentType, contentData)
			Expect(err).NotTo(HaveOccurred())
			Expect(decoded.ToolCall.ToolName).To(Equal("search"))
			Expect(decoded.ToolCall.Arguments).To(MatchJSON(`{"query":"go generics"}`))
		})

		It("round-trips tool_result content", func() {
			c := content.Content{
				Tag: content.TagToolResult,
				ToolResult: &content.ToolResult{
					ToolCallID: "call-1",
					Success:    true,
					Result:     json.RawMessage(`{"hits":3}`),
				},
			}

			contentType, contentData, _, err := content.Encode(c, nil)
			Expect(err).NotTo(HaveOccurred())

			decoded, err := content.Decode(contentType, contentData)
			Expect(err).NotTo(HaveOccurred())
			Expect(decoded.ToolResult.Success).To(BeTrue())
		})

		It("round-trips image_batch content", func() {
			c := content.Content{
				Tag: content.TagImageBatch,
				ImageBatch: &content.ImageBatch{
					Images: []content.ImageBatchItem{
						{ImageURL: "https://example.com/1.png"},
						{ImageURL: "https://example.com/2.png", Prompt: "a cat"},
					},
				},
			}

			contentType, contentData, _, err := content.Encode(c, nil)
			Expect(err).NotTo(HaveOccurred())

			decoded, err := content.Decode(contentType, contentData)
			Expect(err).NotTo(HaveOccurred())
			Expect(decoded.ImageBatch.Images).To(HaveLen(2))
		})
	})

	Describe("required field validation", func() {
		It("rejects text content with empty text", func() {
			c := content.Content{Tag: content.TagText, Text: &content.Text{}}
			_, _, _, err := content.Encode(c, nil)
			Expect(err).To(HaveOccurred())
		})

		It("rejects metadata content with empty title", func() {
			c := content.Content{Tag: content.TagMetadata, Metadata: &content.Metadata{}}
			_, _, _, err := content.Encode(c, nil)
			Expect(err).To(HaveOccurred())
		})

		It("rejects tool_call content missing tool_call_id", func() {
			c := content.Content{Tag: content.TagToolCall, ToolCall: &content.ToolCall{ToolName: "search"}}
			_, _, _, err := content.Encode(c, nil)
			Expect(err).To(HaveOccurred())
		})

		It("rejects image_batch content with no images", func() {
			c := content.Content{Tag: content.TagImageBatch, ImageBatch: &content.ImageBatch{}}
			_, _, _, err := content.Encode(c, nil)
			Expect(err).To(HaveOccurred())
		})

		It("rejects a known tag with a nil payload", func() {
			c := content.Content{Tag: content.TagText}
			_, _, _, err := content.Encode(c, nil)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("forward compatibility", func() {
		It("decodes an unrecognized content type as Opaque", func() {
			decoded, err := content.Decode("future_variant", `{"anything":"goes"}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(decoded.Tag).To(Equal(content.Tag("future_variant")))
			Expect(decoded.Opaque).NotTo(BeNil())
			Expect(decoded.Opaque.Type).To(Equal("future_variant"))
			Expect(decoded.Opaque.Data).To(MatchJSON(`{"anything":"goes"}`))
		})

		It("round-trips an Opaque value back through Encode", func() {
			c := content.Content{
				Tag:    "future_variant",
				Opaque: &content.OpaqueContent{Type: "future_variant", Data: json.RawMessage(`{"x":1}`)},
			}

			contentType, contentData, _, err := content.Encode(c, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(contentType).To(Equal("future_variant"))
			Expect(contentData).To(MatchJSON(`{"x":1}`))
		})
	})

	Describe("JSON marshaling", func() {
		It("flattens a Content into a type-discriminated object", func() {
			c := content.NewText("hi")

			data, err := json.Marshal(c)
			Expect(err).NotTo(HaveOccurred())

			var fields map[string]any
			Expect(json.Unmarshal(data, &fields)).To(Succeed())
			Expect(fields["type"]).To(Equal("text"))
			Expect(fields["text"]).To(Equal("hi"))
		})

		It("round-trips through json.Marshal/Unmarshal", func() {
			c := content.NewMetadata("Title", "", false, nil, nil)

			data, err := json.Marshal(c)
			Expect(err).NotTo(HaveOccurred())

			var decoded content.Content
			Expect(json.Unmarshal(data, &decoded)).To(Succeed())
			Expect(decoded.Tag).To(Equal(content.TagMetadata))
			Expect(decoded.Metadata.Title).To(Equal("Title"))
		})

		It("errors when the type discriminator is missing", func() {
			var decoded content.Content
			err := json.Unmarshal([]byte(`{"text":"hi"}`), &decoded)
			Expect(err).To(HaveOccurred())
		})
	})
})
