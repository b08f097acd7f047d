package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/branchweave/branchweave/pkg/branch"
	"github.com/branchweave/branchweave/pkg/content"
	"github.com/branchweave/branchweave/pkg/fork"
	"github.com/branchweave/branchweave/pkg/logger"
	"github.com/branchweave/branchweave/pkg/repo"
	"github.com/branchweave/branchweave/pkg/share"
	"github.com/branchweave/branchweave/pkg/store/memory"
)

func doJSON(app *fiber.App, method, path string, body any) (*http.Response, []byte) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, path, reader)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "tester")

	resp, err := app.Test(req)
	Expect(err).NotTo(HaveOccurred())
	respBody, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return resp, respBody
}

var _ = Describe("Server", func() {
	var (
		server *Server
		app    *fiber.App
	)

	BeforeEach(func() {
		st := memory.New()
		r := repo.New(st, 0, nil)
		b := branch.New(st, nil)
		f := fork.New(st, nil)
		sh := share.New(st)
		server = NewServer(Config{ListenAddr: ":0"}, r, b, f, sh, logger.Nop())
		app = server.app
	})

	Describe("GET /health", func() {
		It("returns ok", func() {
			resp, body := doJSON(app, http.MethodGet, "/health", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(string(body)).To(ContainSubstring("ok"))
		})
	})

	Describe("conversations", func() {
		It("creates, reads, updates and deletes a conversation", func() {
			resp, body := doJSON(app, http.MethodPost, "/api/v1/conversations", createConversationRequest{
				Title:     "first conversation",
				CreatedBy: "alice",
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var created ConversationResponse
			Expect(json.Unmarshal(body, &created)).To(Succeed())
			Expect(created.Title).To(Equal("first conversation"))
			Expect(created.CreatedBy).To(Equal("alice"))

			cid := created.ConversationID.String()

			resp, body = doJSON(app, http.MethodGet, "/api/v1/conversations/"+cid, nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			var fetched ConversationResponse
			Expect(json.Unmarshal(body, &fetched)).To(Succeed())
			Expect(fetched.ConversationID).To(Equal(created.ConversationID))

			newTitle := "renamed conversation"
			resp, body = doJSON(app, http.MethodPut, "/api/v1/conversations/"+cid, updateConversationRequest{
				Title: &newTitle,
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			var updated ConversationResponse
			Expect(json.Unmarshal(body, &updated)).To(Succeed())
			Expect(updated.Title).To(Equal(newTitle))

			resp, _ = doJSON(app, http.MethodDelete, "/api/v1/conversations/"+cid, nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			resp, _ = doJSON(app, http.MethodGet, "/api/v1/conversations/"+cid, nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
		})

		It("returns 400 for an empty title", func() {
			resp, _ := doJSON(app, http.MethodPost, "/api/v1/conversations", createConversationRequest{
				CreatedBy: "alice",
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	Describe("appending messages", func() {
		var rootID uuid.UUID
		var cid string

		BeforeEach(func() {
			_, body := doJSON(app, http.MethodPost, "/api/v1/conversations", createConversationRequest{
				Title:     "tree",
				CreatedBy: "alice",
			})
			var created ConversationResponse
			Expect(json.Unmarshal(body, &created)).To(Succeed())
			cid = created.ConversationID.String()

			_, treeBody := doJSON(app, http.MethodGet, "/api/v1/conversations/"+cid+"/tree", nil)
			var tree TreeResponse
			Expect(json.Unmarshal(treeBody, &tree)).To(Succeed())
			Expect(tree.Messages).To(HaveLen(1))
			rootID = tree.Messages[0].MessageID
		})

		It("appends a message whose lineage extends the parent's", func() {
			resp, body := doJSON(app, http.MethodPost, "/api/v1/conversations/"+cid+"/messages", appendMessageRequest{
				ParentMessageID: rootID,
				Role:            "human",
				Content:         content.NewText("hi"),
				CreatedBy:       "alice",
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var msg MessageResponse
			Expect(json.Unmarshal(body, &msg)).To(Succeed())
			Expect(msg.Lineage).To(HaveLen(2))
			Expect(msg.Depth).To(Equal(2))
		})

		It("returns 404 when the parent does not exist", func() {
			resp, _ := doJSON(app, http.MethodPost, "/api/v1/conversations/"+cid+"/messages", appendMessageRequest{
				ParentMessageID: uuid.New(),
				Role:            "human",
				Content:         content.NewText("hi"),
				CreatedBy:       "alice",
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
		})

		It("returns 400 for an unrecognized role", func() {
			resp, _ := doJSON(app, http.MethodPost, "/api/v1/conversations/"+cid+"/messages", appendMessageRequest{
				ParentMessageID: rootID,
				Role:            "narrator",
				Content:         content.NewText("hi"),
				CreatedBy:       "alice",
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	Describe("branches", func() {
		var cid string
		var rootID uuid.UUID

		BeforeEach(func() {
			_, body := doJSON(app, http.MethodPost, "/api/v1/conversations", createConversationRequest{
				Title:     "branching",
				CreatedBy: "alice",
			})
			var created ConversationResponse
			Expect(json.Unmarshal(body, &created)).To(Succeed())
			cid = created.ConversationID.String()

			_, treeBody := doJSON(app, http.MethodGet, "/api/v1/conversations/"+cid+"/tree", nil)
			var tree TreeResponse
			Expect(json.Unmarshal(treeBody, &tree)).To(Succeed())
			rootID = tree.Messages[0].MessageID
		})

		It("creates a branch at the root and advances it on a tagged append", func() {
			resp, body := doJSON(app, http.MethodPost, "/api/v1/conversations/"+cid+"/branches", createBranchRequest{
				BranchName: "main",
				Leaf:       rootID,
				CreatedBy:  "alice",
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			var br BranchResponse
			Expect(json.Unmarshal(body, &br)).To(Succeed())

			resp, body = doJSON(app, http.MethodPost, "/api/v1/conversations/"+cid+"/messages", appendMessageRequest{
				ParentMessageID: rootID,
				Role:            "human",
				Content:         content.NewText("hi"),
				CreatedBy:       "alice",
				BranchID:        &br.BranchID,
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			var msg MessageResponse
			Expect(json.Unmarshal(body, &msg)).To(Succeed())

			resp, body = doJSON(app, http.MethodGet, "/api/v1/conversations/"+cid+"/branches/"+br.BranchID.String(), nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			var refreshed BranchResponse
			Expect(json.Unmarshal(body, &refreshed)).To(Succeed())
			Expect(refreshed.LeafMessageID).To(Equal(msg.MessageID))
		})

		It("rejects a divergent append against a stale leaf", func() {
			_, body := doJSON(app, http.MethodPost, "/api/v1/conversations/"+cid+"/branches", createBranchRequest{
				BranchName: "main",
				Leaf:       rootID,
				CreatedBy:  "alice",
			})
			var br BranchResponse
			Expect(json.Unmarshal(body, &br)).To(Succeed())

			_, body = doJSON(app, http.MethodPost, "/api/v1/conversations/"+cid+"/messages", appendMessageRequest{
				ParentMessageID: rootID,
				Role:            "human",
				Content:         content.NewText("hi"),
				CreatedBy:       "alice",
				BranchID:        &br.BranchID,
			})
			var onBranch MessageResponse
			Expect(json.Unmarshal(body, &onBranch)).To(Succeed())

			_, body = doJSON(app, http.MethodPost, "/api/v1/conversations/"+cid+"/messages", appendMessageRequest{
				ParentMessageID: rootID,
				Role:            "human",
				Content:         content.NewText("hi"),
				CreatedBy:       "alice",
			})
			var sibling MessageResponse
			Expect(json.Unmarshal(body, &sibling)).To(Succeed())

			resp, _ := doJSON(app, http.MethodPost, "/api/v1/conversations/"+cid+"/messages", appendMessageRequest{
				ParentMessageID: sibling.MessageID,
				Role:            "human",
				Content:         content.NewText("hi"),
				CreatedBy:       "alice",
				BranchID:        &br.BranchID,
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusConflict))
		})

		It("relocates a branch via manual update without the monotonicity check", func() {
			_, body := doJSON(app, http.MethodPost, "/api/v1/conversations/"+cid+"/branches", createBranchRequest{
				BranchName: "main",
				Leaf:       rootID,
				CreatedBy:  "alice",
			})
			var br BranchResponse
			Expect(json.Unmarshal(body, &br)).To(Succeed())

			_, body = doJSON(app, http.MethodPost, "/api/v1/conversations/"+cid+"/messages", appendMessageRequest{
				ParentMessageID: rootID,
				Role:            "human",
				Content:         content.NewText("hi"),
				CreatedBy:       "alice",
			})
			var sibling MessageResponse
			Expect(json.Unmarshal(body, &sibling)).To(Succeed())

			resp, body := doJSON(app, http.MethodPut, "/api/v1/conversations/"+cid+"/branches/"+br.BranchID.String(), updateBranchRequest{
				Leaf: &sibling.MessageID,
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			var updated BranchResponse
			Expect(json.Unmarshal(body, &updated)).To(Succeed())
			Expect(updated.LeafMessageID).To(Equal(sibling.MessageID))
		})
	})

	Describe("forking", func() {
		var cid string
		var rootID uuid.UUID

		BeforeEach(func() {
			_, body := doJSON(app, http.MethodPost, "/api/v1/conversations", createConversationRequest{
				Title:     "source",
				CreatedBy: "alice",
			})
			var created ConversationResponse
			Expect(json.Unmarshal(body, &created)).To(Succeed())
			cid = created.ConversationID.String()

			_, treeBody := doJSON(app, http.MethodGet, "/api/v1/conversations/"+cid+"/tree", nil)
			var tree TreeResponse
			Expect(json.Unmarshal(treeBody, &tree)).To(Succeed())
			rootID = tree.Messages[0].MessageID

			_, _ = doJSON(app, http.MethodPost, "/api/v1/conversations/"+cid+"/messages", appendMessageRequest{
				ParentMessageID: rootID,
				Role:            "human",
				Content:         content.NewText("hi"),
				CreatedBy:       "alice",
			})
		})

		It("forks the whole conversation into a new one with provenance recorded", func() {
			resp, body := doJSON(app, http.MethodPost, "/api/v1/conversations/"+cid+"/fork", forkRequest{
				Title:     "a fork",
				CreatedBy: "bob",
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var dest ConversationResponse
			Expect(json.Unmarshal(body, &dest)).To(Succeed())
			Expect(dest.Title).To(Equal("a fork"))
			Expect(dest.ForkFromConversationID).NotTo(BeNil())
			Expect(dest.ForkFromConversationID.String()).To(Equal(cid))

			_, treeBody := doJSON(app, http.MethodGet, "/api/v1/conversations/"+dest.ConversationID.String()+"/tree", nil)
			var tree TreeResponse
			Expect(json.Unmarshal(treeBody, &tree)).To(Succeed())
			Expect(tree.TotalMessages).To(Equal(2))
		})

		It("forks from a chosen message, rooting the copy there", func() {
			_, treeBody := doJSON(app, http.MethodGet, "/api/v1/conversations/"+cid+"/tree", nil)
			var tree TreeResponse
			Expect(json.Unmarshal(treeBody, &tree)).To(Succeed())
			Expect(tree.Messages).To(HaveLen(2))

			var leaf MessageResponse
			for _, m := range tree.Messages {
				if m.ParentMessageID != nil {
					leaf = m
				}
			}

			resp, body := doJSON(app, http.MethodPost, "/api/v1/conversations/"+cid+"/messages/"+leaf.MessageID.String()+"/fork", forkRequest{
				CreatedBy: "bob",
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var dest ConversationResponse
			Expect(json.Unmarshal(body, &dest)).To(Succeed())
			Expect(dest.ForkFromMessageID).NotTo(BeNil())
			Expect(*dest.ForkFromMessageID).To(Equal(leaf.MessageID))

			_, destTreeBody := doJSON(app, http.MethodGet, "/api/v1/conversations/"+dest.ConversationID.String()+"/tree", nil)
			var destTree TreeResponse
			Expect(json.Unmarshal(destTreeBody, &destTree)).To(Succeed())
			Expect(destTree.TotalMessages).To(Equal(1))
			Expect(destTree.Messages[0].ParentMessageID).To(BeNil())
		})
	})

	Describe("sharing", func() {
		var cid string

		BeforeEach(func() {
			_, body := doJSON(app, http.MethodPost, "/api/v1/conversations", createConversationRequest{
				Title:     "shared",
				CreatedBy: "alice",
			})
			var created ConversationResponse
			Expect(json.Unmarshal(body, &created)).To(Succeed())
			cid = created.ConversationID.String()
		})

		It("grants, lists and revokes a share", func() {
			resp, body := doJSON(app, http.MethodPost, "/api/v1/conversations/"+cid+"/share", shareRequest{
				SharedWith: "bob",
				Permission: "read",
				SharedBy:   "alice",
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			var sh ShareResponse
			Expect(json.Unmarshal(body, &sh)).To(Succeed())
			Expect(sh.SharedWith).To(Equal("bob"))

			resp, body = doJSON(app, http.MethodGet, "/api/v1/conversations/"+cid+"/shares", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			var shares []ShareResponse
			Expect(json.Unmarshal(body, &shares)).To(Succeed())
			Expect(shares).To(HaveLen(1))

			resp, _ = doJSON(app, http.MethodDelete, "/api/v1/conversations/"+cid+"/shares/bob", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			_, body = doJSON(app, http.MethodGet, "/api/v1/conversations/"+cid+"/shares", nil)
			Expect(json.Unmarshal(body, &shares)).To(Succeed())
			Expect(shares).To(HaveLen(0))
		})

		It("re-granting the same grantee replaces rather than duplicates", func() {
			_, _ = doJSON(app, http.MethodPost, "/api/v1/conversations/"+cid+"/share", shareRequest{
				SharedWith: "bob",
				Permission: "read",
				SharedBy:   "alice",
			})
			_, _ = doJSON(app, http.MethodPost, "/api/v1/conversations/"+cid+"/share", shareRequest{
				SharedWith: "bob",
				Permission: "fork",
				SharedBy:   "alice",
			})

			_, body := doJSON(app, http.MethodGet, "/api/v1/conversations/"+cid+"/shares", nil)
			var shares []ShareResponse
			Expect(json.Unmarshal(body, &shares)).To(Succeed())
			Expect(shares).To(HaveLen(1))
			Expect(shares[0].Permission).To(BeEquivalentTo("fork"))
		})

		It("rejects an unrecognized permission", func() {
			resp, _ := doJSON(app, http.MethodPost, "/api/v1/conversations/"+cid+"/share", shareRequest{
				SharedWith: "bob",
				Permission: "admin",
				SharedBy:   "alice",
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})
})
