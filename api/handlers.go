package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/branchweave/branchweave/pkg/apierr"
	"github.com/branchweave/branchweave/pkg/repo"
)

func parseUUIDParam(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.UUID{}, apierr.InvalidInput("invalid %s", name)
	}
	return id, nil
}

// handleCreateConversation handles POST /api/v1/conversations.
func (s *Server) handleCreateConversation(c *fiber.Ctx) error {
	var req createConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return s.writeError(c, apierr.InvalidInput("invalid request body"))
	}
	if req.CreatedBy == "" {
		req.CreatedBy = callerID(c)
	}

	conv, _, err := s.repo.CreateConversation(c.Context(), req.Title, req.Description, req.CreatedBy, nil, nil)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(conversationResponse(conv))
}

// handleGetConversation handles GET /api/v1/conversations/{cid}.
func (s *Server) handleGetConversation(c *fiber.Ctx) error {
	cid, err := parseUUIDParam(c, "cid")
	if err != nil {
		return s.writeError(c, err)
	}
	conv, err := s.repo.GetConversation(c.Context(), cid)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(conversationResponse(conv))
}

// handleUpdateConversation handles PUT /api/v1/conversations/{cid}.
func (s *Server) handleUpdateConversation(c *fiber.Ctx) error {
	cid, err := parseUUIDParam(c, "cid")
	if err != nil {
		return s.writeError(c, err)
	}
	var req updateConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return s.writeError(c, apierr.InvalidInput("invalid request body"))
	}
	conv, err := s.repo.UpdateConversation(c.Context(), cid, req.Title, req.Description, req.IsPublic)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(conversationResponse(conv))
}

// handleDeleteConversation handles DELETE /api/v1/conversations/{cid}.
func (s *Server) handleDeleteConversation(c *fiber.Ctx) error {
	cid, err := parseUUIDParam(c, "cid")
	if err != nil {
		return s.writeError(c, err)
	}
	if err := s.repo.DeleteConversation(c.Context(), cid); err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleGetTree handles GET /api/v1/conversations/{cid}/tree.
func (s *Server) handleGetTree(c *fiber.Ctx) error {
	cid, err := parseUUIDParam(c, "cid")
	if err != nil {
		return s.writeError(c, err)
	}
	limit := c.QueryInt("limit", 0)
	offset := c.QueryInt("offset", 0)

	messages, total, err := s.repo.GetConversationTree(c.Context(), cid, limit, offset)
	if err != nil {
		return s.writeError(c, err)
	}

	if caller := callerID(c); caller != "" {
		_ = s.share.TouchActivity(c.Context(), caller, cid, nil)
	}

	return c.JSON(TreeResponse{
		ConversationID: cid,
		TotalMessages:  total,
		Messages:       messageResponses(messages),
	})
}

// handleAppendMessage handles POST /api/v1/conversations/{cid}/messages.
func (s *Server) handleAppendMessage(c *fiber.Ctx) error {
	cid, err := parseUUIDParam(c, "cid")
	if err != nil {
		return s.writeError(c, err)
	}
	var req appendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return s.writeError(c, apierr.InvalidInput("invalid request body"))
	}
	if req.CreatedBy == "" {
		req.CreatedBy = callerID(c)
	}

	msg, err := s.repo.AppendMessage(c.Context(), repo.AppendInput{
		ConversationID:  cid,
		ParentMessageID: req.ParentMessageID,
		Role:            req.Role,
		Content:         req.Content,
		ContentMetadata: req.ContentMetadata,
		CreatedBy:       req.CreatedBy,
		BranchID:        req.BranchID,
	}, s.branch)
	if err != nil {
		return s.writeError(c, err)
	}

	if req.BranchID != nil && req.CreatedBy != "" {
		_ = s.share.TouchActivity(c.Context(), req.CreatedBy, cid, req.BranchID)
	}

	return c.JSON(messageResponse(msg))
}

// handleGetMessage handles GET /api/v1/conversations/{cid}/messages/{mid}.
func (s *Server) handleGetMessage(c *fiber.Ctx) error {
	cid, err := parseUUIDParam(c, "cid")
	if err != nil {
		return s.writeError(c, err)
	}
	mid, err := parseUUIDParam(c, "mid")
	if err != nil {
		return s.writeError(c, err)
	}
	msg, err := s.repo.GetMessage(c.Context(), cid, mid)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(messageResponse(msg))
}

// handleGetChildren handles GET /api/v1/conversations/{cid}/messages/{mid}/children.
func (s *Server) handleGetChildren(c *fiber.Ctx) error {
	cid, err := parseUUIDParam(c, "cid")
	if err != nil {
		return s.writeError(c, err)
	}
	mid, err := parseUUIDParam(c, "mid")
	if err != nil {
		return s.writeError(c, err)
	}
	children, err := s.repo.GetChildren(c.Context(), cid, mid)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(messageResponses(children))
}

// handleGetLineage handles GET /api/v1/conversations/{cid}/messages/{mid}/lineage.
func (s *Server) handleGetLineage(c *fiber.Ctx) error {
	cid, err := parseUUIDParam(c, "cid")
	if err != nil {
		return s.writeError(c, err)
	}
	mid, err := parseUUIDParam(c, "mid")
	if err != nil {
		return s.writeError(c, err)
	}
	lineage, err := s.repo.GetLineage(c.Context(), cid, mid)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(messageResponses(lineage))
}

// handleCreateBranch handles POST /api/v1/conversations/{cid}/branches.
func (s *Server) handleCreateBranch(c *fiber.Ctx) error {
	cid, err := parseUUIDParam(c, "cid")
	if err != nil {
		return s.writeError(c, err)
	}
	var req createBranchRequest
	if err := c.BodyParser(&req); err != nil {
		return s.writeError(c, apierr.InvalidInput("invalid request body"))
	}
	if req.CreatedBy == "" {
		req.CreatedBy = callerID(c)
	}
	b, err := s.branch.CreateBranch(c.Context(), cid, req.BranchName, req.Leaf, req.CreatedBy)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(branchResponse(b))
}

// handleListBranches handles GET /api/v1/conversations/{cid}/branches.
func (s *Server) handleListBranches(c *fiber.Ctx) error {
	cid, err := parseUUIDParam(c, "cid")
	if err != nil {
		return s.writeError(c, err)
	}
	activeOnly := c.QueryBool("active_only", false)
	branches, err := s.branch.ListBranches(c.Context(), cid, activeOnly)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(branchResponses(branches))
}

// handleGetBranch handles GET /api/v1/conversations/{cid}/branches/{bid}.
func (s *Server) handleGetBranch(c *fiber.Ctx) error {
	cid, err := parseUUIDParam(c, "cid")
	if err != nil {
		return s.writeError(c, err)
	}
	bid, err := parseUUIDParam(c, "bid")
	if err != nil {
		return s.writeError(c, err)
	}
	b, err := s.branch.GetBranch(c.Context(), cid, bid)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(branchResponse(b))
}

// handleUpdateBranch handles PUT /api/v1/conversations/{cid}/branches/{bid}.
func (s *Server) handleUpdateBranch(c *fiber.Ctx) error {
	cid, err := parseUUIDParam(c, "cid")
	if err != nil {
		return s.writeError(c, err)
	}
	bid, err := parseUUIDParam(c, "bid")
	if err != nil {
		return s.writeError(c, err)
	}
	var req updateBranchRequest
	if err := c.BodyParser(&req); err != nil {
		return s.writeError(c, apierr.InvalidInput("invalid request body"))
	}
	b, err := s.branch.UpdateBranch(c.Context(), cid, bid, req.BranchName, req.Leaf)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(branchResponse(b))
}

// handleDeleteBranch handles DELETE /api/v1/conversations/{cid}/branches/{bid}.
func (s *Server) handleDeleteBranch(c *fiber.Ctx) error {
	cid, err := parseUUIDParam(c, "cid")
	if err != nil {
		return s.writeError(c, err)
	}
	bid, err := parseUUIDParam(c, "bid")
	if err != nil {
		return s.writeError(c, err)
	}
	hard := c.QueryBool("hard", false)
	if err := s.branch.DeleteBranch(c.Context(), cid, bid, hard); err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleGetBranchMessages handles GET /api/v1/conversations/{cid}/branches/{bid}/messages.
func (s *Server) handleGetBranchMessages(c *fiber.Ctx) error {
	cid, err := parseUUIDParam(c, "cid")
	if err != nil {
		return s.writeError(c, err)
	}
	bid, err := parseUUIDParam(c, "bid")
	if err != nil {
		return s.writeError(c, err)
	}
	messages, err := s.branch.GetBranchMessages(c.Context(), cid, bid, s.repo)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(messageResponses(messages))
}

// handleForkConversation handles POST /api/v1/conversations/{cid}/fork.
func (s *Server) handleForkConversation(c *fiber.Ctx) error {
	cid, err := parseUUIDParam(c, "cid")
	if err != nil {
		return s.writeError(c, err)
	}
	var req forkRequest
	if err := c.BodyParser(&req); err != nil {
		return s.writeError(c, apierr.InvalidInput("invalid request body"))
	}
	if req.CreatedBy == "" {
		req.CreatedBy = callerID(c)
	}
	dest, err := s.fork.ForkConversation(c.Context(), cid, req.Title, req.CreatedBy)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(conversationResponse(dest))
}

// handleForkBranch handles POST /api/v1/conversations/{cid}/branches/{bid}/fork.
func (s *Server) handleForkBranch(c *fiber.Ctx) error {
	cid, err := parseUUIDParam(c, "cid")
	if err != nil {
		return s.writeError(c, err)
	}
	bid, err := parseUUIDParam(c, "bid")
	if err != nil {
		return s.writeError(c, err)
	}
	var req forkRequest
	if err := c.BodyParser(&req); err != nil {
		return s.writeError(c, apierr.InvalidInput("invalid request body"))
	}
	if req.CreatedBy == "" {
		req.CreatedBy = callerID(c)
	}
	dest, err := s.fork.ForkBranch(c.Context(), cid, bid, req.Title, req.CreatedBy)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(conversationResponse(dest))
}

// handleForkFromMessage handles POST /api/v1/conversations/{cid}/messages/{mid}/fork.
func (s *Server) handleForkFromMessage(c *fiber.Ctx) error {
	cid, err := parseUUIDParam(c, "cid")
	if err != nil {
		return s.writeError(c, err)
	}
	mid, err := parseUUIDParam(c, "mid")
	if err != nil {
		return s.writeError(c, err)
	}
	var req forkRequest
	if err := c.BodyParser(&req); err != nil {
		return s.writeError(c, apierr.InvalidInput("invalid request body"))
	}
	if req.CreatedBy == "" {
		req.CreatedBy = callerID(c)
	}
	dest, err := s.fork.ForkFromMessage(c.Context(), cid, mid, req.Title, req.CreatedBy)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(conversationResponse(dest))
}

// handleGrantShare handles POST /api/v1/conversations/{cid}/share.
func (s *Server) handleGrantShare(c *fiber.Ctx) error {
	cid, err := parseUUIDParam(c, "cid")
	if err != nil {
		return s.writeError(c, err)
	}
	var req shareRequest
	if err := c.BodyParser(&req); err != nil {
		return s.writeError(c, apierr.InvalidInput("invalid request body"))
	}
	if req.SharedBy == "" {
		req.SharedBy = callerID(c)
	}
	sh, err := s.share.Grant(c.Context(), cid, req.SharedWith, req.Permission, req.SharedBy)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(shareResponse(sh))
}

// handleListShares handles GET /api/v1/conversations/{cid}/shares.
func (s *Server) handleListShares(c *fiber.Ctx) error {
	cid, err := parseUUIDParam(c, "cid")
	if err != nil {
		return s.writeError(c, err)
	}
	shares, err := s.share.List(c.Context(), cid)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(shareResponses(shares))
}

// handleRevokeShare handles DELETE /api/v1/conversations/{cid}/shares/{uid}.
func (s *Server) handleRevokeShare(c *fiber.Ctx) error {
	cid, err := parseUUIDParam(c, "cid")
	if err != nil {
		return s.writeError(c, err)
	}
	uid := c.Params("uid")
	if err := s.share.Revoke(c.Context(), cid, uid); err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleListUserConversations handles GET /api/v1/users/{uid}/conversations.
func (s *Server) handleListUserConversations(c *fiber.Ctx) error {
	uid := c.Params("uid")
	shares, err := s.share.ListForUser(c.Context(), uid)
	if err != nil {
		return s.writeError(c, err)
	}
	activity, err := s.share.ListActivity(c.Context(), uid, 0)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"shares":   shareResponses(shares),
		"activity": userActivityResponses(activity),
	})
}
