package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/branchweave/branchweave/pkg/branch"
	"github.com/branchweave/branchweave/pkg/fork"
	"github.com/branchweave/branchweave/pkg/repo"
	"github.com/branchweave/branchweave/pkg/share"
)

// callerIDKey is the fiber.Ctx locals key the auth middleware stores the
// caller identity under.
const callerIDKey = "caller_id"

// Server is the API server for the persistence and query service.
type Server struct {
	config Config
	repo   *repo.Repository
	branch *branch.Manager
	fork   *fork.Engine
	share  *share.Ledger
	logger *slog.Logger
	app    *fiber.App
}

// NewServer wires the four core components (repository, branch manager,
// fork engine, share ledger) behind /api/v1.
func NewServer(config Config, r *repo.Repository, b *branch.Manager, f *fork.Engine, sh *share.Ledger, logger *slog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		repo:   r,
		branch: b,
		fork:   f,
		share:  sh,
		logger: logger,
		app:    app,
	}

	app.Use(s.callerIDMiddleware)

	app.Get("/health", s.handleHealth)

	v1 := app.Group("/api/v1")

	v1.Post("/conversations", s.handleCreateConversation)
	v1.Get("/conversations/:cid", s.handleGetConversation)
	v1.Put("/conversations/:cid", s.handleUpdateConversation)
	v1.Delete("/conversations/:cid", s.handleDeleteConversation)
	v1.Get("/conversations/:cid/tree", s.handleGetTree)

	v1.Post("/conversations/:cid/messages", s.handleAppendMessage)
	v1.Get("/conversations/:cid/messages/:mid", s.handleGetMessage)
	v1.Get("/conversations/:cid/messages/:mid/children", s.handleGetChildren)
	v1.Get("/conversations/:cid/messages/:mid/lineage", s.handleGetLineage)

	v1.Post("/conversations/:cid/branches", s.handleCreateBranch)
	v1.Get("/conversations/:cid/branches", s.handleListBranches)
	v1.Get("/conversations/:cid/branches/:bid", s.handleGetBranch)
	v1.Put("/conversations/:cid/branches/:bid", s.handleUpdateBranch)
	v1.Delete("/conversations/:cid/branches/:bid", s.handleDeleteBranch)
	v1.Get("/conversations/:cid/branches/:bid/messages", s.handleGetBranchMessages)

	v1.Post("/conversations/:cid/fork", s.handleForkConversation)
	v1.Post("/conversations/:cid/branches/:bid/fork", s.handleForkBranch)
	v1.Post("/conversations/:cid/messages/:mid/fork", s.handleForkFromMessage)

	v1.Post("/conversations/:cid/share", s.handleGrantShare)
	v1.Get("/conversations/:cid/shares", s.handleListShares)
	v1.Delete("/conversations/:cid/shares/:uid", s.handleRevokeShare)
	v1.Get("/users/:uid/conversations", s.handleListUserConversations)

	return s
}

// callerIDMiddleware extracts the caller identity from X-User-ID. No
// token validation is performed; per the system's scope, permission
// enforcement on reads is not attempted here.
func (s *Server) callerIDMiddleware(c *fiber.Ctx) error {
	c.Locals(callerIDKey, c.Get("X-User-ID"))
	return c.Next()
}

func callerID(c *fiber.Ctx) string {
	id, _ := c.Locals(callerIDKey).(string)
	return id
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
