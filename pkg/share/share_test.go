package share_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/branchweave/branchweave/pkg/apierr"
	"github.com/branchweave/branchweave/pkg/convo"
	"github.com/branchweave/branchweave/pkg/share"
	"github.com/branchweave/branchweave/pkg/store/memory"
)

func TestShare(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Share Ledger Suite")
}

var _ = Describe("Ledger", func() {
	var (
		ctx            context.Context
		ledger         *share.Ledger
		conversationID uuid.UUID
	)

	BeforeEach(func() {
		ctx = context.Background()
		ledger = share.New(memory.New())
		conversationID = uuid.New()
	})

	Describe("Grant", func() {
		It("rejects an unrecognized permission", func() {
			_, err := ledger.Grant(ctx, conversationID, "bob", convo.Permission("admin"), "alice")
			Expect(apierr.KindOf(err)).To(Equal(apierr.KindInvalidInput))
		})

		It("rejects an empty grantee", func() {
			_, err := ledger.Grant(ctx, conversationID, "", convo.PermissionRead, "alice")
			Expect(apierr.KindOf(err)).To(Equal(apierr.KindInvalidInput))
		})

		It("replaces a prior grant to the same grantee rather than duplicating it", func() {
			_, err := ledger.Grant(ctx, conversationID, "bob", convo.PermissionRead, "alice")
			Expect(err).NotTo(HaveOccurred())

			_, err = ledger.Grant(ctx, conversationID, "bob", convo.PermissionBranch, "alice")
			Expect(err).NotTo(HaveOccurred())

			shares, err := ledger.List(ctx, conversationID)
			Expect(err).NotTo(HaveOccurred())
			Expect(shares).To(HaveLen(1))
			Expect(shares[0].Permission).To(Equal(convo.PermissionBranch))
		})
	})

	Describe("List and ListForUser", func() {
		It("surfaces a grant from both the per-conversation and reverse-user views", func() {
			_, err := ledger.Grant(ctx, conversationID, "bob", convo.PermissionFork, "alice")
			Expect(err).NotTo(HaveOccurred())

			byConv, err := ledger.List(ctx, conversationID)
			Expect(err).NotTo(HaveOccurred())
			Expect(byConv).To(HaveLen(1))

			byUser, err := ledger.ListForUser(ctx, "bob")
			Expect(err).NotTo(HaveOccurred())
			Expect(byUser).To(HaveLen(1))
			Expect(byUser[0].ConversationID).To(Equal(conversationID))
		})
	})

	Describe("Revoke", func() {
		It("removes the grant", func() {
			_, err := ledger.Grant(ctx, conversationID, "bob", convo.PermissionRead, "alice")
			Expect(err).NotTo(HaveOccurred())

			Expect(ledger.Revoke(ctx, conversationID, "bob")).To(Succeed())

			shares, err := ledger.List(ctx, conversationID)
			Expect(err).NotTo(HaveOccurred())
			Expect(shares).To(BeEmpty())
		})

		It("returns not found when revoking a grant that was never made", func() {
			err := ledger.Revoke(ctx, conversationID, "ghost")
			Expect(apierr.KindOf(err)).To(Equal(apierr.KindNotFound))
		})
	})

	Describe("TouchActivity and ListActivity", func() {
		It("records and returns the user's recent conversations", func() {
			branchID := uuid.New()
			Expect(ledger.TouchActivity(ctx, "bob", conversationID, &branchID)).To(Succeed())

			activity, err := ledger.ListActivity(ctx, "bob", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(activity).To(HaveLen(1))
			Expect(activity[0].ConversationID).To(Equal(conversationID))
			Expect(*activity[0].ActiveBranchID).To(Equal(branchID))
		})
	})
})
