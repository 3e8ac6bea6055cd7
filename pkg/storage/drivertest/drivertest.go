// Package drivertest holds the ginkgo specs every storage.Driver must pass.
package drivertest

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/capsule/pkg/llm"
	"github.com/papercomputeco/capsule/pkg/merkle"
	"github.com/papercomputeco/capsule/pkg/storage"
)

// node builds a turn node created offset seconds after a fixed epoch.
func node(turn llm.Turn, parent *merkle.Node, offset int) *merkle.Node {
	return merkle.NewNode(merkle.NewTurnBucket(turn, "test-model"), parent, merkle.NodeMeta{
		CreatedAt: time.Unix(1700000000+int64(offset), 0),
	})
}

func hashes(nodes []*merkle.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Hash
	}
	return out
}

// DriverSpecs registers the shared specs. newDriver is called before each
// spec and the returned driver is closed after it.
func DriverSpecs(newDriver func(ctx context.Context) storage.Driver) {
	var (
		ctx    context.Context
		driver storage.Driver
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = nil
		driver = newDriver(ctx)
	})

	AfterEach(func() {
		if driver != nil {
			Expect(driver.Close()).To(Succeed())
		}
	})

	Describe("Put and Get", func() {
		It("stores and retrieves a node", func() {
			n := node(llm.NewUserTurn("Dear future me"), nil, 0)

			inserted, err := driver.Put(ctx, n)
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeTrue())

			got, err := driver.Get(ctx, n.Hash)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Hash).To(Equal(n.Hash))
			Expect(got.Bucket).To(Equal(n.Bucket))
			Expect(got.ParentHash).To(BeNil())
			Expect(got.CreatedAt).To(BeTemporally("==", n.CreatedAt))
			Expect(got.Verify()).To(BeTrue())
		})

		It("stores and retrieves a node with parent", func() {
			parent := node(llm.NewUserTurn("parent"), nil, 0)
			child := node(llm.NewAssistantTurn("child"), parent, 1)

			_, err := driver.Put(ctx, parent)
			Expect(err).NotTo(HaveOccurred())
			_, err = driver.Put(ctx, child)
			Expect(err).NotTo(HaveOccurred())

			got, err := driver.Get(ctx, child.Hash)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ParentHash).NotTo(BeNil())
			Expect(*got.ParentHash).To(Equal(parent.Hash))
			Expect(got.Bucket.Model).To(Equal("test-model"))
		})

		It("deduplicates identical nodes", func() {
			n := node(llm.NewUserTurn("same"), nil, 0)

			inserted, err := driver.Put(ctx, n)
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeTrue())

			inserted, err = driver.Put(ctx, node(llm.NewUserTurn("same"), nil, 50))
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeFalse())

			all, err := driver.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(1))
		})

		It("rejects a nil node", func() {
			_, err := driver.Put(ctx, nil)
			Expect(err).To(MatchError(storage.ErrNilNode))
		})

		It("returns NotFoundError for an unknown hash", func() {
			_, err := driver.Get(ctx, "missing")
			Expect(err).To(HaveOccurred())
			Expect(storage.IsNotFound(err)).To(BeTrue())
			Expect(err).To(MatchError(storage.NotFoundError{Hash: "missing"}))
		})
	})

	Describe("Has", func() {
		It("reports existence", func() {
			n := node(llm.NewUserTurn("x"), nil, 0)
			_, err := driver.Put(ctx, n)
			Expect(err).NotTo(HaveOccurred())

			Expect(driver.Has(ctx, n.Hash)).To(BeTrue())
			Expect(driver.Has(ctx, "missing")).To(BeFalse())
		})
	})

	Context("with a branching conversation", func() {
		//     letter
		//       |
		//     reply
		//     /    \
		//  again  thanks
		var letter, reply, again, thanks *merkle.Node

		BeforeEach(func() {
			letter = node(llm.NewUserTurn("letter"), nil, 0)
			reply = node(llm.NewAssistantTurn("reply"), letter, 1)
			again = node(llm.NewUserTurn("again"), reply, 2)
			thanks = node(llm.NewUserTurn("thanks"), reply, 3)
			for _, n := range []*merkle.Node{thanks, letter, again, reply} {
				_, err := driver.Put(ctx, n)
				Expect(err).NotTo(HaveOccurred())
			}
		})

		It("lists all nodes oldest first", func() {
			all, err := driver.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(hashes(all)).To(Equal(hashes([]*merkle.Node{letter, reply, again, thanks})))
		})

		It("finds roots and leaves", func() {
			roots, err := driver.Roots(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(hashes(roots)).To(Equal([]string{letter.Hash}))

			leaves, err := driver.Leaves(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(hashes(leaves)).To(Equal([]string{again.Hash, thanks.Hash}))
		})

		It("finds children by parent", func() {
			children, err := driver.GetByParent(ctx, &reply.Hash)
			Expect(err).NotTo(HaveOccurred())
			Expect(hashes(children)).To(Equal([]string{again.Hash, thanks.Hash}))

			none, err := driver.GetByParent(ctx, &thanks.Hash)
			Expect(err).NotTo(HaveOccurred())
			Expect(none).To(BeEmpty())
		})

		It("returns ancestry node first", func() {
			path, err := driver.Ancestry(ctx, thanks.Hash)
			Expect(err).NotTo(HaveOccurred())
			Expect(hashes(path)).To(Equal([]string{thanks.Hash, reply.Hash, letter.Hash}))
		})

		It("fails ancestry for an unknown hash", func() {
			_, err := driver.Ancestry(ctx, "missing")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("computes depth", func() {
			Expect(driver.Depth(ctx, letter.Hash)).To(Equal(0))
			Expect(driver.Depth(ctx, again.Hash)).To(Equal(2))
		})

		It("loads a merkle dag", func() {
			dag, err := merkle.LoadDag(ctx, driver, letter.Hash)
			Expect(err).NotTo(HaveOccurred())
			Expect(dag.Size()).To(Equal(4))
			Expect(dag.IsBranching(reply.Hash)).To(BeTrue())
		})
	})
}
