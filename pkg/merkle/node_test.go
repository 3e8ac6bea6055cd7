package merkle_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/capsule/pkg/llm"
	"github.com/papercomputeco/capsule/pkg/merkle"
)

// testBucket creates a simple user bucket for testing with the given text content
func testBucket(text string) merkle.Bucket {
	return merkle.NewTurnBucket(llm.NewUserTurn(text), "")
}

var _ = Describe("Node", func() {
	Describe("NewNode", func() {
		Context("when creating a root node (no parent)", func() {
			It("creates a node with the given bucket", func() {
				bucket := testBucket("hello world")
				node := merkle.NewNode(bucket, nil)

				Expect(node.Bucket).To(Equal(bucket))
				Expect(node.IsRoot()).To(BeTrue())
			})

			It("produces the same hash for the same content", func() {
				node1 := merkle.NewNode(testBucket("same content"), nil)
				node2 := merkle.NewNode(testBucket("same content"), nil)

				Expect(node1.Hash).To(Equal(node2.Hash))
			})

			It("produces different hashes for different content", func() {
				node1 := merkle.NewNode(testBucket("content A"), nil)
				node2 := merkle.NewNode(testBucket("content B"), nil)

				Expect(node1.Hash).NotTo(Equal(node2.Hash))
			})

			It("produces different hashes for different roles", func() {
				user := merkle.NewNode(merkle.NewTurnBucket(llm.NewUserTurn("hi"), ""), nil)
				assistant := merkle.NewNode(merkle.NewTurnBucket(llm.NewAssistantTurn("hi"), ""), nil)

				Expect(user.Hash).NotTo(Equal(assistant.Hash))
			})

			It("does not hash metadata", func() {
				early := merkle.NewNode(testBucket("x"), nil, merkle.NodeMeta{CreatedAt: time.Unix(10, 0)})
				late := merkle.NewNode(testBucket("x"), nil, merkle.NodeMeta{CreatedAt: time.Unix(99999, 0)})

				Expect(early.Hash).To(Equal(late.Hash))
				Expect(early.CreatedAt).To(Equal(time.Unix(10, 0).UTC()))
			})
		})

		Context("when creating a child node (with parent)", func() {
			var parent *merkle.Node

			BeforeEach(func() {
				parent = merkle.NewNode(testBucket("parent content"), nil)
			})

			It("links the child to the parent via ParentHash", func() {
				child := merkle.NewNode(testBucket("child content"), parent)

				Expect(child.ParentHash).NotTo(BeNil())
				Expect(*child.ParentHash).To(Equal(parent.Hash))
				Expect(child.IsRoot()).To(BeFalse())
			})

			It("creates a chain of nodes", func() {
				child1 := merkle.NewNode(testBucket("child 1"), parent)
				child2 := merkle.NewNode(testBucket("child 2"), child1)
				child3 := merkle.NewNode(testBucket("child 3"), child2)

				Expect(parent.ParentHash).To(BeNil())
				Expect(*child1.ParentHash).To(Equal(parent.Hash))
				Expect(*child2.ParentHash).To(Equal(child1.Hash))
				Expect(*child3.ParentHash).To(Equal(child2.Hash))
			})

			It("produces different hashes for same bucket with different parents", func() {
				parent2 := merkle.NewNode(testBucket("different parent"), nil)
				bucket := testBucket("same content")
				child1 := merkle.NewNode(bucket, parent)
				child2 := merkle.NewNode(bucket, parent2)

				Expect(child1.Hash).NotTo(Equal(child2.Hash))
			})

			It("does not share the parent's hash storage", func() {
				child := merkle.NewNode(testBucket("child"), parent)
				parent.Hash = "changed"

				Expect(*child.ParentHash).NotTo(Equal("changed"))
			})
		})
	})

	Describe("Hash computation", func() {
		It("produces a valid SHA-256 hex string (64 characters)", func() {
			node := merkle.NewNode(testBucket("test"), nil)

			Expect(node.Hash).To(MatchRegexp("^[a-f0-9]{64}$"))
		})

		It("is stable across runs", func() {
			node := merkle.NewNode(testBucket("Dear future me"), nil)

			// sha256 of {"parent":"","content":{"type":"message","role":"user","content":"Dear future me"}}
			Expect(node.Hash).To(Equal("770dc199bfd55372e825d4edc34ca41e178ee7eab8546f9515178cef6f277808"))
			Expect(node.Verify()).To(BeTrue())
		})

		It("detects tampered content", func() {
			node := merkle.NewNode(testBucket("original"), nil)
			node.Bucket.Content = "tampered"

			Expect(node.Verify()).To(BeFalse())
		})
	})
})

var _ = Describe("Bucket", func() {
	It("records the model for assistant turns only", func() {
		Expect(merkle.NewTurnBucket(llm.NewAssistantTurn("a"), "m").Model).To(Equal("m"))
		Expect(merkle.NewTurnBucket(llm.NewUserTurn("u"), "m").Model).To(BeEmpty())
	})

	It("round-trips to a turn", func() {
		turn := llm.NewAssistantTurn("I remember writing that.")
		b := merkle.NewTurnBucket(turn, "m")

		Expect(b.Type).To(Equal(merkle.BucketTypeMessage))
		Expect(b.Turn()).To(Equal(turn))
	})
})
