package stream_test

import (
	"encoding/json"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/capsule/pkg/conversation"
	"github.com/papercomputeco/capsule/pkg/llm"
	"github.com/papercomputeco/capsule/pkg/stream"
)

// dataLine encodes a chunk as a single "data:" line followed by the blank
// separator line.
func dataLine(chunk llm.CompletionChunk) string {
	b, err := json.Marshal(chunk)
	Expect(err).NotTo(HaveOccurred())
	return "data: " + string(b) + "\n\n"
}

func contentFrame(fragment string) string {
	return dataLine(llm.NewContentChunk("future-you", fragment))
}

func feedAll(a *stream.Assembler, chunks ...string) {
	for _, c := range chunks {
		a.Feed([]byte(c))
	}
}

var _ = Describe("Assembler", func() {
	var (
		rec *conversation.Recorder
		a   *stream.Assembler
	)

	BeforeEach(func() {
		rec = &conversation.Recorder{}
		a = stream.New(rec, 3)
	})

	It("starts idle", func() {
		Expect(a.State()).To(Equal(stream.Idle))
		Expect(a.Result().Turn).To(BeNil())
	})

	It("joins a payload split mid-string across chunks", func() {
		feedAll(a,
			`data: {"choices":[{"delta":{"content":"Hel`,
			`lo"}}]}`+"\n",
			"data: [DONE]\n",
		)

		res := a.Result()
		Expect(res.State).To(Equal(stream.Completed))
		Expect(res.Turn).NotTo(BeNil())
		Expect(res.Turn.Content).To(Equal("Hello"))
		Expect(res.Completed()).To(BeTrue())
	})

	It("republishes the growing turn at a fixed index", func() {
		feedAll(a, contentFrame("Once"), contentFrame(" upon"), contentFrame(" a time"))

		pushes := rec.Pushes()
		Expect(pushes).To(HaveLen(3))
		for _, p := range pushes {
			Expect(p.Index).To(Equal(3))
			Expect(p.Turn.Role).To(Equal(llm.RoleAssistant))
		}
		Expect(pushes[0].Turn.Content).To(Equal("Once"))
		Expect(pushes[1].Turn.Content).To(Equal("Once upon"))
		Expect(pushes[2].Turn.Content).To(Equal("Once upon a time"))
		Expect(a.State()).To(Equal(stream.Streaming))
	})

	It("ignores comments, blank lines and other fields", func() {
		feedAll(a,
			": keep-alive\n",
			"\n",
			"event: message\n",
			contentFrame("a"),
			":\n\r\n",
			"id: 7\n",
			contentFrame("b"),
			"data: [DONE]\n",
		)

		Expect(a.Result().Turn.Content).To(Equal("ab"))
		Expect(rec.Pushes()).To(HaveLen(2))
	})

	It("ignores payloads without content", func() {
		role := llm.CompletionChunk{Choices: []llm.ChunkChoice{{Delta: llm.ChunkDelta{Role: llm.RoleAssistant}}}}
		feedAll(a,
			dataLine(role),
			`data: {"choices":[]}`+"\n",
			`data: {"choices":[{"delta":{"content":42}}]}`+"\n",
			`data: {"usage":{"total_tokens":3}}`+"\n",
		)
		Expect(a.State()).To(Equal(stream.Idle))
		Expect(rec.Pushes()).To(BeEmpty())

		feedAll(a, contentFrame("x"), dataLine(llm.NewFinishChunk("future-you", "stop")))
		Expect(a.State()).To(Equal(stream.Streaming))
		Expect(a.Result().Turn.Content).To(Equal("x"))
	})

	It("stops at the terminator even with more lines buffered", func() {
		feedAll(a, contentFrame("A")+"data: [DONE]\n\n"+contentFrame("B"))
		feedAll(a, contentFrame("C"))

		Expect(a.State()).To(Equal(stream.Completed))
		Expect(a.Result().Turn.Content).To(Equal("A"))
		Expect(rec.Pushes()).To(HaveLen(1))
	})

	Context("when a payload fails to parse", func() {
		It("joins it with the bytes that complete it", func() {
			feedAll(a,
				`data: {"choices":[{"delta":{"content":"Hel`+"\n",
			)
			Expect(a.State()).To(Equal(stream.Idle))
			Expect(rec.Pushes()).To(BeEmpty())

			feedAll(a, `lo"}}]}`+"\n", "data: [DONE]\n")

			res := a.Result()
			Expect(res.Turn.Content).To(Equal("Hello"))
			Expect(res.Rebuffered).To(Equal(1))
			Expect(res.Dropped).To(BeZero())
		})

		It("publishes the joined fragment as soon as a blank separator is crossed", func() {
			feedAll(a, `data: {"choices":[{"delta":{"content":"Hel`+"\n\n")
			Expect(rec.Pushes()).To(BeEmpty())

			feedAll(a, `lo"}}]}`+"\n\n")
			Expect(rec.Pushes()).To(HaveLen(1))
			Expect(rec.Pushes()[0].Turn.Content).To(Equal("Hello"))

			res := a.Result()
			Expect(res.State).To(Equal(stream.Streaming))
			Expect(res.Rebuffered).To(Equal(1))
			Expect(res.Dropped).To(BeZero())
		})

		It("keeps joining across several blank lines", func() {
			feedAll(a, `data: {"choices":[{"delta":{"content":"a`+"\n\r\n\n")
			feedAll(a, `b"}}]}`+"\n", "data: [DONE]\n")

			res := a.Result()
			Expect(res.State).To(Equal(stream.Completed))
			Expect(res.Turn.Content).To(Equal("ab"))
		})

		It("waits for more bytes before processing later lines", func() {
			feedAll(a, `data: {"choices":[{"delta":{"content":"x`+"\n"+contentFrame("later"))
			Expect(rec.Pushes()).To(BeEmpty())

			feedAll(a, "\n")
			Expect(a.Result().Turn.Content).To(Equal("later"))
			Expect(a.Result().Dropped).To(Equal(1))
		})

		It("drops the fragment when a new data frame follows it", func() {
			feedAll(a, "data: {broken\n")
			feedAll(a, contentFrame("fine"), "data: [DONE]\n")

			res := a.Result()
			Expect(res.State).To(Equal(stream.Completed))
			Expect(res.Turn.Content).To(Equal("fine"))
			Expect(res.Dropped).To(Equal(1))
		})

		It("drops a fragment larger than MaxCarry", func() {
			huge := "data: {" + strings.Repeat("a", stream.MaxCarry) + "\n"
			feedAll(a, huge, contentFrame("ok"))

			res := a.Result()
			Expect(res.Turn.Content).To(Equal("ok"))
			Expect(res.Rebuffered).To(BeZero())
			Expect(res.Dropped).To(Equal(1))
		})
	})

	Context("when the terminator arrives before any fragment", func() {
		It("completes without publishing an empty turn", func() {
			feedAll(a, ": hello\n", "data: [DONE]\n")

			res := a.Result()
			Expect(res.State).To(Equal(stream.Completed))
			Expect(res.Turn).To(BeNil())
			Expect(res.Completed()).To(BeFalse())
			Expect(rec.Pushes()).To(BeEmpty())
		})
	})

	Describe("Finish", func() {
		It("completes a stream that ends without the terminator", func() {
			feedAll(a, contentFrame("tail-less"))
			Expect(a.Finish()).To(Equal(stream.Completed))
			Expect(a.Result().Turn.Content).To(Equal("tail-less"))
		})

		It("processes an unterminated final line", func() {
			feedAll(a, contentFrame("a"), strings.TrimSuffix(contentFrame("b"), "\n\n"))
			Expect(rec.Pushes()).To(HaveLen(1))

			a.Finish()
			Expect(a.Result().Turn.Content).To(Equal("ab"))
		})

		It("silently drops an unparsable tail", func() {
			feedAll(a, contentFrame("kept"), `data: {"choices":[{"delta":`)

			Expect(a.Finish()).To(Equal(stream.Completed))
			res := a.Result()
			Expect(res.Turn.Content).To(Equal("kept"))
			Expect(res.Dropped).To(Equal(1))
			Expect(res.Err).NotTo(HaveOccurred())
		})

		It("still joins a carried fragment with the rest of the buffer", func() {
			feedAll(a, `data: {"choices":[{"delta":{"content":"Hel`+"\n"+`lo"}}]}`)
			Expect(rec.Pushes()).To(BeEmpty())

			a.Finish()
			Expect(a.Result().Turn.Content).To(Equal("Hello"))
		})

		It("flushes an incomplete character as a replacement", func() {
			raw := []byte(strings.TrimSuffix(contentFrame("é"), "\n\n"))
			// drop the closing bytes so the tail is malformed JSON holding a
			// lone lead byte
			idx := strings.Index(string(raw), "é")
			feedAll(a, contentFrame("x"), string(raw[:idx+1]))

			a.Finish()
			Expect(a.Result().Turn.Content).To(Equal("x"))
			Expect(a.Result().Dropped).To(Equal(1))
		})

		It("completes an idle stream without a turn", func() {
			Expect(a.Finish()).To(Equal(stream.Completed))
			Expect(a.Result().Turn).To(BeNil())
			Expect(rec.Pushes()).To(BeEmpty())
		})
	})

	Describe("Fail", func() {
		It("publishes a single notice in place of a reply that never started", func() {
			Expect(a.Fail(errors.New("Failed to connect"))).To(Equal(stream.Failed))

			Expect(rec.Pushes()).To(Equal([]conversation.Push{
				{Index: 3, Turn: llm.NewAssistantTurn("*Connection lost.* Failed to connect")},
			}))
			res := a.Result()
			Expect(res.Turn).To(BeNil())
			Expect(res.Notice).NotTo(BeNil())
			Expect(res.Err).To(MatchError("Failed to connect"))
		})

		It("keeps partial content and appends the notice after it", func() {
			feedAll(a, contentFrame("Once upon a time"))
			a.Fail(errors.New("unexpected EOF"))

			Expect(rec.Turns()).To(Equal([]llm.Turn{
				llm.NewAssistantTurn("Once upon a time"),
				llm.NewAssistantTurn("*Connection lost.* unexpected EOF"),
			}))
			Expect(rec.Pushes()[1].Index).To(Equal(4))
			Expect(a.Result().Turn.Content).To(Equal("Once upon a time"))
		})

		It("is ignored once the stream completed", func() {
			feedAll(a, contentFrame("done"), "data: [DONE]\n")
			Expect(a.Fail(errors.New("late"))).To(Equal(stream.Completed))
			Expect(rec.Pushes()).To(HaveLen(1))
		})
	})

	Describe("Abort", func() {
		It("publishes nothing further", func() {
			feedAll(a, contentFrame("partial"))
			a.Abort(errors.New("cancelled"))
			feedAll(a, contentFrame("more"))

			Expect(a.State()).To(Equal(stream.Failed))
			Expect(rec.Pushes()).To(HaveLen(1))
			Expect(a.Result().Notice).To(BeNil())
		})
	})
})

var _ = Describe("FailureNotice", func() {
	It("uses the error text as the detail", func() {
		Expect(stream.FailureNotice(errors.New("Rate limited"))).To(Equal("*Connection lost.* Rate limited"))
	})

	It("falls back to a generic detail", func() {
		Expect(stream.FailureNotice(nil)).To(Equal("*Connection lost.* Please try again."))
		Expect(stream.FailureNotice(errors.New("  "))).To(Equal("*Connection lost.* Please try again."))
	})

	It("recognises notice turns", func() {
		Expect(stream.IsNotice(stream.NoticeTurn(errors.New("boom")))).To(BeTrue())
		Expect(stream.IsNotice(llm.NewAssistantTurn("*Connection lost.*"))).To(BeFalse())
		Expect(stream.IsNotice(llm.NewUserTurn("*Connection lost.* typed by hand"))).To(BeFalse())
		Expect(stream.IsNotice(llm.NewAssistantTurn("Hello"))).To(BeFalse())
	})
})

var _ = Describe("State", func() {
	It("knows which states are terminal", func() {
		Expect(stream.Idle.Terminal()).To(BeFalse())
		Expect(stream.Streaming.Terminal()).To(BeFalse())
		Expect(stream.Completed.Terminal()).To(BeTrue())
		Expect(stream.Failed.Terminal()).To(BeTrue())
		Expect(stream.State(42).String()).To(Equal("unknown"))
	})
})
