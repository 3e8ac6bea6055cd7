package stream_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing/iotest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/capsule/pkg/conversation"
	"github.com/papercomputeco/capsule/pkg/llm"
	"github.com/papercomputeco/capsule/pkg/stream"
)

// chunkedReader returns each of its chunks from a separate Read call.
type chunkedReader struct {
	chunks [][]byte
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if len(r.chunks[0]) == 0 {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func splitAt(raw []byte, offsets ...int) [][]byte {
	var chunks [][]byte
	prev := 0
	for _, off := range offsets {
		chunks = append(chunks, raw[prev:off])
		prev = off
	}
	return append(chunks, raw[prev:])
}

func consume(chunks [][]byte) (stream.Result, *conversation.Recorder) {
	rec := &conversation.Recorder{}
	a := stream.New(rec, 0)
	res := stream.Consume(context.Background(), a, &chunkedReader{chunks: chunks})
	return res, rec
}

var _ = Describe("Consume", func() {
	fragments := []string{"Dear ", "past me,\n", "caf", "é ", "🌊", " \"quoted\"", "."}
	var wire string

	BeforeEach(func() {
		var sb strings.Builder
		sb.WriteString(": connected\n\n")
		for i, f := range fragments {
			sb.WriteString(contentFrame(f))
			if i%2 == 1 {
				sb.WriteString(": ping\r\n\r\n")
			}
		}
		sb.WriteString("data: [DONE]\n\n")
		wire = sb.String()
	})

	It("assembles the concatenation of all fragments", func() {
		res, rec := consume([][]byte{[]byte(wire)})

		Expect(res.State).To(Equal(stream.Completed))
		Expect(res.Turn.Content).To(Equal(strings.Join(fragments, "")))
		Expect(res.Fragments).To(Equal(len(fragments)))
		Expect(rec.Pushes()).To(HaveLen(len(fragments)))
	})

	It("is unaffected by a split at any byte offset", func() {
		raw := []byte(wire)
		want := strings.Join(fragments, "")
		for off := 0; off <= len(raw); off++ {
			res, _ := consume(splitAt(raw, off))
			Expect(res.State).To(Equal(stream.Completed), "split at %d", off)
			Expect(res.Turn).NotTo(BeNil(), "split at %d", off)
			Expect(res.Turn.Content).To(Equal(want), "split at %d", off)
		}
	})

	It("is unaffected by one-byte reads", func() {
		rec := &conversation.Recorder{}
		a := stream.New(rec, 0)
		res := stream.Consume(context.Background(), a, iotest.OneByteReader(strings.NewReader(wire)))

		Expect(res.Turn.Content).To(Equal(strings.Join(fragments, "")))
		Expect(res.Rebuffered).To(BeZero())
	})

	DescribeTable("splits a line into three chunks",
		func(first, second int) {
			line := []byte(contentFrame("Hello, wörld") + "data: [DONE]\n")
			res, _ := consume(splitAt(line, first, second))
			Expect(res.Turn.Content).To(Equal("Hello, wörld"))
		},
		Entry("inside the prefix", 2, 4),
		Entry("around the payload start", 6, 7),
		Entry("inside the multibyte rune", 100, 112),
		Entry("right before the terminator", 10, 143),
	)

	It("processes a tail left unterminated by the transport", func() {
		res, _ := consume([][]byte{[]byte(strings.TrimSuffix(contentFrame("end"), "\n\n"))})
		Expect(res.State).To(Equal(stream.Completed))
		Expect(res.Turn.Content).To(Equal("end"))
	})

	It("fails and appends a notice when the connection drops", func() {
		rec := &conversation.Recorder{}
		a := stream.New(rec, 1)
		r := io.MultiReader(
			strings.NewReader(contentFrame("Once upon a time")),
			iotest.ErrReader(errors.New("connection reset by peer")),
		)

		res := stream.Consume(context.Background(), a, r)

		Expect(res.State).To(Equal(stream.Failed))
		Expect(res.Err).To(MatchError("connection reset by peer"))
		Expect(rec.Pushes()).To(Equal([]conversation.Push{
			{Index: 1, Turn: llm.NewAssistantTurn("Once upon a time")},
			{Index: 2, Turn: llm.NewAssistantTurn("*Connection lost.* connection reset by peer")},
		}))
	})

	It("stops without publishing when the context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		rec := &conversation.Recorder{}
		a := stream.New(rec, 0)

		first := true
		r := readerFunc(func(p []byte) (int, error) {
			if first {
				first = false
				return copy(p, contentFrame("one")), nil
			}
			cancel()
			return copy(p, contentFrame("two")), nil
		})

		res := stream.Consume(ctx, a, r)

		Expect(res.State).To(Equal(stream.Failed))
		Expect(res.Err).To(MatchError(context.Canceled))
		Expect(res.Notice).To(BeNil())
		Expect(rec.Turns()).To(Equal([]llm.Turn{llm.NewAssistantTurn("one")}))
	})

	It("does not read past the terminator", func() {
		reads := 0
		payload := contentFrame("only") + "data: [DONE]\n"
		r := readerFunc(func(p []byte) (int, error) {
			reads++
			if reads > 1 {
				return 0, errors.New("read after terminator")
			}
			return copy(p, payload), nil
		})

		res := stream.Consume(context.Background(), stream.New(&conversation.Recorder{}, 0), r)
		Expect(res.State).To(Equal(stream.Completed))
		Expect(reads).To(Equal(1))
	})
})

type readerFunc func(p []byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) {
	return f(p)
}
