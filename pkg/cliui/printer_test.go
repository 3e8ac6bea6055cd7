package cliui_test

import (
	"bytes"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/capsule/pkg/cliui"
	"github.com/papercomputeco/capsule/pkg/llm"
	"github.com/papercomputeco/capsule/pkg/stream"
)

var _ = Describe("StreamPrinter", func() {
	var (
		out     *bytes.Buffer
		printer *cliui.StreamPrinter
	)

	BeforeEach(func() {
		out = &bytes.Buffer{}
		printer = cliui.NewStreamPrinter(out)
	})

	It("prints only the unseen suffix of a growing turn", func() {
		printer.Publish(1, llm.NewAssistantTurn("Hel"))
		printer.Publish(1, llm.NewAssistantTurn("Hello"))
		printer.Publish(1, llm.NewAssistantTurn("Hello"))
		printer.Done()

		Expect(out.String()).To(Equal(cliui.FutureLabel + " Hello\n\n"))
	})

	It("separates turns", func() {
		printer.Publish(0, llm.NewUserTurn("Hi"))
		printer.Publish(1, llm.NewAssistantTurn("Hello"))
		printer.Done()

		Expect(out.String()).To(Equal(cliui.UserLabel + " Hi\n\n" + cliui.FutureLabel + " Hello\n\n"))
	})

	It("skips user turns when echo is off", func() {
		printer.SetEchoUser(false)
		printer.Publish(0, llm.NewUserTurn("typed already"))
		printer.Publish(1, llm.NewAssistantTurn("Hi"))
		printer.Done()

		Expect(out.String()).To(Equal(cliui.FutureLabel + " Hi\n\n"))
	})

	It("reprints a turn that was rewritten", func() {
		printer.Publish(1, llm.NewAssistantTurn("Hello"))
		printer.Publish(1, llm.NewAssistantTurn("Help"))

		Expect(out.String()).To(Equal(cliui.FutureLabel + " Hello\n" + cliui.FutureLabel + " Help"))
	})

	It("prints notices on their own line after a partial reply", func() {
		printer.Publish(1, llm.NewAssistantTurn("Once upon a time"))
		printer.Publish(2, stream.NoticeTurn(errors.New("connection reset")))
		printer.Done()

		Expect(out.String()).To(Equal(
			cliui.FutureLabel + " Once upon a time\n\n" +
				cliui.NoticeStyle.Render("*Connection lost.* connection reset") + "\n",
		))
	})

	It("does nothing on Done without output", func() {
		printer.Done()
		Expect(out.String()).To(BeEmpty())
	})
})

var _ = Describe("helpers", func() {
	It("formats durations", func() {
		Expect(cliui.FormatDuration(12_000_000)).To(Equal("12ms"))
		Expect(cliui.FormatDuration(3_200_000_000)).To(Equal("3.2s"))
	})

	It("marks errors", func() {
		Expect(cliui.Mark(nil)).To(Equal(cliui.SuccessMark))
		Expect(cliui.Mark(errors.New("x"))).To(Equal(cliui.FailMark))
	})

	It("runs a step and reports its error", func() {
		var buf bytes.Buffer
		err := cliui.Step(&buf, "Saving letter", func() error { return errors.New("disk full") })
		Expect(err).To(MatchError("disk full"))
		Expect(buf.String()).To(ContainSubstring("Saving letter"))
		Expect(buf.String()).To(ContainSubstring(cliui.FailMark))
	})

	It("writes a single final line when the writer is not a terminal", func() {
		var buf bytes.Buffer
		Expect(cliui.Step(&buf, "Sealing", func() error { return nil })).To(Succeed())

		Expect(buf.String()).NotTo(ContainSubstring("\r"))
		Expect(strings.Count(buf.String(), "\n")).To(Equal(1))
		Expect(buf.String()).To(HavePrefix("  " + cliui.SuccessMark + " Sealing "))
	})

	It("renders markdown without surrounding blank lines", func() {
		rendered, err := cliui.RenderMarkdown("# Dear me\n\nI hope you **kept running**.")
		Expect(err).NotTo(HaveOccurred())
		Expect(rendered).To(ContainSubstring("Dear me"))
		Expect(rendered).To(ContainSubstring("kept running"))
		Expect(rendered).NotTo(HavePrefix("\n"))
		Expect(rendered).NotTo(HaveSuffix("\n"))

		again, err := cliui.RenderMarkdown("second reply")
		Expect(err).NotTo(HaveOccurred())
		Expect(again).To(ContainSubstring("second reply"))
	})
})
