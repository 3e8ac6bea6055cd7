package writecmder_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	writecmder "github.com/papercomputeco/capsule/cmd/capsule/write"
	"github.com/papercomputeco/capsule/pkg/dotdir"
	"github.com/papercomputeco/capsule/pkg/llm"
)

var _ = Describe("Write command", func() {
	var (
		dir     string
		out     *bytes.Buffer
		manager *dotdir.Manager
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		out = &bytes.Buffer{}
		manager = dotdir.NewManager()
	})

	execute := func(stdin string, args ...string) error {
		root := &cobra.Command{Use: "capsule"}
		root.PersistentFlags().String("config-dir", "", "")
		root.AddCommand(writecmder.NewWriteCmd())
		root.SetIn(strings.NewReader(stdin))
		root.SetOut(out)
		root.SetErr(out)
		root.SetArgs(append([]string{"--config-dir", dir, "write"}, args...))
		return root.Execute()
	}

	It("saves the letter with its context", func() {
		err := execute("", "--letter", "  Dear future me  ", "--goals", "ship the book", "--dreams", "a cabin")
		Expect(err).NotTo(HaveOccurred())

		letter, err := manager.LoadLetter(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(letter).To(Equal(&llm.LetterContext{
			Goals:  "ship the book",
			Dreams: "a cabin",
			Letter: "Dear future me",
		}))
		Expect(out.String()).To(ContainSubstring("capsule chat"))
	})

	It("clears the checkout so the next chat starts over", func() {
		Expect(manager.SaveCheckout(&dotdir.CheckoutState{Hash: "abc"}, dir)).To(Succeed())

		Expect(execute("", "--letter", "Dear future me")).To(Succeed())

		state, err := manager.LoadCheckoutState(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(state).To(BeNil())
	})

	It("reads the letter from a file", func() {
		path := filepath.Join(dir, "letter.md")
		Expect(os.WriteFile(path, []byte("# Hello\n\nfrom the past\n"), 0o600)).To(Succeed())

		Expect(execute("", "--file", path)).To(Succeed())

		letter, err := manager.LoadLetter(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(letter.Letter).To(Equal("# Hello\n\nfrom the past"))
	})

	It("reads the letter from piped stdin", func() {
		Expect(execute("piped letter\n", "--fears", "nothing")).To(Succeed())

		letter, err := manager.LoadLetter(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(letter.Letter).To(Equal("piped letter"))
		Expect(letter.Fears).To(Equal("nothing"))
	})

	It("reads stdin when the file is -", func() {
		Expect(execute("dash letter", "--file", "-")).To(Succeed())

		letter, err := manager.LoadLetter(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(letter.Letter).To(Equal("dash letter"))
	})

	It("refuses a letter without a body", func() {
		err := execute("   \n", "--goals", "only goals")
		Expect(err).To(MatchError(writecmder.ErrNoLetter))

		letter, err := manager.LoadLetter(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(letter).To(BeNil())
	})

	It("reports a missing file", func() {
		err := execute("", "--file", filepath.Join(dir, "missing.md"))
		Expect(err).To(MatchError(ContainSubstring("reading letter file")))
	})

	It("rejects --letter together with --file", func() {
		err := execute("", "--letter", "a", "--file", "b")
		Expect(err).To(HaveOccurred())
	})

	It("takes no arguments", func() {
		err := execute("", "extra")
		Expect(err).To(HaveOccurred())
	})
})
