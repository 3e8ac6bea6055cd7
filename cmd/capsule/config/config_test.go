package configcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	configcmder "github.com/papercomputeco/capsule/cmd/capsule/config"
	"github.com/papercomputeco/capsule/pkg/config"
)

var _ = Describe("NewConfigCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := configcmder.NewConfigCmd()
		Expect(cmd.Use).To(Equal("config"))
	})

	It("has set, get, and list subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		cmds := cmd.Commands()
		subcommands := make([]string, 0, len(cmds))
		for _, sub := range cmds {
			subcommands = append(subcommands, sub.Name())
		}
		Expect(subcommands).To(ContainElements("set", "get", "list"))
	})
})

var _ = Describe("Config command execution", func() {
	var (
		tmpDir  string
		origDir string
		out     *bytes.Buffer
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "capsule-config-test-*")
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		// Create a local .capsule dir so the manager picks it up
		err = os.MkdirAll(filepath.Join(tmpDir, ".capsule"), 0o755)
		Expect(err).NotTo(HaveOccurred())

		err = os.Chdir(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		out = &bytes.Buffer{}
	})

	AfterEach(func() {
		err := os.Chdir(origDir)
		Expect(err).NotTo(HaveOccurred())
		os.RemoveAll(tmpDir)
	})

	execute := func(args ...string) error {
		cmd := configcmder.NewConfigCmd()
		cmd.SetOut(out)
		cmd.SetErr(out)
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	loadConfig := func() *config.Config {
		cfger, err := config.NewConfiger("")
		Expect(err).NotTo(HaveOccurred())
		cfg, err := cfger.LoadConfig()
		Expect(err).NotTo(HaveOccurred())
		return cfg
	}

	Describe("set subcommand", func() {
		It("sets a config value successfully", func() {
			Expect(execute("set", "chat.endpoint", "https://example.com/chat")).To(Succeed())

			// Verify the config file was created
			_, err := os.Stat(filepath.Join(tmpDir, ".capsule", "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(loadConfig().Chat.Endpoint).To(Equal("https://example.com/chat"))
		})

		It("rejects unknown keys", func() {
			Expect(execute("set", "invalid_key", "value")).To(HaveOccurred())
		})

		It("requires exactly two arguments", func() {
			Expect(execute("set", "chat.endpoint")).To(HaveOccurred())
		})

		It("rejects zero arguments", func() {
			Expect(execute("set")).To(HaveOccurred())
		})

		It("rejects an unknown storage driver", func() {
			Expect(execute("set", "storage.driver", "tape")).To(HaveOccurred())
		})

		It("rejects a malformed timeout", func() {
			Expect(execute("set", "chat.timeout", "soon")).To(HaveOccurred())
		})

		It("masks secrets in its confirmation", func() {
			Expect(execute("set", "chat.api_key", "sk-live-abcdefgh1234")).To(Succeed())
			Expect(out.String()).NotTo(ContainSubstring("sk-live"))
			Expect(out.String()).To(ContainSubstring("1234"))
			Expect(loadConfig().Chat.APIKey).To(Equal("sk-live-abcdefgh1234"))
		})
	})

	Describe("get subcommand", func() {
		It("gets a previously set value", func() {
			Expect(execute("set", "chat.model", "future-1")).To(Succeed())
			out.Reset()

			Expect(execute("get", "chat.model")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("future-1"))
		})

		It("reports an unset key", func() {
			Expect(execute("get", "chat.endpoint")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("<not set>"))
		})

		It("masks secrets unless asked not to", func() {
			Expect(execute("set", "chat.api_key", "sk-live-abcdefgh1234")).To(Succeed())
			out.Reset()

			Expect(execute("get", "chat.api_key")).To(Succeed())
			Expect(out.String()).NotTo(ContainSubstring("sk-live"))

			out.Reset()
			Expect(execute("get", "chat.api_key", "--show-secrets")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("sk-live-abcdefgh1234"))
		})

		It("rejects unknown keys", func() {
			Expect(execute("get", "invalid_key")).To(HaveOccurred())
		})

		It("requires exactly one argument", func() {
			Expect(execute("get")).To(HaveOccurred())
		})
	})

	Describe("list subcommand", func() {
		It("lists every key when no config exists", func() {
			Expect(execute("list")).To(Succeed())
			for _, key := range config.ValidConfigKeys() {
				Expect(out.String()).To(ContainSubstring(key))
			}
		})

		It("shows set values and masks secrets", func() {
			Expect(execute("set", "chat.model", "future-1")).To(Succeed())
			Expect(execute("set", "storage.postgres_dsn", "postgres://user:hunter2@db/capsule")).To(Succeed())
			out.Reset()

			Expect(execute("list")).To(Succeed())
			Expect(out.String()).To(ContainSubstring(`"future-1"`))
			Expect(out.String()).NotTo(ContainSubstring("hunter2"))
		})

		It("rejects any arguments", func() {
			Expect(execute("list", "extra")).To(HaveOccurred())
		})
	})
})
