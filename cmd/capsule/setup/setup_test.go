package setup_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/capsule/cmd/capsule/setup"
	"github.com/papercomputeco/capsule/pkg/config"
	"github.com/papercomputeco/capsule/pkg/eventstream/nop"
	"github.com/papercomputeco/capsule/pkg/eventstream/redis"
	"github.com/papercomputeco/capsule/pkg/storage/inmemory"
)

// setEnv sets key until the current test ends.
func setEnv(key, value string) {
	orig, had := os.LookupEnv(key)
	Expect(os.Setenv(key, value)).To(Succeed())
	DeferCleanup(func() {
		if had {
			_ = os.Setenv(key, orig)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}

// chdir moves into dir for the current spec only.
func chdir(dir string) {
	orig, err := os.Getwd()
	Expect(err).NotTo(HaveOccurred())
	Expect(os.Chdir(dir)).To(Succeed())
	DeferCleanup(func() {
		Expect(os.Chdir(orig)).To(Succeed())
	})
}

var _ = Describe("LoadConfig", func() {
	var (
		dir   string
		model string
		cmd   *cobra.Command
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		setEnv("CAPSULE_CHAT_MODEL", "")

		cmd = &cobra.Command{Use: "test"}
		cmd.Flags().String("config-dir", "", "")
		config.AddStringFlag(cmd, config.Flags, config.FlagModel, &model)
	})

	writeConfig := func(body string) {
		Expect(os.WriteFile(filepath.Join(dir, "config.toml"), []byte(body), 0o600)).To(Succeed())
	}

	It("uses the config file when no flag or env is set", func() {
		writeConfig("version = 0\n[chat]\nmodel = \"from-file\"\n")
		Expect(cmd.ParseFlags([]string{"--config-dir", dir})).To(Succeed())

		cfg, err := setup.LoadConfig(cmd, config.FlagModel)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Chat.Model).To(Equal("from-file"))
		Expect(cfg.Storage.Driver).To(Equal(config.StorageSQLite))
	})

	It("prefers the environment over the config file", func() {
		writeConfig("version = 0\n[chat]\nmodel = \"from-file\"\n")
		setEnv("CAPSULE_CHAT_MODEL", "from-env")
		Expect(cmd.ParseFlags([]string{"--config-dir", dir})).To(Succeed())

		cfg, err := setup.LoadConfig(cmd, config.FlagModel)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Chat.Model).To(Equal("from-env"))
	})

	It("prefers a changed flag over everything", func() {
		writeConfig("version = 0\n[chat]\nmodel = \"from-file\"\n")
		setEnv("CAPSULE_CHAT_MODEL", "from-env")
		Expect(cmd.ParseFlags([]string{"--config-dir", dir, "--model", "from-flag"})).To(Succeed())

		cfg, err := setup.LoadConfig(cmd, config.FlagModel)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Chat.Model).To(Equal("from-flag"))
	})

	It("ignores flags it was not asked to bind", func() {
		writeConfig("version = 0\n[chat]\nmodel = \"from-file\"\n")
		Expect(cmd.ParseFlags([]string{"--config-dir", dir, "--model", "from-flag"})).To(Succeed())

		cfg, err := setup.LoadConfig(cmd)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Chat.Model).To(Equal("from-file"))
	})
})

var _ = Describe("SQLitePath", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		setEnv("CAPSULE_DB", "")
		chdir(dir)
	})

	It("returns the configured path", func() {
		setEnv("CAPSULE_DB", "/tmp/env.db")
		path, err := setup.SQLitePath("/tmp/configured.db", dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal("/tmp/configured.db"))
	})

	It("falls back to CAPSULE_DB", func() {
		setEnv("CAPSULE_DB", "/tmp/env.db")
		path, err := setup.SQLitePath("", dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal("/tmp/env.db"))
	})

	It("uses an existing database in the working directory", func() {
		Expect(os.WriteFile(setup.DatabaseFile, []byte("test"), 0o644)).To(Succeed())

		path, err := setup.SQLitePath("", filepath.Join(dir, "conf"))
		Expect(err).NotTo(HaveOccurred())
		Expect(filepath.Base(path)).To(Equal(setup.DatabaseFile))
		Expect(filepath.Dir(path)).NotTo(HaveSuffix("conf"))
	})

	It("defaults to the .capsule directory", func() {
		confDir := filepath.Join(dir, "conf")
		path, err := setup.SQLitePath("", confDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal(filepath.Join(confDir, setup.DatabaseFile)))
	})
})

var _ = Describe("OpenDriver", func() {
	var (
		ctx context.Context
		cfg *config.Config
		dir string
	)

	BeforeEach(func() {
		ctx = context.Background()
		cfg = config.NewDefaultConfig()
		dir = GinkgoT().TempDir()
		setEnv("CAPSULE_DB", "")
	})

	It("opens the in-memory driver", func() {
		cfg.Storage.Driver = config.StorageMemory
		driver, err := setup.OpenDriver(ctx, cfg, dir, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(driver).To(BeAssignableToTypeOf(&inmemory.Driver{}))
	})

	It("creates the SQLite database in the .capsule directory", func() {
		driver, err := setup.OpenDriver(ctx, cfg, dir, nil)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(driver.Close)

		Expect(filepath.Join(dir, setup.DatabaseFile)).To(BeAnExistingFile())
	})

	It("requires a DSN for postgres", func() {
		cfg.Storage.Driver = config.StoragePostgres
		_, err := setup.OpenDriver(ctx, cfg, dir, nil)
		Expect(err).To(MatchError(ContainSubstring("postgres_dsn")))
	})

	It("rejects unknown drivers", func() {
		cfg.Storage.Driver = "tape"
		_, err := setup.OpenDriver(ctx, cfg, dir, nil)
		Expect(err).To(MatchError(ContainSubstring(`unknown storage driver "tape"`)))
	})
})

var _ = Describe("Publisher", func() {
	It("is a no-op without a provider", func() {
		pub, err := setup.Publisher(config.NewDefaultConfig(), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(pub).To(BeAssignableToTypeOf(&nop.Publisher{}))
	})

	It("requires brokers for kafka", func() {
		cfg := config.NewDefaultConfig()
		cfg.EventStream.Provider = config.EventStreamKafka
		_, err := setup.Publisher(cfg, nil)
		Expect(err).To(HaveOccurred())
	})

	It("builds a kafka publisher from a broker list", func() {
		cfg := config.NewDefaultConfig()
		cfg.EventStream.Provider = config.EventStreamKafka
		cfg.EventStream.Brokers = "localhost:9092, localhost:9093"
		pub, err := setup.Publisher(cfg, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(pub.Close()).To(Succeed())
	})

	It("builds a redis publisher from the address", func() {
		cfg := config.NewDefaultConfig()
		cfg.EventStream.Provider = config.EventStreamRedis
		cfg.EventStream.Brokers = "localhost:6379"
		pub, err := setup.Publisher(cfg, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(pub).To(BeAssignableToTypeOf(&redis.Publisher{}))
		Expect(pub.Close()).To(Succeed())
	})

	It("rejects an unknown provider", func() {
		cfg := config.NewDefaultConfig()
		cfg.EventStream.Provider = "nats"
		_, err := setup.Publisher(cfg, nil)
		Expect(err).To(MatchError(ContainSubstring(`unknown event stream provider "nats"`)))
	})

	It("starts a pool around the publisher", func() {
		pool, err := setup.EventPool(config.NewDefaultConfig(), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(pool.Close()).To(Succeed())
	})
})

var _ = Describe("Transport", func() {
	It("requires an endpoint", func() {
		_, err := setup.Transport(config.NewDefaultConfig(), nil)
		Expect(err).To(MatchError(setup.ErrNoEndpoint))
	})

	It("rejects a malformed timeout", func() {
		cfg := config.NewDefaultConfig()
		cfg.Chat.Endpoint = "http://localhost:9999/chat"
		cfg.Chat.Timeout = "soon"
		_, err := setup.Transport(cfg, nil)
		Expect(err).To(MatchError(ContainSubstring("parsing chat timeout")))
	})

	It("builds a client", func() {
		cfg := config.NewDefaultConfig()
		cfg.Chat.Endpoint = "http://localhost:9999/chat"
		client, err := setup.Transport(cfg, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(client).NotTo(BeNil())
	})
})

var _ = Describe("FileLogger", func() {
	It("appends JSON records", func() {
		path := filepath.Join(GinkgoT().TempDir(), "logs", "capsule.log")
		log, closer, err := setup.FileLogger(path, false)
		Expect(err).NotTo(HaveOccurred())

		log.Info("served", "path", "/ping")
		Expect(closer.Close()).To(Succeed())

		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())

		var record map[string]any
		Expect(json.Unmarshal(data, &record)).To(Succeed())
		Expect(record).To(HaveKeyWithValue("msg", "served"))
		Expect(record).To(HaveKeyWithValue("path", "/ping"))
	})

	It("does not treat a buffer as a terminal", func() {
		Expect(setup.IsTerminal(&struct{}{})).To(BeFalse())
	})
})
