package configcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/plans/cmd/plans/config"
	"github.com/papercomputeco/plans/pkg/config"
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
		configDir string
		out       *bytes.Buffer
	)

	// run executes the config command against configDir the way the root
	// command's persistent --config-dir flag would.
	run := func(args ...string) error {
		root := &cobra.Command{Use: "plans", SilenceUsage: true, SilenceErrors: true}
		root.PersistentFlags().String("config-dir", configDir, "")
		root.AddCommand(configcmder.NewConfigCmd())
		root.SetOut(out)
		root.SetArgs(append([]string{"config"}, args...))
		return root.Execute()
	}

	BeforeEach(func() {
		configDir = filepath.Join(GinkgoT().TempDir(), ".plans")
		out = &bytes.Buffer{}
	})

	Describe("set subcommand", func() {
		It("sets a config value and creates the file", func() {
			Expect(run("set", "broker.provider", "kafka")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("broker.provider"))

			_, err := os.Stat(filepath.Join(configDir, "config.toml"))
			Expect(err).NotTo(HaveOccurred())

			cfger, err := config.NewConfiger(configDir)
			Expect(err).NotTo(HaveOccurred())
			cfg, err := cfger.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Broker.Provider).To(Equal("kafka"))
		})

		It("stores list values split on commas", func() {
			Expect(run("set", "broker.brokers", "k1:9092, k2:9092")).To(Succeed())

			cfger, err := config.NewConfiger(configDir)
			Expect(err).NotTo(HaveOccurred())
			cfg, err := cfger.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Broker.Brokers).To(Equal([]string{"k1:9092", "k2:9092"}))
		})

		It("rejects unknown keys", func() {
			Expect(run("set", "invalid_key", "value")).To(MatchError(ContainSubstring("unknown config key")))
		})

		It("requires exactly two arguments", func() {
			Expect(run("set", "broker.provider")).NotTo(Succeed())
			Expect(run("set")).NotTo(Succeed())
		})

		It("rejects invalid values", func() {
			Expect(run("set", "broker.max_attempts", "not-a-number")).NotTo(Succeed())
			Expect(run("set", "broker.backoff", "soon")).NotTo(Succeed())
			Expect(run("set", "auth.enabled", "maybe")).NotTo(Succeed())
		})
	})

	Describe("get subcommand", func() {
		It("gets a previously set value", func() {
			Expect(run("set", "search.provider", "qdrant")).To(Succeed())

			out.Reset()
			Expect(run("get", "search.provider")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("qdrant"))
		})

		It("reports defaults for unset keys", func() {
			Expect(run("get", "api.listen")).To(Succeed())
			Expect(out.String()).To(ContainSubstring(":8081"))
		})

		It("marks empty values as not set", func() {
			Expect(run("get", "storage.postgres_dsn")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("<not set>"))
		})

		It("rejects unknown keys", func() {
			Expect(run("get", "invalid_key")).NotTo(Succeed())
		})

		It("requires exactly one argument", func() {
			Expect(run("get")).NotTo(Succeed())
		})
	})

	Describe("list subcommand", func() {
		It("lists every key", func() {
			Expect(run("list")).To(Succeed())
			for _, key := range config.ValidConfigKeys() {
				Expect(out.String()).To(ContainSubstring(key))
			}
		})

		It("shows stored values", func() {
			Expect(run("set", "log.level", "debug")).To(Succeed())

			out.Reset()
			Expect(run("list")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("debug"))
		})

		It("rejects any arguments", func() {
			Expect(run("list", "extra")).NotTo(Succeed())
		})
	})
})
