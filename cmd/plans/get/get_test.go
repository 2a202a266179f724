package getcmder_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	getcmder "github.com/papercomputeco/plans/cmd/plans/get"
	"github.com/papercomputeco/plans/pkg/dotdir"
)

// planServer serves one plan with a fixed fingerprint and records the
// conditional headers it receives.
type planServer struct {
	mu          sync.Mutex
	fingerprint string
	noneMatch   []string
	auth        []string
}

func (s *planServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noneMatch = append(s.noneMatch, r.Header.Get("If-None-Match"))
	s.auth = append(s.auth, r.Header.Get("Authorization"))

	if r.URL.Path != "/v1/plan/p1" {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"plan not found"}`))
		return
	}

	etag := `"` + s.fingerprint + `"`
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"objectId":"p1","planType":"inNetwork"}`))
}

var _ = Describe("get command", func() {
	var (
		plans     *planServer
		server    *httptest.Server
		configDir string
		out       *bytes.Buffer
	)

	run := func(args ...string) error {
		root := &cobra.Command{Use: "plans", SilenceUsage: true, SilenceErrors: true}
		root.PersistentFlags().String("config-dir", configDir, "")
		root.AddCommand(getcmder.NewGetCmd())
		root.SetOut(out)
		root.SetArgs(append([]string{"get", "--api-target", server.URL}, args...))
		return root.Execute()
	}

	BeforeEach(func() {
		plans = &planServer{fingerprint: "abc123"}
		server = httptest.NewServer(plans)
		DeferCleanup(server.Close)

		configDir = filepath.Join(GinkgoT().TempDir(), ".plans")
		out = &bytes.Buffer{}
	})

	It("prints the plan and remembers its fingerprint", func() {
		Expect(run("p1")).To(Succeed())
		Expect(out.String()).To(ContainSubstring(`"objectId": "p1"`))

		cache, err := dotdir.NewManager().LoadVersions(configDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(cache).To(HaveKeyWithValue("p1", dotdir.SeenVersion{
			APITarget:   server.URL,
			Fingerprint: "abc123",
		}))
	})

	It("revalidates with If-None-Match and reports an unchanged plan", func() {
		Expect(run("p1")).To(Succeed())
		out.Reset()

		Expect(run("p1")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("unchanged"))
		Expect(plans.noneMatch).To(Equal([]string{"", `"abc123"`}))
	})

	It("fetches the new document after the plan changed", func() {
		Expect(run("p1")).To(Succeed())
		plans.fingerprint = "def456"
		out.Reset()

		Expect(run("p1")).To(Succeed())
		Expect(out.String()).To(ContainSubstring(`"planType": "inNetwork"`))

		cache, err := dotdir.NewManager().LoadVersions(configDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(cache["p1"].Fingerprint).To(Equal("def456"))
	})

	It("skips revalidation with --force", func() {
		Expect(run("p1")).To(Succeed())
		Expect(run("p1", "--force")).To(Succeed())
		Expect(plans.noneMatch).To(Equal([]string{"", ""}))
	})

	It("sends the bearer token", func() {
		Expect(run("p1", "--token", "t0k3n")).To(Succeed())
		Expect(plans.auth).To(Equal([]string{"Bearer t0k3n"}))
	})

	It("reports unknown plans and forgets them", func() {
		Expect(dotdir.NewManager().RememberVersion(configDir, "gone", dotdir.SeenVersion{
			APITarget: server.URL, Fingerprint: "old",
		})).To(Succeed())

		Expect(run("gone")).To(MatchError(getcmder.ErrNotFound))

		cache, err := dotdir.NewManager().LoadVersions(configDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(cache).NotTo(HaveKey("gone"))
	})

	It("requires exactly one id", func() {
		Expect(run()).NotTo(Succeed())
	})
})
