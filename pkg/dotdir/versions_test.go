package dotdir_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/plans/pkg/dotdir"
)

var _ = Describe("dotdir.Manager versions", func() {
	var (
		tmpDir string
		m      *dotdir.Manager
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "versions-test-*")
		Expect(err).NotTo(HaveOccurred())
		m = dotdir.NewManager()
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("returns an empty cache when no file exists", func() {
		cache, err := m.LoadVersions(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(cache).To(BeEmpty())
	})

	It("remembers and forgets fingerprints", func() {
		seen := dotdir.SeenVersion{APITarget: "http://localhost:8081", Fingerprint: "abc"}
		Expect(m.RememberVersion(tmpDir, "p1", seen)).To(Succeed())
		Expect(m.RememberVersion(tmpDir, "p2", dotdir.SeenVersion{Fingerprint: "def"})).To(Succeed())

		cache, err := m.LoadVersions(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(cache).To(HaveKeyWithValue("p1", seen))
		Expect(cache).To(HaveKey("p2"))

		Expect(m.ForgetVersion(tmpDir, "p1")).To(Succeed())
		cache, err = m.LoadVersions(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(cache).NotTo(HaveKey("p1"))
		Expect(cache).To(HaveKey("p2"))
	})

	It("returns error for invalid JSON", func() {
		Expect(os.WriteFile(filepath.Join(tmpDir, "versions.json"), []byte("{nope"), 0o600)).To(Succeed())

		_, err := m.LoadVersions(tmpDir)
		Expect(err).To(MatchError(ContainSubstring("parsing version cache")))
	})

	It("does nothing without a plans directory", func() {
		emptyDir := filepath.Join(tmpDir, "empty")
		Expect(os.Mkdir(emptyDir, 0o755)).To(Succeed())

		origDir, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(emptyDir)).To(Succeed())
		DeferCleanup(func() { os.Chdir(origDir) })
		GinkgoT().Setenv("HOME", emptyDir)

		Expect(m.RememberVersion("", "p1", dotdir.SeenVersion{Fingerprint: "abc"})).To(Succeed())
		_, err = os.Stat(filepath.Join(emptyDir, ".plans", "versions.json"))
		Expect(os.IsNotExist(err)).To(BeTrue())
	})
})
