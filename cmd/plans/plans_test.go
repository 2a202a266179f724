package planscmder_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	planscmder "github.com/papercomputeco/plans/cmd/plans"
)

var _ = Describe("NewPlansCmd", func() {
	It("registers every subcommand", func() {
		cmd := planscmder.NewPlansCmd()
		names := make([]string, 0, len(cmd.Commands()))
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements("serve", "config", "get", "version"))
	})

	It("declares the global flags", func() {
		cmd := planscmder.NewPlansCmd()
		Expect(cmd.PersistentFlags().Lookup("debug")).NotTo(BeNil())
		Expect(cmd.PersistentFlags().Lookup("config-dir")).NotTo(BeNil())
	})

	It("nests api and projector under serve", func() {
		cmd := planscmder.NewPlansCmd()
		serve, _, err := cmd.Find([]string{"serve", "projector"})
		Expect(err).NotTo(HaveOccurred())
		Expect(serve.Name()).To(Equal("projector"))
	})
})
