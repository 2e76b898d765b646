//go:build integration

package dokkuApi_test

import (
	"context"
	"strings"

	dokkuApi "github.com/alex-galey/dokku-deployer/internal/dokku-api"
	dokkutesting "github.com/alex-galey/dokku-deployer/testing/dokku"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Session against a real Dokku host", Label("integration"), func() {
	var session dokkuApi.Session

	BeforeEach(func() {
		cfg := dokkutesting.LoadTestConfig()
		cfg.SkipUnlessConfigured()

		var err error
		session, err = cfg.CreateSession()
		Expect(err).NotTo(HaveOccurred())
	})

	It("reads the Dokku version", func() {
		out, err := session.Output(context.Background(), "version", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(strings.ToLower(string(out))).To(ContainSubstring("dokku"))
	})

	It("classifies unknown apps as not found", func() {
		_, err := session.Output(context.Background(), "ports:report", []string{"deployer-missing-app", "--ports-map"})
		Expect(err).To(HaveOccurred())
		Expect(dokkuApi.IsNotFoundError(err)).To(BeTrue())
	})
})
