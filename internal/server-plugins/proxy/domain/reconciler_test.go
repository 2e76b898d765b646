package proxy_test

import (
	"context"
	"errors"
	"io"
	"log/slog"

	app "github.com/alex-galey/dokku-deployer/internal/server-plugins/app/domain"
	proxy "github.com/alex-galey/dokku-deployer/internal/server-plugins/proxy/domain"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type stubPorts struct {
	ports    []proxy.ProxyPort
	portsErr error
	addErr   error
	added    []proxy.ProxyPort
}

func (s *stubPorts) Ports(ctx context.Context, appName string) ([]proxy.ProxyPort, error) {
	return s.ports, s.portsErr
}

func (s *stubPorts) Add(ctx context.Context, appName string, port proxy.ProxyPort) error {
	s.added = append(s.added, port)
	return s.addErr
}

type stubSSL struct {
	calls int
	err   error
}

func (s *stubSSL) EnableSSL(ctx context.Context, appName string, out app.OutputSink) error {
	s.calls++
	return s.err
}

var _ = Describe("Reconciler", func() {
	var (
		ports      *stubPorts
		ssl        *stubSSL
		reconciler *proxy.Reconciler
	)

	BeforeEach(func() {
		ports = &stubPorts{}
		ssl = &stubSSL{}
		reconciler = proxy.NewReconciler(ports, ssl, slog.New(slog.NewTextHandler(io.Discard, nil)))
	})

	It("adds the web mapping before enabling TLS", func() {
		ports.ports = []proxy.ProxyPort{{Scheme: "http", Host: "5000", Container: "5000"}}

		result := reconciler.Reconcile(context.Background(), "blog", nil)
		Expect(ports.added).To(Equal([]proxy.ProxyPort{{Scheme: "http", Host: "80", Container: "5000"}}))
		Expect(result.AddedWebPort).NotTo(BeNil())
		Expect(ssl.calls).To(Equal(1))
		Expect(result.SSLEnabled).To(BeTrue())
	})

	It("keeps an existing web mapping", func() {
		ports.ports = []proxy.ProxyPort{{Scheme: "http", Host: "80", Container: "3000"}}

		result := reconciler.Reconcile(context.Background(), "blog", nil)
		Expect(ports.added).To(BeEmpty())
		Expect(result.AddedWebPort).To(BeNil())
		Expect(ssl.calls).To(Equal(1))
	})

	It("treats a failed query as no ports", func() {
		ports.portsErr = errors.New("ports:report exited with code 1")

		result := reconciler.Reconcile(context.Background(), "blog", nil)
		Expect(result.Ports).To(BeEmpty())
		Expect(ports.added).To(BeEmpty())
		Expect(ssl.calls).To(Equal(0))
	})

	It("swallows TLS failures", func() {
		ports.ports = []proxy.ProxyPort{{Scheme: "http", Host: "80", Container: "5000"}}
		ssl.err = errors.New("letsencrypt rate limited")

		result := reconciler.Reconcile(context.Background(), "blog", nil)
		Expect(ssl.calls).To(Equal(1))
		Expect(result.SSLEnabled).To(BeFalse())
	})

	It("does not attempt TLS without a web mapping", func() {
		ports.ports = []proxy.ProxyPort{{Scheme: "http", Host: "5000", Container: "5000"}}
		ports.addErr = errors.New("ports:add failed")

		result := reconciler.Reconcile(context.Background(), "blog", nil)
		Expect(ssl.calls).To(Equal(0))
		Expect(result.SSLEnabled).To(BeFalse())
	})
})

var _ = Describe("ParsePortMap", func() {
	It("parses the report output", func() {
		ports, err := proxy.ParsePortMap("http:80:5000 https:443:5000\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(ports).To(Equal([]proxy.ProxyPort{
			{Scheme: "http", Host: "80", Container: "5000"},
			{Scheme: "https", Host: "443", Container: "5000"},
		}))
	})

	It("returns an empty list for empty output", func() {
		ports, err := proxy.ParsePortMap("  \n")
		Expect(err).NotTo(HaveOccurred())
		Expect(ports).To(BeEmpty())
	})

	DescribeTable("rejects malformed mappings",
		func(value string) {
			_, err := proxy.ParseProxyPort(value)
			Expect(err).To(HaveOccurred())
		},
		Entry("missing part", "http:80"),
		Entry("empty scheme", ":80:5000"),
		Entry("non numeric", "http:web:5000"),
		Entry("out of range", "http:80:70000"),
	)
})
