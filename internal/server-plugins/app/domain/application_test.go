//go:build !integration

package app

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/alex-galey/dokku-deployer/internal/shared"
)

var _ = Describe("Application", func() {
	DescribeTable("name validation",
		func(name string, valid bool) {
			_, err := NewApplicationName(name)
			if valid {
				Expect(err).NotTo(HaveOccurred())
			} else {
				Expect(err).To(MatchError(ErrInvalidApplicationName))
			}
		},
		Entry("simple name", "blog", true),
		Entry("hyphenated name", "my-blog", true),
		Entry("upper case is normalized", "Blog", true),
		Entry("empty", "", false),
		Entry("underscore", "my_blog", false),
		Entry("reserved", "dokku", false),
		Entry("leading hyphen", "-blog", false),
		Entry("trailing hyphen", "blog-", false),
		Entry("too long", strings.Repeat("a", 64), false),
	)

	DescribeTable("names derived from repositories",
		func(repo, expected string) {
			name, err := ApplicationNameFromRepository(repo)
			Expect(err).NotTo(HaveOccurred())
			Expect(name.Value()).To(Equal(expected))
		},
		Entry("plain", "blog", "blog"),
		Entry("mixed separators", "My_Blog.v2", "my-blog-v2"),
		Entry("leading punctuation", ".github-pages", "github-pages"),
		Entry("long names are cut", strings.Repeat("ab", 40), strings.Repeat("ab", 31)+"a"),
	)

	It("cannot derive a name from punctuation only", func() {
		_, err := ApplicationNameFromRepository("___")
		Expect(err).To(MatchError(ErrInvalidApplicationName))
	})

	It("starts idle with the normalized name", func() {
		a, err := NewApplication("app-1", "Blog", &GitSource{RepoOwner: "acme", RepoName: "blog"})
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Name).To(Equal("blog"))
		Expect(a.Status).To(Equal(StatusIdle))
		Expect(a.HasSource()).To(BeTrue())
	})

	It("rejects incomplete git sources", func() {
		_, err := NewApplication("app-1", "blog", &GitSource{RepoOwner: "acme"})
		Expect(err).To(HaveOccurred())
	})

	It("rejects invalid branches", func() {
		_, err := NewApplication("app-1", "blog", &GitSource{RepoOwner: "acme", RepoName: "blog", Branch: "bad branch"})
		Expect(err).To(MatchError(shared.ErrInvalidGitRef))
	})

	Describe("GitSource", func() {
		It("defaults the branch to main", func() {
			src := GitSource{RepoOwner: "acme", RepoName: "blog"}
			Expect(src.EffectiveBranch()).To(Equal("main"))
			Expect(src.CloneURL()).To(Equal("https://github.com/acme/blog.git"))
			Expect(src.TreeURL()).To(Equal("https://github.com/acme/blog/tree/main"))
		})

		It("keeps an explicit branch", func() {
			src := GitSource{RepoOwner: "acme", RepoName: "blog", Branch: "release"}
			Expect(src.TreeURL()).To(Equal("https://github.com/acme/blog/tree/release"))
		})
	})

	It("parses statuses", func() {
		s, err := ParseStatus("building")
		Expect(err).NotTo(HaveOccurred())
		Expect(s).To(Equal(StatusBuilding))

		_, err = ParseStatus("deploying")
		Expect(err).To(MatchError(ErrInvalidStatus))
	})

	It("marks end entries as terminal", func() {
		Expect(LogEndSuccess.IsTerminal()).To(BeTrue())
		Expect(LogEndFailure.IsTerminal()).To(BeTrue())
		Expect(LogStdout.IsTerminal()).To(BeFalse())
	})
})
