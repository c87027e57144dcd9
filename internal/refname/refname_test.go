package refname_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rancher/gitpanel/internal/refname"
)

var _ = Describe("Refname", func() {
	Describe("Validate", func() {
		It("accepts valid branch names", func() {
			Expect(refname.Validate("release/v0.25")).To(Succeed())
		})

		It("accepts branch names with multiple slashes", func() {
			for _, branch := range []string{"release/v0.25", "feature/foo/bar", "release/v2.9/security"} {
				Expect(refname.Validate(branch)).To(Succeed(), "Expected branch %q to be valid", branch)
			}
		})

		It("rejects whitespace", func() {
			Expect(refname.Validate("feature with space")).To(MatchError(refname.ErrWhitespace))
		})

		It("rejects names that git would read as an option", func() {
			Expect(refname.Validate("--force")).To(MatchError(refname.ErrLeadingDash))
			Expect(refname.Validate("-D")).To(MatchError(refname.ErrLeadingDash))
		})

		It("rejects branch names with forbidden characters", func() {
			for _, branch := range []string{"feature..bad", "feature~bad", "feature^bad", "feature:bad", "feat\x01ure"} {
				Expect(refname.Validate(branch)).NotTo(Succeed(), "Expected branch %q to be invalid", branch)
			}
		})

		It("rejects lock and dot suffixes", func() {
			Expect(refname.Validate("main.lock")).To(MatchError(refname.ErrBadSuffix))
			Expect(refname.Validate("main.")).To(MatchError(refname.ErrBadSuffix))
		})

		It("rejects empty names", func() {
			Expect(refname.Validate("")).To(MatchError(refname.ErrEmpty))
		})
	})

	Describe("Normalize", func() {
		It("strips refs/heads prefix, whitespace, and surrounding slashes", func() {
			Expect(refname.Normalize(" /refs/heads/release/v0.31/ ")).To(Equal("release/v0.31"))
		})

		It("returns empty string when normalization removes all characters", func() {
			Expect(refname.Normalize(" // ")).To(BeEmpty())
		})
	})

	Describe("Parse", func() {
		It("returns the normalized branch", func() {
			branch, err := refname.Parse("refs/heads/feature/login ")
			Expect(err).NotTo(HaveOccurred())
			Expect(branch).To(Equal("feature/login"))
		})

		It("wraps validation failures", func() {
			_, err := refname.Parse("bad branch")
			Expect(err).To(MatchError(refname.ErrWhitespace))
			Expect(err.Error()).To(ContainSubstring(`"bad branch"`))
		})
	})
})
