package event_test

import (
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rancher/gitpanel/internal/dispatch"
	"github.com/rancher/gitpanel/internal/event"
	"github.com/rancher/gitpanel/internal/store"
)

var _ = Describe("ParseCommand", func() {
	It("parses a git action with its payload", func() {
		cmd, err := event.ParseCommand([]byte(`{"type":"runGitAction","action":"commit","payload":{"message":"Fix bug"}}`))
		Expect(err).NotTo(HaveOccurred())

		Expect(cmd.Type).To(Equal(event.CommandRunGitAction))
		Expect(cmd.Action).To(Equal(dispatch.ActionCommit))
		Expect(cmd.Payload).To(Equal(dispatch.Payload{Message: "Fix bug"}))
	})

	It("accepts camel case action names", func() {
		cmd, err := event.ParseCommand([]byte(`{"type":"runGitAction","action":"fastPush"}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(cmd.Action).To(Equal(dispatch.ActionFastPush))
	})

	It("rejects unknown actions as validation errors", func() {
		_, err := event.ParseCommand([]byte(`{"type":"runGitAction","action":"rebase"}`))
		Expect(dispatch.IsValidationError(err)).To(BeTrue())

		rejected, ok := event.AsRejectedAction(err)
		Expect(ok).To(BeTrue())
		Expect(rejected.Action).To(Equal(dispatch.Action("rebase")))
	})

	It("rejects unknown payload fields with the resolved action", func() {
		_, err := event.ParseCommand([]byte(`{"type":"runGitAction","action":"push","payload":{"force":true}}`))
		Expect(dispatch.IsValidationError(err)).To(BeTrue())

		rejected, ok := event.AsRejectedAction(err)
		Expect(ok).To(BeTrue())
		Expect(rejected.Action).To(Equal(dispatch.ActionPush))
		Expect(err).To(MatchError(ContainSubstring("force")))
	})

	It("does not treat other malformed commands as rejected actions", func() {
		_, err := event.ParseCommand([]byte(`{"type":"reboot"}`))
		_, ok := event.AsRejectedAction(err)
		Expect(ok).To(BeFalse())
	})

	It("parses chat queries and trims text", func() {
		cmd, err := event.ParseCommand([]byte(`{"type":"submitChatQuery","text":"  what changed?  "}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(cmd.Text).To(Equal("what changed?"))

		_, err = event.ParseCommand([]byte(`{"type":"submitChatQuery","text":"  "}`))
		Expect(err).To(MatchError(ContainSubstring("text is required")))
	})

	It("parses settings with an optional api key", func() {
		cmd, err := event.ParseCommand([]byte(`{"type":"saveSettings","settings":{"provider":"openai","baseUrl":" https://api.example.com/v1 ","modelName":"gpt-4o-mini"},"apiKey":"sk-1"}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(cmd.Settings).To(Equal(store.Settings{
			Provider:  "openai",
			BaseURL:   "https://api.example.com/v1",
			ModelName: "gpt-4o-mini",
		}))
		Expect(cmd.APIKey).To(Equal("sk-1"))

		_, err = event.ParseCommand([]byte(`{"type":"saveSettings"}`))
		Expect(err).To(HaveOccurred())
	})

	DescribeTable("payload-free commands",
		func(raw string, want event.CommandType) {
			cmd, err := event.ParseCommand([]byte(raw))
			Expect(err).NotTo(HaveOccurred())
			Expect(cmd.Type).To(Equal(want))
		},
		Entry("stats refresh", `{"type":"requestStatsRefresh"}`, event.CommandRequestStatsRefresh),
		Entry("settings", `{"type":"requestSettings"}`, event.CommandRequestSettings),
		Entry("login", `{"type":"loginWithDeviceFlow"}`, event.CommandLoginWithDeviceFlow),
		Entry("logout", `{"type":"logout"}`, event.CommandLogout),
	)

	It("rejects missing and unknown types", func() {
		_, err := event.ParseCommand([]byte(`{}`))
		Expect(err).To(MatchError(ContainSubstring("type is required")))

		_, err = event.ParseCommand([]byte(`{"type":"reboot"}`))
		Expect(err).To(MatchError(ContainSubstring("unknown command")))

		_, err = event.ParseCommand([]byte(`not json`))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("DecodeCommands", func() {
	It("streams commands and reports malformed lines", func() {
		input := strings.Join([]string{
			`{"type":"requestStatsRefresh"}`,
			``,
			`{"type":"bogus"}`,
			`{"type":"runGitAction","action":"status"}`,
		}, "\n")

		var (
			got     []event.CommandType
			badLine []int
		)
		err := event.DecodeCommands(strings.NewReader(input), func(cmd event.Command) error {
			got = append(got, cmd.Type)
			return nil
		}, func(line int, _ error) {
			badLine = append(badLine, line)
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal([]event.CommandType{event.CommandRequestStatsRefresh, event.CommandRunGitAction}))
		Expect(badLine).To(Equal([]int{3}))
	})

	It("stops when the handler fails", func() {
		stop := errors.New("stop")
		calls := 0
		err := event.DecodeCommands(strings.NewReader("{\"type\":\"logout\"}\n{\"type\":\"logout\"}\n"), func(event.Command) error {
			calls++
			return stop
		}, nil)

		Expect(err).To(MatchError(stop))
		Expect(calls).To(Equal(1))
	})
})
