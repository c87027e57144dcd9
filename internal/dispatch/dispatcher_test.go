package dispatch_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rancher/gitpanel/internal/dispatch"
	"github.com/rancher/gitpanel/internal/git"
)

type fakeRepo struct {
	calls  []string
	errs   map[string]error
	output map[string]string
	status string
}

func (f *fakeRepo) record(op string) (string, error) {
	f.calls = append(f.calls, op)
	if err, ok := f.errs[op]; ok {
		return "", err
	}
	return f.output[op], nil
}

func (f *fakeRepo) Status(context.Context) string {
	f.calls = append(f.calls, "status")
	return f.status
}

func (f *fakeRepo) Push(context.Context) (string, error)     { return f.record("push") }
func (f *fakeRepo) Pull(context.Context) (string, error)     { return f.record("pull") }
func (f *fakeRepo) Fetch(context.Context) (string, error)    { return f.record("fetch") }
func (f *fakeRepo) Stash(context.Context) (string, error)    { return f.record("stash") }
func (f *fakeRepo) StageAll(context.Context) (string, error) { return f.record("stage-all") }

func (f *fakeRepo) Commit(_ context.Context, message string) (string, error) {
	return f.record("commit:" + message)
}

func (f *fakeRepo) SetRemote(_ context.Context, url string) (string, error) {
	return f.record("set-remote:" + url)
}

func (f *fakeRepo) CreateBranch(_ context.Context, name string) (string, error) {
	return f.record("create-branch:" + name)
}

func (f *fakeRepo) DeleteBranch(_ context.Context, name string) (string, error) {
	return f.record("delete-branch:" + name)
}

func (f *fakeRepo) SwitchBranch(_ context.Context, name string) (string, error) {
	return f.record("switch-branch:" + name)
}

func (f *fakeRepo) MergeBranch(_ context.Context, name string) (string, error) {
	return f.record("merge-branch:" + name)
}

var _ = Describe("Dispatcher", func() {
	var (
		ctx        context.Context
		repo       *fakeRepo
		refreshes  int
		dispatcher *dispatch.Dispatcher
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = &fakeRepo{errs: map[string]error{}, output: map[string]string{}}
		refreshes = 0
		dispatcher = dispatch.New(repo, dispatch.RefreshFunc(func(context.Context) { refreshes++ }), nil)
	})

	DescribeTable("rejects missing required payload fields without touching the repository",
		func(action dispatch.Action, field string) {
			result := dispatcher.Dispatch(ctx, action, dispatch.Payload{})

			Expect(result.Succeeded).To(BeFalse())
			Expect(dispatch.IsValidationError(result.Err)).To(BeTrue())
			Expect(result.ErrorMessage).To(ContainSubstring(field))
			Expect(repo.calls).To(BeEmpty())
			Expect(refreshes).To(Equal(1))
		},
		Entry("commit", dispatch.ActionCommit, "message"),
		Entry("set-remote", dispatch.ActionSetRemote, "url"),
		Entry("create-branch", dispatch.ActionCreateBranch, "name"),
		Entry("delete-branch", dispatch.ActionDeleteBranch, "name"),
		Entry("switch-branch", dispatch.ActionSwitchBranch, "name"),
		Entry("merge-branch", dispatch.ActionMergeBranch, "name"),
	)

	It("rejects fields that do not belong to the action", func() {
		result := dispatcher.Dispatch(ctx, dispatch.ActionPush, dispatch.Payload{Name: "main"})

		Expect(dispatch.IsValidationError(result.Err)).To(BeTrue())
		Expect(repo.calls).To(BeEmpty())
	})

	It("rejects branch names that look like options", func() {
		result := dispatcher.Dispatch(ctx, dispatch.ActionDeleteBranch, dispatch.Payload{Name: "--force"})

		Expect(dispatch.IsValidationError(result.Err)).To(BeTrue())
		Expect(repo.calls).To(BeEmpty())
	})

	It("rejects unknown actions", func() {
		result := dispatcher.Dispatch(ctx, dispatch.Action("rebase"), dispatch.Payload{})

		Expect(result.Succeeded).To(BeFalse())
		Expect(dispatch.IsValidationError(result.Err)).To(BeTrue())
		Expect(repo.calls).To(BeEmpty())
	})

	It("passes the commit message through unchanged", func() {
		msg := `fix "quotes" and $(subshells)`
		result := dispatcher.Dispatch(ctx, dispatch.ActionCommit, dispatch.Payload{Message: msg})

		Expect(result.Succeeded).To(BeTrue())
		Expect(repo.calls).To(Equal([]string{"commit:" + msg}))
	})

	It("normalizes branch names before handing them to the repository", func() {
		result := dispatcher.Dispatch(ctx, dispatch.ActionSwitchBranch, dispatch.Payload{Name: " refs/heads/release/v1 "})

		Expect(result.Succeeded).To(BeTrue())
		Expect(repo.calls).To(Equal([]string{"switch-branch:release/v1"}))
	})

	Describe("fast-push", func() {
		It("stages, commits with the fixed message, then pushes", func() {
			repo.output["push"] = "pushed"

			result := dispatcher.Dispatch(ctx, dispatch.ActionFastPush, dispatch.Payload{})

			Expect(result.Succeeded).To(BeTrue())
			Expect(result.Output).To(Equal("pushed"))
			Expect(repo.calls).To(Equal([]string{"stage-all", "commit:" + dispatch.FastPushMessage, "push"}))
			Expect(refreshes).To(Equal(1))
		})

		It("skips push when the commit fails", func() {
			commitErr := &git.ExecutionError{Stderr: "nothing to commit, working tree clean"}
			repo.errs["commit:"+dispatch.FastPushMessage] = commitErr

			result := dispatcher.Dispatch(ctx, dispatch.ActionFastPush, dispatch.Payload{})

			Expect(result.Succeeded).To(BeFalse())
			Expect(errors.Is(result.Err, commitErr)).To(BeTrue())
			Expect(result.ErrorMessage).To(HavePrefix("fast-push failed"))
			Expect(result.ErrorMessage).To(ContainSubstring("nothing to commit"))
			Expect(repo.calls).To(Equal([]string{"stage-all", "commit:" + dispatch.FastPushMessage}))
		})

		It("skips commit and push when staging fails", func() {
			repo.errs["stage-all"] = errors.New("index.lock exists")

			result := dispatcher.Dispatch(ctx, dispatch.ActionFastPush, dispatch.Payload{})

			Expect(result.Succeeded).To(BeFalse())
			Expect(repo.calls).To(Equal([]string{"stage-all"}))
		})
	})

	It("reports the status sentinel as output", func() {
		repo.status = git.StatusClean

		result := dispatcher.Dispatch(ctx, dispatch.ActionStatus, dispatch.Payload{})

		Expect(result.Succeeded).To(BeTrue())
		Expect(result.Output).To(Equal(git.StatusClean))
	})

	It("refreshes stats after a failed action", func() {
		repo.errs["merge-branch:feature"] = &git.ExecutionError{Stderr: "CONFLICT (content): Merge conflict in a.txt"}

		result := dispatcher.Dispatch(ctx, dispatch.ActionMergeBranch, dispatch.Payload{Name: "feature"})

		Expect(result.Succeeded).To(BeFalse())
		Expect(result.ErrorMessage).To(Equal("merge-branch failed: CONFLICT (content): Merge conflict in a.txt"))
		Expect(refreshes).To(Equal(1))
	})

	It("reports rejected actions as failed validation and refreshes", func() {
		result := dispatcher.Reject(ctx, dispatch.Action("rebase"), errors.New("unknown action"))

		Expect(result.Succeeded).To(BeFalse())
		Expect(result.Action).To(Equal(dispatch.Action("rebase")))
		Expect(dispatch.IsValidationError(result.Err)).To(BeTrue())
		Expect(result.ErrorMessage).To(ContainSubstring("unknown action"))
		Expect(repo.calls).To(BeEmpty())
		Expect(refreshes).To(Equal(1))
	})

	It("never retries a failed action", func() {
		repo.errs["pull"] = errors.New("network unreachable")

		dispatcher.Dispatch(ctx, dispatch.ActionPull, dispatch.Payload{})

		Expect(repo.calls).To(Equal([]string{"pull"}))
	})

	It("delivers asynchronous results on a channel", func() {
		repo.output["fetch"] = "fetched"

		var result dispatch.Result
		Eventually(dispatcher.DispatchAsync(ctx, dispatch.ActionFetch, dispatch.Payload{})).Should(Receive(&result))
		Expect(result.Succeeded).To(BeTrue())
		Expect(result.Output).To(Equal("fetched"))
	})

	It("works without a refresher", func() {
		plain := dispatch.New(repo, nil, nil)

		Expect(plain.Dispatch(ctx, dispatch.ActionStash, dispatch.Payload{}).Succeeded).To(BeTrue())
	})
})

var _ = Describe("ParseAction", func() {
	It("accepts every canonical action name", func() {
		for _, action := range dispatch.Actions() {
			parsed, err := dispatch.ParseAction(string(action))
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed).To(Equal(action))
		}
	})

	It("accepts camelCase aliases", func() {
		parsed, err := dispatch.ParseAction("fastPush")
		Expect(err).NotTo(HaveOccurred())
		Expect(parsed).To(Equal(dispatch.ActionFastPush))
	})

	It("rejects unknown names", func() {
		_, err := dispatch.ParseAction("cherry-pick")
		Expect(dispatch.IsValidationError(err)).To(BeTrue())
	})
})
