package git

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

type scriptedRunner struct {
	calls     [][]string
	responses map[string]scriptedResponse
}

type scriptedResponse struct {
	out string
	err error
}

func (r *scriptedRunner) Run(_ context.Context, _ string, args ...string) (string, error) {
	r.calls = append(r.calls, args)
	if resp, ok := r.responses[strings.Join(args, " ")]; ok {
		return resp.out, resp.err
	}
	return "", nil
}

func (r *scriptedRunner) commands() []string {
	out := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, strings.Join(c, " "))
	}
	return out
}

var errGitFailed = &ExecutionError{Stderr: "fatal: something went wrong"}

func TestRepositoryNameFromRemote(t *testing.T) {
	runner := &scriptedRunner{responses: map[string]scriptedResponse{
		"remote get-url origin": {out: "https://host/org/my-repo.git"},
	}}
	repo := NewRepository("/work/proj", runner, nil)

	if got := repo.RepositoryName(context.Background()); got != "my-repo" {
		t.Fatalf("expected my-repo, got %q", got)
	}
}

func TestRepositoryNameFallsBackToDirectory(t *testing.T) {
	runner := &scriptedRunner{responses: map[string]scriptedResponse{
		"remote get-url origin": {err: errGitFailed},
	}}
	repo := NewRepository(filepath.Join(string(filepath.Separator), "work", "proj"), runner, nil)

	if got := repo.RepositoryName(context.Background()); got != "proj" {
		t.Fatalf("expected proj, got %q", got)
	}
}

func TestRepositoryNameWithoutWorkDir(t *testing.T) {
	runner := &scriptedRunner{}
	repo := NewRepository("", runner, nil)

	if got := repo.RepositoryName(context.Background()); got != NoRepositoryName {
		t.Fatalf("expected sentinel %q, got %q", NoRepositoryName, got)
	}
	if len(runner.calls) != 0 {
		t.Fatalf("expected no runner calls, got %v", runner.commands())
	}
}

func TestRepositoryStatusSentinels(t *testing.T) {
	ctx := context.Background()

	clean := NewRepository("/work", &scriptedRunner{}, nil)
	if got := clean.Status(ctx); got != StatusClean {
		t.Fatalf("expected %q, got %q", StatusClean, got)
	}

	dirty := NewRepository("/work", &scriptedRunner{responses: map[string]scriptedResponse{
		"status --short": {out: " M README.md\n?? new.txt"},
	}}, nil)
	if got := dirty.Status(ctx); got != " M README.md\n?? new.txt" {
		t.Fatalf("expected verbatim status, got %q", got)
	}

	broken := NewRepository("/work", &scriptedRunner{responses: map[string]scriptedResponse{
		"status --short": {err: errGitFailed},
	}}, nil)
	if got := broken.Status(ctx); got != StatusError {
		t.Fatalf("expected %q, got %q", StatusError, got)
	}

	if StatusClean == StatusError {
		t.Fatalf("status sentinels must differ")
	}

	none := NewRepository("", &scriptedRunner{}, nil)
	if got := none.Status(ctx); got != StatusError {
		t.Fatalf("expected %q without repository, got %q", StatusError, got)
	}
}

func TestRepositorySetRemoteUpdatesExisting(t *testing.T) {
	runner := &scriptedRunner{responses: map[string]scriptedResponse{
		"remote get-url origin": {out: "https://host/org/old.git"},
	}}
	repo := NewRepository("/work", runner, nil)

	if _, err := repo.SetRemote(context.Background(), "https://host/org/new.git"); err != nil {
		t.Fatalf("SetRemote returned error: %v", err)
	}

	want := []string{"remote get-url origin", "remote set-url origin https://host/org/new.git"}
	assertCommands(t, runner, want)
}

func TestRepositorySetRemoteAddsMissing(t *testing.T) {
	runner := &scriptedRunner{responses: map[string]scriptedResponse{
		"remote get-url origin": {err: errGitFailed},
	}}
	repo := NewRepository("/work", runner, nil)

	if _, err := repo.SetRemote(context.Background(), "git@host:org/new.git"); err != nil {
		t.Fatalf("SetRemote returned error: %v", err)
	}

	want := []string{"remote get-url origin", "remote add origin git@host:org/new.git"}
	assertCommands(t, runner, want)
}

func TestRepositorySetRemoteRejectsOptionLikeURL(t *testing.T) {
	runner := &scriptedRunner{}
	repo := NewRepository("/work", runner, nil)

	if _, err := repo.SetRemote(context.Background(), "--upload-pack=evil"); err == nil {
		t.Fatalf("expected error for option-like url")
	}
	if len(runner.calls) != 0 {
		t.Fatalf("expected no runner calls, got %v", runner.commands())
	}
}

func TestRepositoryUpdateRemoteWithToken(t *testing.T) {
	runner := &scriptedRunner{responses: map[string]scriptedResponse{
		"remote get-url origin": {out: "https://olduser@host/org/repo.git"},
	}}
	repo := NewRepository("/work", runner, nil)

	update, err := repo.UpdateRemoteWithToken(context.Background(), "X")
	if err != nil {
		t.Fatalf("UpdateRemoteWithToken returned error: %v", err)
	}
	if !update.Updated {
		t.Fatalf("expected remote to be updated")
	}

	assertCommands(t, runner, []string{"remote get-url origin", "remote set-url origin https://X@host/org/repo.git"})
}

func TestRepositoryUpdateRemoteWithTokenSkipsSSH(t *testing.T) {
	runner := &scriptedRunner{responses: map[string]scriptedResponse{
		"remote get-url origin": {out: "ssh://git@host/org/repo.git"},
	}}
	repo := NewRepository("/work", runner, nil)

	update, err := repo.UpdateRemoteWithToken(context.Background(), "X")
	if err != nil {
		t.Fatalf("expected skip without error, got %v", err)
	}
	if update.Updated || update.Reason == "" {
		t.Fatalf("expected skipped update with reason, got %+v", update)
	}
	assertCommands(t, runner, []string{"remote get-url origin"})
}

func TestRepositoryDeleteBranchIsForced(t *testing.T) {
	runner := &scriptedRunner{}
	repo := NewRepository("/work", runner, nil)

	if _, err := repo.DeleteBranch(context.Background(), "feature/x"); err != nil {
		t.Fatalf("DeleteBranch returned error: %v", err)
	}
	assertCommands(t, runner, []string{"branch -D feature/x"})
}

func TestRepositoryBranchOperationsRejectOptions(t *testing.T) {
	runner := &scriptedRunner{}
	repo := NewRepository("/work", runner, nil)
	ctx := context.Background()

	ops := map[string]func(context.Context, string) (string, error){
		"create": repo.CreateBranch,
		"delete": repo.DeleteBranch,
		"switch": repo.SwitchBranch,
		"merge":  repo.MergeBranch,
	}
	for name, op := range ops {
		if _, err := op(ctx, "--orphan"); err == nil {
			t.Fatalf("%s: expected error for option-like branch", name)
		}
	}
	if len(runner.calls) != 0 {
		t.Fatalf("expected no runner calls, got %v", runner.commands())
	}
}

func TestRepositoryWithoutWorkDirReturnsErrNoRepository(t *testing.T) {
	repo := NewRepository("", &scriptedRunner{}, nil)

	if _, err := repo.Push(context.Background()); !errors.Is(err, ErrNoRepository) {
		t.Fatalf("expected ErrNoRepository, got %v", err)
	}
	if got := repo.CurrentBranch(context.Background()); got != UnknownBranch {
		t.Fatalf("expected %q, got %q", UnknownBranch, got)
	}
	if got := repo.RemoteURL(context.Background()); got != NoRemote {
		t.Fatalf("expected %q, got %q", NoRemote, got)
	}
}

func TestRepositoryWorkflowAgainstRealGit(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	tmp := t.TempDir()
	dir := initRepo(t)
	remote := filepath.Join(tmp, "remote.git")
	mustRunGit(t, tmp, "init", "--bare", remote)

	repo := NewRepository(dir, NewShellRunner(), nil)

	if got := repo.Status(ctx); got != StatusClean {
		t.Fatalf("expected clean status, got %q", got)
	}

	if _, err := repo.SetRemote(ctx, remote); err != nil {
		t.Fatalf("SetRemote failed: %v", err)
	}
	if got := repo.RepositoryName(ctx); got != "remote" {
		t.Fatalf("expected repository name from remote, got %q", got)
	}

	if _, err := repo.CreateBranch(ctx, "feature/quote"); err != nil {
		t.Fatalf("CreateBranch failed: %v", err)
	}
	if got := repo.CurrentBranch(ctx); got != "feature/quote" {
		t.Fatalf("expected feature/quote, got %q", got)
	}

	writeFile(t, filepath.Join(dir, "notes.txt"), "notes\n")
	if got := repo.Status(ctx); !strings.Contains(got, "notes.txt") {
		t.Fatalf("expected notes.txt in status, got %q", got)
	}

	if _, err := repo.StageAll(ctx); err != nil {
		t.Fatalf("StageAll failed: %v", err)
	}
	message := `fix "quoted" message`
	if _, err := repo.Commit(ctx, message); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	subject := strings.TrimSpace(string(mustCaptureGit(t, dir, "log", "-1", "--format=%s")))
	if subject != message {
		t.Fatalf("expected commit subject %q, got %q", message, subject)
	}

	if _, err := repo.SwitchBranch(ctx, "main"); err != nil {
		t.Fatalf("SwitchBranch failed: %v", err)
	}
	if _, err := repo.DeleteBranch(ctx, "feature/quote"); err != nil {
		t.Fatalf("forced DeleteBranch of unmerged branch failed: %v", err)
	}
}

func assertCommands(t *testing.T, runner *scriptedRunner, want []string) {
	t.Helper()
	got := runner.commands()
	if len(got) != len(want) {
		t.Fatalf("expected commands %q, got %q", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("command %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}
