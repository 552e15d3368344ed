package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/gema-evalsync/internal/apiclient"
	"github.com/noah-isme/gema-evalsync/internal/config"
	"github.com/noah-isme/gema-evalsync/internal/dto"
	"github.com/noah-isme/gema-evalsync/internal/engine"
	"github.com/noah-isme/gema-evalsync/internal/models"
	"github.com/noah-isme/gema-evalsync/internal/store"
)

type cli struct {
	cfg      config.Config
	engine   *engine.Engine
	out      io.Writer
	email    string
	password string
}

type command struct {
	name    string
	usage   string
	summary string
	run     func(ctx context.Context, app *cli, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{"login", "--email <email> --password <password> [--register --name <name>]", "sign in and store the session", runLogin},
		{"list", "", "list assignments", runList},
		{"show", "<assignment-id>", "show an assignment with statistics and submissions", runShow},
		{"watch", "<submission-id>...", "poll submissions until they are evaluated", runWatch},
		{"reevaluate", "<assignment-id> <submission-id>", "re-evaluate one submission", runReEvaluate},
		{"reevaluate-all", "<assignment-id>", "re-evaluate every submission of an assignment", runReEvaluateAll},
		{"status", "<assignment-id> <draft|active|closed|archived>", "change the assignment status", runStatus},
		{"grade", "<assignment-id> <evaluation-id> --score <n> [--remarks <text>]", "override a grade", runGrade},
		{"create", "--title <t> --instructions <text> [flags]", "create an assignment", runCreate},
		{"delete", "<assignment-id>", "delete an assignment and its submissions", runDelete},
		{"upload", "<assignment-id> <file.pdf>... [--watch]", "upload PDF submissions", runUpload},
		{"export", "<assignment-id> [--format csv|xlsx] [--out path]", "download the marks sheet", runExport},
	}
}

func lookupCommand(name string) (command, bool) {
	for _, cmd := range commands {
		if cmd.name == name {
			return cmd, true
		}
	}
	return command{}, false
}

func newFlagSet(name string) *pflag.FlagSet {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	return flags
}

func parseArgs(flags *pflag.FlagSet, args []string, positional int, variadic bool) ([]string, error) {
	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	rest := flags.Args()
	if len(rest) < positional || (!variadic && len(rest) != positional) {
		return nil, errUsage
	}
	return rest, nil
}

// authenticate signs in with the global credentials when no session was restored.
func (a *cli) authenticate(ctx context.Context) error {
	if a.engine.Session.Authenticated() || a.email == "" {
		return nil
	}
	_, err := a.engine.Client.Login(ctx, dto.LoginRequest{Email: a.email, Password: a.password})
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	return nil
}

func (a *cli) openAssignment(ctx context.Context, id string) (*engine.AssignmentView, error) {
	if err := a.authenticate(ctx); err != nil {
		return nil, err
	}
	return a.engine.OpenAssignment(ctx, id)
}

func runLogin(ctx context.Context, app *cli, args []string) error {
	flags := newFlagSet("login")
	email := flags.String("email", app.email, "account email")
	password := flags.String("password", app.password, "account password")
	name := flags.String("name", "", "display name when registering")
	register := flags.Bool("register", false, "create the account first")
	if _, err := parseArgs(flags, args, 0, false); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return errUsage
	}

	req := dto.LoginRequest{Email: *email, Password: *password, Name: *name}
	var (
		resp dto.AuthResponse
		err  error
	)
	if *register {
		resp, err = app.engine.Client.Register(ctx, req)
	} else {
		resp, err = app.engine.Client.Login(ctx, req)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(app.out, "signed in as %s <%s>\n", resp.User.Name, resp.User.Email)
	if app.cfg.SessionRedis == "" {
		fmt.Fprintln(app.out, "session is not persisted; set EVALSYNC_SESSION_REDIS_URL or pass --email/--password to each command")
	}
	return nil
}

func runList(ctx context.Context, app *cli, args []string) error {
	if _, err := parseArgs(newFlagSet("list"), args, 0, false); err != nil {
		return err
	}
	if err := app.authenticate(ctx); err != nil {
		return err
	}

	assignments, err := app.engine.Lifecycle.LoadAssignments(ctx, store.NewToken())
	if err != nil {
		return err
	}
	return renderAssignments(app.out, assignments)
}

func runShow(ctx context.Context, app *cli, args []string) error {
	rest, err := parseArgs(newFlagSet("show"), args, 1, false)
	if err != nil {
		return err
	}

	view, err := app.openAssignment(ctx, rest[0])
	if err != nil {
		return err
	}
	defer view.Close()

	assignment, ok := view.Assignment()
	if !ok {
		return fmt.Errorf("assignment %s not found", rest[0])
	}
	return renderAssignment(app.out, assignment, view.Stats(), view.BulkBusy())
}

func runWatch(ctx context.Context, app *cli, args []string) error {
	rest, err := parseArgs(newFlagSet("watch"), args, 1, true)
	if err != nil {
		return err
	}
	if err := app.authenticate(ctx); err != nil {
		return err
	}
	return watchSubmissions(ctx, app, rest)
}

func watchSubmissions(ctx context.Context, app *cli, ids []string) error {
	results := make([]models.Submission, len(ids))

	group, groupCtx := errgroup.WithContext(ctx)
	for i, id := range ids {
		i, id := i, id
		group.Go(func() error {
			view, err := app.engine.OpenSubmission(groupCtx, id)
			if err != nil {
				return err
			}
			defer view.Close()

			select {
			case <-view.Settled():
			case <-groupCtx.Done():
				return groupCtx.Err()
			}

			submission, ok := view.Submission()
			if !ok {
				return fmt.Errorf("submission %s not found", id)
			}
			results[i] = submission
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	return renderSubmissions(app.out, results)
}

func runReEvaluate(ctx context.Context, app *cli, args []string) error {
	rest, err := parseArgs(newFlagSet("reevaluate"), args, 2, false)
	if err != nil {
		return err
	}

	view, err := app.openAssignment(ctx, rest[0])
	if err != nil {
		return err
	}
	defer view.Close()

	if err := view.ReEvaluate(ctx, rest[1]); err != nil {
		return err
	}

	assignment, _ := view.Assignment()
	for _, submission := range assignment.Submissions {
		if submission.ID == rest[1] {
			return renderSubmissions(app.out, []models.Submission{submission})
		}
	}
	return nil
}

func runReEvaluateAll(ctx context.Context, app *cli, args []string) error {
	rest, err := parseArgs(newFlagSet("reevaluate-all"), args, 1, false)
	if err != nil {
		return err
	}

	view, err := app.openAssignment(ctx, rest[0])
	if err != nil {
		return err
	}
	defer view.Close()

	message, err := view.ReEvaluateAll(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(app.out, message)
	return nil
}

func runStatus(ctx context.Context, app *cli, args []string) error {
	rest, err := parseArgs(newFlagSet("status"), args, 2, false)
	if err != nil {
		return err
	}

	view, err := app.openAssignment(ctx, rest[0])
	if err != nil {
		return err
	}
	defer view.Close()

	if err := view.ChangeStatus(ctx, models.AssignmentStatus(strings.ToLower(rest[1]))); err != nil {
		return err
	}

	assignment, _ := view.Assignment()
	fmt.Fprintf(app.out, "%s is now %s\n", assignment.Title, assignment.Status)
	return nil
}

func runGrade(ctx context.Context, app *cli, args []string) error {
	flags := newFlagSet("grade")
	score := flags.Float64("score", -1, "new score")
	remarks := flags.String("remarks", "", "new remarks")
	rest, err := parseArgs(flags, args, 2, false)
	if err != nil {
		return err
	}
	if !flags.Changed("score") {
		return errUsage
	}

	view, err := app.openAssignment(ctx, rest[0])
	if err != nil {
		return err
	}
	defer view.Close()

	if err := view.UpdateGrade(ctx, rest[1], *score, *remarks); err != nil {
		return err
	}

	assignment, _ := view.Assignment()
	if submission, ok := assignment.FindEvaluation(rest[1]); ok {
		return renderSubmissions(app.out, []models.Submission{submission})
	}
	return nil
}

func runCreate(ctx context.Context, app *cli, args []string) error {
	form := dto.DefaultAssignmentForm()

	flags := newFlagSet("create")
	flags.StringVar(&form.Title, "title", "", "assignment title")
	flags.StringVar(&form.Instructions, "instructions", "", "instructions shown to students and the grader")
	flags.IntVar(&form.MinWords, "min-words", form.MinWords, "minimum word count")
	flags.StringVar(&form.MarkingMode, "marking-mode", form.MarkingMode, "strict or loose")
	flags.Float64Var(&form.TotalMarks, "total-marks", form.TotalMarks, "total marks")
	flags.Float64Var(&form.PassPercentage, "pass-percentage", form.PassPercentage, "pass mark in percent")
	deadline := flags.String("deadline", "", "optional RFC3339 deadline")
	if _, err := parseArgs(flags, args, 0, false); err != nil {
		return err
	}

	if *deadline != "" {
		parsed, err := time.Parse(time.RFC3339, *deadline)
		if err != nil {
			return fmt.Errorf("%w: deadline: %v", errUsage, err)
		}
		form.Deadline = &parsed
	}

	if err := app.authenticate(ctx); err != nil {
		return err
	}

	created, err := app.engine.Lifecycle.CreateAssignment(ctx, store.NewToken(), form)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.out, "created %s (%s)\n", created.Title, created.ID)
	return nil
}

func runDelete(ctx context.Context, app *cli, args []string) error {
	rest, err := parseArgs(newFlagSet("delete"), args, 1, false)
	if err != nil {
		return err
	}
	if err := app.authenticate(ctx); err != nil {
		return err
	}
	return app.engine.Lifecycle.DeleteAssignment(ctx, store.NewToken(), rest[0])
}

func runUpload(ctx context.Context, app *cli, args []string) error {
	flags := newFlagSet("upload")
	watch := flags.Bool("watch", false, "poll the uploaded submissions until they are evaluated")
	rest, err := parseArgs(flags, args, 2, true)
	if err != nil {
		return err
	}

	files := make([]apiclient.File, 0, len(rest)-1)
	for _, path := range rest[1:] {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		files = append(files, apiclient.File{Name: filepath.Base(path), Data: data})
	}

	view, err := app.openAssignment(ctx, rest[0])
	if err != nil {
		return err
	}
	defer view.Close()

	resp, err := view.Upload(ctx, files)
	if err != nil {
		return err
	}
	fmt.Fprintln(app.out, resp.Message)

	if !*watch || len(resp.Submissions) == 0 {
		return nil
	}
	return watchSubmissions(ctx, app, resp.Submissions)
}

func runExport(ctx context.Context, app *cli, args []string) error {
	flags := newFlagSet("export")
	format := flags.String("format", string(apiclient.ExportCSV), "csv or xlsx")
	out := flags.String("out", "", "output file, defaults to marks-<assignment-id>.<format>")
	rest, err := parseArgs(flags, args, 1, false)
	if err != nil {
		return err
	}

	exportFormat := apiclient.ExportFormat(strings.ToLower(*format))
	if !exportFormat.Valid() {
		return fmt.Errorf("%w: unknown format %q", errUsage, *format)
	}

	path := *out
	if path == "" {
		path = fmt.Sprintf("marks-%s.%s", rest[0], exportFormat)
	}

	if err := app.authenticate(ctx); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	if err := app.engine.Lifecycle.Export(ctx, rest[0], exportFormat, file); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}

	fmt.Fprintf(app.out, "wrote %s\n", path)
	return nil
}
