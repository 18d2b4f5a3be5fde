// Package cli is the interactive front end of discshelf.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dmitrijs2005/discshelf/internal/backends"
	"github.com/dmitrijs2005/discshelf/internal/collection"
	"github.com/dmitrijs2005/discshelf/internal/common"
	"github.com/dmitrijs2005/discshelf/internal/conflict"
	"github.com/dmitrijs2005/discshelf/internal/logging"
	"github.com/dmitrijs2005/discshelf/internal/models"
	"github.com/dmitrijs2005/discshelf/internal/syncer"
	"github.com/dmitrijs2005/discshelf/internal/syncstate"
)

// SyncService is what the CLI needs from the sync core. *syncer.Service
// implements it.
type SyncService interface {
	Status() syncstate.State
	BackendName() string
	Collection() *collection.Store
	PendingConflict() *conflict.Error
	Load(ctx context.Context) (*models.Snapshot, error)
	Save(ctx context.Context) error
	ForceSave(ctx context.Context) error
	Resolve(ctx context.Context, r conflict.Resolution) error
	SignIn(ctx context.Context) (*backends.Session, error)
	SignOut(ctx context.Context) error
	SetLive(ctx context.Context, on bool) error
	Live() bool
	AddRecord(ctx context.Context, list models.ListName, r models.Record) (models.Record, error)
	DeleteRecord(ctx context.Context, list models.ListName, id string) error
	FindDuplicates(artist, title string) []syncer.Candidate
	Revisions(ctx context.Context) ([]backends.Revision, error)
	RestoreRevision(ctx context.Context, id string) (*models.Snapshot, error)
	FormatView(ctx context.Context) (models.Format, error)
	SetFormatView(ctx context.Context, f models.Format) error
}

var _ SyncService = (*syncer.Service)(nil)

type App struct {
	svc    SyncService
	reader *bufio.Reader
	out    io.Writer
	log    logging.Logger
}

func NewApp(svc SyncService, in io.Reader, out io.Writer, log logging.Logger) *App {
	return &App{svc: svc, reader: bufio.NewReader(in), out: out, log: logging.OrNop(log).With("component", "cli")}
}

// Run starts the REPL and returns when the user exits or input ends.
func (a *App) Run(ctx context.Context) {
	fmt.Fprintln(a.out, "discshelf (type 'help' for commands)")
	runREPL(ctx, a, a.prompt, a.reader)
}

func (a *App) prompt() string {
	st := a.svc.Status()
	s := fmt.Sprintf("(%s %s", a.svc.BackendName(), st.Status)
	if a.svc.Live() {
		s += " live"
	}
	return s + ")"
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *App) Status(_ context.Context, _ []string) error {
	st := a.svc.Status()
	a.printf("backend: %s\nstatus:  %s\n", a.svc.BackendName(), st.Status)
	if st.Message != "" {
		a.printf("message: %s\n", st.Message)
	}
	if st.Kind != common.KindNone {
		a.printf("error:   %s\n", st.Kind)
	}
	if !st.LastSynced.IsZero() {
		a.printf("synced:  %s\n", st.LastSynced.Local().Format("2006-01-02 15:04:05"))
	}
	live := "off"
	if a.svc.Live() {
		live = "on"
	}
	snap := a.svc.Collection().Snapshot()
	a.printf("live:    %s\nrecords: %d owned, %d wanted\n", live, len(snap.Collection), len(snap.Wantlist))
	if c := a.svc.PendingConflict(); c != nil {
		a.printConflict(c)
	}
	return nil
}

func (a *App) printConflict(c *conflict.Error) {
	a.printf("conflict: remote has %d records (modified %s), local has %d\n",
		c.Remote.Items, c.Remote.Modified.Local().Format("2006-01-02 15:04"), c.Local.Items)
	a.printf("use 'force' to keep local data or 'pull' to take the remote copy\n")
}

// List prints records of the chosen view. A format argument also becomes the
// remembered view.
func (a *App) List(ctx context.Context, args []string) error {
	list := models.ListCollection
	format, err := a.svc.FormatView(ctx)
	if err != nil {
		a.log.Warn(ctx, "format view unreadable", "error", err)
	}
	for _, arg := range args {
		switch arg {
		case "want", "wantlist":
			list = models.ListWantlist
		case string(models.FormatCD), string(models.FormatVinyl):
			format = models.Format(arg)
			if err := a.svc.SetFormatView(ctx, format); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: unknown list option %q", common.ErrValidation, arg)
		}
	}

	records := a.svc.Collection().ByFormat(list, format)
	if list == models.ListWantlist {
		records = a.svc.Collection().List(list)
	}
	if len(records) == 0 {
		a.printf("no records\n")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tARTIST\tTITLE\tYEAR\tFORMAT\tSTATE")
	for _, r := range records {
		year := ""
		if r.Year > 0 {
			year = strconv.Itoa(r.Year)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.Artist, r.Title, year, r.Format, r.State)
	}
	return tw.Flush()
}

// Add prompts for a record, warns about likely duplicates and stores it.
func (a *App) Add(ctx context.Context, args []string) error {
	list := listFromArgs(args)
	var r models.Record
	var err error
	if r.Artist, err = GetSimpleText(a.reader, "Artist", a.out); err != nil {
		return err
	}
	if r.Title, err = GetSimpleText(a.reader, "Title", a.out); err != nil {
		return err
	}

	if dups := a.svc.FindDuplicates(r.Artist, r.Title); len(dups) > 0 {
		a.printf("possible duplicates:\n")
		for _, d := range dups {
			a.printf("  [%s] %s %s - %s (%s)\n", d.List, d.Record.ID, d.Record.Artist, d.Record.Title, d.Record.Format)
		}
		ok, err := Confirm(a.reader, "Add anyway?", a.out)
		if err != nil {
			return err
		}
		if !ok {
			a.printf("not added\n")
			return nil
		}
	}

	format, err := GetSimpleText(a.reader, "Format (cd/vinyl)", a.out)
	if err != nil {
		return err
	}
	r.Format = models.Format(strings.ToLower(format))
	if r.Format == "" {
		r.Format = models.FormatCD
	}
	year, err := GetSimpleText(a.reader, "Year (empty to skip)", a.out)
	if err != nil {
		return err
	}
	if year != "" {
		if r.Year, err = strconv.Atoi(year); err != nil {
			return fmt.Errorf("%w: year %q", common.ErrValidation, year)
		}
	}
	if r.Tags, err = GetList(a.reader, "Tags", a.out); err != nil {
		return err
	}
	attrs, err := GetList(a.reader, "Attributes", a.out)
	if err != nil {
		return err
	}
	if r.Attributes, err = models.ParseAttributes(attrs); err != nil {
		return err
	}

	added, err := a.svc.AddRecord(ctx, list, r)
	if err != nil {
		return err
	}
	a.printf("added %s\n", added.ID)
	return nil
}

func (a *App) Remove(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: usage: rm <id> [want]", common.ErrValidation)
	}
	if err := a.svc.DeleteRecord(ctx, listFromArgs(args[1:]), args[0]); err != nil {
		return err
	}
	a.printf("removed %s\n", args[0])
	return nil
}

func (a *App) Load(ctx context.Context, _ []string) error {
	snap, err := a.svc.Load(ctx)
	if err != nil {
		return err
	}
	a.printf("loaded %d records\n", snap.Count())
	return nil
}

func (a *App) Save(ctx context.Context, _ []string) error {
	err := a.svc.Save(ctx)
	var ce *conflict.Error
	if errors.As(err, &ce) {
		a.printConflict(ce)
		return nil
	}
	if err != nil {
		return err
	}
	a.printf("saved\n")
	return nil
}

func (a *App) Force(ctx context.Context, _ []string) error {
	if err := a.svc.Resolve(ctx, conflict.KeepLocal); err != nil {
		return err
	}
	a.printf("remote overwritten\n")
	return nil
}

func (a *App) Pull(ctx context.Context, _ []string) error {
	if err := a.svc.Resolve(ctx, conflict.PullRemote); err != nil {
		return err
	}
	a.printf("local data replaced with remote copy\n")
	return nil
}

func (a *App) SignIn(ctx context.Context, _ []string) error {
	sess, err := a.svc.SignIn(ctx)
	if err != nil {
		return err
	}
	if sess != nil && sess.OwnerID != "" {
		a.printf("signed in as %s\n", sess.OwnerID)
		return nil
	}
	a.printf("signed in\n")
	return nil
}

func (a *App) SignOut(ctx context.Context, _ []string) error {
	if err := a.svc.SignOut(ctx); err != nil {
		return err
	}
	a.printf("signed out\n")
	return nil
}

func (a *App) Live(ctx context.Context, args []string) error {
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		return fmt.Errorf("%w: usage: live on|off", common.ErrValidation)
	}
	on := args[0] == "on"
	if err := a.svc.SetLive(ctx, on); err != nil {
		return err
	}
	a.printf("live updates %s\n", args[0])
	return nil
}

func (a *App) Revisions(ctx context.Context, _ []string) error {
	revs, err := a.svc.Revisions(ctx)
	if err != nil {
		return err
	}
	if len(revs) == 0 {
		a.printf("no revisions\n")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMODIFIED\tSIZE")
	for _, r := range revs {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", r.ID, r.Modified.Local().Format("2006-01-02 15:04"), r.Size)
	}
	return tw.Flush()
}

func (a *App) Restore(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: usage: restore <id>", common.ErrValidation)
	}
	snap, err := a.svc.RestoreRevision(ctx, args[0])
	if err != nil {
		return err
	}
	a.printf("restored %d records locally; 'save' to publish\n", snap.Count())
	return nil
}

func listFromArgs(args []string) models.ListName {
	for _, a := range args {
		if a == "want" || a == "wantlist" {
			return models.ListWantlist
		}
	}
	return models.ListCollection
}
