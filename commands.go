package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/sadopc/issuedesk/internal/awards"
	"github.com/sadopc/issuedesk/internal/export"
	"github.com/sadopc/issuedesk/internal/model"
	"github.com/sadopc/issuedesk/internal/remote"
)

// --- Filter flags ---

// filterFlags are shared by list and export.
type filterFlags struct {
	text     string
	tag      string
	tokens   []string
	priority string
	status   string
	sort     string
	asc      bool
	recent   bool
}

func (f *filterFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.text, "text", "", "match title or content")
	fs.StringVar(&f.tag, "tag", "", "only issues in this tag (name or id)")
	fs.StringSliceVar(&f.tokens, "token", nil, "require these tags as well (repeatable)")
	fs.StringVar(&f.priority, "priority", "any", "low, medium, high or any")
	fs.StringVar(&f.status, "status", "all", "all, open or closed")
	fs.StringVar(&f.sort, "sort", "created", "created or modified")
	fs.BoolVar(&f.asc, "asc", false, "oldest first")
	fs.BoolVar(&f.recent, "recent", false, "only issues modified in the last 7 days")
}

func (f *filterFlags) state(snap *model.Snapshot, now time.Time) (model.FilterState, error) {
	fs := model.DefaultFilterState()
	fs.Text = f.text
	fs.SortDescending = !f.asc

	switch {
	case f.tag != "":
		t, err := findTag(snap, f.tag)
		if err != nil {
			return fs, err
		}
		fs.Selected = model.TagFilter(t)
	case f.recent:
		fs.Selected = model.RecentFilter(now)
	}

	for _, name := range f.tokens {
		t, err := findTag(snap, name)
		if err != nil {
			return fs, err
		}
		fs.AddToken(t)
	}

	switch f.sort {
	case "created", "":
		fs.SortKey = model.SortByCreated
	case "modified":
		fs.SortKey = model.SortByModified
	default:
		return fs, fmt.Errorf("unknown sort %q (want created or modified)", f.sort)
	}

	prio, err := parsePriority(f.priority, true)
	if err != nil {
		return fs, err
	}
	switch f.status {
	case "all", "open", "closed":
	default:
		return fs, fmt.Errorf("unknown status %q (want all, open or closed)", f.status)
	}
	fs.Priority = prio
	fs.Status = model.ParseStatus(f.status)
	fs.Enabled = fs.Priority != model.AnyPriority || fs.Status != model.StatusAll
	return fs, nil
}

// parsePriority accepts a label or 0..2. "any" is allowed only when
// anyOK is set.
func parsePriority(s string, anyOK bool) (int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "0":
		return model.PriorityLow, nil
	case "medium", "1":
		return model.PriorityMedium, nil
	case "high", "2":
		return model.PriorityHigh, nil
	case "any", "":
		if anyOK {
			return model.AnyPriority, nil
		}
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}

// findTag resolves ref as a tag name (case-insensitive) or an id prefix.
func findTag(snap *model.Snapshot, ref string) (model.Tag, error) {
	var matches []model.Tag
	for _, t := range snap.Tags {
		if strings.EqualFold(t.Name, ref) || t.ID == ref {
			return t, nil
		}
		if strings.HasPrefix(t.ID, ref) {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 0:
		return model.Tag{}, fmt.Errorf("no tag %q", ref)
	case 1:
		return matches[0], nil
	}
	return model.Tag{}, fmt.Errorf("tag %q is ambiguous", ref)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func renderIssues(w io.Writer, snap *model.Snapshot, issues []model.Issue, total int) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "Title", "Status", "Priority", "Tags", "Modified")
	for _, is := range issues {
		t.Row(shortID(is.ID), is.Title, is.Status(), is.PriorityLabel(), snap.TagList(is),
			is.ModifiedDate.Local().Format("2006-01-02 15:04"))
	}
	fmt.Fprintln(w, t.Render())
	if total > len(issues) {
		fmt.Fprintf(w, "%d of %d issues\n", len(issues), total)
	} else {
		fmt.Fprintf(w, "%d issues\n", len(issues))
	}
}

// --- Commands ---

func newListCmd(open openFunc) *cobra.Command {
	var (
		ff     filterFlags
		top    int
		limit  uint64
		format string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List issues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			snap := e.sess.Snapshot()
			var issues []model.Issue
			total := 0
			if top > 0 {
				issues = e.sess.FetchTopIssues(top)
				total = len(issues)
			} else {
				fs, err := ff.state(snap, time.Now())
				if err != nil {
					return err
				}
				issues = e.sess.FetchIssues(fs, limit)
				total = e.sess.CountIssues(fs)
			}

			if format == "table" {
				renderIssues(cmd.OutOrStdout(), snap, issues, total)
				return nil
			}
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			return export.Write(cmd.OutOrStdout(), f, snap, issues)
		},
	}
	ff.register(cmd)
	cmd.Flags().IntVar(&top, "top", 0, "show the n most important open issues instead")
	cmd.Flags().Uint64Var(&limit, "limit", 0, "show at most n issues (0 for all)")
	cmd.Flags().StringVar(&format, "format", "table", "table, csv, json or yaml")
	return cmd
}

func newAddCmd(open openFunc) *cobra.Command {
	var content, priority, tag string
	cmd := &cobra.Command{
		Use:   "add TITLE...",
		Short: "Create an issue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prio, err := parsePriority(priority, false)
			if err != nil {
				return err
			}
			e, err := open(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			scope := model.AllFilter
			if tag != "" {
				t, err := findTag(e.sess.Snapshot(), tag)
				if err != nil {
					return err
				}
				scope = model.TagFilter(t)
			}

			is, err := e.sess.NewIssue(scope)
			if err != nil {
				return err
			}
			title := strings.Join(args, " ")
			if err := e.sess.UpdateIssue(is.ID, func(i *model.Issue) {
				i.Title = title
				i.Content = content
				i.Priority = prio
			}); err != nil {
				return err
			}
			if err := e.sess.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added: %s\n", is.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "issue description")
	cmd.Flags().StringVarP(&priority, "priority", "p", "medium", "low, medium or high")
	cmd.Flags().StringVarP(&tag, "tag", "t", "", "tag to attach (name or id)")
	return cmd
}

func newTagsCmd(open openFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "List tags with their open issue counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			snap := e.sess.Snapshot()
			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("ID", "Name", "Open issues")
			for _, tag := range snap.Tags {
				t.Row(shortID(tag.ID), tag.Name, strconv.Itoa(len(snap.ActiveIssues(tag.ID))))
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return nil
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "add NAME",
			Short: "Create a tag",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				e, err := open(cmd, false)
				if err != nil {
					return err
				}
				defer e.Close()

				t, ok := e.sess.NewTag()
				if !ok {
					return errors.New("tag limit reached; run `issuedesk unlock` for unlimited tags")
				}
				if err := e.sess.RenameTag(t.ID, args[0]); err != nil {
					return err
				}
				if err := e.sess.Save(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added tag: %s\n", t.ID)
				return nil
			},
		},
		&cobra.Command{
			Use:   "rename TAG NAME",
			Short: "Rename a tag",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				e, err := open(cmd, false)
				if err != nil {
					return err
				}
				defer e.Close()

				t, err := findTag(e.sess.Snapshot(), args[0])
				if err != nil {
					return err
				}
				if err := e.sess.RenameTag(t.ID, args[1]); err != nil {
					return err
				}
				return e.sess.Save()
			},
		},
		&cobra.Command{
			Use:   "delete TAG",
			Short: "Delete a tag; its issues are kept",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				e, err := open(cmd, false)
				if err != nil {
					return err
				}
				defer e.Close()

				t, err := findTag(e.sess.Snapshot(), args[0])
				if err != nil {
					return err
				}
				return e.sess.DeleteTag(t.ID)
			},
		},
	)
	return cmd
}

func newAwardsCmd(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "awards",
		Short: "Show earned awards and progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			counts := e.sess.AwardCounts()
			out := cmd.OutOrStdout()
			for _, a := range awards.All() {
				mark := " "
				if awards.HasEarned(counts, a) {
					mark = "*"
				}
				fmt.Fprintf(out, "[%s] %-16s %3.0f%%  %s\n", mark, a.Name, awards.Progress(counts, a)*100, a.Description)
			}
			if e.sess.ShouldRequestReview() {
				fmt.Fprintln(out, "\nEnjoying issuedesk? A review helps a lot.")
			}
			return nil
		},
	}
}

func newSampleCmd(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "sample",
		Short: "Add five sample tags with ten issues each",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()
			return e.sess.CreateSampleData()
		},
	}
}

func newDeleteAllCmd(open openFunc) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete-all",
		Short: "Delete every issue and tag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to delete everything without --yes")
			}
			e, err := open(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			n := e.sess.Snapshot().IssueCount()
			if err := e.sess.DeleteAll(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d issues\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm")
	return cmd
}

func newExportCmd(open openFunc) *cobra.Command {
	var (
		ff     filterFlags
		format string
	)
	cmd := &cobra.Command{
		Use:   "export PATH",
		Short: "Export issues to CSV, JSON or YAML",
		Long:  "Export writes the filtered issue list to PATH. The format follows the file extension unless --format is given; PATH \"-\" writes to stdout.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			var f export.Format
			var err error
			if format != "" {
				f, err = export.ParseFormat(format)
			} else if path == "-" {
				f = export.FormatJSON
			} else {
				f, err = export.FormatForPath(path)
			}
			if err != nil {
				return err
			}

			e, err := open(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			snap := e.sess.Snapshot()
			fs, err := ff.state(snap, time.Now())
			if err != nil {
				return err
			}
			issues := e.sess.IssuesForFilter(fs)

			if path == "-" {
				return export.Write(cmd.OutOrStdout(), f, snap, issues)
			}
			out, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("create export file: %w", err)
			}
			if err := export.Write(out, f, snap, issues); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d issues to %s\n", len(issues), path)
			return nil
		},
	}
	ff.register(cmd)
	cmd.Flags().StringVar(&format, "format", "", "csv, json or yaml (default from the file extension)")
	return cmd
}

func newSyncCmd(open openFunc) *cobra.Command {
	var (
		watch bool
		push  string
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Apply pending remote changes",
		Long: `Sync drains the inbox directory and pulls the Postgres change feed once.
With --watch it keeps both running until interrupted. With --push it
publishes a change-set file to the Postgres feed instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			if e.cfg.InboxDir == "" && e.cfg.RemoteDSN == "" {
				return errors.New("nothing to sync: set --inbox or --remote-dsn")
			}

			if push != "" {
				return pushChangeSet(cmd, e, push)
			}

			if watch {
				ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
				defer cancel()
				stop, err := startFeeds(ctx, e)
				if err != nil {
					return err
				}
				<-ctx.Done()
				stop()
				return nil
			}

			return syncOnce(cmd.Context(), e, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "keep syncing until interrupted")
	cmd.Flags().StringVar(&push, "push", "", "publish this change-set file to the remote feed")
	return cmd
}

func syncOnce(ctx context.Context, e *env, out io.Writer) error {
	if e.cfg.InboxDir != "" {
		if err := remote.NewDirFeed(e.cfg.InboxDir, e.sess, e.logger).Drain(); err != nil {
			return err
		}
	}
	if e.cfg.RemoteDSN != "" {
		pg, err := remote.NewPostgresFeed(e.cfg.RemoteDSN)
		if err != nil {
			return err
		}
		defer pg.Close()
		n, err := remote.NewPoller(pg, e.sess, e.sess, remote.PollerOptions{Logger: e.logger}).PollOnce(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Applied %d remote change-sets\n", n)
	}
	return nil
}

func pushChangeSet(cmd *cobra.Command, e *env, path string) error {
	if e.cfg.RemoteDSN == "" {
		return errors.New("--push needs --remote-dsn")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read change-set: %w", err)
	}
	set, err := remote.Parse(data)
	if err != nil {
		return err
	}
	pg, err := remote.NewPostgresFeed(e.cfg.RemoteDSN)
	if err != nil {
		return err
	}
	defer pg.Close()
	seq, err := pg.Publish(cmd.Context(), set)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Published change-set %d\n", seq)
	return nil
}

func newUnlockCmd(open openFunc) *cobra.Command {
	var revoke bool
	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Unlock the full version (unlimited tags)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.sess.SetFullVersionUnlocked(!revoke); err != nil {
				return err
			}
			if revoke {
				fmt.Fprintln(cmd.OutOrStdout(), "Full version locked")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Full version unlocked")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&revoke, "revoke", false, "lock it again")
	return cmd
}

func newStatusCmd(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show store location, totals and settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			c, settings, err := e.sess.StoredCounts()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "store:   %s\n", e.cfg.DBPath)
			fmt.Fprintf(out, "issues:  %d (%d closed)\n", c.Issues, c.Closed)
			fmt.Fprintf(out, "tags:    %d\n", c.Tags)
			for _, st := range settings {
				fmt.Fprintf(out, "%s = %s\n", st.Key, st.Value)
			}
			return nil
		},
	}
}
