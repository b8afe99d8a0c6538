package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/chapel-client/internal/model"
	"github.com/iliyamo/chapel-client/internal/resources"
)

var (
	search   string
	category string
	period   string
	mineOnly bool
	fromDay  string
	toDay    string
	month    string

	prayerReq model.NewPrayerRequest
)

func table(cmd *cobra.Command) *tabwriter.Writer {
	return tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
}

var departmentsCmd = &cobra.Command{
	Use:   "departments",
	Short: "List departments and your memberships",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if _, err := a.signedIn(ctx); err != nil {
			return err
		}
		d := resources.NewDepartments(a.deps())
		defer d.Close()
		if err := d.RefreshAll(ctx); err != nil {
			return err
		}
		list := d.Filter(search)
		if mineOnly {
			list = d.Mine.Items()
		}
		tw := table(cmd)
		for _, dep := range list {
			mark := ""
			if d.IsMember(dep.ID) {
				mark = "member"
			}
			fmt.Fprintf(tw, "%s\t%s\t%d members\t%s\n", dep.ID, dep.Name, len(dep.Members), mark)
		}
		return tw.Flush()
	},
}

func membershipCmd(use, short string, join bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <department-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := a.signedIn(ctx); err != nil {
				return err
			}
			d := resources.NewDepartments(a.deps())
			defer d.Close()
			if err := d.RefreshAll(ctx); err != nil {
				return err
			}
			change, verb := d.Join, "Joined"
			if !join {
				change, verb = d.Leave, "Left"
			}
			if err := change(ctx, args[0]); err != nil {
				return err
			}
			dep, _ := d.Get(args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, dep.Name)
			return nil
		},
	}
}

var prayersCmd = &cobra.Command{
	Use:   "prayers",
	Short: "Show the prayer wall",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		snap, err := a.signedIn(ctx)
		if err != nil {
			return err
		}
		p := resources.NewPrayer(a.deps())
		defer p.Dispose()
		if err := p.Fetch(ctx); err != nil {
			return err
		}
		tw := table(cmd)
		for _, req := range p.Items() {
			author := "Anonymous"
			if !req.Anonymous && req.User != nil {
				author = req.User.FullName()
			}
			mark := ""
			if req.PrayingFor(snap.User.ID) {
				mark = "praying"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", req.ID, req.Title, author, req.PrayerCount, mark)
		}
		return tw.Flush()
	},
}

var prayCmd = &cobra.Command{
	Use:   "pray <prayer-id>",
	Short: "Start or stop praying for a request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if _, err := a.signedIn(ctx); err != nil {
			return err
		}
		p := resources.NewPrayer(a.deps())
		defer p.Dispose()
		if err := p.Fetch(ctx); err != nil {
			return err
		}
		praying, err := p.TogglePray(ctx, args[0])
		if err != nil {
			return err
		}
		req, _ := p.Get(args[0])
		state := "no longer praying for"
		if praying {
			state = "praying for"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "You are %s %q (%d praying)\n", state, req.Title, req.PrayerCount)
		return nil
	},
}

var prayerRequestCmd = &cobra.Command{
	Use:   "prayer-request",
	Short: "Submit a prayer request",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if _, err := a.signedIn(ctx); err != nil {
			return err
		}
		p := resources.NewPrayer(a.deps())
		defer p.Dispose()
		created, err := p.Submit(ctx, prayerReq)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Submitted %s\n", created.ID)
		return nil
	},
}

var announcementsCmd = &cobra.Command{
	Use:   "announcements",
	Short: "Read announcements, pinned first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if _, err := a.signedIn(ctx); err != nil {
			return err
		}
		an := resources.NewAnnouncements(a.deps())
		defer an.Dispose()
		if err := an.Fetch(ctx); err != nil {
			return err
		}
		pinned, regular := an.Filter(search, category)
		out := cmd.OutOrStdout()
		for _, x := range pinned {
			fmt.Fprintf(out, "[pinned] %s  (%s)\n  %s\n", x.Title, x.Category, x.Content)
		}
		for _, x := range regular {
			fmt.Fprintf(out, "%s  %s  (%s)\n  %s\n", x.Date.Local().Format("Jan 2"), x.Title, x.Category, x.Content)
		}
		return nil
	},
}

var birthdaysCmd = &cobra.Command{
	Use:   "birthdays",
	Short: "List member birthdays",
	RunE: func(cmd *cobra.Command, args []string) error {
		b := resources.NewBirthdays(a.deps())
		defer b.Dispose()
		if err := b.Fetch(cmd.Context()); err != nil {
			return err
		}
		now := time.Now()
		tw := table(cmd)
		for _, bd := range b.Filter(search, period) {
			when := fmt.Sprintf("in %d days", resources.DaysUntil(bd.DateOfBirth, now))
			if bd.IsToday {
				when = "today"
			}
			fmt.Fprintf(tw, "%s %s\t%s\t%s\t%s\n", bd.FirstName, bd.LastName, bd.Department, bd.DateOfBirth.UTC().Format("Jan 2"), when)
		}
		return tw.Flush()
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show chapel events",
	Long: `Shows upcoming events.  With --from/--to only that range is loaded;
with --month (YYYY-MM) events are grouped by day.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if _, err := a.signedIn(ctx); err != nil {
			return err
		}
		c := resources.NewCalendar(a.deps())
		defer c.Dispose()

		if fromDay != "" || toDay != "" {
			from, err1 := time.Parse(resources.DayLayout, fromDay)
			to, err2 := time.Parse(resources.DayLayout, toDay)
			if err1 != nil || err2 != nil {
				return fmt.Errorf("--from and --to must both be YYYY-MM-DD")
			}
			if err := c.FetchRange(ctx, from, to); err != nil {
				return err
			}
		} else if err := c.Fetch(ctx); err != nil {
			return err
		}

		tw := table(cmd)
		if month != "" {
			m, err := time.Parse("2006-01", month)
			if err != nil {
				return fmt.Errorf("--month must be YYYY-MM")
			}
			days := c.ByDay(m.Year(), m.Month())
			last := m.AddDate(0, 1, -1).Day()
			for d := 1; d <= last; d++ {
				for _, e := range days[d] {
					fmt.Fprintf(tw, "%2d\t%s\t%s\t%s\n", d, e.Time, e.Title, e.Location)
				}
			}
			return tw.Flush()
		}

		list := c.Upcoming()
		if search != "" || category != "" {
			keep := map[string]bool{}
			for _, e := range c.Filter(search, category) {
				keep[e.ID] = true
			}
			filtered := list[:0]
			for _, e := range list {
				if keep[e.ID] {
					filtered = append(filtered, e)
				}
			}
			list = filtered
		}
		for _, e := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Date.UTC().Format("Mon Jan 2"), e.Time, e.Title, strings.ToLower(e.Type), e.Location)
		}
		return tw.Flush()
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the community dashboard counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if _, err := a.signedIn(ctx); err != nil {
			return err
		}
		d := resources.NewDashboard(a.deps())
		defer d.Dispose()
		if err := d.Fetch(ctx); err != nil {
			return err
		}
		st, _ := d.Stats()
		tw := table(cmd)
		fmt.Fprintf(tw, "Active members\t%d\n", st.ActiveMembers)
		fmt.Fprintf(tw, "Prayer requests\t%d\n", st.PrayerRequests)
		fmt.Fprintf(tw, "Upcoming events\t%d\n", st.UpcomingEvents)
		fmt.Fprintf(tw, "This week's votes\t%d\n", st.WeeklyVotes)
		return tw.Flush()
	},
}

func init() {
	departmentsCmd.Flags().StringVarP(&search, "search", "s", "", "match name or description")
	departmentsCmd.Flags().BoolVar(&mineOnly, "mine", false, "only departments you belong to")

	f := prayerRequestCmd.Flags()
	f.StringVar(&prayerReq.Title, "title", "", "short title")
	f.StringVar(&prayerReq.PrayerRequest, "text", "", "the request")
	f.StringVar(&prayerReq.Category, "category", "", "category")
	f.BoolVar(&prayerReq.Anonymous, "anonymous", false, "hide your name")

	announcementsCmd.Flags().StringVarP(&search, "search", "s", "", "match title or content")
	announcementsCmd.Flags().StringVarP(&category, "category", "c", resources.CategoryAll, "category")

	birthdaysCmd.Flags().StringVarP(&search, "search", "s", "", "match name, department or position")
	birthdaysCmd.Flags().StringVarP(&period, "period", "p", resources.PeriodAll, "all, today, week, month or upcoming")

	f = eventsCmd.Flags()
	f.StringVarP(&search, "search", "s", "", "match title, description or location")
	f.StringVarP(&category, "type", "t", "", "event type")
	f.StringVar(&fromDay, "from", "", "first day, YYYY-MM-DD")
	f.StringVar(&toDay, "to", "", "last day, YYYY-MM-DD")
	f.StringVar(&month, "month", "", "group a month by day, YYYY-MM")

	rootCmd.AddCommand(
		departmentsCmd,
		membershipCmd("join", "Join a department", true),
		membershipCmd("leave", "Leave a department", false),
		prayersCmd, prayCmd, prayerRequestCmd,
		announcementsCmd, birthdaysCmd, eventsCmd, statsCmd,
	)
}
