package main

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/iliyamo/chapel-client/internal/countdown"
	"github.com/iliyamo/chapel-client/internal/model"
	"github.com/iliyamo/chapel-client/internal/resources"
)

func loadVotes(cmd *cobra.Command) (*resources.Votes, error) {
	ctx := cmd.Context()
	if _, err := a.signedIn(ctx); err != nil {
		return nil, err
	}
	v := resources.NewVotes(a.deps(), a.ticker)
	if err := v.FetchCurrent(ctx); err != nil {
		v.Close()
		return nil, err
	}
	return v, nil
}

func printVote(w io.Writer, vote model.Vote, now countdown.Remaining) {
	fmt.Fprintf(w, "%s  [%s]  %s\n", vote.Category, vote.ID, now)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, n := range vote.Nominees {
		mark := ""
		if vote.UserVoteID == n.ID {
			mark = "*"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%d\t%s\n", n.ID, n.User.FullName(), n.VoteCount, mark)
	}
	_ = tw.Flush()
}

var votesCmd = &cobra.Command{
	Use:   "votes",
	Short: "List vote categories and their nominees",
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := loadVotes(cmd)
		if err != nil {
			return err
		}
		defer v.Close()
		out := cmd.OutOrStdout()
		now := a.ticker.Now()
		for _, vote := range v.Items() {
			printVote(out, vote, countdown.Until(vote.EndTime, now))
		}
		if len(v.Items()) == 0 {
			fmt.Fprintln(out, "No vote categories")
		}
		return nil
	},
}

var voteCmd = &cobra.Command{
	Use:   "vote <vote-id> <nominee-id>",
	Short: "Cast your vote",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := loadVotes(cmd)
		if err != nil {
			return err
		}
		defer v.Close()
		vote, err := v.SubmitVote(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Vote recorded")
		printVote(cmd.OutOrStdout(), vote, countdown.Until(vote.EndTime, a.ticker.Now()))
		return nil
	},
}

var countdownCmd = &cobra.Command{
	Use:   "countdown [vote-id]",
	Short: "Follow the time left in a vote until it closes",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		v, err := loadVotes(cmd)
		if err != nil {
			return err
		}
		defer v.Close()

		out := cmd.OutOrStdout()
		ended := make(chan struct{})
		var once sync.Once
		v.OnTick(func(r countdown.Remaining) {
			fmt.Fprintf(out, "\r%-24s", r)
			if r.Ended {
				once.Do(func() {
					fmt.Fprintln(out)
					close(ended)
				})
			}
		})
		if len(args) == 1 {
			if err := v.Select(args[0]); err != nil {
				return err
			}
		} else if _, ok := v.Selected(); !ok {
			fmt.Fprintln(out, "No vote is open right now")
			return nil
		}

		select {
		case <-ended:
		case <-ctx.Done():
			fmt.Fprintln(out)
		}
		return nil
	},
}

var winnersCmd = &cobra.Command{
	Use:   "winners",
	Short: "Show published vote results",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if _, err := a.signedIn(ctx); err != nil {
			return err
		}
		v := resources.NewVotes(a.deps(), a.ticker)
		defer v.Close()
		winners, err := v.FetchWinners(ctx)
		if err != nil {
			return err
		}
		list := make([]model.Winner, 0, len(winners))
		for _, w := range winners {
			list = append(list, w)
		}
		sort.Slice(list, func(i, j int) bool { return list[i].Category < list[j].Category })
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, w := range list {
			fmt.Fprintf(tw, "%s\t%s\t%d votes\t%d%%\n", w.Category, w.User.FullName(), w.VoteCount, w.Percentage)
		}
		if len(winners) == 0 {
			fmt.Fprintln(tw, "No results published yet")
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(votesCmd, voteCmd, countdownCmd, winnersCmd)
}
