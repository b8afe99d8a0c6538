package resources

import (
	"context"
	"errors"
	"math"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/chapel-client/internal/api"
	"github.com/iliyamo/chapel-client/internal/countdown"
	"github.com/iliyamo/chapel-client/internal/model"
	"github.com/iliyamo/chapel-client/internal/store"
)

// Local vote rejections.  None of them reaches the network.
var (
	ErrUnknownVote      = errors.New("vote not found")
	ErrUnknownNominee   = errors.New("nominee not found")
	ErrAlreadyVoted     = errors.New("you have already voted in this category")
	ErrVotingEnded      = errors.New("voting has ended")
	ErrVotingNotStarted = errors.New("voting has not started yet")
	ErrVoteInFlight     = errors.New("your vote is still being submitted")
)

// Votes holds the current vote categories, the selected one and its
// countdown.
type Votes struct {
	*store.Store[model.Vote]
	deps   Deps
	ticker *countdown.Ticker

	mu       sync.Mutex
	selected string
	inFlight map[string]bool
	winners  map[string]model.Winner
	onTick   func(countdown.Remaining)
	last     *countdown.Remaining

	cdMu      sync.Mutex // guards countdown; taken before mu, never inside a tick
	countdown *countdown.Subscription
}

func NewVotes(d Deps, ticker *countdown.Ticker) *Votes {
	if ticker == nil {
		ticker = countdown.New()
	}
	return &Votes{
		Store: store.New("votes", func(v model.Vote) string { return v.ID },
			store.WithClone(model.Vote.Clone), store.WithLogger[model.Vote](d.Log)),
		deps:     d,
		ticker:   ticker,
		inFlight: map[string]bool{},
		winners:  map[string]model.Winner{},
	}
}

// OnTick sets the function that receives every countdown update.  fn runs
// on the countdown goroutine and must not call Select, FetchCurrent or Close.
func (v *Votes) OnTick(fn func(countdown.Remaining)) {
	v.mu.Lock()
	v.onTick = fn
	v.mu.Unlock()
}

// FetchCurrent loads the categories and selects the one whose window
// contains now, starting its countdown.
func (v *Votes) FetchCurrent(ctx context.Context) error {
	err := refresh(ctx, v.deps, "votes", v.Store, func(ctx context.Context) ([]model.Vote, error) {
		body, err := api.Fetch[struct {
			Votes []model.Vote `json:"votes"`
		}](ctx, v.deps.Client, api.Call{Method: http.MethodGet, Path: "/votes/current", Auth: true})
		return body.Votes, err
	})
	if err != nil {
		return err
	}

	now := v.ticker.Now()
	var active *model.Vote
	for _, vote := range v.Items() {
		if vote.Valid() && vote.Open(now) {
			active = &vote
			break
		}
	}
	if active == nil {
		v.mu.Lock()
		v.selected = ""
		v.mu.Unlock()
		v.stopCountdown()
		return nil
	}
	v.mu.Lock()
	v.selected = active.ID
	v.mu.Unlock()
	v.startCountdown(active.EndTime)
	return nil
}

// Select makes id the selected category.  The countdown restarts for an
// open vote and shows the ended state for a closed one.
func (v *Votes) Select(id string) error {
	vote, ok := v.Get(id)
	if !ok {
		return ErrUnknownVote
	}
	v.mu.Lock()
	v.selected = id
	v.mu.Unlock()
	v.startCountdown(vote.EndTime)
	return nil
}

// Selected returns the selected category.
func (v *Votes) Selected() (model.Vote, bool) {
	v.mu.Lock()
	id := v.selected
	v.mu.Unlock()
	if id == "" {
		return model.Vote{}, false
	}
	return v.Get(id)
}

// Remaining returns the last countdown value for the selected vote.
func (v *Votes) Remaining() (countdown.Remaining, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.last == nil {
		return countdown.Remaining{}, false
	}
	return *v.last, true
}

// startCountdown points the single countdown at end, replacing any
// previous deadline.
func (v *Votes) startCountdown(end time.Time) {
	v.cdMu.Lock()
	defer v.cdMu.Unlock()
	if v.countdown == nil {
		v.countdown = v.ticker.Subscribe(end, v.tick)
		return
	}
	v.countdown.Reset(end)
}

func (v *Votes) stopCountdown() {
	v.cdMu.Lock()
	defer v.cdMu.Unlock()
	if v.countdown != nil {
		v.countdown.Stop()
		v.countdown = nil
	}
	v.mu.Lock()
	v.last = nil
	v.mu.Unlock()
}

func (v *Votes) tick(r countdown.Remaining) {
	v.mu.Lock()
	v.last = &r
	fn := v.onTick
	v.mu.Unlock()
	if fn != nil {
		fn(r)
	}
}

// SubmitVote casts the member's vote.  The nominee's count rises at once;
// userHasVoted only changes when the backend's answer replaces the item.
func (v *Votes) SubmitVote(ctx context.Context, voteID, nomineeID string) (model.Vote, error) {
	vote, ok := v.Get(voteID)
	if !ok {
		return model.Vote{}, ErrUnknownVote
	}
	if err := v.guard(vote, nomineeID); err != nil {
		return model.Vote{}, err
	}

	v.mu.Lock()
	if v.inFlight[voteID] {
		v.mu.Unlock()
		return model.Vote{}, ErrVoteInFlight
	}
	v.inFlight[voteID] = true
	v.mu.Unlock()
	defer func() {
		v.mu.Lock()
		delete(v.inFlight, voteID)
		v.mu.Unlock()
	}()

	patch := store.Update(func(cur model.Vote) model.Vote {
		if _, i, ok := cur.Nominee(nomineeID); ok {
			cur.Nominees[i].VoteCount++
		}
		return cur
	})
	updated, err := v.Mutate(ctx, voteID, patch, func(ctx context.Context) (model.Vote, error) {
		resp, err := api.Fetch[model.VoteResponse](ctx, v.deps.Client, api.Call{
			Method: http.MethodPost,
			Path:   "/votes/voteUser",
			Body:   model.VoteRequest{VoteID: voteID, NomineeID: nomineeID},
			Auth:   true,
		})
		if err != nil {
			return model.Vote{}, err
		}
		if resp.Vote.ID != voteID {
			return model.Vote{}, &api.Error{Kind: api.MalformedResponse, Status: http.StatusOK, Message: "vote response did not include the category"}
		}
		return resp.Vote, nil
	})
	v.deps.mutated(ctx, "votes", voteID, err)
	if err != nil {
		v.deps.logger().Info("vote rejected", zap.String("vote_id", voteID), zap.Error(err))
	}
	return updated, err
}

func (v *Votes) guard(vote model.Vote, nomineeID string) error {
	now := v.ticker.Now()
	switch {
	case vote.UserHasVoted:
		return ErrAlreadyVoted
	case vote.Ended(now):
		return ErrVotingEnded
	case now.Before(vote.StartTime):
		return ErrVotingNotStarted
	}
	if _, _, ok := vote.Nominee(nomineeID); !ok {
		return ErrUnknownNominee
	}
	return nil
}

// CanVote reports whether the member may vote in the category right now.
func (v *Votes) CanVote(voteID string) bool {
	vote, ok := v.Get(voteID)
	if !ok || vote.UserHasVoted {
		return false
	}
	now := v.ticker.Now()
	if !vote.Open(now) {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return !v.inFlight[voteID]
}

// FetchWinners loads the published results, keyed by vote id.
func (v *Votes) FetchWinners(ctx context.Context) (map[string]model.Winner, error) {
	body, err := api.Fetch[struct {
		Winners []model.Winner `json:"winners"`
	}](ctx, v.deps.Client, api.Call{Method: http.MethodGet, Path: "/votes/winners", Auth: true})
	if err != nil {
		v.SetErr(err)
		return nil, err
	}
	out := make(map[string]model.Winner, len(body.Winners))
	for _, w := range body.Winners {
		out[w.VoteID] = w
	}
	v.mu.Lock()
	v.winners = out
	v.mu.Unlock()
	return copyWinners(out), nil
}

// Winners returns the last published results.
func (v *Votes) Winners() map[string]model.Winner {
	v.mu.Lock()
	defer v.mu.Unlock()
	return copyWinners(v.winners)
}

func copyWinners(in map[string]model.Winner) map[string]model.Winner {
	out := make(map[string]model.Winner, len(in))
	for k, w := range in {
		out[k] = w
	}
	return out
}

// WinnerFromVote derives the leading nominee from a category's counts.  The
// first nominee wins a tie.  Percentage is rounded to the nearest integer.
func WinnerFromVote(vote model.Vote) (model.Winner, bool) {
	if len(vote.Nominees) == 0 {
		return model.Winner{}, false
	}
	top := vote.Nominees[0]
	for _, n := range vote.Nominees[1:] {
		if n.VoteCount > top.VoteCount {
			top = n
		}
	}
	pct := 0
	if total := vote.TotalVotes(); total > 0 {
		pct = int(math.Round(float64(top.VoteCount) * 100 / float64(total)))
	}
	return model.Winner{VoteID: vote.ID, User: top.User, VoteCount: top.VoteCount, Percentage: pct, Category: vote.Category}, true
}

// Close stops the countdown and releases the store.
func (v *Votes) Close() {
	v.stopCountdown()
	v.Dispose()
}
