package model

import "time"

// Nominee is one candidate inside a vote category.
type Nominee struct {
	ID          string `json:"_id"`
	User        User   `json:"user"`
	Description string `json:"description,omitempty"`
	VoteCount   int    `json:"voteCount"`
}

// Vote is a "worker of the week" category with its voting window.
//
// Fields:
//  ID              – vote identifier.
//  Category        – label shown to members.
//  StartTime       – voting opens.
//  EndTime         – voting closes; never before StartTime for a valid vote.
//  Nominees        – candidates in server order.
//  UserHasVoted    – true once the backend has recorded the caller's vote.
//  UserVoteID      – nominee the caller voted for, when the backend reports it.
//  ResultPublished – winners may be shown.
type Vote struct {
	ID              string    `json:"_id"`
	Category        string    `json:"category"`
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
	Nominees        []Nominee `json:"nominees"`
	UserHasVoted    bool      `json:"userHasVoted"`
	UserVoteID      string    `json:"userVoteId,omitempty"`
	ResultPublished bool      `json:"resultPublished"`
}

// Valid reports whether the voting window is well formed.
func (v Vote) Valid() bool { return !v.EndTime.Before(v.StartTime) }

// Open reports whether now lies inside the voting window.  The window closes
// at EndTime, the instant the countdown reaches zero.
func (v Vote) Open(now time.Time) bool {
	return !now.Before(v.StartTime) && now.Before(v.EndTime)
}

// Ended reports whether the voting window has closed.
func (v Vote) Ended(now time.Time) bool { return !now.Before(v.EndTime) }

// Nominee returns the nominee with the given id.
func (v Vote) Nominee(id string) (Nominee, int, bool) {
	for i, n := range v.Nominees {
		if n.ID == id {
			return n, i, true
		}
	}
	return Nominee{}, -1, false
}

// TotalVotes sums the nominees' counts.
func (v Vote) TotalVotes() int {
	total := 0
	for _, n := range v.Nominees {
		total += n.VoteCount
	}
	return total
}

// Clone returns a copy that shares no slices with v.
func (v Vote) Clone() Vote {
	out := v
	out.Nominees = append([]Nominee(nil), v.Nominees...)
	return out
}

// VoteRequest is the body of POST /votes/voteUser.
type VoteRequest struct {
	VoteID    string `json:"voteId"`
	NomineeID string `json:"nomineeId"`
}

// VoteResponse is the reply to POST /votes/voteUser: the updated category.
type VoteResponse struct {
	Message string `json:"message,omitempty"`
	Vote    Vote   `json:"vote"`
}

// Winner is the published (or derived) result of one category.
type Winner struct {
	VoteID     string `json:"voteId"`
	User       User   `json:"user"`
	VoteCount  int    `json:"voteCount"`
	Percentage int    `json:"percentage"`
	Category   string `json:"category"`
}
