package apitest

import (
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/chapel-client/internal/model"
)

// ----- votes -----

// voteViewLocked personalizes a vote for the caller.
func (s *Server) voteViewLocked(v model.Vote, uid string) model.Vote {
	out := v.Clone()
	if nominee, ok := s.ballots[v.ID][uid]; ok {
		out.UserHasVoted = true
		out.UserVoteID = nominee
	} else {
		out.UserHasVoted = false
		out.UserVoteID = ""
	}
	return out
}

func (s *Server) currentVotes(c echo.Context) error {
	uid := userID(c)
	s.mu.Lock()
	votes := make([]model.Vote, 0, len(s.votes))
	for _, v := range s.votes {
		votes = append(votes, s.voteViewLocked(v, uid))
	}
	s.mu.Unlock()
	return c.JSON(http.StatusOK, echo.Map{"votes": votes})
}

func (s *Server) castVote(c echo.Context) error {
	var req model.VoteRequest
	if err := c.Bind(&req); err != nil || req.VoteID == "" || req.NomineeID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "voteId and nomineeId are required"})
	}
	uid := userID(c)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.votes {
		v := &s.votes[i]
		if v.ID != req.VoteID {
			continue
		}
		if !v.Open(now) {
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "Voting is closed for this category"})
		}
		if _, done := s.ballots[v.ID][uid]; done {
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "You have already voted in this category"})
		}
		_, at, ok := v.Nominee(req.NomineeID)
		if !ok {
			return c.JSON(http.StatusNotFound, echo.Map{"message": "Nominee not found"})
		}
		v.Nominees[at].VoteCount++
		if s.ballots[v.ID] == nil {
			s.ballots[v.ID] = map[string]string{}
		}
		s.ballots[v.ID][uid] = req.NomineeID
		return c.JSON(http.StatusOK, model.VoteResponse{Message: "Vote recorded successfully", Vote: s.voteViewLocked(*v, uid)})
	}
	return c.JSON(http.StatusNotFound, echo.Map{"message": "Vote not found"})
}

func (s *Server) winners(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Winner{}
	for _, v := range s.votes {
		if !v.ResultPublished || len(v.Nominees) == 0 {
			continue
		}
		top := v.Nominees[0]
		for _, n := range v.Nominees[1:] {
			if n.VoteCount > top.VoteCount {
				top = n
			}
		}
		pct := 0
		if total := v.TotalVotes(); total > 0 {
			pct = int(math.Round(float64(top.VoteCount) * 100 / float64(total)))
		}
		out = append(out, model.Winner{VoteID: v.ID, User: top.User, VoteCount: top.VoteCount, Percentage: pct, Category: v.Category})
	}
	return c.JSON(http.StatusOK, echo.Map{"winners": out})
}

// ----- departments -----

func (s *Server) listDepartments(c echo.Context) error {
	s.mu.Lock()
	out := make([]model.Department, 0, len(s.departments))
	for _, d := range s.departments {
		out = append(out, d.Clone())
	}
	s.mu.Unlock()
	return c.JSON(http.StatusOK, out)
}

func (s *Server) departmentNames(c echo.Context) error {
	s.mu.Lock()
	out := make([]model.DepartmentName, 0, len(s.departments))
	for _, d := range s.departments {
		out = append(out, model.DepartmentName{ID: d.ID, Name: d.Name})
	}
	s.mu.Unlock()
	return c.JSON(http.StatusOK, out)
}

func (s *Server) userDepartments(c echo.Context) error {
	uid := c.Param("userId")
	s.mu.Lock()
	out := []model.Department{}
	for _, d := range s.departments {
		if d.HasMember(uid) {
			out = append(out, d.Clone())
		}
	}
	s.mu.Unlock()
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": out})
}

// membership resolves the department and user of a join/leave request.  Only
// the caller may change their own membership.
func (s *Server) membershipLocked(c echo.Context) (*model.Department, model.User, error) {
	uid := c.Param("userId")
	if uid != userID(c) {
		return nil, model.User{}, c.JSON(http.StatusForbidden, echo.Map{"message": "You can only change your own membership"})
	}
	a, ok := s.accounts[uid]
	if !ok {
		return nil, model.User{}, c.JSON(http.StatusNotFound, echo.Map{"message": "User not found"})
	}
	for i := range s.departments {
		if s.departments[i].ID == c.Param("id") {
			return &s.departments[i], a.user, nil
		}
	}
	return nil, model.User{}, c.JSON(http.StatusNotFound, echo.Map{"message": "Department not found"})
}

func (s *Server) joinDepartment(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, u, err := s.membershipLocked(c)
	if d == nil {
		return err
	}
	if d.HasMember(u.ID) {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "User is already a member of this department"})
	}
	d.Members = append(d.Members, u)
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Joined department successfully", "department": d.Clone()})
}

func (s *Server) leaveDepartment(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, u, err := s.membershipLocked(c)
	if d == nil {
		return err
	}
	if !d.HasMember(u.ID) {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "User is not a member of this department"})
	}
	kept := d.Members[:0]
	for _, m := range d.Members {
		if m.ID != u.ID {
			kept = append(kept, m)
		}
	}
	d.Members = kept
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Left department successfully", "department": d.Clone()})
}

// ----- prayer -----

func (s *Server) listPrayers(c echo.Context) error {
	s.mu.Lock()
	out := make([]model.PrayerRequest, 0, len(s.prayers))
	for _, p := range s.prayers {
		out = append(out, p.Clone())
	}
	s.mu.Unlock()
	return c.JSON(http.StatusOK, out)
}

func (s *Server) submitPrayer(c echo.Context) error {
	var req model.NewPrayerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid body"})
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.PrayerRequest) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "Title and prayer request are required"})
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := model.PrayerRequest{
		ID:            s.newID("p"),
		Title:         req.Title,
		PrayerRequest: req.PrayerRequest,
		Category:      req.Category,
		Anonymous:     req.Anonymous,
		IsPraying:     []string{},
		CreatedAt:     time.Now().UTC(),
	}
	if !req.Anonymous {
		u := s.accounts[userID(c)].user
		p.User = &u
	}
	s.prayers = append([]model.PrayerRequest{p}, s.prayers...)
	return c.JSON(http.StatusCreated, p)
}

func (s *Server) togglePray(c echo.Context) error {
	uid := userID(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.prayers {
		p := &s.prayers[i]
		if p.ID != c.Param("id") {
			continue
		}
		praying := !p.PrayingFor(uid)
		if praying {
			p.IsPraying = append(p.IsPraying, uid)
		} else {
			kept := p.IsPraying[:0]
			for _, id := range p.IsPraying {
				if id != uid {
					kept = append(kept, id)
				}
			}
			p.IsPraying = kept
		}
		p.PrayerCount = len(p.IsPraying)
		return c.JSON(http.StatusOK, model.PrayerToggle{IsPraying: praying, UserID: uid, PrayerCount: p.PrayerCount})
	}
	return c.JSON(http.StatusNotFound, echo.Map{"message": "Prayer request not found"})
}

// ----- announcements, birthdays, calendar -----

func (s *Server) listAnnouncements(c echo.Context) error {
	s.mu.Lock()
	out := append([]model.Announcement{}, s.announcements...)
	s.mu.Unlock()
	return c.JSON(http.StatusOK, out)
}

func (s *Server) listBirthdays(c echo.Context) error {
	s.mu.Lock()
	out := append([]model.Birthday{}, s.birthdays...)
	s.mu.Unlock()
	return c.JSON(http.StatusOK, model.BirthdayList{Success: true, Birthdays: out})
}

func (s *Server) listEvents(c echo.Context) error {
	s.mu.Lock()
	out := append([]model.Event{}, s.events...)
	s.mu.Unlock()
	return c.JSON(http.StatusOK, out)
}

// eventsInRange filters by the inclusive startDate/endDate query, given as
// YYYY-MM-DD or RFC 3339.
func (s *Server) eventsInRange(c echo.Context) error {
	from, err1 := parseDay(c.QueryParam("startDate"))
	to, err2 := parseDay(c.QueryParam("endDate"))
	if err1 != nil || err2 != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "startDate and endDate must be dates"})
	}
	to = to.Add(24*time.Hour - time.Nanosecond)
	s.mu.Lock()
	out := []model.Event{}
	for _, e := range s.events {
		if !e.Date.Before(from) && !e.Date.After(to) {
			out = append(out, e)
		}
	}
	s.mu.Unlock()
	return c.JSON(http.StatusOK, out)
}

func parseDay(v string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// dashboardStats counts members, prayer requests, events from today on and
// the votes that were open at some point in the last seven days.
func (s *Server) dashboardStats(c echo.Context) error {
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekAgo := now.AddDate(0, 0, -7)
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := model.DashboardStats{ActiveMembers: len(s.accounts), PrayerRequests: len(s.prayers)}
	for _, e := range s.events {
		if !e.Date.Before(today) {
			stats.UpcomingEvents++
		}
	}
	for _, v := range s.votes {
		if v.EndTime.After(weekAgo) && v.StartTime.Before(now) {
			stats.WeeklyVotes++
		}
	}
	return c.JSON(http.StatusOK, model.DashboardResponse{Success: true, Data: stats})
}
