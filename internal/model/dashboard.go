package model

// DashboardStats is the home page summary of GET /dashboard/stats.
type DashboardStats struct {
	ActiveMembers  int `json:"activeMembers"`
	PrayerRequests int `json:"prayerRequests"`
	UpcomingEvents int `json:"upcomingEvents"`
	WeeklyVotes    int `json:"weeklyVotes"`
}

// DashboardResponse is the {success, data} envelope around DashboardStats.
type DashboardResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Data    DashboardStats `json:"data"`
}
