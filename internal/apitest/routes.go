package apitest

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// registerRoutes maps the chapel API under /api.  Routes that need a session
// go through jwtAuth; the names listing, birthdays and the auth entry points
// are public.
func registerRoutes(e *echo.Echo, s *Server) {
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	api := e.Group("/api", s.instrument)

	a := api.Group("/auth")
	a.POST("/register", s.register)
	a.POST("/login", s.login)
	a.POST("/logout", s.logout, s.jwtAuth)
	a.GET("/me", s.me, s.jwtAuth)

	api.GET("/departments/getAllDepartmentsName", s.departmentNames)
	api.GET("/users/getBirthdays", s.listBirthdays)

	p := api.Group("", s.jwtAuth)
	p.GET("/votes/current", s.currentVotes)
	p.POST("/votes/voteUser", s.castVote)
	p.GET("/votes/winners", s.winners)

	p.GET("/departments/getDepartments", s.listDepartments)
	p.GET("/departments/fetch-User-Departments/:userId", s.userDepartments)
	p.POST("/departments/:id/join/:userId", s.joinDepartment)
	p.DELETE("/departments/:id/leave/:userId", s.leaveDepartment)

	p.GET("/prayer/public-view", s.listPrayers)
	p.POST("/prayer/submitPrayerRequest", s.submitPrayer)
	p.POST("/prayer/:id/pray", s.togglePray)

	p.GET("/announcements/getUserAnnouncements", s.listAnnouncements)

	p.GET("/calendar/chapel-events", s.listEvents)
	p.GET("/calendar/events", s.eventsInRange)

	p.PUT("/users/updateProfile", s.updateProfile)
	p.PUT("/users/changePassword", s.changePassword)
	p.PUT("/users/uploadProfileImg", s.uploadProfileImg)

	p.GET("/dashboard/stats", s.dashboardStats)
}
