package api

import (
	"net/http"
	"strings"
)

// RouteGroup is a set of routes served under a common path prefix.
type RouteGroup struct {
	Prefix  string
	Handler http.Handler
}

// RouteGroups returns the portal route groups in mount order. Each group's
// handler expects full request paths.
func (h *Handler) RouteGroups() []RouteGroup {
	authRoutes := http.NewServeMux()
	authRoutes.HandleFunc("/auth/register", h.Register)
	authRoutes.HandleFunc("/auth/login", h.Login)
	authRoutes.HandleFunc("/auth/session", h.Session)
	authRoutes.HandleFunc("/auth/logout", h.Logout)
	authRoutes.HandleFunc("/auth/", notFound)

	courseRoutes := http.NewServeMux()
	courseRoutes.HandleFunc("/api/courses", h.Courses)
	courseRoutes.HandleFunc("/api/courses/", h.CourseByID)

	portalRoutes := http.NewServeMux()
	portalRoutes.HandleFunc("/api/status", h.Status)
	portalRoutes.HandleFunc("/api/profile", h.Profile)
	portalRoutes.HandleFunc("/api/", notFound)

	adminRoutes := http.NewServeMux()
	adminRoutes.HandleFunc("/api/admin/users", h.AdminUsers)
	adminRoutes.HandleFunc("/api/admin/users/", h.AdminUserByID)
	adminRoutes.HandleFunc("/api/admin/stats", h.AdminStats)
	adminRoutes.HandleFunc("/api/admin/", notFound)

	helpRoutes := http.NewServeMux()
	helpRoutes.HandleFunc("/api/help", h.HelpRequests)
	helpRoutes.HandleFunc("/api/help/", h.HelpRequestByID)

	return []RouteGroup{
		{Prefix: "/auth", Handler: authRoutes},
		{Prefix: "/api/courses", Handler: courseRoutes},
		{Prefix: "/api", Handler: portalRoutes},
		{Prefix: "/api/admin", Handler: adminRoutes},
		{Prefix: "/api/help", Handler: helpRoutes},
	}
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, errNotFound)
}

// trimPathID extracts the identifier following prefix along with the path
// segments after it.
func trimPathID(path, prefix string) (string, []string) {
	trimmed := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if trimmed == "" {
		return "", nil
	}
	parts := strings.Split(trimmed, "/")
	return parts[0], parts[1:]
}
