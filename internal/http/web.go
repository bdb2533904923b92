package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"phreakmail-web/internal/domain"
	"phreakmail-web/internal/service"
)

// loginError is shown for unknown users and bad passwords alike.
const loginError = "Invalid credentials"

// dashboardPath picks the landing page for a role. Checks run from the most
// to the least privileged role.
func dashboardPath(role domain.Role) string {
	switch role {
	case domain.RoleAdmin:
		return "/admin/dashboard/"
	case domain.RoleDomainAdmin:
		return "/domainadmin/mailbox/"
	default:
		return "/user/"
	}
}

func (h *Handler) index(c *gin.Context) {
	if user := currentUser(c); user != nil {
		c.Redirect(http.StatusFound, dashboardPath(user.Role))
		return
	}
	h.render(c, http.StatusOK, "login.html", gin.H{"Username": ""})
}

func (h *Handler) login(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")

	user, err := h.users.Authenticate(c.Request.Context(), username, password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			h.logger.WithFields(logrus.Fields{
				"username": username,
				"client":   c.ClientIP(),
			}).Warn("failed login")
			h.render(c, http.StatusOK, "login.html", gin.H{
				"Error":    loginError,
				"Username": username,
			})
			return
		}
		h.serverError(c, "authenticate", err)
		return
	}

	sess := currentSession(c)
	if err := h.sessions.Renew(c.Request.Context(), sess); err != nil {
		h.serverError(c, "renew session", err)
		return
	}
	sess.Values = map[interface{}]interface{}{
		sessionUserIDKey: user.ID,
		sessionRoleKey:   string(user.Role),
	}
	if err := sess.Save(c.Request, c.Writer); err != nil {
		h.serverError(c, "save session", err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"username": user.Username,
		"role":     user.Role,
	}).Info("user logged in")
	c.Redirect(http.StatusFound, dashboardPath(user.Role))
}

func (h *Handler) logout(c *gin.Context) {
	sess := currentSession(c)
	sess.Values = map[interface{}]interface{}{}
	sess.Options.MaxAge = -1
	if err := sess.Save(c.Request, c.Writer); err != nil {
		h.serverError(c, "destroy session", err)
		return
	}
	if user := currentUser(c); user != nil {
		h.logger.WithField("username", user.Username).Info("user logged out")
	}
	c.Redirect(http.StatusFound, "/")
}

func (h *Handler) adminDashboard(c *gin.Context) {
	h.renderOverview(c, "admin_dashboard.html")
}

func (h *Handler) domainAdminMailbox(c *gin.Context) {
	h.renderOverview(c, "domainadmin_mailbox.html")
}

func (h *Handler) userDashboard(c *gin.Context) {
	user := currentUser(c)
	overview, err := h.directory.VisibleTo(c.Request.Context(), user)
	if err != nil {
		h.serverError(c, "load mailbox", err)
		return
	}
	data := gin.H{"User": user}
	if len(overview.Mailboxes) > 0 {
		data["Mailbox"] = overview.Mailboxes[0]
	}
	h.render(c, http.StatusOK, "user_dashboard.html", data)
}

func (h *Handler) renderOverview(c *gin.Context, page string) {
	overview, err := h.directory.VisibleTo(c.Request.Context(), currentUser(c))
	if err != nil {
		h.serverError(c, "load directory", err)
		return
	}
	h.render(c, http.StatusOK, page, gin.H{
		"Domains":   overview.Domains,
		"Mailboxes": overview.Mailboxes,
	})
}

var pageTitles = map[string]string{
	"login.html":               "Sign in",
	"admin_dashboard.html":     "Administration",
	"domainadmin_mailbox.html": "Domains",
	"user_dashboard.html":      "Mailbox",
	"error.html":               "Error",
}

func (h *Handler) render(c *gin.Context, status int, page string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	data["Title"] = pageTitles[page]
	data["Version"] = h.version
	if user := currentUser(c); user != nil {
		data["CurrentUser"] = user
	}
	c.HTML(status, page, data)
}

func (h *Handler) serverError(c *gin.Context, op string, err error) {
	h.logger.WithError(err).WithField("op", op).Error("request failed")
	h.render(c, http.StatusInternalServerError, "error.html", nil)
}
