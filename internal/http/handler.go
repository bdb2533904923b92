package http

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/sirupsen/logrus"

	"phreakmail-web/internal/auth"
	"phreakmail-web/internal/service"
)

//go:embed templates/*.html
var templateFS embed.FS

// SessionStore is a sessions.Store that can rotate a session id.
type SessionStore interface {
	sessions.Store
	Renew(ctx context.Context, sess *sessions.Session) error
}

// Options collects the collaborators of Handler.
type Options struct {
	Users      service.UserService
	Directory  service.DirectoryService
	Exports    service.ExportService
	Sessions   SessionStore
	Tokens     *auth.TokenIssuer
	CookieName string
	Version    string
	Logger     *logrus.Logger
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	users      service.UserService
	directory  service.DirectoryService
	exports    service.ExportService
	sessions   SessionStore
	tokens     *auth.TokenIssuer
	cookieName string
	version    string
	logger     *logrus.Logger
	templates  *template.Template
}

func NewHandler(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.CookieName == "" {
		opts.CookieName = "sessionid"
	}
	return &Handler{
		users:      opts.Users,
		directory:  opts.Directory,
		exports:    opts.Exports,
		sessions:   opts.Sessions,
		tokens:     opts.Tokens,
		cookieName: opts.CookieName,
		version:    opts.Version,
		logger:     opts.Logger,
		templates:  template.Must(template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")),
	}
}

var templateFuncs = template.FuncMap{
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format("2006-01-02 15:04")
	},
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.HandleMethodNotAllowed = true
	router.SetHTMLTemplate(h.templates)
	router.Use(requestLogger(h.logger))

	web := router.Group("/")
	web.Use(h.loadSessionUser())
	{
		web.GET("/", h.index)
		web.POST("/", h.index)
		web.POST("/login/", h.login)
		web.GET("/logout/", h.logout)
		web.GET("/admin/dashboard/", h.requireRole(roleAdmin), h.adminDashboard)
		web.GET("/domainadmin/mailbox/", h.requireRole(roleDomainAdmin), h.domainAdminMailbox)
		web.GET("/user/", h.requireRole(roleUser), h.userDashboard)
	}

	api := router.Group("/api")
	api.Use(corsMiddleware())
	{
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"ok": "ok", "version": h.version})
		})
		api.POST("/token", h.issueToken)

		authed := api.Group("")
		authed.Use(h.requireToken())

		staff := authed.Group("")
		staff.Use(h.requireAPIRole(roleAdmin, roleDomainAdmin))
		{
			staff.GET("/domains", h.listDomains)
			staff.GET("/mailboxes", h.listMailboxes)
			staff.POST("/mailboxes", h.createMailbox)
			staff.DELETE("/mailboxes/:id", h.deleteMailbox)
		}

		admin := authed.Group("")
		admin.Use(h.requireAPIRole(roleAdmin))
		{
			admin.POST("/domains", h.createDomain)
			admin.PUT("/domains/:id", h.updateDomain)
			admin.DELETE("/domains/:id", h.deleteDomain)
			admin.POST("/domains/:id/admins", h.assignDomainAdmin)
			admin.DELETE("/domains/:id/admins/:user_id", h.revokeDomainAdmin)
			admin.GET("/users", h.listUsers)
			admin.POST("/users", h.createUser)
			admin.PUT("/users/:id/role", h.setUserRole)
			admin.GET("/exports", h.listExports)
			admin.POST("/exports", h.createExport)
		}
	}
}
