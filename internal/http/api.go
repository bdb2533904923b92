package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"phreakmail-web/internal/domain"
	"phreakmail-web/internal/service"
	"phreakmail-web/internal/storage"
)

type tokenRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type createDomainRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type updateDomainRequest struct {
	Description *string `json:"description"`
	Active      *bool   `json:"active"`
}

type assignAdminRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

type createMailboxRequest struct {
	Username string `json:"username" binding:"required"`
	DomainID int64  `json:"domain_id" binding:"required"`
	Name     string `json:"name"`
}

type createUserRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role"`
}

type setRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

func (h *Handler) issueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		h.writeError(c, err)
		return
	}

	token, expires, err := h.tokens.Issue(user)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expires.UTC().Format(time.RFC3339),
		"role":       user.Role,
	})
}

func (h *Handler) listDomains(c *gin.Context) {
	overview, err := h.directory.VisibleTo(c.Request.Context(), currentUser(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	resp := make([]DomainResponse, len(overview.Domains))
	for i := range overview.Domains {
		resp[i] = domainToResponse(overview.Domains[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) createDomain(c *gin.Context) {
	var req createDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	d, err := h.directory.CreateDomain(c.Request.Context(), req.Name, req.Description)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.logger.WithField("domain", d.Name).Info("domain created")
	c.JSON(http.StatusCreated, domainToResponse(*d))
}

func (h *Handler) updateDomain(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req updateDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	d, err := h.directory.UpdateDomain(c.Request.Context(), id, req.Description, req.Active)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, domainToResponse(*d))
}

func (h *Handler) deleteDomain(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.directory.DeleteDomain(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	h.logger.WithField("domain_id", id).Info("domain deleted with its mailboxes")
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (h *Handler) assignDomainAdmin(c *gin.Context) {
	domainID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req assignAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.directory.AssignDomainAdmin(c.Request.Context(), req.UserID, domainID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"domain_id": domainID, "user_id": req.UserID})
}

func (h *Handler) revokeDomainAdmin(c *gin.Context) {
	domainID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	if err := h.directory.RevokeDomainAdmin(c.Request.Context(), userID, domainID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"domain_id": domainID, "user_id": userID, "revoked": true})
}

func (h *Handler) listMailboxes(c *gin.Context) {
	overview, err := h.directory.VisibleTo(c.Request.Context(), currentUser(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	resp := make([]MailboxResponse, len(overview.Mailboxes))
	for i := range overview.Mailboxes {
		resp[i] = mailboxToResponse(overview.Mailboxes[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) createMailbox(c *gin.Context) {
	var req createMailboxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.canManage(c, req.DomainID) {
		return
	}
	m, err := h.directory.CreateMailbox(c.Request.Context(), req.Username, req.DomainID, req.Name)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.logger.WithField("mailbox", m.Address()).Info("mailbox created")
	c.JSON(http.StatusCreated, mailboxToResponse(*m))
}

func (h *Handler) deleteMailbox(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	m, err := h.directory.GetMailbox(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	// mailboxes outside the caller's scope look the same as missing ones
	ok, err = h.directory.CanManageDomain(c.Request.Context(), currentUser(c), m.DomainID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if err := h.directory.DeleteMailbox(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	h.logger.WithField("mailbox", m.Address()).Info("mailbox deleted")
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (h *Handler) listUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	resp := make([]UserResponse, len(users))
	for i := range users {
		resp[i] = userToResponse(users[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) createUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	role, ok := domain.ParseRole(req.Role)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}

	user, err := h.users.CreateUser(c.Request.Context(), req.Username, req.Password, role)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.logger.WithField("username", user.Username).WithField("role", user.Role).Info("user created")
	c.JSON(http.StatusCreated, userToResponse(*user))
}

func (h *Handler) setUserRole(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req setRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	role, ok := domain.ParseRole(req.Role)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}

	user, err := h.users.SetRole(c.Request.Context(), id, role)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, userToResponse(*user))
}

func (h *Handler) createExport(c *gin.Context) {
	res, err := h.exports.Export(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.logger.WithField("location", res.Location).Info("directory exported")
	c.JSON(http.StatusCreated, gin.H{
		"location":  res.Location,
		"domains":   res.Domains,
		"mailboxes": res.Mailboxes,
	})
}

func (h *Handler) listExports(c *gin.Context) {
	objects, err := h.exports.List(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	resp := make([]StorageObjectResponse, len(objects))
	for i := range objects {
		resp[i] = objectToResponse(objects[i])
	}
	c.JSON(http.StatusOK, resp)
}

// canManage writes a 403 and returns false when the current user may not
// manage mailboxes of domainID.
func (h *Handler) canManage(c *gin.Context, domainID int64) bool {
	ok, err := h.directory.CanManageDomain(c.Request.Context(), currentUser(c), domainID)
	if err != nil {
		h.writeError(c, err)
		return false
	}
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "domain is outside your scope"})
		return false
	}
	return true
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, service.ErrConflict), errors.Is(err, service.ErrUserAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": "already exists"})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, service.ErrExportDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		h.logger.WithError(err).WithField("path", c.Request.URL.Path).Error("api request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

type DomainResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type MailboxResponse struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Address   string `json:"address"`
	DomainID  int64  `json:"domain_id"`
	Name      string `json:"name"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type UserResponse struct {
	ID        int64       `json:"id"`
	Username  string      `json:"username"`
	Role      domain.Role `json:"role"`
	CreatedAt string      `json:"created_at"`
	UpdatedAt string      `json:"updated_at"`
}

type StorageObjectResponse struct {
	Key          string  `json:"key"`
	Size         int64   `json:"size"`
	LastModified *string `json:"last_modified,omitempty"`
}

func domainToResponse(d domain.Domain) DomainResponse {
	return DomainResponse{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Active:      d.Active,
		CreatedAt:   d.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   d.UpdatedAt.Format(time.RFC3339),
	}
}

func mailboxToResponse(m domain.Mailbox) MailboxResponse {
	return MailboxResponse{
		ID:        m.ID,
		Username:  m.Username,
		Address:   m.Address(),
		DomainID:  m.DomainID,
		Name:      m.Name,
		Active:    m.Active,
		CreatedAt: m.CreatedAt.Format(time.RFC3339),
		UpdatedAt: m.UpdatedAt.Format(time.RFC3339),
	}
}

func userToResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Role:      u.Role,
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
		UpdatedAt: u.UpdatedAt.Format(time.RFC3339),
	}
}

func objectToResponse(obj storage.ObjectInfo) StorageObjectResponse {
	resp := StorageObjectResponse{
		Key:  obj.Key,
		Size: obj.Size,
	}
	if obj.LastModified != nil && !obj.LastModified.IsZero() {
		v := obj.LastModified.Format(time.RFC3339)
		resp.LastModified = &v
	}
	return resp
}
