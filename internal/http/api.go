package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"users-api/internal/domain"
	"users-api/internal/service"
)

const (
	defaultPage  = 1
	defaultLimit = 10
)

// Handler wires HTTP routes to the user service.
type Handler struct {
	users      service.UserService
	logger     logrus.FieldLogger
	allowReset bool
}

func NewHandler(users service.UserService, logger logrus.FieldLogger, allowReset bool) *Handler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{
		users:      users,
		logger:     logger,
		allowReset: allowReset,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(requestIDMiddleware(), loggingMiddleware(h.logger))

	router.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
	})

	users := router.Group("/users")
	{
		users.POST("", h.createUser)
		users.GET("", h.listUsers)
		if h.allowReset {
			users.DELETE("", h.clearUsers)
		}

		// literal paths before /:id
		users.GET("/count", h.countUsers)
		users.GET("/by-email", h.findByEmail)
		users.GET("/search", h.searchUsers)
		users.GET("/paginated", h.paginatedUsers)
		users.GET("/filter", h.filterUsers)
		users.GET("/by-roles", h.usersByRoles)
		users.GET("/active", h.activeUsers)

		users.GET("/:id", h.getUser)
		users.PATCH("/:id", h.updateUser)
		users.DELETE("/:id", h.deleteUser)
	}
}

func (h *Handler) createUser(c *gin.Context) {
	attrs, ok := bindAttributes(c)
	if !ok {
		return
	}

	user, err := h.users.Create(c.Request.Context(), attrs)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *Handler) listUsers(c *gin.Context) {
	page, limit, search := c.Query("page"), c.Query("limit"), c.Query("search")
	h.logger.WithFields(logrus.Fields{
		"page":   page,
		"limit":  limit,
		"search": search,
	}).Debug("list users")

	q := service.Query{Search: search}
	if limit != "" {
		q.Page = parsePositiveInt(page, defaultPage)
		q.Limit = parsePositiveInt(limit, defaultLimit)
	}

	res, err := h.users.Query(c.Request.Context(), q)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res.Data)
}

func (h *Handler) clearUsers(c *gin.Context) {
	msg, err := h.users.Clear(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (h *Handler) countUsers(c *gin.Context) {
	count, err := h.users.Count(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (h *Handler) findByEmail(c *gin.Context) {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}

	user, found, err := h.users.FindByEmail(c.Request.Context(), email)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no user with email %s", email)})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) searchUsers(c *gin.Context) {
	query := c.Query("q")

	res, err := h.users.Query(c.Request.Context(), service.Query{Search: query})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Searching for users with query: %s", query),
		"query":   query,
		"data":    res.Data,
	})
}

func (h *Handler) paginatedUsers(c *gin.Context) {
	page := parsePositiveInt(c.Query("page"), defaultPage)
	limit := parsePositiveInt(c.Query("limit"), defaultLimit)
	sortBy := c.DefaultQuery("sortBy", domain.FieldID)
	order := strings.ToLower(c.DefaultQuery("order", service.OrderAsc))
	if order != service.OrderDesc {
		order = service.OrderAsc
	}

	res, err := h.users.Query(c.Request.Context(), service.Query{
		SortBy: sortBy,
		Order:  order,
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	first, last := res.ItemRange()
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Fetching page %d with %d items per page", page, limit),
		"pagination": gin.H{
			"page":       page,
			"limit":      limit,
			"sortBy":     sortBy,
			"order":      order,
			"offset":     res.Offset,
			"total":      res.Total,
			"totalPages": res.TotalPages,
			"range":      fmt.Sprintf("Showing items %d to %d", first, last),
		},
		"data": res.Data,
	})
}

func (h *Handler) filterUsers(c *gin.Context) {
	filters := make(map[string]string)
	for name, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			filters[name] = values[0]
		}
	}

	res, err := h.users.Query(c.Request.Context(), service.Query{Equals: filters})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":        "Filtering users with provided criteria",
		"filters":        filters,
		"appliedFilters": len(filters),
		"data":           res.Data,
	})
}

func (h *Handler) usersByRoles(c *gin.Context) {
	roles := queryList(c, "roles")

	res, err := h.users.Query(c.Request.Context(), service.Query{Roles: roles})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Fetching users with roles: %s", strings.Join(roles, ", ")),
		"roles":   roles,
		"count":   len(roles),
		"data":    res.Data,
	})
}

func (h *Handler) activeUsers(c *gin.Context) {
	rawActive, hasActive := c.GetQuery("isActive")
	isActive := strings.EqualFold(strings.TrimSpace(rawActive), "true")
	minAge := parseOptionalInt(c.Query("minAge"))
	maxAge := parseOptionalInt(c.Query("maxAge"))

	q := service.Query{MinAge: minAge, MaxAge: maxAge}
	if hasActive {
		q.IsActive = &isActive
	}

	res, err := h.users.Query(c.Request.Context(), q)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Fetching active users with filters",
		"filters": gin.H{
			"isActive": isActive,
			"minAge":   minAge,
			"maxAge":   maxAge,
		},
		"validFilters": gin.H{
			"hasMinAge": minAge != nil,
			"hasMaxAge": maxAge != nil,
		},
		"data": res.Data,
	})
}

func (h *Handler) getUser(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	user, err := h.users.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) updateUser(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	patch, ok := bindAttributes(c)
	if !ok {
		return
	}

	user, err := h.users.Update(c.Request.Context(), id, patch)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) deleteUser(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	res, err := h.users.Delete(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var notFound *domain.NotFoundError
	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error(), "id": notFound.ID})
	case errors.Is(err, domain.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.logger.WithField("path", c.FullPath()).Errorf("request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// bindAttributes decodes a JSON object body. It writes the 400 itself.
func bindAttributes(c *gin.Context) (domain.Attributes, bool) {
	var attrs map[string]any
	if err := c.ShouldBindJSON(&attrs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	if attrs == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a JSON object"})
		return nil, false
	}
	return domain.Attributes(attrs), true
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return 0, false
	}
	return id, true
}

func parsePositiveInt(raw string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v < 1 {
		return fallback
	}
	return v
}

func parseOptionalInt(raw string) *int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return nil
	}
	return &v
}

// queryList accepts both ?name=a&name=b and ?name[]=a&name[]=b.
func queryList(c *gin.Context, name string) []string {
	out := make([]string, 0)
	for _, key := range []string{name, name + "[]"} {
		for _, v := range c.QueryArray(key) {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}
