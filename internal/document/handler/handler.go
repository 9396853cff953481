// Package handler exposes the document lifecycle over HTTP with gin.
package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/docledger/docledger/internal/access"
	"github.com/docledger/docledger/internal/document"
	"github.com/docledger/docledger/internal/document/service"
	"github.com/gin-gonic/gin"
)

// ClaimsKey is where the auth middleware stores verified token claims.
const ClaimsKey = "claims"

type Handler struct {
	svc service.Service
}

// RegisterDocumentRoutes mounts the document API under /api/v1/documents.
// Callers attach authentication to r before registering.
func RegisterDocumentRoutes(r gin.IRouter, svc service.Service) {
	h := &Handler{svc: svc}
	g := r.Group("/api/v1/documents")
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.GET("/:id/content", h.content)
	g.PUT("/:id/acl", h.updateACL)
	g.PUT("/:id/retention", h.updateRetention)
	g.DELETE("/:id", h.delete)
	g.POST("/:id/restore", h.restore)
	g.POST("/:id/versions", h.createVersion)
	g.GET("/:id/versions", h.listVersions)
	g.PATCH("/:id/versions/:version", h.setVersionStatus)
	g.GET("/:id/audit", h.auditTrail)
}

// ActorFromClaims builds an actor from token claims. Roles are read from a
// top-level "roles" claim and from Keycloak's realm_access.roles.
func ActorFromClaims(claims map[string]interface{}) access.Actor {
	var a access.Actor
	if sub, ok := claims["sub"].(string); ok {
		a.ID = strings.TrimSpace(sub)
	}
	a.Roles = appendRoles(a.Roles, claims["roles"])
	if ra, ok := claims["realm_access"].(map[string]interface{}); ok {
		a.Roles = appendRoles(a.Roles, ra["roles"])
	}
	return a
}

func appendRoles(dst []string, v interface{}) []string {
	switch rs := v.(type) {
	case []interface{}:
		for _, r := range rs {
			if s, ok := r.(string); ok && s != "" {
				dst = append(dst, s)
			}
		}
	case []string:
		dst = append(dst, rs...)
	}
	return dst
}

// actor resolves the caller or aborts with 401. The reserved system identity
// is never reachable over HTTP.
func actor(c *gin.Context) (access.Actor, bool) {
	v, ok := c.Get(ClaimsKey)
	claims, _ := v.(map[string]interface{})
	if !ok || claims == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing credentials"})
		return access.Actor{}, false
	}
	a := ActorFromClaims(claims)
	if a.ID == "" || a.IsSystem() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid subject"})
		return access.Actor{}, false
	}
	a.IP = c.ClientIP()
	a.UserAgent = c.Request.UserAgent()
	return a, true
}

func queryInt(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, name+" must be an integer")
		return 0, false
	}
	return n, true
}

func (h *Handler) create(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var in service.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	d, err := h.svc.CreateDocument(c.Request.Context(), a, in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *Handler) list(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	f := document.Filter{
		CustomerID: c.Query("customerId"),
		Domain:     c.Query("domain"),
		Category:   c.Query("category"),
		DocType:    c.Query("docType"),
	}
	if f.Page, ok = queryInt(c, "page"); !ok {
		return
	}
	if f.Limit, ok = queryInt(c, "limit"); !ok {
		return
	}
	if raw := c.Query("includeDeleted"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "includeDeleted must be a boolean")
			return
		}
		f.IncludeDeleted = b
	}
	page, err := h.svc.ListDocuments(c.Request.Context(), a, f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) get(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	d, err := h.svc.GetDocument(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) content(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var version *int
	if c.Query("version") != "" {
		n, ok := queryInt(c, "version")
		if !ok {
			return
		}
		version = &n
	}
	ref, err := h.svc.GetContent(c.Request.Context(), a, c.Param("id"), version)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ref)
}

func (h *Handler) updateACL(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var acl document.ACL
	if err := c.ShouldBindJSON(&acl); err != nil {
		badRequest(c, err.Error())
		return
	}
	d, err := h.svc.UpdateACL(c.Request.Context(), a, c.Param("id"), acl)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) updateRetention(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var ret document.Retention
	if err := c.ShouldBindJSON(&ret); err != nil {
		badRequest(c, err.Error())
		return
	}
	d, err := h.svc.UpdateRetention(c.Request.Context(), a, c.Param("id"), ret)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) delete(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	res, err := h.svc.DeleteDocument(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) restore(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	d, err := h.svc.RestoreDocument(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) createVersion(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var meta document.VersionMetadata
	if err := c.ShouldBindJSON(&meta); err != nil {
		badRequest(c, err.Error())
		return
	}
	v, err := h.svc.CreateVersion(c.Request.Context(), a, c.Param("id"), meta)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

func (h *Handler) listVersions(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	vs, err := h.svc.ListVersions(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, vs)
}

func (h *Handler) setVersionStatus(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	n, err := strconv.Atoi(c.Param("version"))
	if err != nil {
		badRequest(c, "version must be an integer")
		return
	}
	var req struct {
		Status document.VersionStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	d, err := h.svc.SetVersionStatus(c.Request.Context(), a, c.Param("id"), n, req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) auditTrail(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var version *int
	if c.Query("version") != "" {
		n, ok := queryInt(c, "version")
		if !ok {
			return
		}
		version = &n
	}
	recs, err := h.svc.AuditTrail(c.Request.Context(), a, c.Param("id"), version)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documentId": c.Param("id"), "records": recs})
}
