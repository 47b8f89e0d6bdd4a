package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/raphaelgruber/kgforge/internal/models"
)

func (h *Handler) listPrompts(c *gin.Context) {
	list, err := h.templates.List(c.Request.Context(), c.Query("user_id"))
	if err != nil {
		failErr(c, err)
		return
	}
	if list == nil {
		list = []models.PromptTemplate{}
	}
	ok(c, list)
}

func (h *Handler) getPrompt(c *gin.Context) {
	t, err := h.templates.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, t)
}

func (h *Handler) createPrompt(c *gin.Context) {
	var in models.TemplateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, CodeInvalidRequest, "invalid request body")
		return
	}
	t, err := h.templates.Create(c.Request.Context(), c.Query("user_id"), in)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, t)
}

func (h *Handler) updatePrompt(c *gin.Context) {
	var upd models.TemplateUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		fail(c, http.StatusBadRequest, CodeInvalidRequest, "invalid request body")
		return
	}
	t, err := h.templates.Update(c.Request.Context(), c.Query("user_id"), c.Param("id"), upd)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, t)
}

func (h *Handler) deletePrompt(c *gin.Context) {
	id := c.Param("id")
	if err := h.templates.Delete(c.Request.Context(), c.Query("user_id"), id); err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"id": id})
}
