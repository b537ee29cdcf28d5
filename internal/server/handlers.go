package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sprout/internal/evolution"
	"sprout/internal/skilltree"
)

// APIResponse is the uniform envelope for every JSON endpoint.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

func fail(c *gin.Context, status int, err error) {
	c.JSON(status, APIResponse{Success: false, Error: err.Error()})
}

func parseTree(c *gin.Context) (skilltree.TreeID, bool) {
	id := skilltree.TreeID(c.Param("tree"))
	switch id {
	case skilltree.TreeGeneral, skilltree.TreeDomain:
		return id, true
	default:
		fail(c, http.StatusNotFound, errors.New("unknown tree "+c.Param("tree")))
		return "", false
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	ok(c, gin.H{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

// treeView is the wire shape of one graph.
type treeView struct {
	Tree   skilltree.TreeID   `json:"tree"`
	Skills []*skilltree.Skill `json:"skills"`
}

func (s *Server) handleSnapshot(c *gin.Context) {
	snap := s.coordinator.Snapshot()
	trees := make(map[skilltree.TreeID]treeView, len(snap.Trees))
	for id, g := range snap.Trees {
		trees[id] = treeView{Tree: id, Skills: g.Skills()}
	}
	ok(c, gin.H{
		"trees":      trees,
		"index":      snap.Index,
		"stage":      snap.Stage,
		"split":      snap.Split,
		"cycle":      snap.Cycle,
		"failures":   snap.Failures,
		"updated_at": snap.UpdatedAt,
	})
}

func (s *Server) handleTree(c *gin.Context) {
	id, valid := parseTree(c)
	if !valid {
		return
	}
	g := s.coordinator.Snapshot().Trees[id]
	ok(c, treeView{Tree: id, Skills: g.Skills()})
}

func (s *Server) handleSkill(c *gin.Context) {
	id, valid := parseTree(c)
	if !valid {
		return
	}
	skill := s.coordinator.Snapshot().Trees[id].Get(c.Param("id"))
	if skill == nil {
		fail(c, http.StatusNotFound, errors.New("skill not found: "+c.Param("id")))
		return
	}
	ok(c, skill)
}

func (s *Server) handleIndex(c *gin.Context) {
	snap := s.coordinator.Snapshot()
	ok(c, gin.H{
		"index": snap.Index,
		"stage": snap.Stage,
		"split": snap.Split,
	})
}

func (s *Server) handleFailures(c *gin.Context) {
	ok(c, s.coordinator.Snapshot().Failures)
}

func (s *Server) handleRunCycle(c *gin.Context) {
	result, err := s.coordinator.RunCycle(c.Request.Context())
	if errors.Is(err, evolution.ErrCycleInProgress) {
		fail(c, http.StatusConflict, err)
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, result)
}

func (s *Server) handleAddSkill(c *gin.Context) {
	id, valid := parseTree(c)
	if !valid {
		return
	}
	var def skilltree.Definition
	if err := c.ShouldBindJSON(&def); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if err := s.coordinator.AddSkill(id, def); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, skilltree.ErrValidation) {
			status = http.StatusUnprocessableEntity
		}
		fail(c, status, err)
		return
	}
	c.JSON(http.StatusCreated, APIResponse{Success: true, Data: gin.H{"id": def.ID}})
}

func (s *Server) handleForceUnlock(c *gin.Context) {
	id, valid := parseTree(c)
	if !valid {
		return
	}
	if err := s.coordinator.ForceUnlock(id, c.Param("id")); err != nil {
		fail(c, http.StatusNotFound, err)
		return
	}
	ok(c, gin.H{"id": c.Param("id"), "unlocked": true})
}

type priorityRequest struct {
	Priority float64 `json:"priority" binding:"required"`
}

func (s *Server) handleSetPriority(c *gin.Context) {
	id, valid := parseTree(c)
	if !valid {
		return
	}
	var req priorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if err := s.coordinator.SetBasePriority(id, c.Param("id"), req.Priority); err != nil {
		fail(c, http.StatusNotFound, err)
		return
	}
	ok(c, gin.H{"id": c.Param("id"), "priority": req.Priority})
}
