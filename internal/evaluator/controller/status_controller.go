// Package controller exposes the status store over HTTP.
package controller

import (
	"context"
	"strconv"

	"neurojudge/internal/common/http/middleware"
	"neurojudge/internal/evaluator/model"
	appErr "neurojudge/pkg/errors"
	"neurojudge/pkg/utils/logger"
	"neurojudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StatusStore is the subset of the status repository served over HTTP.
type StatusStore interface {
	Get(ctx context.Context, id int64) (model.StatusRecord, error)
	GetStatus(ctx context.Context, id int64, flag model.Flag) (bool, error)
	ClearStatus(ctx context.Context, id int64, flag model.Flag) error
	Requeue(ctx context.Context, id int64, flag model.Flag) error
	List(ctx context.Context) ([]model.StatusRecord, error)
}

// StatusController handles status requests.
type StatusController struct {
	store StatusStore
}

// NewStatusController creates a new controller.
func NewStatusController(store StatusStore) *StatusController {
	return &StatusController{store: store}
}

// FlagValue is the body returned for a single flag.
type FlagValue struct {
	ID    int64  `json:"id"`
	Flag  string `json:"flag"`
	Value bool   `json:"value"`
}

// List returns every status record.
func (h *StatusController) List(c *gin.Context) {
	recs, err := h.store.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, recs)
}

// Get returns the record for one submission.
func (h *StatusController) Get(c *gin.Context) {
	id, ok := submissionID(c)
	if !ok {
		return
	}
	rec, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, rec)
}

// GetFlag returns one flag of one submission.
func (h *StatusController) GetFlag(c *gin.Context) {
	id, ok := submissionID(c)
	if !ok {
		return
	}
	flag, err := model.ParseFlag(c.Param("flag"))
	if err != nil {
		response.Error(c, err)
		return
	}
	v, err := h.store.GetStatus(c.Request.Context(), id, flag)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, FlagValue{ID: id, Flag: string(flag), Value: v})
}

// Clear resets one flag. With ?requeue=true the submission is also revisited
// on the next pass.
func (h *StatusController) Clear(c *gin.Context) {
	id, ok := submissionID(c)
	if !ok {
		return
	}
	flag, err := model.ParseFlag(c.Param("flag"))
	if err != nil {
		response.Error(c, err)
		return
	}
	requeue, _ := strconv.ParseBool(c.Query("requeue"))

	ctx := c.Request.Context()
	if requeue {
		err = h.store.Requeue(ctx, id, flag)
	} else {
		err = h.store.ClearStatus(ctx, id, flag)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	logger.Info(ctx, "status flag cleared over http",
		zap.Int64("submission_id", id),
		zap.String("flag", string(flag)),
		zap.Bool("requeue", requeue),
		zap.String("operator", middleware.Operator(c)),
	)
	response.SuccessWithMessage(c, "Cleared", FlagValue{ID: id, Flag: string(flag)})
}

func submissionID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, appErr.ValidationError("id", "must be a positive integer"))
		return 0, false
	}
	return id, true
}
