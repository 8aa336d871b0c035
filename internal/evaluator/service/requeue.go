package service

import (
	"context"
	"encoding/json"
	"strconv"

	"neurojudge/internal/common/mq"
	"neurojudge/internal/evaluator/model"
	appErr "neurojudge/pkg/errors"
	"neurojudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// RequeueRequest asks for a flag to be cleared and the submission revisited.
type RequeueRequest struct {
	ID   int64  `json:"id"`
	Flag string `json:"flag"`
}

// Requeuer clears a flag and forces the next pass to treat the submission as
// changed.
type Requeuer interface {
	Requeue(ctx context.Context, id int64, flag model.Flag) error
}

// NewRequeueMessage encodes req for the requeue topic.
func NewRequeueMessage(req RequeueRequest) (*mq.Message, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.InvalidParams)
	}
	msg := mq.NewMessage(body)
	msg.ID = strconv.FormatInt(req.ID, 10)
	return msg, nil
}

// RequeueHandler consumes requeue requests.
type RequeueHandler struct {
	store Requeuer
}

// NewRequeueHandler creates a handler over store.
func NewRequeueHandler(store Requeuer) *RequeueHandler {
	return &RequeueHandler{store: store}
}

// Handle decodes and applies one request.
func (h *RequeueHandler) Handle(ctx context.Context, msg *mq.Message) error {
	var req RequeueRequest
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		return appErr.Wrapf(err, appErr.InvalidParams, "decode requeue request failed")
	}
	if req.ID <= 0 {
		return appErr.ValidationError("id", "must be positive")
	}
	flag, err := model.ParseFlag(req.Flag)
	if err != nil {
		return err
	}
	if err := h.store.Requeue(ctx, req.ID, flag); err != nil {
		return err
	}
	logger.Info(ctx, "requeue applied",
		zap.String("message_id", msg.ID),
		zap.Int64("submission_id", req.ID),
		zap.String("flag", string(flag)),
	)
	return nil
}
