package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"neurojudge/internal/common/mq"
	"neurojudge/internal/evaluator/model"
	appErr "neurojudge/pkg/errors"
	"neurojudge/pkg/utils/contextkey"
)

// OutcomeEvent is published for every notification.
type OutcomeEvent struct {
	SubmissionID int64  `json:"submission_id"`
	Login        string `json:"login"`
	Phase        string `json:"phase,omitempty"`
	Message      string `json:"message"`
	CreatedAt    int64  `json:"created_at"`
}

// MQNotifier publishes outcome events to a message queue.
type MQNotifier struct {
	producer mq.Producer
	topic    string
}

func NewMQNotifier(producer mq.Producer, topic string) *MQNotifier {
	return &MQNotifier{producer: producer, topic: topic}
}

func (n *MQNotifier) Post(ctx context.Context, sub model.Submission, message string) error {
	if n == nil || n.producer == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("outcome publisher is not configured")
	}
	if n.topic == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("outcome topic is required")
	}
	phase, _ := ctx.Value(contextkey.Phase).(string)
	event := OutcomeEvent{
		SubmissionID: sub.ID,
		Login:        sub.Login,
		Phase:        phase,
		Message:      message,
		CreatedAt:    time.Now().UTC().Unix(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal outcome event failed: %w", err)
	}
	msg := mq.NewMessage(payload)
	msg.ID = strconv.FormatInt(sub.ID, 10)
	if phase != "" {
		msg.SetHeader("phase", phase)
	}
	if err := n.producer.Publish(ctx, n.topic, msg); err != nil {
		return appErr.Wrapf(err, appErr.NotificationFailed, "publish outcome event failed")
	}
	return nil
}
