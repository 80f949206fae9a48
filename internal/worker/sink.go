package worker

import (
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"collaborative-rooms/internal/domain"
	"collaborative-rooms/internal/tasks"
)

// AsynqSink enqueues applied operations for background archival. It
// implements room.OperationSink; enqueue failures are logged and dropped —
// the in-memory log and the periodic room persist remain authoritative.
type AsynqSink struct {
	client *asynq.Client
	log    *logrus.Entry
}

// NewAsynqSink creates the sink.
func NewAsynqSink(client *asynq.Client) *AsynqSink {
	if client == nil {
		panic("asynq client cannot be nil for AsynqSink")
	}
	return &AsynqSink{client: client, log: logrus.WithField("component", "op_sink")}
}

// EnqueueOperation queues one applied operation for archival.
func (s *AsynqSink) EnqueueOperation(roomID string, op *domain.Operation) {
	payload, err := tasks.NewOperationArchivePayload(roomID, op)
	if err != nil {
		s.log.WithError(err).Error("Failed to build archive payload")
		return
	}
	task := asynq.NewTask(tasks.TypeOperationArchive, payload)
	if _, err := s.client.Enqueue(task, asynq.Queue("default"), asynq.MaxRetry(5)); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"room_id":  roomID,
			"revision": op.Revision,
		}).Error("Failed to enqueue operation archive task")
	}
}
