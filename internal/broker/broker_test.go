package broker

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lyzr/dagrunner/common/config"
	"github.com/lyzr/dagrunner/common/logger"
	"github.com/lyzr/dagrunner/internal/domain"
)

func streamIDAt(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10) + "-0"
}

func TestTooOld(t *testing.T) {
	b := &Broker{cfg: config.BrokerConfig{MaxMessageAge: time.Hour}, log: logger.New("error", "json")}

	assert.False(t, b.tooOld(streamIDAt(time.Now())))
	assert.True(t, b.tooOld(streamIDAt(time.Now().Add(-2*time.Hour))))
}

func TestTooOld_MalformedIDIsNeverTooOld(t *testing.T) {
	b := &Broker{cfg: config.BrokerConfig{MaxMessageAge: time.Hour}, log: logger.New("error", "json")}

	assert.False(t, b.tooOld("not-a-valid-id"))
}

func TestPublishNodeTask_RejectsUnknownKind(t *testing.T) {
	b := &Broker{cfg: config.BrokerConfig{}, log: logger.New("error", "json")}

	err := b.PublishNodeTask(context.Background(), NodeTask{Kind: domain.NodeKind("bogus")})
	assert.ErrorContains(t, err, "unknown node kind")
}

func TestTaskStream_NamesMatchQueueCategory(t *testing.T) {
	assert.Equal(t, "dagrunner:tasks:ingest", taskStream(domain.QueueIngest))
	assert.Equal(t, "dagrunner:tasks:ai", taskStream(domain.QueueAI))
	assert.Equal(t, "dagrunner:tasks:actions", taskStream(domain.QueueActions))
}
