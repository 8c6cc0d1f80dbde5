package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"gymsync/internal/models"
	"gymsync/internal/reactive"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type published struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(topic string, _ byte, _ bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{topic: topic, payload: payload})
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func (f *fakePublisher) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func notification(id, user string, read bool) models.Notification {
	return models.Notification{ID: id, UserID: models.Ptr(user), Title: models.Ptr("t-" + id), Read: models.Ptr(read)}
}

func TestDispatch_OncePerUnreadNotification(t *testing.T) {
	pub := &fakePublisher{}
	d := NewNotificationDispatcher(reactive.NewStore([]models.Notification{}).ReadOnly(), pub, "gym/n", 1, zap.NewNop(), nil)

	list := []models.Notification{
		notification("n1", "u1", false),
		notification("n2", "u1", true),
		{ID: "n3"},
		notification("n4", "u2", false),
		notification(models.TemporaryIDPrefix+"5", "u2", false),
	}
	assert.Equal(t, 2, d.Dispatch(list))
	assert.Equal(t, 0, d.Dispatch(list))

	require.Len(t, pub.msgs, 2)
	assert.Equal(t, "gym/n/u1", pub.msgs[0].topic)
	assert.Equal(t, "gym/n/u2", pub.msgs[1].topic)

	var msg NotificationMessage
	require.NoError(t, json.Unmarshal(pub.msgs[0].payload, &msg))
	assert.Equal(t, "n1", msg.ID)
	assert.Equal(t, "t-n1", msg.Title)
}

func TestDispatch_RetriesAfterPublishFailure(t *testing.T) {
	pub := &fakePublisher{}
	pub.fail(errors.New("broker down"))
	d := NewNotificationDispatcher(reactive.NewStore([]models.Notification{}).ReadOnly(), pub, "", 0, zap.NewNop(), nil)
	list := []models.Notification{notification("n1", "u1", false)}

	assert.Equal(t, 0, d.Dispatch(list))
	pub.fail(nil)
	assert.Equal(t, 1, d.Dispatch(list))
	assert.Equal(t, "gym/notificaciones/u1", pub.msgs[0].topic)
}

func TestStart_FollowsStore(t *testing.T) {
	store := reactive.NewStore([]models.Notification{notification("n1", "u1", false)})
	pub := &fakePublisher{}
	d := NewNotificationDispatcher(store.ReadOnly(), pub, "gym/n", 0, zap.NewNop(), nil)

	require.NoError(t, d.Start(context.Background()))
	require.NoError(t, d.Start(context.Background()))
	defer d.Stop()

	require.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 5*time.Millisecond)

	store.Set([]models.Notification{
		notification("n1", "u1", false),
		notification("n2", "u1", false),
	})
	require.Eventually(t, func() bool { return pub.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestStart_WithoutPublisher(t *testing.T) {
	d := NewNotificationDispatcher(reactive.NewStore([]models.Notification{}).ReadOnly(), nil, "", 0, zap.NewNop(), nil)
	assert.ErrorIs(t, d.Start(context.Background()), ErrNotConfigured)
}
