package publish_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/GeoNet/rsudp/internal/codec"
	"github.com/GeoNet/rsudp/internal/pipeline"
	"github.com/GeoNet/rsudp/internal/publish"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish(t *testing.T) {
	mr := miniredis.RunT(t)
	defer mr.Close()

	ctx := context.Background()

	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer sub.Close()

	ps := sub.Subscribe(ctx, publish.EventsChannel("R0000"))
	defer ps.Close()
	_, err := ps.Receive(ctx)
	require.NoError(t, err)

	p, err := publish.New("R0000", publish.Config{Address: mr.Addr()})
	require.NoError(t, err)

	at := time.Date(2020, 1, 1, 0, 0, 0, 599000000, time.UTC)

	var f pipeline.Flags
	require.NoError(t, p.Handle(codec.Datagram{Raw: []byte("{'EHZ', 1577836800.000, 1}")}, &f))
	require.NoError(t, p.Handle(codec.Alarm{Time: at}, &f))
	require.NoError(t, p.Handle(codec.Term{}, &f))
	require.NoError(t, p.Handle(codec.ImgPath{Time: at, Path: "/tmp/a.png"}, &f))
	assert.Equal(t, 2, p.Published())

	ch := ps.Channel()

	var got []publish.Event
	for len(got) < 2 {
		select {
		case msg := <-ch:
			var e publish.Event
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &e))
			got = append(got, e)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out with %d events", len(got))
		}
	}

	assert.Equal(t, "ALARM", got[0].Kind)
	assert.Equal(t, "R0000", got[0].Station)
	assert.True(t, at.Equal(got[0].Time))
	assert.Equal(t, "ALARM 2020-01-01T00:00:00.599Z", got[0].Payload)
	assert.NotEmpty(t, got[0].ID)

	assert.Equal(t, "IMGPATH", got[1].Kind)
	assert.NotEqual(t, got[0].ID, got[1].ID)

	require.NoError(t, p.Close())
}

func TestPublishChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	defer mr.Close()

	p := publish.NewWithOptions(&redis.Options{Addr: mr.Addr()}, "R0000", "quakes")
	defer p.Close()

	e, ok := publish.NewEvent("R0000", codec.Reset{Time: time.Now()})
	require.True(t, ok)
	require.NoError(t, p.Publish(e))

	_, ok = publish.NewEvent("R0000", codec.Term{})
	assert.False(t, ok)
}

func TestPublishUnreachable(t *testing.T) {
	defer func(d time.Duration) { publish.RetryDelay = d }(publish.RetryDelay)
	publish.RetryDelay = 10 * time.Millisecond

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	p, err := publish.New("R0000", publish.Config{Address: addr})
	require.NoError(t, err)
	defer p.Close()

	assert.False(t, p.Enabled())

	var f pipeline.Flags
	// failures are logged, not returned
	assert.NoError(t, p.Handle(codec.Alarm{Time: time.Now()}, &f))
	assert.Equal(t, 0, p.Published())

	_, err = publish.New("R0000", publish.Config{})
	assert.Error(t, err)
}

func TestPublishRetry(t *testing.T) {
	defer func(d time.Duration) { publish.RetryDelay = d }(publish.RetryDelay)
	publish.RetryDelay = 500 * time.Millisecond

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	// the server is back before the retry.
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = mr.Restart()
	}()

	p, err := publish.New("R0000", publish.Config{Address: addr})
	require.NoError(t, err)
	defer p.Close()

	require.True(t, p.Enabled())

	var f pipeline.Flags
	require.NoError(t, p.Handle(codec.Alarm{Time: time.Now()}, &f))
	assert.Equal(t, 1, p.Published())
}
