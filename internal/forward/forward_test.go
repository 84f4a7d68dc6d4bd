package forward_test

import (
	"net"
	"testing"
	"time"

	"github.com/GeoNet/rsudp/internal/codec"
	"github.com/GeoNet/rsudp/internal/forward"
	"github.com/GeoNet/rsudp/internal/pipeline"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var env = &pipeline.Environment{
	Network:    "AM",
	Station:    "R0000",
	Tf:         250,
	SampleRate: 100,
	Channels:   []string{"EHZ", "ENZ", "ENN", "ENE"},
}

func TestForward(t *testing.T) {
	rx, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer rx.Close()

	f, err := forward.New(env, forward.Config{
		Address:  "127.0.0.1",
		Port:     rx.LocalAddr().(*net.UDPAddr).Port,
		Channels: []string{"ENN"},
		Data:     true,
		Alarms:   true,
	})
	require.NoError(t, err)

	at := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	in := []codec.Message{
		codec.Datagram{Raw: codec.Format(codec.Packet{Channel: "EHZ", Time: at, Samples: []int32{1}})},
		codec.Datagram{Raw: []byte("{'ENN', 1577836800.000, 1, -2}")},
		codec.Alarm{Time: at},
	}

	var flags pipeline.Flags
	for _, m := range in {
		require.NoError(t, f.Handle(m, &flags))
	}
	require.NoError(t, f.Close())

	assert.Equal(t, 2, f.Sent())

	b := make([]byte, codec.MaxDatagram)
	var got []string
	require.NoError(t, rx.SetReadDeadline(time.Now().Add(2*time.Second)))
	for i := 0; i < 2; i++ {
		n, err := rx.Read(b)
		require.NoError(t, err)
		got = append(got, string(b[:n]))
	}

	assert.Equal(t, []string{"{'ENN', 1577836800.000, 1, -2}", "ALARM 2020-01-01T00:00:00.000Z"}, got)
}

func TestDataOnly(t *testing.T) {
	rx, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer rx.Close()

	f, err := forward.New(env, forward.Config{
		Address:  "127.0.0.1",
		Port:     rx.LocalAddr().(*net.UDPAddr).Port,
		Channels: []string{"all"},
		Data:     true,
	})
	require.NoError(t, err)
	defer f.Close()

	var flags pipeline.Flags
	require.NoError(t, f.Handle(codec.Reset{Time: time.Now()}, &flags))
	assert.Equal(t, 0, f.Sent())

	_, err = forward.New(env, forward.Config{Address: "127.0.0.1", Port: 1, Channels: []string{"XYZ"}})
	assert.Equal(t, forward.ErrUnknownChannel, errors.Cause(err))
}
