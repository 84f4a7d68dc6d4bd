package codec_test

import (
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/GeoNet/rsudp/internal/codec"
	"github.com/pkg/errors"
)

func TestParse(t *testing.T) {
	in := []struct {
		id      string
		b       string
		channel string
		at      time.Time
		samples []int32
		err     error
	}{
		{id: l(), b: "{'EHZ', 1577836800.000, 12345, 12346, -3}", channel: "EHZ",
			at: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), samples: []int32{12345, 12346, -3}},
		{id: l(), b: "{'ENN', 1577836800.250, 1}", channel: "ENN",
			at: time.Date(2020, 1, 1, 0, 0, 0, 250*1000*1000, time.UTC), samples: []int32{1}},
		{id: l(), b: "'HDF', 1577836800.599, 7, 8", channel: "HDF",
			at: time.Date(2020, 1, 1, 0, 0, 0, 599*1000*1000, time.UTC), samples: []int32{7, 8}},
		{id: l(), b: "{'EHZ', 1577836800.000}", err: codec.ErrMalformedPacket},
		{id: l(), b: "{'EHZ', yesterday, 1, 2}", err: codec.ErrMalformedPacket},
		{id: l(), b: "{'EHZ', 1577836800.000, 1, x}", err: codec.ErrMalformedPacket},
		{id: l(), b: "TERM", err: codec.ErrMalformedPacket},
	}

	for _, v := range in {
		p, err := codec.Parse([]byte(v.b))
		if errors.Cause(err) != v.err {
			t.Errorf("%s expected error %v got %v", v.id, v.err, err)
			continue
		}
		if err != nil {
			continue
		}

		if p.Channel != v.channel {
			t.Errorf("%s expected channel %s got %s", v.id, v.channel, p.Channel)
		}
		if !p.Time.Equal(v.at) {
			t.Errorf("%s expected time %s got %s", v.id, v.at, p.Time)
		}
		if len(p.Samples) != len(v.samples) {
			t.Fatalf("%s expected %d samples got %d", v.id, len(v.samples), len(p.Samples))
		}
		for i := range p.Samples {
			if p.Samples[i] != v.samples[i] {
				t.Errorf("%s sample %d expected %d got %d", v.id, i, v.samples[i], p.Samples[i])
			}
		}
	}
}

func TestFormat(t *testing.T) {
	p := codec.Packet{
		Channel: "EHZ",
		Time:    time.Date(2020, 1, 1, 0, 0, 0, 250*1000*1000, time.UTC),
		Samples: []int32{1, -2, 3},
	}

	b := codec.Format(p)
	if string(b) != "{'EHZ', 1577836800.250, 1, -2, 3}" {
		t.Errorf("unexpected datagram %s", b)
	}

	q, err := codec.Parse(b)
	if err != nil {
		t.Fatal(err)
	}
	if !q.Time.Equal(p.Time) || q.Channel != p.Channel || len(q.Samples) != 3 {
		t.Errorf("expected %+v got %+v", p, q)
	}
}

func TestPeekChannel(t *testing.T) {
	c, ok := codec.PeekChannel([]byte("{'ENE', 1577836800.000, 1}"))
	if !ok || c != "ENE" {
		t.Errorf("expected ENE got %s", c)
	}

	if _, ok := codec.PeekChannel([]byte("TERM")); ok {
		t.Error("expected no channel for TERM")
	}
}

// l returns the line of code it was called from.
func l() (loc string) {
	_, _, l, _ := runtime.Caller(1)
	return "L" + strconv.Itoa(l)
}
