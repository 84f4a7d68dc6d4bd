package codec_test

import (
	"strings"
	"testing"
	"time"

	"github.com/GeoNet/rsudp/internal/codec"
	"github.com/pkg/errors"
)

var at = time.Date(2020, 1, 1, 0, 0, 0, 599*1000*1000, time.UTC)

func TestEncode(t *testing.T) {
	in := []struct {
		id string
		m  codec.Message
		e  string
	}{
		{id: l(), m: codec.Term{}, e: "TERM"},
		{id: l(), m: codec.Alarm{Time: at}, e: "ALARM 2020-01-01T00:00:00.599Z"},
		{id: l(), m: codec.Reset{Time: at}, e: "RESET 2020-01-01T00:00:00.599Z"},
		{id: l(), m: codec.ImgPath{Time: at, Path: "/path/to.png"}, e: "IMGPATH 2020-01-01T00:00:00.599Z /path/to.png"},
		{id: l(), m: codec.Process{Motion: codec.PeakMotion{
			MaxPGA: 0.5, MaxPGD: 0.25, MaxPGAChannel: "ENN", MaxPGDChannel: "ENE", EventTime: codec.EventTime{Time: at}}},
			e: `PROCESS {"max_pga":0.5,"max_pgd":0.25,"max_pga_channel":"ENN","max_pgd_channel":"ENE","event_time":"2020-01-01T00:00:00.599Z"}`},
		{id: l(), m: codec.Process{Motion: codec.PeakMotion{
			MaxPGA: 1, MaxPGD: 2, MaxPGAChannel: "ENZ", MaxPGDChannel: "ENZ", EventTime: codec.EventTime{Time: time.Date(2020, 1, 1, 0, 0, 20, 0, time.UTC)}}},
			e: `PROCESS {"max_pga":1,"max_pgd":2,"max_pga_channel":"ENZ","max_pgd_channel":"ENZ","event_time":"2020-01-01T00:00:20.000Z"}`},
		{id: l(), m: codec.Datagram{Raw: []byte("{'EHZ', 1577836800.000, 1}")}, e: "{'EHZ', 1577836800.000, 1}"},
	}

	for _, v := range in {
		b := codec.Encode(v.m)
		if string(b) != v.e {
			t.Errorf("%s expected %s got %s", v.id, v.e, b)
		}

		m, err := codec.Decode(b)
		if err != nil {
			t.Errorf("%s %s", v.id, err)
			continue
		}
		if m.Kind() != v.m.Kind() {
			t.Errorf("%s expected kind %s got %s", v.id, v.m.Kind(), m.Kind())
		}
	}
}

func TestProcessNoSpaces(t *testing.T) {
	b := codec.Encode(codec.Process{Motion: codec.PeakMotion{MaxPGAChannel: "ENZ", MaxPGDChannel: "ENZ"}})

	if strings.Count(string(b), " ") != 1 {
		t.Errorf("expected a single space after the keyword: %s", b)
	}
}

func TestDecodeAlarmTime(t *testing.T) {
	m, err := codec.Decode([]byte("ALARM 2020-01-01T00:00:00.599Z"))
	if err != nil {
		t.Fatal(err)
	}

	a, ok := m.(codec.Alarm)
	if !ok {
		t.Fatalf("expected Alarm got %T", m)
	}
	if !a.Time.Equal(at) {
		t.Errorf("expected %s got %s", at, a.Time)
	}

	m, err = codec.Decode([]byte(`PROCESS {"max_pga":1,"max_pgd":2,"max_pga_channel":"ENN","max_pgd_channel":"ENN","event_time":"2020-01-01T00:00:00.59Z"}`))
	if err != nil {
		t.Fatal(err)
	}
	p := m.(codec.Process)
	if !p.Motion.EventTime.Equal(time.Date(2020, 1, 1, 0, 0, 0, 590*1000*1000, time.UTC)) {
		t.Errorf("unexpected event time %s", p.Motion.EventTime)
	}
}

func TestDecodeErrors(t *testing.T) {
	for _, s := range []string{"", "ALARM", "ALARM soon", "IMGPATH 2020-01-01T00:00:00.599Z", "PROCESS {", "HELLO"} {
		if _, err := codec.Decode([]byte(s)); errors.Cause(err) != codec.ErrMalformedPacket {
			t.Errorf("%q expected malformed packet got %v", s, err)
		}
	}
}
