package eventdb

import (
	"testing"
	"time"

	"github.com/GeoNet/rsudp/internal/codec"
	"github.com/GeoNet/rsudp/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMessage(t *testing.T) {
	at := time.Date(2020, 1, 1, 0, 0, 0, 599000000, time.UTC)

	in := []struct {
		m    codec.Message
		ok   bool
		kind string
	}{
		{m: codec.Alarm{Time: at}, ok: true, kind: "ALARM"},
		{m: codec.Reset{Time: at}, ok: true, kind: "RESET"},
		{m: codec.Process{Motion: codec.PeakMotion{EventTime: codec.EventTime{Time: at}}}, ok: true, kind: "PROCESS"},
		{m: codec.ImgPath{Time: at, Path: "/tmp/a.png"}},
		{m: codec.Term{}},
		{m: codec.Datagram{Raw: []byte("{'EHZ', 1577836800.000, 1}")}},
	}

	for _, v := range in {
		e, ok := FromMessage("R0000", v.m)
		if ok != v.ok {
			t.Errorf("%s: expected ok %t got %t", v.m.Kind(), v.ok, ok)
			continue
		}
		if !ok {
			continue
		}
		if e.Kind != v.kind {
			t.Errorf("expected kind %s got %s", v.kind, e.Kind)
		}
		if !e.Time.Equal(at) {
			t.Errorf("%s: expected time %s got %s", v.kind, at, e.Time)
		}
		if e.Station != "R0000" {
			t.Errorf("expected station R0000 got %s", e.Station)
		}
		if e.Payload != string(codec.Encode(v.m)) {
			t.Errorf("%s: payload %s", v.kind, e.Payload)
		}
	}

	a, _ := FromMessage("R0000", codec.Alarm{Time: at})
	b, _ := FromMessage("R0000", codec.Alarm{Time: at})
	if a.ID == b.ID {
		t.Error("expected unique ids")
	}
}

func TestCheckTable(t *testing.T) {
	in := []struct {
		table string
		want  string
		ok    bool
	}{
		{"", DefaultTable, true},
		{"events", "events", true},
		{"rsudp.events", "rsudp.events", true},
		{"events; DROP TABLE x", "", false},
		{"Events", "", false},
		{"1events", "", false},
	}

	for _, v := range in {
		got, err := checkTable(v.table)
		if (err == nil) != v.ok {
			t.Errorf("%q: expected ok %t got error %v", v.table, v.ok, err)
		}
		if got != v.want {
			t.Errorf("%q: expected %q got %q", v.table, v.want, got)
		}
	}
}

func TestNoDatabase(t *testing.T) {
	t.Setenv("DB_HOST", "")

	a, err := New("R0000", Config{})
	require.NoError(t, err)
	assert.False(t, a.Enabled())

	var f pipeline.Flags
	assert.NoError(t, a.Handle(codec.Alarm{Time: time.Now()}, &f))
	assert.Equal(t, 0, a.Saved())
	assert.NoError(t, a.Close())

	_, err = New("R0000", Config{Table: "bad table"})
	assert.Error(t, err)
}
