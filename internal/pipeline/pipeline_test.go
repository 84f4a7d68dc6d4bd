package pipeline_test

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/GeoNet/rsudp/internal/codec"
	"github.com/GeoNet/rsudp/internal/pipeline"
	"github.com/pkg/errors"
)

// recorder keeps every message it handles.
type recorder struct {
	sync.Mutex
	seen   []codec.Message
	closed bool
	err    func(m codec.Message) error
}

func (r *recorder) Handle(m codec.Message, f *pipeline.Flags) error {
	r.Lock()
	defer r.Unlock()

	r.seen = append(r.seen, m)
	if r.err != nil {
		return r.err(m)
	}
	return nil
}

func (r *recorder) Close() error {
	r.Lock()
	defer r.Unlock()

	r.closed = true
	return nil
}

func (r *recorder) messages() []codec.Message {
	r.Lock()
	defer r.Unlock()

	return append([]codec.Message(nil), r.seen...)
}

func datagram(ch string, at time.Time) []byte {
	return codec.Format(codec.Packet{Channel: ch, Time: at, Samples: []int32{1, 2, 3, 4, 5}})
}

func TestBroadcastOrder(t *testing.T) {
	in := pipeline.NewQueue()
	b := pipeline.NewBroadcaster(in)

	var recs []*recorder
	var workers []*pipeline.Consumer
	for i := 0; i < 3; i++ {
		r := &recorder{}
		w := pipeline.NewConsumer(fmt.Sprintf("w%d", i), r)
		b.Register(w)
		recs = append(recs, r)
		workers = append(workers, w)
	}

	ctx := context.Background()
	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *pipeline.Consumer) {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				t.Error(err)
			}
		}(w)
	}

	done := make(chan error)
	go func() {
		done <- b.Run(ctx)
	}()

	// more than a queue full so the broadcaster blocks on slow workers.
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	var sent []codec.Message
	for i := 0; i < 3*pipeline.QueueSize; i++ {
		var m codec.Message = codec.Datagram{Raw: datagram("EHZ", start.Add(time.Duration(i)*250*time.Millisecond))}
		if i%100 == 99 {
			m = codec.Alarm{Time: start.Add(time.Duration(i) * time.Second)}
		}
		in <- m
		sent = append(sent, m)
	}
	in <- codec.Term{}

	if err := <-done; err != nil {
		t.Fatal(err)
	}
	wg.Wait()

	for i, r := range recs {
		got := r.messages()
		if len(got) != len(sent) {
			t.Fatalf("worker %d expected %d messages got %d", i, len(sent), len(got))
		}
		for j := range got {
			if string(codec.Encode(got[j])) != string(codec.Encode(sent[j])) {
				t.Fatalf("worker %d message %d out of order", i, j)
			}
		}
		if !r.closed {
			t.Errorf("worker %d not closed on TERM", i)
		}
		if !workers[i].Flags().Alive() {
			t.Errorf("worker %d should still be alive after TERM", i)
		}
	}
}

func TestConsumerFailures(t *testing.T) {
	transient := &recorder{err: func(codec.Message) error { return errors.New("numeric anomaly") }}
	fatal := &recorder{err: func(codec.Message) error { return pipeline.Fatal(errors.New("disk gone")) }}

	in := []struct {
		id       string
		r        *recorder
		messages int
	}{
		{id: "transient", r: transient, messages: pipeline.MaxFailures},
		{id: "fatal", r: fatal, messages: 1},
	}

	for _, v := range in {
		w := pipeline.NewConsumer(v.id, v.r)

		done := make(chan error)
		go func() {
			done <- w.Run(context.Background())
		}()

		timeout := time.After(5 * time.Second)

	loop:
		for {
			select {
			case err := <-done:
				if err == nil {
					t.Errorf("%s expected an error", v.id)
				}
				break loop
			case w.Inbox() <- codec.Reset{Time: time.Now()}:
				// one message per cycle.
				time.Sleep(20 * time.Millisecond)
			case <-timeout:
				t.Fatalf("%s consumer did not stop", v.id)
			}
		}

		if n := len(v.r.messages()); n != v.messages {
			t.Errorf("%s expected %d messages handled got %d", v.id, v.messages, n)
		}

		if w.Flags().Alive() {
			t.Errorf("%s expected worker to be stopped", v.id)
		}
		if !v.r.closed {
			t.Errorf("%s expected handler closed", v.id)
		}
		select {
		case <-w.Done():
		default:
			t.Errorf("%s expected done closed", v.id)
		}
	}
}

func TestIsFatal(t *testing.T) {
	err := errors.Wrap(pipeline.Fatal(errors.New("boom")), "writing")
	if !pipeline.IsFatal(err) {
		t.Error("expected wrapped fatal error")
	}
	if pipeline.IsFatal(errors.New("boom")) || pipeline.IsFatal(nil) {
		t.Error("unexpected fatal")
	}
}

func TestFlagsPoll(t *testing.T) {
	var f pipeline.Flags

	if len(f.Poll()) != 0 {
		t.Error("expected nothing raised")
	}

	at := time.Date(2020, 1, 1, 0, 0, 0, 599000000, time.UTC)
	f.Alarm(at)
	f.Reset(at.Add(time.Minute))
	f.Send(codec.ImgPath{Time: at, Path: "/tmp/event.png"})
	f.Alarm(at.Add(2 * time.Minute))

	got := f.Poll()
	if len(got) != 4 {
		t.Fatalf("expected 4 messages got %d", len(got))
	}
	for i, e := range []string{
		"ALARM 2020-01-01T00:00:00.599Z",
		"RESET 2020-01-01T00:01:00.599Z",
		"IMGPATH 2020-01-01T00:00:00.599Z /tmp/event.png",
		"ALARM 2020-01-01T00:02:00.599Z",
	} {
		if s := string(codec.Encode(got[i])); s != e {
			t.Errorf("expected %s got %s", e, s)
		}
	}

	if len(f.Poll()) != 0 {
		t.Error("expected flags cleared")
	}
}

func TestEnvironment(t *testing.T) {
	e := pipeline.Environment{Tf: 250, Channels: []string{"EHZ", "ENZ", "ENN", "ENE"}}

	if n := e.Packets(10 * time.Second); n != 40 {
		t.Errorf("expected 40 packets got %d", n)
	}

	sel, unknown := e.Select([]string{"all"})
	if len(sel) != 4 || len(unknown) != 0 {
		t.Errorf("unexpected selection %v %v", sel, unknown)
	}

	sel, unknown = e.Select([]string{"HZ", "hdf", "XYZ"})
	if len(sel) != 2 || sel[0] != "EHZ" || sel[1] != "ENZ" {
		t.Errorf("unexpected selection %v", sel)
	}
	if len(unknown) != 1 || unknown[0] != "XYZ" {
		t.Errorf("unexpected unknown %v", unknown)
	}
}

func send(t *testing.T, from *net.UDPConn, to net.Addr, b []byte) {
	t.Helper()
	if _, err := from.WriteTo(b, to); err != nil {
		t.Fatal(err)
	}
}

func TestProducer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := pipeline.Listen(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	p.Timeout = 2 * time.Second

	to := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: p.Addr().(*net.UDPAddr).Port}

	shake, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer shake.Close()

	other, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 2)})
	if err != nil {
		t.Skipf("no second loopback address: %s", err)
	}
	defer other.Close()

	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	channels := []string{"ENZ", "EHZ", "ENE", "ENN"}

	var packet int
	next := func() []byte {
		at := start.Add(time.Duration(packet/len(channels)) * 50 * time.Millisecond)
		ch := channels[packet%len(channels)]
		packet++
		return datagram(ch, at)
	}

	// enough for both probes.
	for i := 0; i < 4*len(channels); i++ {
		send(t, shake, to, next())
	}

	env, err := p.Probe("R0000")
	if err != nil {
		t.Fatal(err)
	}

	if env.Tf != 50 || env.SampleRate != 100 || env.Network != "AM" || env.Station != "R0000" {
		t.Errorf("unexpected environment %+v", env)
	}
	if len(env.Channels) != 4 || env.Channels[0] != "EHZ" || env.Channels[1] != "ENZ" {
		t.Errorf("unexpected channels %v", env.Channels)
	}

	w := pipeline.NewConsumer("alert", &recorder{})
	p.Watch(w)

	alarm := start.Add(time.Second)
	w.Flags().Alarm(alarm)

	done := make(chan error)
	go func() {
		done <- p.Run(ctx)
	}()

	const n = 50
	for i := 0; i < n; i++ {
		send(t, shake, to, next())
		if i == n/2 {
			send(t, other, to, next())
		}
		time.Sleep(time.Millisecond)
	}
	send(t, shake, to, []byte("TERM"))

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("producer did not stop")
	}

	var datagrams, alarms, terms int
	var last codec.Message
	for len(p.Out()) > 0 {
		last = <-p.Out()
		switch m := last.(type) {
		case codec.Datagram:
			datagrams++
		case codec.Alarm:
			alarms++
			if !m.Time.Equal(alarm) {
				t.Errorf("expected alarm at %s got %s", alarm, m.Time)
			}
			if datagrams == 0 {
				t.Error("expected ALARM after the first datagram")
			}
		case codec.Term:
			terms++
		}
	}

	// the probes may leave some of their packets unread.
	if datagrams < n || datagrams > n+4*len(channels) {
		t.Errorf("expected at least %d datagrams got %d", n, datagrams)
	}
	if alarms != 1 || terms != 1 {
		t.Errorf("expected one ALARM and one TERM got %d %d", alarms, terms)
	}
	if last == nil || last.Kind() != codec.KindTerm {
		t.Error("expected TERM last")
	}

	if b := p.Blocked(); len(b) != 1 || b[0] != "127.0.0.2" {
		t.Errorf("expected 127.0.0.2 blocked got %v", b)
	}
	if s := p.Sender(); !s.Equal(net.IPv4(127, 0, 0, 1)) {
		t.Errorf("expected lock on 127.0.0.1 got %s", s)
	}
}

func TestProducerNoData(t *testing.T) {
	p, err := pipeline.Listen(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	p.Timeout = 100 * time.Millisecond

	_, err = p.Probe("R0000")
	if errors.Cause(err) != codec.ErrNoDataReceived {
		t.Errorf("expected no data error got %v", err)
	}
}

func TestRunStoppedWorker(t *testing.T) {
	ctx := context.Background()

	p, err := pipeline.Listen(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	b := pipeline.NewBroadcaster(p.Out())

	ok := &recorder{}
	b.Register(pipeline.NewConsumer("ok", ok))
	b.Register(pipeline.NewConsumer("broken", &recorder{err: func(codec.Message) error {
		return pipeline.Fatal(errors.New("broken"))
	}}))

	done := make(chan error)
	go func() {
		done <- pipeline.Run(ctx, p, b)
	}()

	conn, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: p.Addr().(*net.UDPAddr).Port})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	// the broken worker stops on its first message, the producer sees it on a later poll.
	go func() {
		for i := 0; i < 100; i++ {
			if _, err := conn.Write(datagram("EHZ", start.Add(time.Duration(i)*50*time.Millisecond))); err != nil {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	select {
	case err := <-done:
		if !pipeline.IsFatal(err) {
			t.Errorf("expected the fatal worker error got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("pipeline did not stop")
	}

	if !ok.closed {
		t.Error("expected the healthy worker to see TERM")
	}
	msgs := ok.messages()
	if len(msgs) == 0 {
		t.Error("expected the healthy worker to receive datagrams")
	}
}
