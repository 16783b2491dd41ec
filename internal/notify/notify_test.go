package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"

	"flag-scanner/internal/analysis/patterns"
	apperrors "flag-scanner/internal/errors"
	"flag-scanner/internal/testutil"
)

type recordingChannel struct {
	name    string
	enabled bool
	err     error
	got     []Signal
}

func (c *recordingChannel) Name() string    { return c.name }
func (c *recordingChannel) IsEnabled() bool { return c.enabled }
func (c *recordingChannel) Publish(ctx context.Context, s Signal) error {
	c.got = append(c.got, s)
	return c.err
}

func fixtureSignal(t *testing.T) Signal {
	t.Helper()
	found := patterns.Scan(testutil.BullFlagBars(), "1h")
	if len(found) != 1 {
		t.Fatalf("fixture produced %d patterns", len(found))
	}
	return NewSignal("sig-1", "run-1", "ACME", found[0], time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC))
}

func TestMultiNotifier_FanOut(t *testing.T) {
	ok := &recordingChannel{name: "ok", enabled: true}
	off := &recordingChannel{name: "off"}
	broken := &recordingChannel{name: "broken", enabled: true, err: errors.New("down")}

	mn := NewMultiNotifier(0, ok, off)
	mn.AddChannel(broken)

	sig := fixtureSignal(t)
	err := mn.Publish(context.Background(), sig)

	if len(ok.got) != 1 || len(broken.got) != 1 || len(off.got) != 0 {
		t.Errorf("deliveries ok=%d broken=%d off=%d", len(ok.got), len(broken.got), len(off.got))
	}
	if !apperrors.Is(err, apperrors.ErrPublishFailed) {
		t.Fatalf("err = %v, want publish failure", err)
	}
	var pe *apperrors.PublishError
	if !apperrors.As(err, &pe) || pe.Channel != "broken" || pe.Key != sig.Key() {
		t.Errorf("publish error = %+v", pe)
	}

	if got := strings.Join(mn.Channels(), ","); got != "ok,broken" {
		t.Errorf("Channels() = %s", got)
	}
}

func TestMultiNotifier_DeliverSkipsDoneChannels(t *testing.T) {
	terminal := &recordingChannel{name: "terminal", enabled: true}
	redisCh := &recordingChannel{name: "redis", enabled: true, err: errors.New("down")}
	mn := NewMultiNotifier(0, terminal, redisCh)
	sig := fixtureSignal(t)
	ctx := context.Background()

	sent, err := mn.Deliver(ctx, sig, nil)
	if err == nil {
		t.Fatal("want error while redis is down")
	}
	if len(sent) != 1 || sent[0] != "terminal" {
		t.Errorf("sent = %v, want [terminal]", sent)
	}

	redisCh.err = nil
	sent, err = mn.Deliver(ctx, sig, sent)
	if err != nil {
		t.Fatal(err)
	}
	if len(sent) != 1 || sent[0] != "redis" {
		t.Errorf("sent = %v, want [redis]", sent)
	}
	if len(terminal.got) != 1 {
		t.Errorf("terminal got %d signals, want 1", len(terminal.got))
	}
}

func TestMultiNotifier_MinQuality(t *testing.T) {
	ch := &recordingChannel{name: "ok", enabled: true}
	sig := fixtureSignal(t)

	if err := NewMultiNotifier(sig.Pattern.QualityScore+1, ch).Publish(context.Background(), sig); err != nil {
		t.Fatal(err)
	}
	if len(ch.got) != 0 {
		t.Errorf("signal below the quality floor was delivered")
	}
	if err := NewMultiNotifier(sig.Pattern.QualityScore, ch).Publish(context.Background(), sig); err != nil {
		t.Fatal(err)
	}
	if len(ch.got) != 1 {
		t.Errorf("signal at the quality floor was not delivered")
	}
}

func TestSignal(t *testing.T) {
	sig := fixtureSignal(t)
	if sig.TargetPrice != 132 {
		t.Errorf("TargetPrice = %v, want 132", sig.TargetPrice)
	}
	if !strings.HasPrefix(sig.Key(), "ACME|bullish|1h|") {
		t.Errorf("Key() = %s", sig.Key())
	}
}

func TestTerminalChannel(t *testing.T) {
	var buf bytes.Buffer
	tc := NewTerminalChannel(&buf, false)

	sig := fixtureSignal(t)
	if err := tc.Publish(context.Background(), sig); err != nil {
		t.Fatal(err)
	}

	line := buf.String()
	for _, want := range []string{"BULL FLAG", "ACME", "1h", "q=100", "target=132.00", "2026-01-07 00:00"} {
		if !strings.Contains(line, want) {
			t.Errorf("output %q missing %q", line, want)
		}
	}
	if strings.Contains(line, "\x1b[") {
		t.Errorf("colour codes written with colour disabled: %q", line)
	}

	tc.SetEnabled(false)
	if tc.IsEnabled() {
		t.Error("channel still enabled")
	}
}

func TestRedisChannel_Keys(t *testing.T) {
	rc := NewRedisChannelWithClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), RedisOptions{})
	defer rc.Close()

	if rc.Name() != "redis" || !rc.IsEnabled() {
		t.Errorf("Name/IsEnabled = %s/%v", rc.Name(), rc.IsEnabled())
	}
	if got := rc.LastKey("ACME", "1h"); got != "flagscan:last:ACME:1h" {
		t.Errorf("LastKey = %s", got)
	}
	if rc.channel != "flagscan:signals" || rc.ttl != 24*time.Hour {
		t.Errorf("defaults = %s %v", rc.channel, rc.ttl)
	}
}

func TestRedisChannel_UnreachableServer(t *testing.T) {
	rc := NewRedisChannelWithClient(redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	}), RedisOptions{Prefix: "test:"})
	defer rc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	mn := NewMultiNotifier(0, rc)
	err := mn.Publish(ctx, fixtureSignal(t))
	if !apperrors.Is(err, apperrors.ErrPublishFailed) {
		t.Errorf("err = %v, want publish failure", err)
	}
	if err := rc.Ping(ctx); err == nil {
		t.Error("Ping succeeded against a closed port")
	}
}
