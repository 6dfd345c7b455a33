package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/nugget/herald/internal/command"
	"github.com/nugget/herald/internal/platform"
)

type sentMessage struct {
	channelID string
	content   string
}

type fakeGateway struct {
	communities []platform.Community
	sent        []sentMessage
	sendErrFor  map[string]error
	syncErr     error
	syncCalls   int
	closed      int
}

func (f *fakeGateway) Communities() []platform.Community {
	return f.communities
}

func (f *fakeGateway) SendMessage(ctx context.Context, channelID, content string, files []platform.File) error {
	if err := f.sendErrFor[channelID]; err != nil {
		return err
	}
	f.sent = append(f.sent, sentMessage{channelID: channelID, content: content})
	return nil
}

func (f *fakeGateway) RegisterCommands(ctx context.Context, specs []platform.CommandSpec) (int, error) {
	f.syncCalls++
	if f.syncErr != nil {
		return 0, f.syncErr
	}
	return len(specs), nil
}

func (f *fakeGateway) Close() error {
	f.closed++
	return nil
}

func textChannel(id, name string) platform.Channel {
	return platform.Channel{ID: id, Name: name, Type: platform.ChannelText, Sendable: true}
}

func testRegistry(t *testing.T, names ...string) *command.Registry {
	t.Helper()
	reg := command.New()
	for _, name := range names {
		err := reg.Register(command.Spec{
			Name:    name,
			Handler: func(ctx context.Context, inv *platform.Invocation, args command.Args, r command.Responder) error { return nil },
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	return reg
}

func newTestNotifier(t *testing.T, gw *fakeGateway, commands ...string) *Notifier {
	t.Helper()
	return NewNotifier(NotifierConfig{
		Gateway:  gw,
		Registry: testRegistry(t, commands...),
		Channel:  "log",
		Greeting: "good morning",
		Farewell: "goodbye",
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func readyEvent(communities ...platform.Community) platform.ReadyEvent {
	return platform.ReadyEvent{
		BotUser:     platform.User{ID: "bot", Name: "herald", Bot: true},
		Communities: communities,
	}
}

func TestHandleReadyGreetsEveryCommunity(t *testing.T) {
	gw := &fakeGateway{communities: []platform.Community{
		{ID: "g1", Name: "one", Channels: []platform.Channel{textChannel("c1", "log")}},
		{ID: "g2", Name: "two", Channels: []platform.Channel{textChannel("c2", "log")}},
	}}
	n := newTestNotifier(t, gw, "ping", "roll")

	n.HandleReady(context.Background(), readyEvent(gw.communities...))

	if n.State() != StateReady {
		t.Fatalf("state = %d, want StateReady", n.State())
	}
	if gw.syncCalls != 1 {
		t.Errorf("RegisterCommands called %d times, want 1", gw.syncCalls)
	}

	// Each community gets the greeting plus the sync notice.
	if len(gw.sent) != 4 {
		t.Fatalf("sent %d messages, want 4: %+v", len(gw.sent), gw.sent)
	}
	if gw.sent[0].channelID != "c1" || gw.sent[0].content != "good morning" {
		t.Errorf("first message = %+v, want greeting to c1", gw.sent[0])
	}
	if !strings.Contains(gw.sent[1].content, "2 commands") {
		t.Errorf("sync notice = %q, want a 2-command notice", gw.sent[1].content)
	}
	if gw.sent[2].channelID != "c2" {
		t.Errorf("third message went to %q, want c2", gw.sent[2].channelID)
	}
}

func TestHandleReadySkipsCommunityWithoutChannel(t *testing.T) {
	gw := &fakeGateway{communities: []platform.Community{
		{ID: "g1", Name: "one", Channels: []platform.Channel{textChannel("c1", "general")}},
		{ID: "g2", Name: "two", Channels: []platform.Channel{textChannel("c2", "log")}},
	}}
	n := newTestNotifier(t, gw, "ping")

	n.HandleReady(context.Background(), readyEvent(gw.communities...))

	for _, m := range gw.sent {
		if m.channelID == "c1" {
			t.Errorf("message sent to a community with no broadcast channel: %+v", m)
		}
	}
	if len(gw.sent) == 0 {
		t.Error("community two should still have been greeted")
	}
}

func TestHandleReadyIgnoresNonSendableChannel(t *testing.T) {
	gw := &fakeGateway{communities: []platform.Community{
		{ID: "g1", Name: "one", Channels: []platform.Channel{
			{ID: "c1", Name: "log", Type: platform.ChannelText, Sendable: false},
		}},
	}}
	n := newTestNotifier(t, gw, "ping")

	n.HandleReady(context.Background(), readyEvent(gw.communities...))

	if len(gw.sent) != 0 {
		t.Errorf("sent %d messages to a non-sendable channel, want 0", len(gw.sent))
	}
}

func TestHandleReadyIsolatesPerCommunityFailure(t *testing.T) {
	gw := &fakeGateway{
		communities: []platform.Community{
			{ID: "g1", Name: "one", Channels: []platform.Channel{textChannel("c1", "log")}},
			{ID: "g2", Name: "two", Channels: []platform.Channel{textChannel("c2", "log")}},
		},
		sendErrFor: map[string]error{"c1": errors.New("forbidden")},
	}
	n := newTestNotifier(t, gw, "ping")

	n.HandleReady(context.Background(), readyEvent(gw.communities...))

	if n.State() != StateReady {
		t.Fatalf("state = %d, want StateReady despite a community failure", n.State())
	}
	found := false
	for _, m := range gw.sent {
		if m.channelID == "c2" && m.content == "good morning" {
			found = true
		}
	}
	if !found {
		t.Error("community two was not greeted after community one failed")
	}
}

func TestHandleReadySurvivesSyncFailure(t *testing.T) {
	gw := &fakeGateway{
		communities: []platform.Community{
			{ID: "g1", Name: "one", Channels: []platform.Channel{textChannel("c1", "log")}},
		},
		syncErr: errors.New("rate limited"),
	}
	n := newTestNotifier(t, gw, "ping")

	n.HandleReady(context.Background(), readyEvent(gw.communities...))

	if n.State() != StateReady {
		t.Fatalf("state = %d, want StateReady despite sync failure", n.State())
	}
	// Greeting still goes out; the sync notice does not.
	if len(gw.sent) != 1 || gw.sent[0].content != "good morning" {
		t.Errorf("sent = %+v, want only the greeting", gw.sent)
	}
}

func TestShutdownSendsFarewellAndCloses(t *testing.T) {
	gw := &fakeGateway{communities: []platform.Community{
		{ID: "g1", Name: "one", Channels: []platform.Channel{textChannel("c1", "log")}},
	}}
	n := newTestNotifier(t, gw, "ping")
	n.HandleReady(context.Background(), readyEvent(gw.communities...))

	gw.sent = nil
	n.Shutdown(context.Background())

	if n.State() != StateClosed {
		t.Fatalf("state = %d, want StateClosed", n.State())
	}
	if len(gw.sent) != 1 || gw.sent[0].content != "goodbye" {
		t.Errorf("sent = %+v, want the farewell", gw.sent)
	}
	if gw.closed != 1 {
		t.Errorf("Close called %d times, want 1", gw.closed)
	}
}

func TestShutdownIdempotent(t *testing.T) {
	gw := &fakeGateway{communities: []platform.Community{
		{ID: "g1", Name: "one", Channels: []platform.Channel{textChannel("c1", "log")}},
	}}
	n := newTestNotifier(t, gw, "ping")
	n.HandleReady(context.Background(), readyEvent(gw.communities...))

	gw.sent = nil
	n.Shutdown(context.Background())
	n.Shutdown(context.Background())
	n.Shutdown(context.Background())

	if len(gw.sent) != 1 {
		t.Errorf("farewell sent %d times, want 1", len(gw.sent))
	}
	if gw.closed != 1 {
		t.Errorf("Close called %d times, want 1", gw.closed)
	}
}

func TestShutdownBeforeReadyDefers(t *testing.T) {
	gw := &fakeGateway{communities: []platform.Community{
		{ID: "g1", Name: "one", Channels: []platform.Channel{textChannel("c1", "log")}},
	}}
	n := newTestNotifier(t, gw, "ping")

	n.Shutdown(context.Background())

	if n.State() != StateStarting {
		t.Fatalf("state = %d, want StateStarting while deferred", n.State())
	}
	if gw.closed != 0 {
		t.Fatal("gateway closed before ready")
	}

	// Ready should greet, then immediately run the deferred shutdown.
	n.HandleReady(context.Background(), readyEvent(gw.communities...))

	if n.State() != StateClosed {
		t.Fatalf("state = %d, want StateClosed after deferred shutdown", n.State())
	}
	if gw.closed != 1 {
		t.Errorf("Close called %d times, want 1", gw.closed)
	}

	var contents []string
	for _, m := range gw.sent {
		contents = append(contents, m.content)
	}
	if len(contents) < 2 || contents[0] != "good morning" || contents[len(contents)-1] != "goodbye" {
		t.Errorf("messages = %v, want greeting first and farewell last", contents)
	}
}

func TestDuplicateReadyIgnored(t *testing.T) {
	gw := &fakeGateway{communities: []platform.Community{
		{ID: "g1", Name: "one", Channels: []platform.Channel{textChannel("c1", "log")}},
	}}
	n := newTestNotifier(t, gw, "ping")

	ev := readyEvent(gw.communities...)
	n.HandleReady(context.Background(), ev)
	before := len(gw.sent)

	n.HandleReady(context.Background(), ev)

	if len(gw.sent) != before {
		t.Errorf("second ready sent %d extra messages, want 0", len(gw.sent)-before)
	}
	if gw.syncCalls != 1 {
		t.Errorf("RegisterCommands called %d times, want 1", gw.syncCalls)
	}
}
