package modmail

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modmail-bot/internal/archive"
	"modmail-bot/internal/clock"
	"modmail-bot/internal/pager"
	"modmail-bot/internal/ticket"
)

var (
	t0    = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	user1 = User{ID: "U1", Tag: "U1", Name: "Alice"}
	user2 = User{ID: "U2", Tag: "bob#0002", Name: "bob"}
	staff = User{ID: "S1", Tag: "mod#0001", Name: "mod"}
	guest = User{ID: "G1", Tag: "guest#0003", Name: "guest"}
)

type harness struct {
	router   *Router
	registry *ticket.Registry
	platform *fakePlatform
	clock    *clock.FakeClock
	archive  *memArchive
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	return restartedHarness(t, cfg, ticket.NewRegistry(nil), clock.Fake(t0))
}

// restartedHarness builds a router over existing registry state, as the
// bot does after loading a snapshot.
func restartedHarness(t *testing.T, cfg Config, registry *ticket.Registry, clk *clock.FakeClock) *harness {
	t.Helper()
	h := &harness{
		registry: registry,
		platform: newFakePlatform(),
		clock:    clk,
		archive:  &memArchive{},
	}
	h.router = New(Options{
		Registry: h.registry,
		Platform: h.platform,
		Archive:  h.archive,
		Clock:    h.clock,
		Config:   cfg,
	})
	t.Cleanup(h.router.Close)
	return h
}

func (h *harness) dm(t *testing.T, u User, text string) {
	t.Helper()
	require.NoError(t, h.router.Dispatch(context.Background(), DirectMessage{User: u, Text: text}))
}

func (h *harness) say(t *testing.T, channelID string, actor User, isStaff bool, text string) {
	t.Helper()
	require.NoError(t, h.router.Dispatch(context.Background(), ChannelMessage{
		ChannelID:    channelID,
		Actor:        actor,
		Text:         text,
		ActorIsStaff: isStaff,
	}))
}

func (h *harness) transcript(t *testing.T, channelID string) []ticket.Entry {
	t.Helper()
	_, tk, ok := h.registry.Lookup(channelID)
	require.True(t, ok, "channel %s not registered", channelID)
	return tk.Messages
}

func TestFirstDirectMessageOpensTicket(t *testing.T) {
	h := newHarness(t, Config{Category: "modmails"})

	h.dm(t, user1, "hello")

	require.Equal(t, 1, h.platform.provisionCount())
	assert.Equal(t, ChannelSpec{Name: "ticket-alice", Category: "modmails", Topic: "Modmail ticket for U1 (U1)"}, h.platform.provisioned[0])

	open, ok := h.registry.FindOpenTicket("U1")
	require.True(t, ok)
	require.Len(t, open.Messages, 1)
	assert.Equal(t, "U1", open.Messages[0].Author)
	assert.Equal(t, "hello", open.Messages[0].Content)
	assert.Equal(t, t0, open.Messages[0].Timestamp)

	assert.Equal(t, []string{
		"📬 New ticket from <@U1> (**U1**)",
		"**U1:** hello",
	}, h.platform.channelTexts(open.ChannelID))
	assert.Equal(t, []string{msgSentToStaff}, h.platform.directTexts("U1"))
	assert.Equal(t, PhaseOpen, h.router.Lifecycle().Phase(open.ChannelID))
}

func TestFollowUpMessageRelaysIntoExistingTicket(t *testing.T) {
	h := newHarness(t, Config{})

	h.dm(t, user1, "hello")
	h.clock.Advance(time.Second)
	h.dm(t, user1, "are you there?")

	assert.Equal(t, 1, h.platform.provisionCount())
	entries := h.transcript(t, "chan-1")
	require.Len(t, entries, 2)
	assert.Equal(t, "are you there?", entries[1].Content)
	assert.Contains(t, h.platform.channelTexts("chan-1"), "New message from **U1**: are you there?")
}

func TestStaffReplyIsDirectMessaged(t *testing.T) {
	h := newHarness(t, Config{})
	h.dm(t, user1, "hello")

	h.say(t, "chan-1", staff, true, "!r welcome back")

	assert.Contains(t, h.platform.directTexts("U1"), "Staff Reply: welcome back")
	entries := h.transcript(t, "chan-1")
	require.Len(t, entries, 2)
	assert.Equal(t, ticket.Entry{Author: "mod#0001", Content: "!r welcome back", Timestamp: t0}, entries[1])
	assert.Contains(t, h.platform.channelTexts("chan-1"), msgReplySent)
}

func TestReplyDeliveryFailureIsReportedInChannel(t *testing.T) {
	h := newHarness(t, Config{})
	h.dm(t, user1, "hello")
	h.platform.unreachable["U1"] = true

	h.say(t, "chan-1", staff, true, "!r are you still there?")

	assert.Contains(t, h.platform.channelTexts("chan-1"), msgDeliveryFailed)
	entries := h.transcript(t, "chan-1")
	assert.Equal(t, "!r are you still there?", entries[len(entries)-1].Content)
}

func TestReplyWithoutTextShowsUsage(t *testing.T) {
	h := newHarness(t, Config{})
	h.dm(t, user1, "hello")

	h.say(t, "chan-1", staff, true, "!r")

	assert.Contains(t, h.platform.channelTexts("chan-1"), msgReplyUsage)
	assert.Equal(t, []string{msgSentToStaff}, h.platform.directTexts("U1"))
}

func TestNonStaffCommandIsRejected(t *testing.T) {
	h := newHarness(t, Config{})
	h.dm(t, user1, "hello")

	h.say(t, "chan-1", guest, false, "!c")

	assert.Contains(t, h.platform.channelTexts("chan-1"), msgUnauthorized)
	assert.Equal(t, PhaseOpen, h.router.Lifecycle().Phase("chan-1"))
	assert.Equal(t, 0, h.clock.PendingCount(), "no deletion scheduled")
	entries := h.transcript(t, "chan-1")
	assert.Equal(t, "!c", entries[len(entries)-1].Content)

	_, ok := h.registry.FindOpenTicket("U1")
	assert.True(t, ok)
}

func TestCloseSchedulesDeletionAndRetires(t *testing.T) {
	h := newHarness(t, Config{DeleteDelay: 5 * time.Second})
	h.dm(t, user1, "hello")
	h.clock.Advance(time.Minute)

	h.say(t, "chan-1", staff, true, "!c")

	_, tk, _ := h.registry.Lookup("chan-1")
	require.True(t, tk.Closed())
	assert.Equal(t, "mod#0001", tk.ClosedBy)
	assert.Equal(t, t0.Add(time.Minute), *tk.ClosedAt)
	assert.Equal(t, PhaseClosing, h.router.Lifecycle().Phase("chan-1"))
	assert.Equal(t, 1, h.clock.PendingCount())
	assert.Contains(t, h.platform.directTexts("U1"), closedDirectNotice)

	h.clock.Advance(4 * time.Second)
	assert.Empty(t, h.platform.deletedChannels())

	h.clock.Advance(time.Second)
	assert.Equal(t, []string{"chan-1"}, h.platform.deletedChannels())
	assert.Equal(t, PhaseDeleted, h.router.Lifecycle().Phase("chan-1"))

	_, ok := h.registry.FindOwner("chan-1")
	assert.False(t, ok)
	history := h.registry.Tickets("U1")
	require.Len(t, history, 1)
	assert.Equal(t, "mod#0001", history[0].ClosedBy)
	assert.Equal(t, []string{"hello", "!c"}, contents(history[0].Messages))
}

func TestCloseTwiceIsIdempotent(t *testing.T) {
	h := newHarness(t, Config{})
	h.dm(t, user1, "hello")

	h.say(t, "chan-1", staff, true, "!c")
	_, first, _ := h.registry.Lookup("chan-1")

	h.clock.Advance(time.Second)
	other := User{ID: "S2", Tag: "othermod#0002"}
	h.say(t, "chan-1", other, true, "!c")
	_, second, _ := h.registry.Lookup("chan-1")

	assert.Equal(t, first.ClosedBy, second.ClosedBy)
	assert.Equal(t, *first.ClosedAt, *second.ClosedAt)
	assert.Equal(t, 1, h.clock.PendingCount(), "deletion scheduled once")

	h.clock.Advance(DefaultDeleteDelay)
	assert.Equal(t, []string{"chan-1"}, h.platform.deletedChannels())
}

func TestConcurrentCloseSchedulesOnce(t *testing.T) {
	h := newHarness(t, Config{})
	h.dm(t, user1, "hello")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.router.Lifecycle().Close(context.Background(), "chan-1", staff)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, h.clock.PendingCount())
}

func TestMessagesAfterDeletionOpenNewTicket(t *testing.T) {
	h := newHarness(t, Config{})
	h.dm(t, user1, "hello")
	h.say(t, "chan-1", staff, true, "!c")
	h.clock.Advance(DefaultDeleteDelay)

	h.say(t, "chan-1", staff, true, "!r too late")
	assert.NotContains(t, h.platform.directTexts("U1"), "Staff Reply: too late")

	h.dm(t, user1, "one more thing")
	open, ok := h.registry.FindOpenTicket("U1")
	require.True(t, ok)
	assert.Equal(t, "chan-2", open.ChannelID)
	assert.Len(t, h.registry.Tickets("U1"), 2)
}

func TestDirectMessageWhileClosingOpensNewTicket(t *testing.T) {
	h := newHarness(t, Config{})
	h.dm(t, user1, "hello")
	h.say(t, "chan-1", staff, true, "!c")

	h.dm(t, user1, "wait, one more question")

	open, ok := h.registry.FindOpenTicket("U1")
	require.True(t, ok)
	assert.Equal(t, "chan-2", open.ChannelID)

	h.clock.Advance(DefaultDeleteDelay)
	_, ok = h.registry.FindOwner("chan-2")
	assert.True(t, ok, "reaping the old channel leaves the new one alone")
}

func TestReplyIntoClosingTicketIsRefused(t *testing.T) {
	h := newHarness(t, Config{})
	h.dm(t, user1, "hello")
	h.say(t, "chan-1", staff, true, "!c")

	h.say(t, "chan-1", staff, true, "!r one last thing")

	assert.Contains(t, h.platform.channelTexts("chan-1"), msgTicketClosed)
	assert.NotContains(t, h.platform.directTexts("U1"), "Staff Reply: one last thing")
}

func TestConcurrentFirstMessagesOpenOneTicket(t *testing.T) {
	h := newHarness(t, Config{})
	gate := make(chan struct{})
	h.platform.provisionGate = gate

	const n = 5
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := h.router.Dispatch(context.Background(), DirectMessage{User: user1, Text: fmt.Sprintf("msg %d", i)})
			assert.NoError(t, err)
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, 1, h.platform.provisionCount())
	history := h.registry.Tickets("U1")
	require.Len(t, history, 1)
	assert.Len(t, history[0].Messages, n)
	assert.False(t, history[0].Closed())
}

func TestConflictDuringProvisioningFoldsIntoExistingTicket(t *testing.T) {
	h := newHarness(t, Config{})
	gate := make(chan struct{})
	hit := make(chan struct{}, 1)
	h.platform.provisionGate = gate
	h.platform.provisionHit = hit

	done := make(chan error, 1)
	go func() {
		done <- h.router.Dispatch(context.Background(), DirectMessage{User: user1, Text: "hello"})
	}()

	<-hit
	_, err := h.registry.CreateTicket("U1", "manual")
	require.NoError(t, err)
	close(gate)
	require.NoError(t, <-done)

	assert.Equal(t, []string{"chan-1"}, h.platform.deletedChannels())
	assert.Equal(t, []string{"hello"}, contents(h.transcript(t, "manual")))
	assert.Len(t, h.registry.Tickets("U1"), 1)
}

func TestProvisioningFailureCreatesNothing(t *testing.T) {
	h := newHarness(t, Config{LogChannelID: "staff-log"})
	h.platform.provisionErr = errors.New("missing permissions")

	err := h.router.Dispatch(context.Background(), DirectMessage{User: user1, Text: "hello"})

	var perr *ProvisioningError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "U1", perr.User)
	assert.Empty(t, h.registry.Tickets("U1"))
	_, ok := h.registry.FindOpenTicket("U1")
	assert.False(t, ok)
	require.Len(t, h.platform.channelTexts("staff-log"), 1)
	assert.Empty(t, h.platform.directTexts("U1"))
}

func TestStaleMappingReprovisions(t *testing.T) {
	h := newHarness(t, Config{})
	h.dm(t, user1, "hello")
	h.platform.gone["chan-1"] = true

	h.dm(t, user1, "hello?")

	open, ok := h.registry.FindOpenTicket("U1")
	require.True(t, ok)
	assert.Equal(t, "chan-2", open.ChannelID)
	assert.Equal(t, []string{"hello?"}, contents(open.Messages))

	_, ok = h.registry.FindOwner("chan-1")
	assert.False(t, ok)
	_, old, _ := h.registry.Lookup("chan-1")
	assert.Equal(t, SystemActor, old.ClosedBy)
	assert.Equal(t, []string{"hello"}, contents(old.Messages), "dead channel keeps only what staff saw")

	mirrored := 0
	for _, r := range h.archive.records {
		if r.Content == "hello?" {
			mirrored++
			assert.Equal(t, "chan-2", r.ChannelID)
		}
	}
	assert.Equal(t, 1, mirrored)
}

func TestResumeDeletesTicketsClosedBeforeRestart(t *testing.T) {
	h := newHarness(t, Config{DeleteDelay: 5 * time.Second})
	h.dm(t, user1, "hello")
	h.dm(t, user2, "hi")
	h.say(t, "chan-1", staff, true, "!c")
	snap := h.registry.Snapshot()

	restored := ticket.NewRegistry(nil)
	restored.Restore(snap)
	h2 := restartedHarness(t, Config{DeleteDelay: 5 * time.Second}, restored, clock.Fake(t0.Add(2*time.Second)))

	assert.Equal(t, 1, h2.router.Lifecycle().Resume())
	assert.Equal(t, 0, h2.router.Lifecycle().Resume(), "already pending")
	assert.Equal(t, PhaseClosing, h2.router.Lifecycle().Phase("chan-1"))

	h2.clock.Advance(2 * time.Second)
	assert.Empty(t, h2.platform.deletedChannels())

	h2.clock.Advance(time.Second)
	assert.Equal(t, []string{"chan-1"}, h2.platform.deletedChannels())
	assert.Equal(t, PhaseDeleted, h2.router.Lifecycle().Phase("chan-1"))
	assert.Equal(t, PhaseOpen, h2.router.Lifecycle().Phase("chan-2"))
}

func TestResumeOverdueDeletionRunsAtOnce(t *testing.T) {
	h := newHarness(t, Config{})
	h.dm(t, user1, "hello")
	h.say(t, "chan-1", staff, true, "!c")

	restored := ticket.NewRegistry(nil)
	restored.Restore(h.registry.Snapshot())
	h2 := restartedHarness(t, Config{}, restored, clock.Fake(t0.Add(time.Hour)))

	assert.Equal(t, 1, h2.router.Lifecycle().Resume())
	assert.Equal(t, []string{"chan-1"}, h2.platform.deletedChannels())
	_, ok := restored.FindOwner("chan-1")
	assert.False(t, ok)
}

func TestRouterCloseCancelsPendingDeletion(t *testing.T) {
	h := newHarness(t, Config{})
	h.dm(t, user1, "hello")
	h.say(t, "chan-1", staff, true, "!c")
	require.Equal(t, 1, h.clock.PendingCount())

	h.router.Close()
	assert.Equal(t, 0, h.clock.PendingCount())

	h.clock.Advance(time.Minute)
	assert.Empty(t, h.platform.deletedChannels())
	assert.Equal(t, PhaseClosing, h.router.Lifecycle().Phase("chan-1"), "left for Resume on the next start")
}

func TestLongDirectMessagesAreSplit(t *testing.T) {
	h := newHarness(t, Config{})
	long := strings.Repeat("x", MaxMessageRunes)

	h.dm(t, user1, long)
	h.dm(t, user1, long)

	texts := h.platform.channelTexts("chan-1")
	for _, text := range texts {
		assert.LessOrEqual(t, utf8.RuneCountInString(text), MaxMessageRunes)
	}
	joined := strings.Join(texts, "")
	assert.Contains(t, joined, "**U1:** "+long)
	assert.Contains(t, joined, "New message from **U1**: "+long)
	assert.Equal(t, []string{long, long}, contents(h.transcript(t, "chan-1")))
}

func TestLongStaffReplyIsSplit(t *testing.T) {
	h := newHarness(t, Config{})
	h.dm(t, user1, "hello")

	h.say(t, "chan-1", staff, true, "!r "+strings.Repeat("y", MaxMessageRunes-3))

	var replies []string
	for _, text := range h.platform.directTexts("U1") {
		if text != msgSentToStaff {
			replies = append(replies, text)
		}
	}
	require.Len(t, replies, 2)
	assert.Equal(t, replyPrefix+strings.Repeat("y", MaxMessageRunes-3), strings.Join(replies, ""))
	assert.Contains(t, h.platform.channelTexts("chan-1"), msgReplySent)
}

func TestArchiveUsesStoredTimestamp(t *testing.T) {
	h := newHarness(t, Config{})
	h.dm(t, user1, "hello")
	later := t0.Add(time.Hour)
	_, err := h.registry.AppendMessage("chan-1", ticket.Entry{Author: "mod#0001", Content: "imported", Timestamp: later})
	require.NoError(t, err)

	h.dm(t, user1, "again")

	entries := h.transcript(t, "chan-1")
	last := h.archive.records[len(h.archive.records)-1]
	assert.Equal(t, "again", last.Content)
	assert.Equal(t, entries[len(entries)-1].Timestamp, last.Timestamp)
	assert.Equal(t, later, last.Timestamp)
}

func TestChannelDeletedOutsideCloseFlow(t *testing.T) {
	h := newHarness(t, Config{})
	h.dm(t, user1, "hello")

	h.router.ChannelDeleted("chan-1")
	h.router.ChannelDeleted("chan-1")

	assert.Equal(t, PhaseDeleted, h.router.Lifecycle().Phase("chan-1"))
	_, tk, _ := h.registry.Lookup("chan-1")
	assert.Equal(t, SystemActor, tk.ClosedBy)

	h.say(t, "chan-1", staff, true, "!r hello")
	assert.Empty(t, h.platform.channelTexts("chan-1")[2:])
}

func TestUntrackedChannelIsIgnored(t *testing.T) {
	h := newHarness(t, Config{})

	h.say(t, "general", staff, true, "!c")
	h.say(t, "general", guest, false, "hello world")

	assert.Empty(t, h.platform.channelTexts("general"))
	assert.Empty(t, h.archive.records)
	assert.Equal(t, PhaseUnknown, h.router.Lifecycle().Phase("general"))
}

func TestNotesAreRecordedNotRelayed(t *testing.T) {
	h := newHarness(t, Config{})
	h.dm(t, user1, "hello")
	before := len(h.platform.channelTexts("chan-1"))

	h.say(t, "chan-1", staff, true, "internal: looks like a billing issue")
	h.say(t, "chan-1", guest, false, "just lurking")

	assert.Equal(t, []string{"hello", "internal: looks like a billing issue", "just lurking"}, contents(h.transcript(t, "chan-1")))
	assert.Len(t, h.platform.channelTexts("chan-1"), before)
	assert.Equal(t, []string{msgSentToStaff}, h.platform.directTexts("U1"))
}

func TestCannedNotices(t *testing.T) {
	h := newHarness(t, Config{})
	h.dm(t, user1, "hello")

	h.say(t, "chan-1", staff, true, "  Awaiting Response ")
	h.say(t, "chan-1", staff, true, "GREETING")
	h.say(t, "chan-1", guest, false, "greeting")

	assert.Equal(t, []string{
		msgSentToStaff,
		DefaultCannedNotices[0].Text,
		DefaultCannedNotices[1].Text,
	}, h.platform.directTexts("U1"))
	assert.Contains(t, h.platform.channelTexts("chan-1"), msgUnauthorized)
}

func TestConfiguredCannedNoticesReplaceDefaults(t *testing.T) {
	h := newHarness(t, Config{CannedNotices: []CannedNotice{{Phrase: "resolved?", Text: "Is your issue resolved?"}}})
	h.dm(t, user1, "hello")

	h.say(t, "chan-1", staff, true, "greeting")
	h.say(t, "chan-1", staff, true, "Resolved?")

	assert.Equal(t, []string{msgSentToStaff, "Is your issue resolved?"}, h.platform.directTexts("U1"))
}

func TestShowLogsSendsPagesToRequester(t *testing.T) {
	h := newHarness(t, Config{PageTimeout: time.Minute})
	h.dm(t, user1, "hello")

	h.say(t, "chan-1", staff, true, "!logs")

	require.Len(t, h.platform.pageRequests, 1)
	req := h.platform.pageRequests[0]
	assert.Equal(t, "S1", req.To)
	pages := pager.Build("U1", h.registry.Tickets("U1"), pager.DefaultChunk)
	assert.Equal(t, pager.Render(pages[0]), req.Text)
	assert.Contains(t, h.platform.channelTexts("chan-1"), msgLogsSent)

	view := h.platform.views[0]
	h.clock.WaitForTimers(1)
	view.signals <- pager.Forward
	assert.Equal(t, pager.Render(pages[0]), <-view.updates)

	h.clock.Advance(time.Minute)
	<-view.closed
}

func TestShowLogsForOtherUser(t *testing.T) {
	h := newHarness(t, Config{})
	h.dm(t, user1, "hello")
	h.dm(t, User{ID: "123", Tag: "carol", Name: "carol"}, "hey")

	h.say(t, "chan-1", staff, true, "!logs <@!123>")
	require.Len(t, h.platform.pageRequests, 1)
	assert.Contains(t, h.platform.pageRequests[0].Text, "hey")
	assert.Contains(t, h.platform.pageRequests[0].Text, "<#chan-2>")

	h.say(t, "chan-1", staff, true, "!logs 999")
	assert.Contains(t, h.platform.channelTexts("chan-1"), "📭 No logs found for <@999>.")

	h.say(t, "chan-1", staff, true, "!logs someone")
	assert.Contains(t, h.platform.channelTexts("chan-1"), msgLogsUsage)
	assert.Len(t, h.platform.pageRequests, 1)
}

func TestShowLogsUndeliverable(t *testing.T) {
	h := newHarness(t, Config{})
	h.dm(t, user1, "hello")
	h.platform.pagesErr = &DeliveryError{User: "S1", Err: errors.New("dms closed")}

	h.say(t, "chan-1", staff, true, "!logs")

	assert.Contains(t, h.platform.channelTexts("chan-1"), msgLogsUndelivered)
}

func TestShowLogsFromStaffLogChannel(t *testing.T) {
	h := newHarness(t, Config{LogChannelID: "staff-log"})
	h.dm(t, User{ID: "42", Tag: "dave", Name: "dave"}, "help")

	h.say(t, "staff-log", guest, false, "!logs <@42>")
	assert.Contains(t, h.platform.channelTexts("staff-log"), msgUnauthorized)

	h.say(t, "staff-log", staff, true, "!logs")
	assert.Contains(t, h.platform.channelTexts("staff-log"), msgLogsUsage)

	h.say(t, "staff-log", staff, true, "!logs <@42>")
	require.Len(t, h.platform.pageRequests, 1)
	assert.Equal(t, "S1", h.platform.pageRequests[0].To)

	h.say(t, "staff-log", staff, true, "just chatting")
	_, tk, _ := h.registry.Lookup("chan-1")
	assert.Equal(t, []string{"help"}, contents(tk.Messages), "log channel traffic is not a transcript")
}

func TestNewTicketNotifiesStaffLog(t *testing.T) {
	h := newHarness(t, Config{LogChannelID: "staff-log"})
	h.dm(t, user2, "my account is locked")

	texts := h.platform.channelTexts("staff-log")
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "**From:** bob#0002 (`U2`)")
	assert.Contains(t, texts[0], "<#chan-1>")
	assert.Contains(t, texts[0], "my account is locked")
}

func TestTranscriptOrderFollowsArrival(t *testing.T) {
	h := newHarness(t, Config{})
	h.dm(t, user1, "m0")
	for i := 1; i < 6; i++ {
		h.clock.Advance(time.Second)
		if i%2 == 0 {
			h.dm(t, user1, fmt.Sprintf("m%d", i))
		} else {
			h.say(t, "chan-1", staff, true, fmt.Sprintf("m%d", i))
		}
	}

	entries := h.transcript(t, "chan-1")
	assert.Equal(t, []string{"m0", "m1", "m2", "m3", "m4", "m5"}, contents(entries))
	for i := 1; i < len(entries); i++ {
		assert.False(t, entries[i].Timestamp.Before(entries[i-1].Timestamp))
	}
}

func TestArchiveMirrorsTranscript(t *testing.T) {
	h := newHarness(t, Config{})
	h.dm(t, user1, "hello")
	h.say(t, "chan-1", staff, true, "!r hi")
	h.say(t, "chan-1", staff, true, "note to self")
	h.say(t, "chan-1", staff, true, "greeting")
	h.say(t, "chan-1", staff, true, "!c")

	var kinds []archive.Kind
	for _, r := range h.archive.records {
		assert.Equal(t, "U1", r.UserID)
		assert.Equal(t, "chan-1", r.ChannelID)
		kinds = append(kinds, r.Kind)
	}
	assert.Equal(t, []archive.Kind{
		archive.KindIncoming,
		archive.KindReply,
		archive.KindNote,
		archive.KindNotice,
		archive.KindCommand,
	}, kinds)
}

func TestChannelName(t *testing.T) {
	cases := map[string]User{
		"ticket-alice":       {ID: "1", Name: "Alice"},
		"ticket-john-doe":    {ID: "2", Name: "John  Doe!!"},
		"ticket-3":           {ID: "3", Name: "!!!"},
		"ticket-mod-0001":    {ID: "4", Tag: "mod#0001"},
		"ticket-under_score": {ID: "5", Name: "under_score"},
	}
	for want, u := range cases {
		assert.Equal(t, want, channelName(u))
	}
}

func contents(entries []ticket.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Content)
	}
	return out
}
