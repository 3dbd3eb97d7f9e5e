package ntp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientQueryAgainstLoopbackServer(t *testing.T) {
	now := time.Date(2026, time.July, 31, 12, 0, 0, 0, time.UTC)
	srv := &Server{
		Clock: StaticClock{
			StratumValue:     1,
			ReferenceIDValue: FourCC("GPS"),
			PollValue:        6,
			PrecisionValue:   -1,
			NowFunc:          func() time.Time { return now },
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var gotAnswer AnswerEvent
	answered := make(chan struct{}, 1)
	srv.AddAnswerListener(func(ev *AnswerEvent) {
		gotAnswer = *ev
		answered <- struct{}{}
	})

	conn, err := listenReusePort("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	addr := conn.LocalAddr().String()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.RunOnConn(ctx, conn)
	}()

	c := &Client{Timeout: 2 * time.Second}
	answer, err := c.Query(context.Background(), addr)
	require.NoError(t, err)

	assert.EqualValues(t, 1, answer.Packet.Stratum)
	assert.Equal(t, ModeServer, answer.Packet.Mode())
	assert.EqualValues(t, 6, answer.Packet.Poll)
	assert.EqualValues(t, -1, answer.Packet.Precision)
	assert.EqualValues(t, FourCC("GPS"), answer.Packet.ReferenceID)
	assert.Less(t, answer.Delay, time.Second)
	assert.Less(t, absDuration(answer.Offset), time.Second)

	select {
	case <-answered:
	case <-time.After(time.Second):
		t.Fatal("server did not fire OnAnswer")
	}
	assert.NotNil(t, gotAnswer.Request)
	assert.EqualValues(t, 1, gotAnswer.Response.Stratum)

	cancel()
	<-done
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// TestServerHonorsInjectedRootDelayAndDispersion covers maintainer
// scenario 2: stratum/poll/precision/root delay/root dispersion/
// reference timestamp are all sourced from the injected ClockSource,
// not hardcoded.
func TestServerHonorsInjectedRootDelayAndDispersion(t *testing.T) {
	refTime := time.Date(2026, time.July, 31, 11, 59, 0, 0, time.UTC)
	srv := &Server{
		Clock: StaticClock{
			StratumValue:        3,
			PollValue:           6,
			PrecisionValue:      -1,
			RootDelayValue:      time.Second,
			RootDispersionValue: time.Second,
			ReferenceIDValue:    FourCC("LOCL"),
			ReferenceTimeValue:  refTime,
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	conn, err := listenReusePort("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	addr := conn.LocalAddr().String()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.RunOnConn(ctx, conn)
	}()

	c := &Client{Timeout: 2 * time.Second}
	answer, err := c.Query(context.Background(), addr)
	require.NoError(t, err)

	assert.EqualValues(t, 3, answer.Packet.Stratum)
	assert.EqualValues(t, 6, answer.Packet.Poll)
	assert.EqualValues(t, -1, answer.Packet.Precision)
	assert.Equal(t, time.Second, answer.RootDelay)
	assert.Equal(t, time.Second, answer.RootDispersion)

	refGot, err := ToTime(Timestamp{answer.Packet.ReferenceSec, answer.Packet.ReferenceFrac}, answer.ReceivedAt)
	require.NoError(t, err)
	assert.WithinDuration(t, refTime, refGot, time.Second)

	cancel()
	<-done
}

// TestServerRequestDropSuppressesResponse covers the "drop either"
// half of the mutate/drop hook contract: an OnRequest listener that
// sets Drop must prevent any response from being sent.
func TestServerRequestDropSuppressesResponse(t *testing.T) {
	srv := &Server{Clock: StaticClock{StratumValue: 1}}
	srv.AddRequestListener(func(ev *RequestEvent) { ev.Drop = true })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	conn, err := listenReusePort("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	addr := conn.LocalAddr().String()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.RunOnConn(ctx, conn)
	}()

	c := &Client{Timeout: 300 * time.Millisecond}
	_, err = c.Query(context.Background(), addr)
	assert.Error(t, err)

	cancel()
	<-done
}

// TestServerAnswerDropSuppressesSend covers the other half: an
// OnAnswer listener firing before the write, with the power to
// suppress it by setting Drop.
func TestServerAnswerDropSuppressesSend(t *testing.T) {
	srv := &Server{Clock: StaticClock{StratumValue: 1}}
	srv.AddAnswerListener(func(ev *AnswerEvent) { ev.Drop = true })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	conn, err := listenReusePort("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	addr := conn.LocalAddr().String()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.RunOnConn(ctx, conn)
	}()

	c := &Client{Timeout: 300 * time.Millisecond}
	_, err = c.Query(context.Background(), addr)
	assert.Error(t, err)

	cancel()
	<-done
}

// TestBuildMulticastAnswerShape checks the multicast branch directly:
// mode Broadcast, version 4, poll 6, originate/receive blanked.
func TestBuildMulticastAnswerShape(t *testing.T) {
	srv := &Server{
		Clock: StaticClock{
			StratumValue:     2,
			PrecisionValue:   -3,
			ReferenceIDValue: FourCC("GPS"),
		},
	}
	req := Packet{Settings: BuildSettings(LeapNoWarning, 4, ModeClient), TransmitSec: 123, TransmitFrac: 456}

	resp := srv.buildMulticastAnswer(req, time.Now())

	assert.Equal(t, ModeBroadcast, resp.Mode())
	assert.EqualValues(t, 4, resp.Version())
	assert.EqualValues(t, 6, resp.Poll)
	assert.EqualValues(t, 2, resp.Stratum)
	assert.Zero(t, resp.OriginSec)
	assert.Zero(t, resp.OriginFrac)
	assert.Zero(t, resp.ReceiveSec)
	assert.Zero(t, resp.ReceiveFrac)
}
