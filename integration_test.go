// Cross-package scenarios from the protocol's testable properties: a
// real sender driving a real receiver over loopback UDP, with
// transport.Lossy standing in for network loss where a scenario calls
// for it. Exercises internal/sender, internal/receiver, internal/codec,
// and internal/transport together the way a single in-package test
// cannot.
package urft_test

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/phuwit/urft/internal/config"
	"github.com/phuwit/urft/internal/receiver"
	"github.com/phuwit/urft/internal/sender"
	"github.com/phuwit/urft/internal/transport"
)

// withFastTimers shrinks the poll/silence timers for the duration of one
// test, since the compiled-in defaults (a 2s receiver poll, a 10s outer
// silence deadline) would make every scenario take 10+ seconds otherwise.
// The silence deadline stays well above runTransfer's 200ms loss timeout:
// a dropped segment is retransmitted only after its deadline passes and the
// sender's blocking receive returns, and the receiver must still be
// listening by then.
func withFastTimers(t *testing.T) {
	t.Helper()
	origPoll := config.ConsecutivePacketsTimeout
	origNulls := config.ConnectionEndNullsCount
	origSilence := config.OuterSilenceTimeout
	config.ConsecutivePacketsTimeout = 50 * time.Millisecond
	config.ConnectionEndNullsCount = 4
	config.OuterSilenceTimeout = 1 * time.Second
	t.Cleanup(func() {
		config.ConsecutivePacketsTimeout = origPoll
		config.ConnectionEndNullsCount = origNulls
		config.OuterSilenceTimeout = origSilence
	})
}

// runTransfer starts a receiver goroutine bound to loopback, points a
// sender at it, and waits for both to finish.
func runTransfer(t *testing.T, srcPath, outDir string, lossy *transport.DropPolicy) receiver.Result {
	t.Helper()

	rep, err := transport.Listen("127.0.0.1", 0)
	require.NoError(t, err)
	recvAddr := rep.LocalAddr()

	recvCtx, recvCancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(recvCancel)

	rv := receiver.New(rep, outDir)
	resultCh := make(chan receiver.Result, 1)
	errCh := make(chan error, 1)
	go func() {
		res, err := rv.Receive(recvCtx)
		resultCh <- res
		errCh <- err
	}()

	sep, err := transport.Dial(recvAddr.(*net.UDPAddr).IP.String(), recvAddr.(*net.UDPAddr).Port)
	require.NoError(t, err)
	var ep transport.Endpoint = sep
	if lossy != nil {
		ep = &transport.Lossy{Endpoint: sep, Drop: lossy}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, sender.New(ep, 200*time.Millisecond).SendFile(ctx, srcPath))

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("receiver did not finish in time")
	}
	return <-resultCh
}

func TestScenarioS1TinyFileLossless(t *testing.T) {
	withFastTimers(t)
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "greet.txt")
	require.NoError(t, os.WriteFile(srcPath, []byte("hello\n"), 0o644))

	outDir := t.TempDir()
	result := runTransfer(t, srcPath, outDir, nil)

	require.Equal(t, "greet.txt", result.FileName)
	require.EqualValues(t, 6, result.FileSize)
	got, err := os.ReadFile(filepath.Join(outDir, "greet.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello\n", string(got))
}

func TestScenarioS2SecondSegmentDroppedOnce(t *testing.T) {
	withFastTimers(t)
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "two_segments.bin")
	content := make([]byte, config.MaxPayload+1)
	for i := range content {
		content[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(srcPath, content, 0o644))

	outDir := t.TempDir()
	drop := transport.DropOnce(uint32(config.MaxPayload))
	runTransfer(t, srcPath, outDir, drop)

	got, err := os.ReadFile(filepath.Join(outDir, "two_segments.bin"))
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestScenarioS6PathTraversalDefense(t *testing.T) {
	withFastTimers(t)
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "passwd")
	require.NoError(t, os.WriteFile(srcPath, []byte("root:x:0:0"), 0o644))

	outDir := t.TempDir()
	// Same file, referenced through a traversal-shaped relative path; only
	// its basename ever reaches the wire (codec.EncodeInit), so the
	// receiver must end up writing plain "passwd" into outDir, not a path
	// escaping it.
	traversalPath := dir + "/../" + filepath.Base(dir) + "/passwd"
	result := runTransfer(t, traversalPath, outDir, nil)

	require.Equal(t, "passwd", result.FileName)
	require.Equal(t, filepath.Join(outDir, "passwd"), result.Path)
}
