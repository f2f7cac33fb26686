package session

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/go-cmd/cmd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newShellSession(t *testing.T) *Session {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	return New(DirectBackend{}, Config{StopGrace: 2 * time.Second}, zap.NewNop())
}

func TestExecuteShell(t *testing.T) {
	s := newShellSession(t)

	res, err := s.Execute(context.Background(), "echo hello; echo oops >&2", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, res.Succeeded)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Equal(t, "oops\n", res.Stderr)
}

func TestExecuteNonZeroExit(t *testing.T) {
	s := newShellSession(t)

	res, err := s.Execute(context.Background(), "exit 3", 5*time.Second)
	require.NoError(t, err)
	assert.False(t, res.Succeeded)
	assert.Equal(t, 3, res.ExitCode)
}

// Оба потока большие: если бы один читался после другого, процесс заблокировался бы на записи.
func TestExecuteDrainsBothStreams(t *testing.T) {
	s := newShellSession(t)

	script := `i=0; while [ $i -lt 5000 ]; do echo "out $i"; echo "err $i" >&2; i=$((i+1)); done`
	res, err := s.Execute(context.Background(), script, 30*time.Second)
	require.NoError(t, err)
	assert.True(t, res.Succeeded)
	assert.Equal(t, 5000, strings.Count(res.Stdout, "\n"))
	assert.Equal(t, 5000, strings.Count(res.Stderr, "\n"))
	assert.Contains(t, res.Stdout, "out 4999\n")
	assert.Contains(t, res.Stderr, "err 4999\n")
}

func TestExecuteTimeoutRealProcess(t *testing.T) {
	s := newShellSession(t)

	start := time.Now()
	_, err := s.Execute(context.Background(), "sleep 30", 300*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimedOut))
	assert.Less(t, time.Since(start), 5*time.Second)

	// Сессия свободна для следующей команды
	res, err := s.Execute(context.Background(), "echo next", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "next\n", res.Stdout)
}

// Строка длиннее любого строкового буфера и последняя строка без перевода строки.
func TestExecuteLongLineRealProcess(t *testing.T) {
	s := newShellSession(t)

	res, err := s.Execute(context.Background(), `head -c 100000 /dev/zero | tr '\0' a; echo; printf after`, 10*time.Second)
	require.NoError(t, err)
	assert.True(t, res.Succeeded)
	assert.Equal(t, strings.Repeat("a", 100000)+"\nafter", res.Stdout)
}

func TestExecuteCapsOutputRealProcess(t *testing.T) {
	s := newShellSession(t)

	res, err := s.Execute(context.Background(), `head -c 1200000 /dev/zero | tr '\0' b; echo done >&2`, 10*time.Second)
	require.NoError(t, err)
	assert.True(t, res.Succeeded)
	assert.Equal(t, strings.Repeat("b", MaxStreamBytes)+truncatedMark, res.Stdout)
	assert.Equal(t, "done\n", res.Stderr)
}

func TestExecuteSignaledChildIsNotSpawnError(t *testing.T) {
	s := newShellSession(t)

	res, err := s.Execute(context.Background(), "echo partial; kill -9 $$", 5*time.Second)
	require.NoError(t, err)
	assert.False(t, res.Succeeded)
	assert.Equal(t, "partial\n", res.Stdout)
}

// Процесс игнорирует SIGTERM: Execute возвращается только после SIGKILL и выхода.
func TestExecuteTimeoutKillsChildIgnoringTerm(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	s := New(DirectBackend{}, Config{StopGrace: 300 * time.Millisecond}, zap.NewNop())
	pidFile := filepath.Join(t.TempDir(), "pid")

	start := time.Now()
	_, err := s.Execute(context.Background(), "echo $$ > "+pidFile+"; trap '' TERM; sleep 10", 500*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimedOut))
	assert.Less(t, time.Since(start), 5*time.Second)

	raw, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	require.NoError(t, err)
	assert.ErrorIs(t, syscall.Kill(pid, 0), syscall.ESRCH, "shell must be gone when Execute returns")
}

func TestExecuteRejectsNonPositiveTimeout(t *testing.T) {
	s := NewWithFactory(DirectBackend{}, newFakeFactory(nil).New, Config{}, zap.NewNop())
	_, err := s.Execute(context.Background(), "id", 0)
	require.Error(t, err)
}

// --- фейковый процесс ---

type fakeProcess struct {
	stdout io.Writer
	stderr io.Writer
	status chan cmd.Status
	stops  *int32
	kills  *int32
	// stubborn игнорирует SIGTERM, выходит только по Kill
	stubborn bool
	run      func(f *fakeProcess)
	once     sync.Once
	stdin    string
}

func (f *fakeProcess) StartWithStdin(in io.Reader) <-chan cmd.Status {
	b, _ := io.ReadAll(in)
	f.stdin = string(b)
	go f.run(f)
	return f.status
}

func (f *fakeProcess) Stop() error {
	atomic.AddInt32(f.stops, 1)
	if !f.stubborn {
		f.finish(cmd.Status{Exit: -1})
	}
	return nil
}

func (f *fakeProcess) Kill() error {
	atomic.AddInt32(f.kills, 1)
	f.finish(cmd.Status{Exit: -1})
	return nil
}

func (f *fakeProcess) finish(st cmd.Status) {
	f.once.Do(func() { f.status <- st })
}

type fakeFactory struct {
	mu       sync.Mutex
	spawned  int
	stdins   []string
	stops    int32
	kills    int32
	stubborn bool
	run      func(f *fakeProcess)
}

func newFakeFactory(run func(f *fakeProcess)) *fakeFactory {
	return &fakeFactory{run: run}
}

func (ff *fakeFactory) New(stdout, stderr io.Writer, _ string, _ ...string) Process {
	ff.mu.Lock()
	ff.spawned++
	ff.mu.Unlock()
	return &fakeProcess{
		stdout:   stdout,
		stderr:   stderr,
		status:   make(chan cmd.Status, 1),
		stops:    &ff.stops,
		kills:    &ff.kills,
		stubborn: ff.stubborn,
		run: func(f *fakeProcess) {
			ff.mu.Lock()
			ff.stdins = append(ff.stdins, f.stdin)
			ff.mu.Unlock()
			if ff.run != nil {
				ff.run(f)
			}
		},
	}
}

func (ff *fakeFactory) Spawned() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.spawned
}

func printing(stdout string, exit int) func(f *fakeProcess) {
	return func(f *fakeProcess) {
		_, _ = io.WriteString(f.stdout, stdout)
		f.finish(cmd.Status{PID: 42, Exit: exit, Complete: true})
	}
}

func hanging(f *fakeProcess) {}

func TestExecuteTimeoutStopsExactlyOnce(t *testing.T) {
	ff := newFakeFactory(hanging)
	s := NewWithFactory(DirectBackend{}, ff.New, Config{StopGrace: time.Second}, zap.NewNop())

	_, err := s.Execute(context.Background(), "never-exits", 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimedOut))
	assert.Equal(t, int32(1), atomic.LoadInt32(&ff.stops))
	assert.Equal(t, 1, ff.Spawned())
}

func TestExecuteTimeoutEscalatesToKill(t *testing.T) {
	ff := newFakeFactory(hanging)
	ff.stubborn = true
	s := NewWithFactory(DirectBackend{}, ff.New, Config{StopGrace: 50 * time.Millisecond}, zap.NewNop())

	_, err := s.Execute(context.Background(), "never-exits", 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimedOut))
	assert.Equal(t, int32(1), atomic.LoadInt32(&ff.stops))
	assert.Equal(t, int32(1), atomic.LoadInt32(&ff.kills))
}

func TestExecuteContextCancel(t *testing.T) {
	ff := newFakeFactory(hanging)
	s := NewWithFactory(DirectBackend{}, ff.New, Config{StopGrace: time.Second}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := s.Execute(ctx, "never-exits", 10*time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, int32(1), atomic.LoadInt32(&ff.stops))
}

func TestExecuteWritesCommandAndExit(t *testing.T) {
	ff := newFakeFactory(printing("ok", 0))
	s := NewWithFactory(DirectBackend{}, ff.New, Config{}, zap.NewNop())

	_, err := s.Execute(context.Background(), "svc wifi enable", time.Second)
	require.NoError(t, err)
	require.Len(t, ff.stdins, 1)
	assert.Equal(t, "svc wifi enable\nexit\n", ff.stdins[0])
}

func TestExecuteSingleFlight(t *testing.T) {
	var active, maxActive int32
	ff := newFakeFactory(func(f *fakeProcess) {
		n := atomic.AddInt32(&active, 1)
		for {
			m := atomic.LoadInt32(&maxActive)
			if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		f.finish(cmd.Status{PID: 42, Exit: 0, Complete: true})
	})
	s := NewWithFactory(DirectBackend{}, ff.New, Config{}, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Execute(context.Background(), "true", time.Second)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxActive))
	assert.Equal(t, 8, ff.Spawned())
}

func TestExecuteCapsOutput(t *testing.T) {
	chunk := strings.Repeat("x", 1023) + "\n"
	ff := newFakeFactory(func(f *fakeProcess) {
		for i := 0; i < 1100; i++ {
			_, _ = io.WriteString(f.stdout, chunk)
		}
		f.finish(cmd.Status{PID: 42, Exit: 0, Complete: true})
	})
	s := NewWithFactory(DirectBackend{}, ff.New, Config{}, zap.NewNop())

	res, err := s.Execute(context.Background(), "cat big", time.Second)
	require.NoError(t, err)
	assert.Equal(t, MaxStreamBytes+len(truncatedMark), len(res.Stdout))
	assert.True(t, strings.HasSuffix(res.Stdout, truncatedMark))
}

func TestExecuteSpawnError(t *testing.T) {
	ff := newFakeFactory(func(f *fakeProcess) {
		f.finish(cmd.Status{Exit: -1, Error: errors.New("exec: not found")})
	})
	s := NewWithFactory(DirectBackend{}, ff.New, Config{}, zap.NewNop())

	_, err := s.Execute(context.Background(), "id", time.Second)
	assert.True(t, errors.Is(err, ErrSpawn))
}

func TestRequestElevationMemoized(t *testing.T) {
	ff := newFakeFactory(printing("uid=0(root) gid=0(root)", 0))
	s := NewWithFactory(DirectBackend{}, ff.New, Config{}, zap.NewNop())

	assert.Equal(t, ElevationUnknown, s.State())
	assert.True(t, s.RequestElevation(context.Background()))
	assert.True(t, s.RequestElevation(context.Background()))
	assert.Equal(t, ElevationGranted, s.State())
	assert.Equal(t, 1, ff.Spawned())

	s.Invalidate()
	assert.Equal(t, ElevationUnknown, s.State())
	assert.True(t, s.RequestElevation(context.Background()))
	assert.Equal(t, 2, ff.Spawned())
}

func TestRequestElevationDenied(t *testing.T) {
	ff := newFakeFactory(printing("uid=2000(shell) gid=2000(shell)", 0))
	s := NewWithFactory(DirectBackend{}, ff.New, Config{}, zap.NewNop())

	assert.False(t, s.RequestElevation(context.Background()))
	assert.Equal(t, ElevationDenied, s.State())
	assert.False(t, s.RequestElevation(context.Background()))
	assert.Equal(t, 1, ff.Spawned())
}

func TestRequestElevationRetriesTimeout(t *testing.T) {
	var calls int32
	ff := newFakeFactory(func(f *fakeProcess) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return // первая попытка зависает
		}
		printing("uid=0(root)", 0)(f)
	})
	s := NewWithFactory(DirectBackend{}, ff.New, Config{ProbeTimeout: 50 * time.Millisecond, ProbeRetries: 2, StopGrace: time.Second}, zap.NewNop())

	assert.True(t, s.RequestElevation(context.Background()))
	assert.Equal(t, 2, ff.Spawned())
	assert.Equal(t, int32(1), atomic.LoadInt32(&ff.stops))
}

func TestStateDoesNotBlockDuringProbe(t *testing.T) {
	release := make(chan struct{})
	ff := newFakeFactory(func(f *fakeProcess) {
		<-release
		printing("uid=0(root)", 0)(f)
	})
	s := NewWithFactory(DirectBackend{}, ff.New, Config{ProbeTimeout: 5 * time.Second}, zap.NewNop())

	results := make(chan bool, 2)
	for i := 0; i < 2; i++ {
		go func() { results <- s.RequestElevation(context.Background()) }()
	}
	require.Eventually(t, func() bool { return ff.Spawned() == 1 }, time.Second, 5*time.Millisecond)

	got := make(chan ElevationState, 1)
	go func() { got <- s.State() }()
	select {
	case st := <-got:
		assert.Equal(t, ElevationUnknown, st)
	case <-time.After(time.Second):
		t.Fatal("State blocked while elevation probe was running")
	}

	close(release)
	assert.True(t, <-results)
	assert.True(t, <-results)
	assert.Equal(t, ElevationGranted, s.State())
	assert.Equal(t, 1, ff.Spawned())
}

type unavailable struct{ DirectBackend }

func (unavailable) Available() bool { return false }

func TestRequestElevationBackendUnavailable(t *testing.T) {
	ff := newFakeFactory(printing("uid=0(root)", 0))
	s := NewWithFactory(unavailable{}, ff.New, Config{}, zap.NewNop())

	assert.False(t, s.IsElevationAvailable())
	assert.False(t, s.RequestElevation(context.Background()))
	assert.Equal(t, 0, ff.Spawned())
}

type fakeInfo struct{ os.FileInfo }

func (fakeInfo) IsDir() bool { return false }

func TestSuBackendHeuristics(t *testing.T) {
	notFound := func(string) (string, error) { return "", os.ErrNotExist }
	statOnly := func(want string) func(string) (os.FileInfo, error) {
		return func(p string) (os.FileInfo, error) {
			if p == want {
				return fakeInfo{}, nil
			}
			return nil, os.ErrNotExist
		}
	}

	b := &SuBackend{stat: statOnly("/system/xbin/su"), lookPath: notFound}
	assert.True(t, b.Available())
	name, args := b.Command()
	assert.Equal(t, "/system/xbin/su", name)
	assert.Empty(t, args)

	b = &SuBackend{stat: statOnly("/data/adb/magisk"), lookPath: notFound}
	assert.True(t, b.Available())

	b = &SuBackend{stat: statOnly("/nowhere"), lookPath: notFound}
	assert.False(t, b.Available())

	b = &SuBackend{stat: statOnly("/nowhere"), lookPath: func(string) (string, error) { return "/usr/bin/su", nil }}
	assert.True(t, b.Available())
	name, _ = b.Command()
	assert.Equal(t, "/usr/bin/su", name)
}

func TestBackendByName(t *testing.T) {
	for _, n := range []string{"su", "sudo", "direct", ""} {
		_, ok := BackendByName(n)
		assert.True(t, ok, n)
	}
	_, ok := BackendByName("doas")
	assert.False(t, ok)

	name, args := NewSudoBackend().Command()
	assert.Equal(t, "sudo", name)
	assert.Equal(t, []string{"-n", "/bin/sh"}, args)
}
