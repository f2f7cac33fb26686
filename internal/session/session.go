// Package session - привилегированная сессия: обнаружение root, запрос прав
// и исполнение одной командной строки в свежем процессе.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/go-cmd/cmd"
	"go.uber.org/zap"

	"github.com/xela07ax/rootgw/internal/domain"
)

var (
	ErrTimedOut           = errors.New("session: timed out")
	ErrBackendUnavailable = errors.New("session: elevation backend unavailable")
	ErrSpawn              = errors.New("session: spawn failed")
)

// MaxStreamBytes - потолок на каждый поток вывода. Хвост отбрасывается, поток дочитывается до конца.
const MaxStreamBytes = 1 << 20

const truncatedMark = "\n[output truncated]"

// ElevationState - мемоизированный результат запроса прав.
type ElevationState int32

const (
	ElevationUnknown ElevationState = iota
	ElevationGranted
	ElevationDenied
)

func (s ElevationState) String() string {
	switch s {
	case ElevationGranted:
		return "granted"
	case ElevationDenied:
		return "denied"
	}
	return "unknown"
}

type Config struct {
	ProbeTimeout time.Duration // таймаут проверки `id`
	ProbeRetries uint
	StopGrace    time.Duration // сколько ждать выхода после SIGTERM до SIGKILL
}

func (c Config) withDefaults() Config {
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 10 * time.Second
	}
	if c.ProbeRetries == 0 {
		c.ProbeRetries = 2
	}
	if c.StopGrace <= 0 {
		c.StopGrace = 2 * time.Second
	}
	return c
}

// Session владеет состоянием прав и гарантирует не более одного
// привилегированного процесса одновременно.
type Session struct {
	backend    Backend
	newProcess ProcessFactory
	cfg        Config
	logger     *zap.Logger

	stateMu sync.RWMutex
	state   ElevationState

	// probeMu - не более одной проверки прав одновременно
	probeMu sync.Mutex

	execMu sync.Mutex
}

func New(backend Backend, cfg Config, logger *zap.Logger) *Session {
	return NewWithFactory(backend, NewCmdProcess, cfg, logger)
}

func NewWithFactory(backend Backend, factory ProcessFactory, cfg Config, logger *zap.Logger) *Session {
	return &Session{
		backend:    backend,
		newProcess: factory,
		cfg:        cfg.withDefaults(),
		logger:     logger.Named("session").With(zap.String("backend", backend.Name())),
	}
}

func (s *Session) Backend() string { return s.backend.Name() }

// IsElevationAvailable - быстрая эвристика без запуска процессов. Может ошибаться
// в сторону "недоступно".
func (s *Session) IsElevationAvailable() bool { return s.backend.Available() }

func (s *Session) State() ElevationState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Invalidate сбрасывает мемоизированное состояние. Только явный вызов.
func (s *Session) Invalidate() {
	s.stateMu.Lock()
	s.state = ElevationUnknown
	s.stateMu.Unlock()
	s.logger.Info("elevation state invalidated")
}

// RequestElevation запускает `id` через механизм повышения (на Android это вызывает
// диалог менеджера root). Результат запоминается до Invalidate. Пока идет проверка,
// State отвечает ElevationUnknown и не блокируется.
func (s *Session) RequestElevation(ctx context.Context) bool {
	if st := s.State(); st != ElevationUnknown {
		return st == ElevationGranted
	}

	s.probeMu.Lock()
	defer s.probeMu.Unlock()

	// Пока ждали probeMu, проверку мог закончить другой вызов
	if st := s.State(); st != ElevationUnknown {
		return st == ElevationGranted
	}

	granted := s.probe(ctx)

	s.stateMu.Lock()
	if granted {
		s.state = ElevationGranted
	} else {
		s.state = ElevationDenied
	}
	s.stateMu.Unlock()
	return granted
}

func (s *Session) probe(ctx context.Context) bool {
	if !s.backend.Available() {
		s.logger.Warn("elevation backend not available")
		return false
	}

	var res domain.ExecutionResult
	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(s.cfg.ProbeRetries+1),
		retry.Delay(200*time.Millisecond),
		retry.LastErrorOnly(true),
		// Проверка идемпотентна, повторяем только таймауты
		retry.RetryIf(func(err error) bool { return errors.Is(err, ErrTimedOut) }),
	)
	err := r.Do(func() error {
		var execErr error
		res, execErr = s.Execute(ctx, "id", s.cfg.ProbeTimeout)
		return execErr
	})

	granted := err == nil && res.Succeeded && strings.Contains(res.Stdout, "uid=0")
	if granted {
		s.logger.Info("elevation granted")
	} else {
		s.logger.Warn("elevation denied",
			zap.Error(err),
			zap.Int("exit_code", res.ExitCode),
			zap.String("stderr", res.Stderr),
		)
	}
	return granted
}

// Execute запускает свежий процесс, пишет командную строку в stdin и ждет выхода
// не дольше timeout. stdout и stderr пишутся напрямую в ограниченные буферы. По
// таймауту процесс останавливается ровно один раз и возвращается ErrTimedOut без
// результата; сессия освобождается только после выхода процесса.
func (s *Session) Execute(ctx context.Context, cmdline string, timeout time.Duration) (domain.ExecutionResult, error) {
	if timeout <= 0 {
		return domain.ExecutionResult{}, fmt.Errorf("session: non-positive timeout %s", timeout)
	}

	s.execMu.Lock()
	defer s.execMu.Unlock()

	name, args := s.backend.Command()
	var stdout, stderr capped
	p := s.newProcess(&stdout, &stderr, name, args...)

	statusCh := p.StartWithStdin(strings.NewReader(cmdline + "\nexit\n"))

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var st cmd.Status
	select {
	case st = <-statusCh:
	case <-timer.C:
		s.stop(p, statusCh, "timeout")
		return domain.ExecutionResult{}, fmt.Errorf("%w after %s", ErrTimedOut, timeout)
	case <-ctx.Done():
		s.stop(p, statusCh, "context done")
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.ExecutionResult{}, fmt.Errorf("%w: %v", ErrTimedOut, ctx.Err())
		}
		return domain.ExecutionResult{}, ctx.Err()
	}

	// PID == 0: процесс не стартовал. Иначе ошибка - это сигнал или зависший
	// у внука канал вывода, а результат определяет код выхода.
	if st.Error != nil && st.PID == 0 {
		return domain.ExecutionResult{}, fmt.Errorf("%w: %s: %v", ErrSpawn, name, st.Error)
	}

	res := domain.ExecutionResult{
		Succeeded: st.Exit == 0 && st.Error == nil,
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		ExitCode:  st.Exit,
	}
	s.logger.Debug("command finished",
		zap.Int("exit_code", st.Exit),
		zap.NamedError("wait_error", st.Error),
		zap.Int("stdout_bytes", len(res.Stdout)),
		zap.Int("stderr_bytes", len(res.Stderr)),
	)
	return res, nil
}

// stop вызывается ровно один раз на процесс: SIGTERM, через StopGrace SIGKILL.
// Возвращается только после выхода процесса, если SIGKILL удалось отправить.
func (s *Session) stop(p Process, statusCh <-chan cmd.Status, why string) {
	if err := p.Stop(); err != nil {
		s.logger.Warn("failed to stop process", zap.String("why", why), zap.Error(err))
	}
	select {
	case <-statusCh:
		s.logger.Warn("process stopped", zap.String("why", why))
		return
	case <-time.After(s.cfg.StopGrace):
	}

	s.logger.Error("process ignored SIGTERM, killing", zap.String("why", why))
	if err := p.Kill(); err != nil {
		// Сигнал не доставлен (например, чужой uid): ждать выхода бесполезно
		s.logger.Error("failed to kill process", zap.String("why", why), zap.Error(err))
		select {
		case <-statusCh:
		case <-time.After(s.cfg.StopGrace):
		}
		return
	}
	<-statusCh
	s.logger.Warn("process killed", zap.String("why", why))
}
