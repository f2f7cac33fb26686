package session

import (
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/go-cmd/cmd"
)

// Process - один запущенный дочерний процесс. Реализация по умолчанию - go-cmd;
// тесты подставляют свою.
type Process interface {
	StartWithStdin(in io.Reader) <-chan cmd.Status
	// Stop шлет SIGTERM группе процессов.
	Stop() error
	// Kill шлет SIGKILL группе процессов.
	Kill() error
}

// ProcessFactory создает процесс, пишущий stdout и stderr в переданные writer'ы.
type ProcessFactory func(stdout, stderr io.Writer, name string, args ...string) Process

// pipeWaitDelay - сколько Wait ждет закрытия каналов вывода после выхода процесса,
// если их держат внуки.
const pipeWaitDelay = 2 * time.Second

type cmdProcess struct {
	*cmd.Cmd
}

func (p cmdProcess) Kill() error {
	pid := p.Status().PID
	if pid <= 0 {
		return cmd.ErrNotStarted
	}
	return syscall.Kill(-pid, syscall.SIGKILL)
}

// NewCmdProcess - процесс go-cmd без строкового буфера: вывод идет напрямую в
// writer'ы, поэтому длина строки не ограничена. go-cmd ставит процессу
// собственную группу, Stop и Kill сигналят всю группу.
func NewCmdProcess(stdout, stderr io.Writer, name string, args ...string) Process {
	c := cmd.NewCmdOptions(cmd.Options{
		Buffered:  false,
		Streaming: false,
		BeforeExec: []func(c *exec.Cmd){
			func(c *exec.Cmd) {
				c.Stdout = stdout
				c.Stderr = stderr
				c.WaitDelay = pipeWaitDelay
			},
		},
	}, name, args...)
	return cmdProcess{Cmd: c}
}

// capped копит до MaxStreamBytes байт, остальное отбрасывает. Write никогда не
// возвращает ошибку, иначе exec оборвал бы чтение и процесс получил бы SIGPIPE.
type capped struct {
	mu        sync.Mutex
	b         []byte
	truncated bool
}

func (c *capped) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if room := MaxStreamBytes - len(c.b); room < len(p) {
		c.truncated = true
		if room > 0 {
			c.b = append(c.b, p[:room]...)
		}
		return len(p), nil
	}
	c.b = append(c.b, p...)
	return len(p), nil
}

func (c *capped) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.truncated {
		return string(c.b) + truncatedMark
	}
	return string(c.b)
}
