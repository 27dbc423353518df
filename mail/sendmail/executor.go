package sendmail

import (
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

var errExecutorClosed = errors.New("executor is closed")

// executor запускает внешнюю команду, передавая письмо через stdin
type executor struct {
	cmd    string
	closed bool
	mx     sync.RWMutex
}

func newExecutor(cmd string) *executor {
	return &executor{cmd: cmd}
}

// Start проверяет наличие команды в системе
func (e *executor) Start() error {
	if _, err := exec.LookPath(e.cmd); err != nil {
		return errors.Wrapf(err, "command %s not found", e.cmd)
	}
	return nil
}

// Execute выполняет команду и возвращает stdout. stderr добавляется к ошибке.
func (e *executor) Execute(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "Sendmail.Execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("sendmail.command", e.cmd),
		attribute.Int("sendmail.stdin_bytes", len(stdin)),
	)

	e.mx.RLock()
	defer e.mx.RUnlock()

	if e.closed {
		recordError(span, errExecutorClosed)
		return nil, errExecutorClosed
	}

	started := time.Now()
	name := filepath.Base(e.cmd)

	cmd := exec.CommandContext(ctx, e.cmd, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.Output()
	finishExecution(span, name, started, err)
	if err != nil {
		if msg := bytes.TrimSpace(stderr.Bytes()); len(msg) > 0 {
			return stdout, errors.Wrapf(err, "command failed: %s", msg)
		}
		return stdout, errors.Wrap(err, "command failed")
	}
	return stdout, nil
}

// Close запрещает дальнейшие запуски, дожидаясь текущих
func (e *executor) Close() error {
	e.mx.Lock()
	defer e.mx.Unlock()

	e.closed = true
	return nil
}
