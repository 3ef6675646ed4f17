// Package eventlog follows an accessibility event log and emits the package
// identifiers of foreground surface changes, driving the passive capture
// loop. The log is expected to be line-oriented with events carrying a
// "package=<id>" field, the format produced by the host shell's event dump.
package eventlog

import (
	"context"
	"regexp"

	"github.com/hpcloud/tail"
	"go.uber.org/zap"
)

var packagePattern = regexp.MustCompile(`package=([\w.]+)`)

// Watcher tails the event log file.
type Watcher struct {
	path string
	log  *zap.Logger
}

// NewWatcher creates a watcher for the given log file.
func NewWatcher(path string, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{path: path, log: logger.Named("EventLog")}
}

// Watch follows the log from its current end and streams package ids of
// surface-change events. The channel closes when ctx is cancelled or the
// tail terminates. Consecutive duplicate events are collapsed.
func (w *Watcher) Watch(ctx context.Context) (<-chan string, error) {
	t, err := tail.TailFile(w.path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Location:  &tail.SeekInfo{Whence: 2}, // io.SeekEnd
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return nil, err
	}

	out := make(chan string, 64)
	go func() {
		defer close(out)
		defer func() {
			if err := t.Stop(); err != nil {
				w.log.Debug("Failed to stop tail cleanly", zap.Error(err))
			}
		}()

		var last string
		for {
			select {
			case <-ctx.Done():
				return
			case line, ok := <-t.Lines:
				if !ok {
					return
				}
				if line.Err != nil {
					w.log.Warn("Event log read error", zap.Error(line.Err))
					continue
				}
				m := packagePattern.FindStringSubmatch(line.Text)
				if m == nil {
					continue
				}
				pkg := m[1]
				if pkg == last {
					continue
				}
				last = pkg
				select {
				case out <- pkg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
