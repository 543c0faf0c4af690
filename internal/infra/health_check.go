package infra

import (
	"context"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

const checkExecInterval = 5 * time.Second

// MonitorExecutable signals once when the running binary is replaced on disk.
// The returned channel is nil when the binary cannot be watched.
func MonitorExecutable(ctx context.Context) <-chan struct{} {
	return monitorFile(ctx, os.Executable, checkExecInterval)
}

func monitorFile(ctx context.Context, resolve func() (string, error), interval time.Duration) <-chan struct{} {
	ch := make(chan struct{}, 1)
	entry := log.WithField("object", "ExecutableMonitor")

	filename, err := resolve()
	if err != nil {
		entry.WithField("error", err.Error()).Warn("cant resolve monitored file")
		return nil
	}
	stat, err := os.Stat(filename)
	if err != nil {
		entry.WithField("error", err.Error()).Warn("cant stat monitored file")
		return nil
	}
	original := stat.ModTime()

	go func() {
		defer close(ch)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stat, err := os.Stat(filename)
				if err != nil {
					entry.WithField("error", err.Error()).Debug("monitored file is unavailable")
					continue
				}
				if !original.Equal(stat.ModTime()) {
					entry.WithField("file", filename).Info("monitored file changed")
					ch <- struct{}{}
					return
				}
			}
		}
	}()
	return ch
}
