//go:build unix

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// foregroundSignals reports SIGCONT, sent when a stopped job is resumed.
func foregroundSignals() (<-chan struct{}, func()) {
	sig := make(chan os.Signal, 1)
	out := make(chan struct{}, 1)
	done := make(chan struct{})
	signal.Notify(sig, syscall.SIGCONT)
	go func() {
		for {
			select {
			case <-done:
				return
			case <-sig:
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out, func() {
		signal.Stop(sig)
		close(done)
	}
}
