package utility

import (
	"context"
	"io"
	"os"
	"os/signal"
	"reflect"
	"time"

	"github.com/wal-g/tracelog"
)

// LoggedClose closes c and logs error if any
func LoggedClose(c io.Closer, errmsg string) {
	err := c.Close()
	if errmsg == "" {
		errmsg = "Problem with closing object"
	}
	if err != nil {
		tracelog.ErrorLogger.Printf(errmsg+": %v", err)
	}
}

// ResetTimer safely resets timer to fire after d
func ResetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// WaitFirstError returns the first non-nil error received from any of the channels.
// It returns nil when all channels are closed without errors.
func WaitFirstError(errs ...<-chan error) error {
	cases := make([]reflect.SelectCase, 0, len(errs))
	for _, errc := range errs {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(errc)})
	}

	for open := len(cases); open > 0; {
		chosen, value, ok := reflect.Select(cases)
		if !ok {
			// closed channel is never selected again
			cases[chosen].Chan = reflect.ValueOf(nil)
			open--
			continue
		}
		if err, _ := value.Interface().(error); err != nil {
			return err
		}
	}
	return nil
}

// SignalHandler cancels context when one of the signals is received
type SignalHandler struct {
	sigc chan os.Signal
	done chan struct{}
}

// NewSignalHandler builds SignalHandler, cancel is called on the first signal
func NewSignalHandler(ctx context.Context, cancel context.CancelFunc, signals []os.Signal) *SignalHandler {
	sh := &SignalHandler{sigc: make(chan os.Signal, 1), done: make(chan struct{})}
	signal.Notify(sh.sigc, signals...)
	go func() {
		select {
		case sig := <-sh.sigc:
			tracelog.InfoLogger.Printf("Received signal: %s, terminating", sig)
			cancel()
		case <-ctx.Done():
		case <-sh.done:
		}
	}()
	return sh
}

// Close stops listening for signals
func (sh *SignalHandler) Close() error {
	signal.Stop(sh.sigc)
	close(sh.done)
	return nil
}
