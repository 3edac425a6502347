// export_test.go exposes internals for use by external _test packages.
package service

// BuildArgs exposes the spawn argument construction for tests.
var BuildArgs = buildArgs

// NewExitedHandle fabricates a handle whose process has already terminated,
// for manager tests that never spawn a real process.
func NewExitedHandle(pid int, waitErr error) *Handle {
	h := &Handle{PID: pid, done: make(chan struct{}), waitErr: waitErr}
	close(h.done)
	return h
}

// NewLiveHandle fabricates a handle that reports running until the returned
// stop function is called.
func NewLiveHandle(pid int, host string, port int) (*Handle, func(waitErr error)) {
	h := &Handle{PID: pid, Host: host, Port: port, done: make(chan struct{})}
	var stopped bool
	stop := func(waitErr error) {
		if stopped {
			return
		}
		stopped = true
		h.waitErr = waitErr
		close(h.done)
	}
	return h, stop
}
