// Package lifecycle supervises the concurrent units of a capture session.
//
// It tracks the session state (Stopped, Starting, Running, Stopping,
// Crashed), runs named units as goroutines, keeps a liveness view of them
// and waits for them with a bounded timeout on shutdown.
//
// # Usage
//
//	m := lifecycle.NewManager(logger, nil)
//	ctx, cancel := context.WithCancel(parent)
//	m.SetCancel(cancel)
//
//	m.Go(ctx, "serial", serialIngest.Run)
//	m.Go(ctx, "csi-writer", csiWriter.Run)
//
//	select {
//	case exit := <-m.Exits():
//	    // a unit returned while the session was running
//	case <-stop:
//	}
//
//	m.Cancel()
//	if err := m.WaitWithTimeout(10 * time.Second); err != nil {
//	    // errors.Is(err, lifecycle.ErrShutdownTimeout); err names the hung units
//	}
//
// # State Machine
//
// Valid state transitions:
//   - Stopped -> Starting
//   - Starting -> Running, Stopping, Crashed
//   - Running -> Stopping, Crashed
//   - Stopping -> Stopped, Crashed
//   - Crashed -> Starting
package lifecycle
