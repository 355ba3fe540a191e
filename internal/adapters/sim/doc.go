// Package sim provides hardware-free serial and audio devices.
//
// The serial side replays either a fixed script or an endless synthetic
// stream of CSI frames interleaved with line noise. The audio side calls its
// data callback from a ticker at the configured rate, the way a driver
// thread would.
package sim
