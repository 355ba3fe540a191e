// Package ports defines the interfaces between the capture pipeline and the
// hardware and storage it runs against.
//
//   - [SerialOpener], [SerialPort], [PortLister]: the CSI serial link
//   - [AudioBackend], [AudioStream]: the audio capture driver
//   - [MetadataStore]: the session metadata sidecar
//
// Adapters in internal/adapters implement these with tarm/serial, the
// go.bug.st enumerator, malgo and the file system. The simulated adapters
// implement them without hardware for tests and --simulate runs.
package ports
