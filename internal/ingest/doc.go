// Package ingest contains the units that pull data off the devices.
//
// SerialIngest reads raw bytes from the serial port, ParseUnit turns them
// into CSI records and AudioIngest repackages driver callbacks into fixed
// size chunks. Every unit hands data downstream with a non-blocking send;
// an item that finds its queue full is dropped and counted.
package ingest
