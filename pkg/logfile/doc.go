// Package logfile writes a byte stream into size-rotated, sequentially
// numbered files named <prefix>_part_NNN.bin.
//
// # Usage
//
//	lf, err := logfile.Open(dir, "csi_log", logfile.DefaultLimit)
//	if err != nil {
//	    return err
//	}
//	defer lf.Close()
//
//	lf.Write(batch)
//	if _, err := lf.MaybeRotate(); err != nil {
//	    return err
//	}
//
// Callers that only rotate between whole records get parts that each start
// and end on a record boundary.
package logfile
