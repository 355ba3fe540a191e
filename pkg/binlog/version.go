package binlog

// Version is the version of the record formats, stored in session metadata.
const Version = "1.0.0"
