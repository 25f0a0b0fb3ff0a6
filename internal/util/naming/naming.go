package naming

import (
	"fmt"
	"time"
)

// TimestampLayout is the minute-precision run timestamp.
const TimestampLayout = "2006-01-02-15-04"

// Timestamp formats t as a run timestamp in local time.
func Timestamp(t time.Time) string {
	return t.Local().Format(TimestampLayout)
}

// ISOServer names the temporary installer server.
func ISOServer(ts, name string) string {
	return fmt.Sprintf("%s-%s", ts, name)
}

// ISOVolume names the volume the installer writes to.
func ISOVolume(ts, name string) string {
	return fmt.Sprintf("%s-%s", ts, name)
}

// VolumeSnapshot names the snapshot of an installed volume.
func VolumeSnapshot(ts, volumeID string) string {
	return fmt.Sprintf("%s-volume-%s-snapshot", ts, volumeID)
}

// FleetPrefix is the common prefix of every fleet server and volume.
func FleetPrefix(ts, serverPrefix string) string {
	return fmt.Sprintf("%s-%s", ts, serverPrefix)
}

// FleetServer names the index-th fleet server, counting from 1.
func FleetServer(prefix string, index int) string {
	return fmt.Sprintf("%s-%d", prefix, index)
}

// FleetVolume names the data volume of the index-th fleet server.
func FleetVolume(prefix string, index int) string {
	return fmt.Sprintf("%s-volume-%d", prefix, index)
}

// Node is the hostname and inventory name of the index-th host, counting from 1.
func Node(index int) string {
	return fmt.Sprintf("node%d", index)
}

// StateFile is the file name of a persisted pipeline state.
func StateFile(ts string) string {
	return ts + ".yaml"
}

// ArchiveKey is the object key of an archived inventory.
func ArchiveKey(prefix, ts, file string) string {
	if prefix == "" {
		return fmt.Sprintf("%s/%s", ts, file)
	}
	return fmt.Sprintf("%s/%s/%s", prefix, ts, file)
}
