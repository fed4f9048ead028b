package env

import (
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

// AppID salts the machine ID so it is not exposed as is.
const AppID = "scanlink"

// MachineID retrieves the unique ID identifying the machine.
// It falls back to the host name when the ID is unavailable.
func MachineID() string {
	id, err := machineid.ProtectedID(AppID)
	if err != nil {
		glog.Warningf("machine id: %v", err)
		if host, err := os.Hostname(); err == nil {
			return host
		}
		return "unknown"
	}
	return id[:12]
}
