package env

import (
	"fmt"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
	"github.com/google/uuid"
)

const appID = "diffdrive"

// MachineID retrieves the unique ID identifying the machine. When the
// machine has no ID, a random one is generated per process.
func MachineID() string {
	id, err := machineid.ProtectedID(appID)
	if err != nil {
		glog.Warningf("machine id unavailable: %v", err)
		return uuid.NewString()
	}
	return id
}

var machineID string

// ClientID returns a broker client ID unique to the machine and the
// local endpoint address.
func ClientID(addr interface{ String() string }) string {
	if machineID == "" {
		machineID = MachineID()
	}
	id := machineID
	if len(id) > 12 {
		id = id[:12]
	}
	return fmt.Sprintf("%s-%s-%s", appID, id, addr)
}
