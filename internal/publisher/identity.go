package publisher

const (
	DefaultDeviceInstance = 1024
	ProductName           = "DC System Aggregator"
	connectionName        = "MQTT"
)

// Identity holds the registration paths of the aggregate device
type Identity struct {
	DeviceInstance  int
	ProductID       int
	ProductName     string
	CustomName      string
	FirmwareVersion int
	HardwareVersion int
	Connected       int
	ProcessName     string
	ProcessVersion  string
	Connection      string
}

// NewIdentity returns the identity of a connected aggregator
func NewIdentity(instance int, customName, processName, processVersion string) Identity {
	return Identity{
		DeviceInstance: instance,
		ProductName:    ProductName,
		CustomName:     customName,
		Connected:      1,
		ProcessName:    processName,
		ProcessVersion: processVersion,
		Connection:     connectionName,
	}
}

type identityValue struct {
	path  string
	value any
}

// values lists the identity in registration order
func (id Identity) values() []identityValue {
	return []identityValue{
		{"/Mgmt/ProcessName", id.ProcessName},
		{"/Mgmt/ProcessVersion", id.ProcessVersion},
		{"/Mgmt/Connection", id.Connection},
		{"/DeviceInstance", id.DeviceInstance},
		{"/ProductId", id.ProductID},
		{"/ProductName", id.ProductName},
		{"/CustomName", id.CustomName},
		{"/FirmwareVersion", id.FirmwareVersion},
		{"/HardwareVersion", id.HardwareVersion},
		{"/Connected", id.Connected},
	}
}
