package wire

// Op identifies the data server call a request performs.
type Op uint8

const (
	// OpHello exchanges versions. It must be the first request.
	OpHello Op = iota + 1

	// OpListNodes returns node metadata for a pattern.
	OpListNodes

	// OpGet reads one node.
	OpGet

	// OpSet writes one node.
	OpSet

	// OpGetBulk reads every node matching a pattern.
	OpGetBulk

	// OpSubscribe and OpUnsubscribe manage polled nodes.
	OpSubscribe
	OpUnsubscribe

	// OpPoll returns data recorded for subscribed nodes.
	OpPoll

	// OpSync blocks until all previous sets are applied.
	OpSync

	// OpConnectDevice and OpDisconnectDevice manage device connections.
	OpConnectDevice
	OpDisconnectDevice

	// OpCreateModule opens a module namespace.
	OpCreateModule
)

var opNames = map[Op]string{
	OpHello:            "Hello",
	OpListNodes:        "ListNodes",
	OpGet:              "Get",
	OpSet:              "Set",
	OpGetBulk:          "GetBulk",
	OpSubscribe:        "Subscribe",
	OpUnsubscribe:      "Unsubscribe",
	OpPoll:             "Poll",
	OpSync:             "Sync",
	OpConnectDevice:    "ConnectDevice",
	OpDisconnectDevice: "DisconnectDevice",
	OpCreateModule:     "CreateModule",
}

// String returns the operation name.
func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return "Unknown"
}

// IsValid returns true for known operations.
func (o Op) IsValid() bool {
	return o >= OpHello && o <= OpCreateModule
}
