// Package discovery implements mDNS/DNS-SD discovery for data servers.
//
// A data server advertises the _zi-dataserver._tcp service. The instance
// name is the host name of the machine running the server. TXT records carry:
//
//   - version: LabOne version of the server (e.g. "24.10")
//   - devices: comma-separated serials of the devices it can reach
//   - hf2: "1" when the server speaks to HF2 instruments
//
// The SRV record carries the port. Clients browse the service and pick a
// server either by address or by the serial of a device it reaches.
package discovery
