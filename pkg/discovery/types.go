package discovery

import (
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	// ServiceType is the DNS-SD service type of a data server.
	ServiceType = "_zi-dataserver._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the default data server port.
	DefaultPort = 8004

	// HF2Port is the default port of an HF2 data server.
	HF2Port = 8005
)

// TXT record keys.
const (
	TXTKeyVersion = "version"
	TXTKeyDevices = "devices"
	TXTKeyHF2     = "hf2"
)

const (
	// BrowseTimeout is the default timeout for mDNS browsing.
	BrowseTimeout = 5 * time.Second

	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// MaxTXTRecordSize is the maximum total TXT record size.
	MaxTXTRecordSize = 400
)

var (
	ErrInvalidTXTRecord    = errors.New("invalid TXT record format")
	ErrMissingRequired     = errors.New("missing required field")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrTXTTooLarge         = errors.New("TXT records exceed size limit")
	ErrNotFound            = errors.New("service not found")
	ErrNotAdvertising      = errors.New("not advertising")
)

// TXTRecordMap holds TXT record key/value pairs.
type TXTRecordMap map[string]string

// ServerInfo is what a data server announces about itself.
type ServerInfo struct {
	// InstanceName defaults to the host name.
	InstanceName string

	Port uint16

	// Version is the LabOne version string.
	Version string

	// Serials lists the devices visible through the server, lower-case.
	Serials []string

	HF2 bool
}

// ServerService is a data server found on the network.
type ServerService struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string

	Version string
	Serials []string
	HF2     bool
}

// Address returns host:port for dialing, preferring a resolved IP address.
func (s *ServerService) Address() string {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	host = strings.TrimSuffix(host, ".")
	port := s.Port
	if port == 0 {
		port = DefaultPort
	}
	if strings.Contains(host, ":") {
		return "[" + host + "]:" + strconv.Itoa(int(port))
	}
	return host + ":" + strconv.Itoa(int(port))
}

// HasDevice reports whether the server reaches the device with the given serial.
func (s *ServerService) HasDevice(serial string) bool {
	return slices.Contains(s.Serials, strings.ToLower(serial))
}
