package discovery

import (
	"fmt"
	"slices"
	"strings"
)

// EncodeServerTXT builds the TXT records for a data server.
func EncodeServerTXT(info *ServerInfo) TXTRecordMap {
	txt := TXTRecordMap{
		TXTKeyVersion: info.Version,
	}
	if len(info.Serials) > 0 {
		serials := make([]string, len(info.Serials))
		for i, s := range info.Serials {
			serials[i] = strings.ToLower(s)
		}
		slices.Sort(serials)
		txt[TXTKeyDevices] = strings.Join(serials, ",")
	}
	if info.HF2 {
		txt[TXTKeyHF2] = "1"
	}
	return txt
}

// DecodeServerTXT parses data server TXT records.
func DecodeServerTXT(txt TXTRecordMap) (*ServerInfo, error) {
	version, ok := txt[TXTKeyVersion]
	if !ok || version == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyVersion)
	}

	info := &ServerInfo{Version: version}
	if devices := txt[TXTKeyDevices]; devices != "" {
		for _, s := range strings.Split(devices, ",") {
			s = strings.ToLower(strings.TrimSpace(s))
			if s == "" {
				return nil, fmt.Errorf("%w: empty serial in %q", ErrInvalidTXTRecord, devices)
			}
			info.Serials = append(info.Serials, s)
		}
	}

	switch txt[TXTKeyHF2] {
	case "", "0":
	case "1":
		info.HF2 = true
	default:
		return nil, fmt.Errorf("%w: hf2=%q", ErrInvalidTXTRecord, txt[TXTKeyHF2])
	}
	return info, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	slices.Sort(result)
	return result
}

// StringsToTXTRecords parses "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, found := strings.Cut(s, "=")
		if k == "" {
			continue
		}
		if !found {
			// boolean flag
			v = ""
		}
		txt[k] = v
	}
	return txt
}

func txtSize(strs []string) int {
	n := 0
	for _, s := range strs {
		n += len(s) + 1
	}
	return n
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: instance name", ErrMissingRequired)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}
