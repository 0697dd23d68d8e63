package util

import (
	"regexp"
	"sort"
	"strings"
)

var parseInterfaceRegexp = regexp.MustCompile(`^([A-Za-z-]+)([0-9][0-9/]*)$`)

// ParseInterfaceName splits an interface name into its type, its numbering
// and subinterface: ("GigabitEthernet", "0/0/0/1", "100") for
// GigabitEthernet0/0/0/1.100.
func ParseInterfaceName(name string) (ifType string, num string, subintf string) {
	name, subintf, _ = strings.Cut(name, ".")
	if m := parseInterfaceRegexp.FindStringSubmatch(name); len(m) == 3 {
		return m[1], m[2], subintf
	}
	return name, "", subintf
}

// Interface name mappings (long <-> short)
var (
	// longToShort maps full interface type names to abbreviations
	longToShort = map[string]string{
		"GigabitEthernet": "Gi",
		"TenGigE":         "Te",
		"FortyGigE":       "Fo",
		"HundredGigE":     "Hu",
		"Bundle-Ether":    "BE",
		"Loopback":        "Lo",
		"MgmtEth":         "Mg",
		"Ethernet":        "Et",
		"Port-Channel":    "Po",
		"Vlan":            "Vl",
	}

	// shortToLong maps lowercase abbreviations to full type names
	shortToLong = map[string]string{
		"gi":   "GigabitEthernet",
		"te":   "TenGigE",
		"hu":   "HundredGigE",
		"be":   "Bundle-Ether",
		"lo":   "Loopback",
		"mg":   "MgmtEth",
		"fo":   "FortyGigE",
		"et":   "Ethernet",
		"eth":  "Ethernet",
		"po":   "Port-Channel",
		"vl":   "Vlan",
		"vlan": "Vlan",
	}

	// shortToLongSorted contains abbreviation keys sorted longest-first
	// so that "vlan" is matched before "vl" in NormalizeInterfaceName.
	shortToLongSorted []string
)

func init() {
	shortToLongSorted = make([]string, 0, len(shortToLong))
	for k := range shortToLong {
		shortToLongSorted = append(shortToLongSorted, k)
	}
	sort.Slice(shortToLongSorted, func(i, j int) bool {
		if len(shortToLongSorted[i]) != len(shortToLongSorted[j]) {
			return len(shortToLongSorted[i]) > len(shortToLongSorted[j])
		}
		return shortToLongSorted[i] < shortToLongSorted[j]
	})
}

// ShortenInterfaceName converts a full interface name to short form:
// GigabitEthernet0/0/0/1 -> Gi0/0/0/1, Bundle-Ether10.100 -> BE10.100.
// Unknown types are returned unchanged.
func ShortenInterfaceName(name string) string {
	ifType, num, subintf := ParseInterfaceName(name)
	short, ok := longToShort[ifType]
	if !ok || num == "" {
		return name
	}
	result := short + num
	if subintf != "" {
		result += "." + subintf
	}
	return result
}

// NormalizeInterfaceName expands an abbreviated interface name the way the
// device CLI accepts it: gi0/0/0/1 -> GigabitEthernet0/0/0/1, be10 ->
// Bundle-Ether10. Full or unknown names are returned unchanged.
func NormalizeInterfaceName(name string) string {
	name = strings.TrimSpace(name)
	ifType, num, subintf := ParseInterfaceName(name)
	if num == "" {
		return name
	}
	if _, ok := longToShort[ifType]; ok {
		return name
	}
	lower := strings.ToLower(ifType)
	for _, abbr := range shortToLongSorted {
		if lower == abbr {
			result := shortToLong[abbr] + num
			if subintf != "" {
				result += "." + subintf
			}
			return result
		}
	}
	return name
}
