package util

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// VLAN IDs a device accepts.
const (
	MinVLANID = 1
	MaxVLANID = 4094
)

// ExpandRange expands a range specification into sorted, distinct values:
//   - "1-5" -> [1, 2, 3, 4, 5]
//   - "1,3,5" -> [1, 3, 5]
//   - "1-3,5,7-9" -> [1, 2, 3, 5, 7, 8, 9]
func ExpandRange(expr string) ([]int, error) {
	if expr == "" {
		return nil, nil
	}

	var result []int
	for _, part := range strings.Split(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		lo, hi, isRange := strings.Cut(part, "-")
		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid value in %q", part)
		}
		end := start
		if isRange {
			if end, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
				return nil, fmt.Errorf("invalid end value in range %q", part)
			}
		}
		if start > end {
			return nil, fmt.Errorf("start value %d greater than end value %d in range %q", start, end, part)
		}
		for i := start; i <= end; i++ {
			result = append(result, i)
		}
	}

	sort.Ints(result)
	return dedupInts(result), nil
}

// IsRange reports whether key is range notation rather than a single value.
func IsRange(key string) bool {
	return strings.ContainsAny(key, ",-")
}

func dedupInts(sorted []int) []int {
	if len(sorted) == 0 {
		return sorted
	}
	result := []int{sorted[0]}
	for _, v := range sorted[1:] {
		if v != result[len(result)-1] {
			result = append(result, v)
		}
	}
	return result
}

// ExpandVLANRange expands VLAN range notation and checks every ID.
// "100-105,200" -> [100, 101, 102, 103, 104, 105, 200]
func ExpandVLANRange(expr string) ([]int, error) {
	vlans, err := ExpandRange(expr)
	if err != nil {
		return nil, err
	}
	for _, id := range vlans {
		if id < MinVLANID || id > MaxVLANID {
			return nil, fmt.Errorf("vlan id %d must be %d-%d", id, MinVLANID, MaxVLANID)
		}
	}
	return vlans, nil
}
