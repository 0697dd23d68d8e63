package util

import (
	"reflect"
	"testing"
)

func TestExpandRange(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		want    []int
		wantErr bool
	}{
		{name: "single value", expr: "5", want: []int{5}},
		{name: "simple range", expr: "1-5", want: []int{1, 2, 3, 4, 5}},
		{name: "comma separated", expr: "1,3,5", want: []int{1, 3, 5}},
		{name: "mixed", expr: "1-3,5,7-9", want: []int{1, 2, 3, 5, 7, 8, 9}},
		{name: "with spaces", expr: "1 - 3, 5", want: []int{1, 2, 3, 5}},
		{name: "duplicates removed", expr: "1-3,2-4", want: []int{1, 2, 3, 4}},
		{name: "empty parts", expr: "1, , 3", want: []int{1, 3}},
		{name: "empty string", expr: "", want: nil},
		{name: "invalid - start > end", expr: "5-1", wantErr: true},
		{name: "invalid - not a number", expr: "abc", wantErr: true},
		{name: "invalid - end value", expr: "1-abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandRange(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ExpandRange(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
				return
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExpandRange(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestExpandVLANRange(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		want    []int
		wantErr bool
	}{
		{name: "valid range", expr: "100-105,200", want: []int{100, 101, 102, 103, 104, 105, 200}},
		{name: "single vlan", expr: "100", want: []int{100}},
		{name: "invalid - vlan 0", expr: "0", wantErr: true},
		{name: "invalid - vlan too high", expr: "4095", wantErr: true},
		{name: "invalid - includes bad vlan", expr: "4090-4095", wantErr: true},
		{name: "invalid - format", expr: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandVLANRange(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ExpandVLANRange(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
				return
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExpandVLANRange(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestIsRange(t *testing.T) {
	for key, want := range map[string]bool{"30": false, "30-32": true, "30,40": true, "Gi0/0/0/1": false} {
		if got := IsRange(key); got != want {
			t.Errorf("IsRange(%q) = %v, want %v", key, got, want)
		}
	}
}
