package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/newtron-network/newtcli/pkg/cache"
	"github.com/newtron-network/newtcli/pkg/session"
	"github.com/newtron-network/newtcli/pkg/util"
)

// VLANPath is the registry path of the VLAN handler.
const VLANPath = "vlan"

const showVLANs = "show running-config vlan"

// VLAN is one VLAN definition.
type VLAN struct {
	ID   int
	Name string
}

func (v *VLAN) Key() string { return strconv.Itoa(v.ID) }

func (v *VLAN) Fields() map[string]string {
	f := map[string]string{}
	if v.Name != "" {
		f["name"] = v.Name
	}
	return f
}

// VLANs handles the vlan subtree. Updates replace the whole VLAN: the old
// definition is removed before the new one is written.
type VLANs struct{}

func (VLANs) Path() string { return VLANPath }

func (VLANs) Decode(key string, fields map[string]string) (Data, error) {
	vb := &util.ValidationBuilder{}
	id, err := strconv.Atoi(key)
	vb.Add(err == nil && id >= util.MinVLANID && id <= util.MaxVLANID,
		fmt.Sprintf("vlan id %q must be %d-%d", key, util.MinVLANID, util.MaxVLANID))
	for k := range fields {
		vb.Add(k == "name", fmt.Sprintf("vlan %s: unknown field %q", key, k))
	}
	if err := vb.Build(); err != nil {
		return nil, err
	}
	return &VLAN{ID: id, Name: fields["name"]}, nil
}

// Read matches on the numeric ID, so "010" finds VLAN 10.
func (h VLANs) Read(ctx context.Context, dev Device, rc *cache.ReadContext, key string) (Data, error) {
	id, err := strconv.Atoi(key)
	if err != nil {
		return nil, fmt.Errorf("vlan id %q is not a number", key)
	}
	all, err := h.ReadList(ctx, dev, rc)
	if err != nil {
		return nil, err
	}
	for _, d := range all {
		if d.(*VLAN).ID == id {
			return d, nil
		}
	}
	return nil, nil
}

func (VLANs) ReadList(ctx context.Context, dev Device, rc *cache.ReadContext) ([]Data, error) {
	out, err := dev.BlockingRead(ctx, rc, showVLANs)
	if err != nil {
		return nil, err
	}
	return parseVLANs(out), nil
}

func (VLANs) Write(ctx context.Context, dev Device, after Data) error {
	v, err := asVLAN(after)
	if err != nil {
		return err
	}
	_, err = dev.BlockingWriteAndRead(ctx, session.WriteCreate, vlanCommands(v)...)
	return err
}

func (VLANs) Update(ctx context.Context, dev Device, before, after Data) error {
	v, err := asVLAN(after)
	if err != nil {
		return err
	}
	id := v.ID
	if before != nil {
		old, err := asVLAN(before)
		if err != nil {
			return err
		}
		id = old.ID
	}
	if _, err := dev.BlockingDeleteAndRead(ctx, fmt.Sprintf("no vlan %d", id)); err != nil {
		return err
	}
	_, err = dev.BlockingWriteAndRead(ctx, session.WriteUpdate, vlanCommands(v)...)
	return err
}

func (VLANs) Delete(ctx context.Context, dev Device, before Data) error {
	v, err := asVLAN(before)
	if err != nil {
		return err
	}
	_, err = dev.BlockingDeleteAndRead(ctx, fmt.Sprintf("no vlan %d", v.ID))
	return err
}

func vlanCommands(v *VLAN) []string {
	cmds := []string{fmt.Sprintf("vlan %d", v.ID)}
	if v.Name != "" {
		cmds = append(cmds, "name "+v.Name)
	}
	return append(cmds, "exit")
}

func asVLAN(d Data) (*VLAN, error) {
	v, ok := d.(*VLAN)
	if !ok || v == nil {
		return nil, fmt.Errorf("vlan handler: unexpected record %T", d)
	}
	return v, nil
}

// parseVLANs reads "vlan N" blocks from running-config output.
func parseVLANs(out string) []Data {
	var (
		list []Data
		cur  *VLAN
	)
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r ")
		fields := strings.Fields(line)
		switch {
		case len(fields) == 2 && fields[0] == "vlan" && !strings.HasPrefix(line, " "):
			id, err := strconv.Atoi(fields[1])
			if err != nil {
				cur = nil
				continue
			}
			cur = &VLAN{ID: id}
			list = append(list, cur)
		case cur != nil && len(fields) >= 2 && fields[0] == "name":
			cur.Name = strings.Join(fields[1:], " ")
		case line == "!":
			cur = nil
		}
	}
	return list
}
