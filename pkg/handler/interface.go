package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/newtron-network/newtcli/pkg/cache"
	"github.com/newtron-network/newtcli/pkg/session"
)

// InterfaceDescriptionPath is the registry path of the description handler.
const InterfaceDescriptionPath = "interface-description"

const showInterfaces = "show running-config interface"

// InterfaceDescription is the description line of one interface.
type InterfaceDescription struct {
	Interface   string
	Description string
}

func (d *InterfaceDescription) Key() string { return d.Interface }

func (d *InterfaceDescription) Fields() map[string]string {
	return map[string]string{"description": d.Description}
}

// InterfaceDescriptions handles interface descriptions. Interfaces
// themselves are never created or removed; Delete clears the description.
type InterfaceDescriptions struct{}

func (InterfaceDescriptions) Path() string { return InterfaceDescriptionPath }

func (InterfaceDescriptions) Decode(key string, fields map[string]string) (Data, error) {
	if key == "" || strings.ContainsAny(key, " \t") {
		return nil, fmt.Errorf("invalid interface name %q", key)
	}
	desc := fields["description"]
	if strings.ContainsAny(desc, "\r\n") {
		return nil, fmt.Errorf("interface %s: description must be one line", key)
	}
	return &InterfaceDescription{Interface: key, Description: desc}, nil
}

func (h InterfaceDescriptions) Read(ctx context.Context, dev Device, rc *cache.ReadContext, key string) (Data, error) {
	all, err := h.ReadList(ctx, dev, rc)
	if err != nil {
		return nil, err
	}
	for _, d := range all {
		if d.Key() == key {
			return d, nil
		}
	}
	return nil, nil
}

func (InterfaceDescriptions) ReadList(ctx context.Context, dev Device, rc *cache.ReadContext) ([]Data, error) {
	out, err := dev.BlockingRead(ctx, rc, showInterfaces)
	if err != nil {
		return nil, err
	}
	var (
		list []Data
		cur  *InterfaceDescription
	)
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r ")
		switch {
		case strings.HasPrefix(line, "interface "):
			cur = &InterfaceDescription{Interface: strings.TrimSpace(strings.TrimPrefix(line, "interface "))}
			list = append(list, cur)
		case cur != nil && strings.HasPrefix(strings.TrimSpace(line), "description "):
			cur.Description = strings.TrimPrefix(strings.TrimSpace(line), "description ")
		case line == "!":
			cur = nil
		}
	}
	return list, nil
}

func (h InterfaceDescriptions) Write(ctx context.Context, dev Device, after Data) error {
	return h.set(ctx, dev, session.WriteCreate, after)
}

func (h InterfaceDescriptions) Update(ctx context.Context, dev Device, before, after Data) error {
	return h.set(ctx, dev, session.WriteUpdate, after)
}

func (InterfaceDescriptions) set(ctx context.Context, dev Device, op session.WriteOp, after Data) error {
	d, err := asInterfaceDescription(after)
	if err != nil {
		return err
	}
	line := "no description"
	if d.Description != "" {
		line = "description " + d.Description
	}
	_, err = dev.BlockingWriteAndRead(ctx, op, "interface "+d.Interface, line, "exit")
	return err
}

func (InterfaceDescriptions) Delete(ctx context.Context, dev Device, before Data) error {
	d, err := asInterfaceDescription(before)
	if err != nil {
		return err
	}
	_, err = dev.BlockingDeleteAndRead(ctx, "interface "+d.Interface, "no description", "exit")
	return err
}

func asInterfaceDescription(d Data) (*InterfaceDescription, error) {
	v, ok := d.(*InterfaceDescription)
	if !ok || v == nil {
		return nil, fmt.Errorf("interface-description handler: unexpected record %T", d)
	}
	return v, nil
}
