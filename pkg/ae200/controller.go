package ae200

import (
	"context"
	"fmt"
)

// Controller enumerates the groups behind one AE-200 address.
type Controller struct {
	exec    Executor
	address string
	opts    []DeviceOption
}

// NewController creates a Controller for address. The device options are
// applied to every Device it creates.
func NewController(exec Executor, address string, opts ...DeviceOption) *Controller {
	return &Controller{exec: exec, address: address, opts: opts}
}

// Address returns the controller address.
func (c *Controller) Address() string { return c.address }

// Records requests the group list.
func (c *Controller) Records(ctx context.Context) ([]DeviceRecord, error) {
	return c.exec.ListUnits(ctx, c.address)
}

// ListDevices requests the group list and creates one Device per record, in
// controller order. Each Device fetches its own attributes, so this costs one
// round trip plus one per group.
func (c *Controller) ListDevices(ctx context.Context) ([]*Device, error) {
	records, err := c.Records(ctx)
	if err != nil {
		return nil, err
	}

	devices := make([]*Device, 0, len(records))
	for _, r := range records {
		dev, err := NewDevice(ctx, c.exec, c.address, r.ID, r.Name, c.opts...)
		if err != nil {
			return nil, fmt.Errorf("group %s (%s): %w", r.ID, r.Name, err)
		}
		devices = append(devices, dev)
	}
	return devices, nil
}
