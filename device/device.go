package device

import (
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/oxy-vk/render-engine/common"
)

// Device owns the physical/logical device handles and every queue family
// wrapper built from them. Created at engine init and destroyed on
// shutdown; destruction must wait for the device to go idle first (see
// WaitIdle), matching spec.md's lifecycle summary for "Device/engine".
type Device struct {
	physical vk.PhysicalDevice
	logical  vk.Device

	mu       sync.RWMutex
	families map[common.QueueFamilyIndex]*QueueFamily
}

// NewDevice wraps already-created physical/logical device handles. Queue
// families are registered afterward via RegisterFamily, once the caller
// has retrieved the VkQueue handles for each family it intends to use.
func NewDevice(physical vk.PhysicalDevice, logical vk.Device) *Device {
	return &Device{physical: physical, logical: logical, families: make(map[common.QueueFamilyIndex]*QueueFamily)}
}

// Physical returns the underlying VkPhysicalDevice.
func (d *Device) Physical() vk.PhysicalDevice { return d.physical }

// Logical returns the underlying VkDevice.
func (d *Device) Logical() vk.Device { return d.logical }

// RegisterFamily adds a QueueFamily to this device's registry.
func (d *Device) RegisterFamily(family *QueueFamily) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.families[family.Index()] = family
}

// Family returns the registered QueueFamily for index, or
// common.KindQueueUnavailable if none is registered.
func (d *Device) Family(index common.QueueFamilyIndex) (*QueueFamily, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	f, ok := d.families[index]
	if !ok {
		return nil, common.NewError("Device.Family", common.KindQueueUnavailable,
			fmt.Errorf("no queue family registered for index %d", index))
	}
	return f, nil
}

// WaitIdle blocks until every queue on the device has finished executing,
// mirroring vkDeviceWaitIdle. Must be called before tearing down any
// command pool or resource owned by this device.
func (d *Device) WaitIdle() error {
	if ret := vk.DeviceWaitIdle(d.logical); ret != vk.Success {
		return common.NewError("Device.WaitIdle", common.KindDeviceLost,
			fmt.Errorf("vkDeviceWaitIdle returned %d", ret))
	}
	return nil
}
