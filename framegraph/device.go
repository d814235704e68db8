// Copyright (c) 2022, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package framegraph

import (
	"sync"

	vk "github.com/goki/vulkan"
)

// queueBinding is one logical queue's chosen backing: the caller's
// VkQueue handle, its family index, and a mutex serializing submission
// on it (submission to one queue is always serialized).
type queueBinding struct {
	queue  vk.Queue
	family uint32
	name   string
	mu     sync.Mutex
}

// Device wraps the caller-supplied logical device and binds up to
// three logical queue roles -- graphics, async-compute, async-transfer
// -- onto the caller's actual device queues.
type Device struct {
	GPU    *GPU
	Device vk.Device
	queues [queueKindN]*queueBinding
}

// NewDevice binds logical queue roles onto the queues listed in info,
// following the selection rule: prefer a queue whose capability set is
// unique among the remaining candidates and disjoint from roles
// already bound, falling back to sharing a family when no unique
// queue is available. Graphics is bound first since every other role
// can fall back to it.
func NewDevice(gp *GPU, info DeviceInfo) (*Device, error) {
	if len(info.Queues) == 0 {
		return nil, newErr(ConfigError, "NewDevice", "", errNoQueues)
	}
	dv := &Device{GPU: gp, Device: info.Device}

	order := [...]struct {
		kind QueueKind
		want vk.QueueFlagBits
		name string
	}{
		{GraphicsQueue, vk.QueueGraphicsBit, "graphics"},
		{AsyncComputeQueue, vk.QueueComputeBit, "async-compute"},
		{AsyncTransferQueue, vk.QueueTransferBit, "async-transfer"},
	}

	chosen := make(map[uint32]bool) // families already bound to a role
	for _, o := range order {
		rec, ok := chooseQueue(info.Queues, o.want, chosen)
		if !ok {
			if o.kind == GraphicsQueue {
				return nil, newErr(ConfigError, "NewDevice", "graphics", errNoSuitableQueue)
			}
			// No dedicated queue for this role: fall back to graphics.
			rec, ok = chooseQueue(info.Queues, vk.QueueGraphicsBit, nil)
			if !ok {
				return nil, newErr(ConfigError, "NewDevice", o.name, errNoSuitableQueue)
			}
		}
		dv.queues[o.kind] = &queueBinding{queue: rec.Queue, family: rec.FamilyIndex, name: o.name}
		chosen[rec.FamilyIndex] = true
	}
	return dv, nil
}

// chooseQueue picks the best QueueRecord in records satisfying want: a
// queue whose family is not already in excluded and whose capability
// flags are the narrowest superset of want beats a broader one, so
// that a dedicated transfer-only queue is preferred over a
// graphics+compute+transfer queue when both qualify.
func chooseQueue(records []QueueRecord, want vk.QueueFlagBits, excluded map[uint32]bool) (QueueRecord, bool) {
	best := -1
	bestPopcount := 0
	for i, r := range records {
		if vk.QueueFlagBits(r.Capability)&want == 0 {
			continue
		}
		if excluded != nil && excluded[r.FamilyIndex] {
			continue
		}
		pc := popcount(uint32(r.Capability))
		if best < 0 || pc < bestPopcount {
			best = i
			bestPopcount = pc
		}
	}
	if best < 0 {
		return QueueRecord{}, false
	}
	return records[best], true
}

func popcount(x uint32) int {
	n := 0
	for x != 0 {
		n += int(x & 1)
		x >>= 1
	}
	return n
}

// Queue returns the VkQueue bound to the given logical role.
func (dv *Device) Queue(kind QueueKind) vk.Queue { return dv.queues[kind].queue }

// QueueFamily returns the VkQueue family index bound to the given role.
func (dv *Device) QueueFamily(kind QueueKind) uint32 { return dv.queues[kind].family }

// WaitIdle blocks until every queued command on the device completes.
// It is one of the core's four blocking suspension points.
func (dv *Device) WaitIdle() error {
	return vkErr("Device.WaitIdle", vk.DeviceWaitIdle(dv.Device))
}

type errSentinel string

func (e errSentinel) Error() string { return string(e) }

const (
	errNoQueues        errSentinel = "DeviceInfo carries no queues"
	errNoSuitableQueue errSentinel = "no queue family exposes the required capability"
)
