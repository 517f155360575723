// Package common contains small shared types used throughout the engine core.
// They are plain structs/values, not interface-wrapped components.
package common

// StageMask is a pipeline-stage bitmask shared by synchronization operations.
// It mirrors VkPipelineStageFlags2 without binding callers to the Vulkan binding's
// type so that syncfab, resource, and transfer can all speak the same
// currency without importing each other.
type StageMask uint64

// AccessMask is a memory-access bitmask shared by synchronization operations.
// It mirrors VkAccessFlags2.
type AccessMask uint64

// ImageLayout mirrors VkImageLayout for texture resource-state tracking.
type ImageLayout int32

// QueueFamilyIndex identifies a device queue family. IgnoredFamily means
// "no ownership transfer requested" (VK_QUEUE_FAMILY_IGNORED).
type QueueFamilyIndex int32

// IgnoredFamily is the sentinel meaning "do not perform a queue-family
// ownership transfer", matching VK_QUEUE_FAMILY_IGNORED.
const IgnoredFamily QueueFamilyIndex = -1
