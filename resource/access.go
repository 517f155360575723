package resource

import "github.com/oxy-vk/render-engine/common"

// canMakeChangesOnMemory reports whether access is one of the write-mask
// flags in the GLOSSARY's explicit set — i.e. whether a barrier's source
// side actually needs to flush caches for this access, as opposed to a
// read-only access that has nothing to flush.
func canMakeChangesOnMemory(access common.AccessMask) bool {
	return common.WriteAccessFlags[access]
}

// narrowSource applies access-flag narrowing (spec.md §4.3 item 3): if the
// current state's access flag is not a write flag, its stage/access are
// rewritten to NONE before being used as a barrier's source side, since a
// read never needs to flush caches for a subsequent access.
func narrowSource(s State) State {
	if canMakeChangesOnMemory(s.Access) {
		return s
	}
	return s.WithStage(common.StageNone).WithAccess(common.AccessNone)
}
