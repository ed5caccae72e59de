package badger

import (
	"encoding/binary"

	"github.com/poiesic/recall/core"
)

// Key prefixes for different data types
const (
	userPrefix        = "usr"
	userIDSeq         = "usrseq"
	groupPrefix       = "grp"
	groupMemberPrefix = "grpmem"
	groupIDSeq        = "grpseq"
	storePrefix       = "mst"
	storeOwnerPrefix  = "mstown"
	storeIDSeq        = "mstseq"
	memoryPrefix      = "mem"
	memoryStorePrefix = "memsto"
	memoryIDSeq       = "memseq"
	referencePrefix   = "ref"
	checkpointPrefix  = "chkpt"
)

// makeKey builds prefix:part1part2... with every part written in BigEndian order
// so lexicographic sort matches numeric order.
func makeKey(prefix string, parts ...uint64) []byte {
	buf := make([]byte, len(prefix)+1+8*len(parts))
	offset := copy(buf, prefix)
	buf[offset] = ':'
	offset++
	for _, p := range parts {
		binary.BigEndian.PutUint64(buf[offset:], p)
		offset += 8
	}
	return buf
}

// keySuffixID reads the trailing 8-byte ID of a composite key.
func keySuffixID(key []byte) core.ID {
	if len(key) < 8 {
		return 0
	}
	return core.ID(binary.BigEndian.Uint64(key[len(key)-8:]))
}

func makeUserKey(id core.ID) []byte { return makeKey(userPrefix, uint64(id)) }

func makeGroupKey(id core.ID) []byte { return makeKey(groupPrefix, uint64(id)) }

// makeGroupMemberKey indexes group membership by user.
// Format: prefix:userID:groupID
func makeGroupMemberKey(userID, groupID core.ID) []byte {
	return makeKey(groupMemberPrefix, uint64(userID), uint64(groupID))
}

func makeStoreKey(id core.ID) []byte { return makeKey(storePrefix, uint64(id)) }

// makeStoreOwnerKey indexes stores by owner.
// Format: prefix:ownerKind:ownerID:storeID
func makeStoreOwnerKey(owner core.Owner, storeID core.ID) []byte {
	return makeKey(storeOwnerPrefix, uint64(owner.Kind), uint64(owner.ID), uint64(storeID))
}

func makePartialStoreOwnerKey(owner core.Owner) []byte {
	return makeKey(storeOwnerPrefix, uint64(owner.Kind), uint64(owner.ID))
}

func makeMemoryKey(id core.ID) []byte { return makeKey(memoryPrefix, uint64(id)) }

// makeMemoryStoreKey indexes memories by the store that contains them.
// Format: prefix:storeID:memoryID
func makeMemoryStoreKey(storeID, memoryID core.ID) []byte {
	return makeKey(memoryStorePrefix, uint64(storeID), uint64(memoryID))
}

func makeReferenceKey(id core.ID) []byte { return makeKey(referencePrefix, uint64(id)) }

func makeCheckpointKey(name string) []byte {
	return []byte(checkpointPrefix + ":" + name)
}
