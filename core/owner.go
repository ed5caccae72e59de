package core

import "fmt"

// OwnerKind discriminates the principal an Owner refers to.
type OwnerKind int

const (
	OwnerUser OwnerKind = iota + 1
	OwnerGroup
)

func (k OwnerKind) String() string {
	switch k {
	case OwnerUser:
		return "user"
	case OwnerGroup:
		return "group"
	default:
		return fmt.Sprintf("OwnerKind(%d)", int(k))
	}
}

// Owner identifies the single principal, a user or a group, that owns a store or memory.
type Owner struct {
	Kind OwnerKind
	ID   ID
}

// UserOwner returns an Owner for the given user.
func UserOwner(id ID) Owner { return Owner{Kind: OwnerUser, ID: id} }

// GroupOwner returns an Owner for the given group.
func GroupOwner(id ID) Owner { return Owner{Kind: OwnerGroup, ID: id} }

func (o Owner) IsZero() bool { return o.Kind == 0 && o.ID == 0 }

// Namespace returns the logical vector namespace for this owner, e.g. "user_42".
func (o Owner) Namespace() string {
	return fmt.Sprintf("%s_%d", o.Kind, o.ID)
}

func (o Owner) String() string { return o.Namespace() }

// Caller is the principal on whose behalf an operation runs, along with the
// groups whose records it may see.
type Caller struct {
	UserId ID
	Groups []ID
}

// Owners lists every owner visible to the caller, the caller's own user first.
func (c Caller) Owners() []Owner {
	owners := make([]Owner, 0, len(c.Groups)+1)
	owners = append(owners, UserOwner(c.UserId))
	for _, g := range c.Groups {
		owners = append(owners, GroupOwner(g))
	}
	return owners
}

// CanSee reports whether records owned by o are visible to the caller.
func (c Caller) CanSee(o Owner) bool {
	switch o.Kind {
	case OwnerUser:
		return o.ID == c.UserId
	case OwnerGroup:
		return c.InGroup(o.ID)
	default:
		return false
	}
}

// InGroup reports whether the caller belongs to groupID.
func (c Caller) InGroup(groupID ID) bool {
	for _, g := range c.Groups {
		if g == groupID {
			return true
		}
	}
	return false
}
