package content

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xmtp/libxmtp-sub003/internal/wire"
)

type ContentTypeID struct {
	AuthorityID  string
	TypeID       string
	VersionMajor uint32
	VersionMinor uint32
}

// ID is the registry key, authority:type:major.minor.
func (c ContentTypeID) ID() string {
	return fmt.Sprintf("%s:%s:%d.%d", c.AuthorityID, c.TypeID, c.VersionMajor, c.VersionMinor)
}

// LegacyID omits the version.
func (c ContentTypeID) LegacyID() string {
	return c.AuthorityID + ":" + c.TypeID
}

func (c ContentTypeID) String() string {
	return c.ID()
}

func (c ContentTypeID) SameType(other ContentTypeID) bool {
	return c.AuthorityID == other.AuthorityID && c.TypeID == other.TypeID
}

// ParseContentTypeID accepts authority:type:major.minor, the
// authority/type:major.minor form some clients emit, and the unversioned
// legacy form.
func ParseContentTypeID(s string) (ContentTypeID, error) {
	s = strings.Replace(s, "/", ":", 1)
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 2:
		if parts[0] == "" || parts[1] == "" {
			break
		}
		return ContentTypeID{AuthorityID: parts[0], TypeID: parts[1]}, nil
	case 3:
		if parts[0] == "" || parts[1] == "" {
			break
		}
		major, minor, ok := strings.Cut(parts[2], ".")
		if !ok {
			break
		}
		maj, err := strconv.ParseUint(major, 10, 32)
		if err != nil {
			break
		}
		mnr, err := strconv.ParseUint(minor, 10, 32)
		if err != nil {
			break
		}
		return ContentTypeID{AuthorityID: parts[0], TypeID: parts[1], VersionMajor: uint32(maj), VersionMinor: uint32(mnr)}, nil
	}
	return ContentTypeID{}, fmt.Errorf("%w: content type %q", ErrMalformedContent, s)
}

func (c ContentTypeID) Marshal() []byte {
	e := wire.NewEncoder()
	e.String(1, c.AuthorityID)
	e.String(2, c.TypeID)
	e.Uint32(3, c.VersionMajor)
	e.Uint32(4, c.VersionMinor)
	return e.Result()
}

func UnmarshalContentTypeID(b []byte) (ContentTypeID, error) {
	var c ContentTypeID
	err := wire.Parse(b, func(f wire.Field) error {
		var err error
		switch f.Num {
		case 1:
			c.AuthorityID, err = f.String()
		case 2:
			c.TypeID, err = f.String()
		case 3:
			c.VersionMajor, err = f.Uint32()
		case 4:
			c.VersionMinor, err = f.Uint32()
		}
		return err
	})
	return c, err
}
