package session

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const sessionFormatVersionCurrent = 1

const maxRoles = 255

// Encode serializes a [Session] into the compact binary record stored in
// Redis. The session ID is the Redis key and is not part of the blob.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionFormatVersionCurrent)

	if len(s.PrincipalID) > 255 {
		return nil, errors.New("principalID too long")
	}
	buf.WriteByte(byte(len(s.PrincipalID)))
	buf.WriteString(s.PrincipalID)

	if len(s.Roles) > maxRoles {
		return nil, errors.New("too many roles")
	}
	buf.WriteByte(byte(len(s.Roles)))
	for _, role := range s.Roles {
		if len(role) > 255 {
			return nil, errors.New("role too long")
		}
		buf.WriteByte(byte(len(role)))
		buf.WriteString(role)
	}

	if s.Revoked {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.LastSeenAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a binary session record. It returns [ErrSessionCorrupt] for
// any truncated or malformed blob.
func Decode(data []byte) (*Session, error) {
	if len(data) < 2 {
		return nil, ErrSessionCorrupt
	}

	version := data[0]
	if version != sessionFormatVersionCurrent {
		return nil, ErrSessionCorrupt
	}
	idx := 1

	principalID, next, ok := readString(data, idx)
	if !ok {
		return nil, ErrSessionCorrupt
	}
	idx = next

	if idx >= len(data) {
		return nil, ErrSessionCorrupt
	}
	roleCount := int(data[idx])
	idx++

	var roles []string
	if roleCount > 0 {
		roles = make([]string, 0, roleCount)
		for i := 0; i < roleCount; i++ {
			role, next, ok := readString(data, idx)
			if !ok {
				return nil, ErrSessionCorrupt
			}
			roles = append(roles, role)
			idx = next
		}
	}

	if idx >= len(data) {
		return nil, ErrSessionCorrupt
	}
	revoked := data[idx] == 1
	idx++

	if len(data) < idx+24 {
		return nil, ErrSessionCorrupt
	}

	createdAt := int64(binary.BigEndian.Uint64(data[idx:]))
	expiresAt := int64(binary.BigEndian.Uint64(data[idx+8:]))
	lastSeenAt := int64(binary.BigEndian.Uint64(data[idx+16:]))

	return &Session{
		PrincipalID: principalID,
		Roles:       roles,
		Revoked:     revoked,
		CreatedAt:   createdAt,
		ExpiresAt:   expiresAt,
		LastSeenAt:  lastSeenAt,
	}, nil
}

func readString(data []byte, idx int) (string, int, bool) {
	if idx >= len(data) {
		return "", 0, false
	}
	n := int(data[idx])
	idx++
	if len(data) < idx+n {
		return "", 0, false
	}
	return string(data[idx : idx+n]), idx + n, true
}
