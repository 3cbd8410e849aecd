package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// Version 2 added the step-up pending flag. Version 3 stores challenge times
// in milliseconds instead of seconds.
const (
	sessionFormatVersionCurrent = 3
	sessionFormatVersionV2      = 2
	sessionFormatVersionV1      = 1
)

const (
	flagReAuthenticated byte = 1 << iota
	flagStepUpPending
	flagWarning
	flagChallenge
)

// Encode serializes a session into the compact binary record stored in Redis.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionFormatVersionCurrent)

	if err := writeString(&buf, s.PrincipalID, 255, "principalID too long"); err != nil {
		return nil, err
	}
	if err := writeString(&buf, s.Contact, 255, "contact too long"); err != nil {
		return nil, err
	}
	if len(s.RetryPath) > 65535 {
		return nil, errors.New("retry path too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(s.RetryPath))); err != nil {
		return nil, err
	}
	buf.WriteString(s.RetryPath)

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.TTLSeconds); err != nil {
		return nil, err
	}

	var flags byte
	if s.ReAuthenticated {
		flags |= flagReAuthenticated
	}
	if s.StepUpPending {
		flags |= flagStepUpPending
	}
	if s.Warning {
		flags |= flagWarning
	}
	if s.Challenge != nil {
		flags |= flagChallenge
	}
	buf.WriteByte(flags)

	if s.Challenge != nil {
		buf.Write(s.Challenge.CodeHash[:])
		if err := binary.Write(&buf, binary.BigEndian, s.Challenge.IssuedAtMillis); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.BigEndian, s.Challenge.ExpiresAtMillis); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// Decode parses a binary session record. Version 1 records predate the
// step-up pending flag and decode with it unset. Challenge times in version 1
// and 2 records are seconds and are scaled on read.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version < sessionFormatVersionV1 || version > sessionFormatVersionCurrent {
		return nil, errors.New("invalid session version")
	}

	s := &Session{}

	if s.PrincipalID, err = readString(reader); err != nil {
		return nil, err
	}
	if s.Contact, err = readString(reader); err != nil {
		return nil, err
	}

	var retryLen uint16
	if err := binary.Read(reader, binary.BigEndian, &retryLen); err != nil {
		return nil, err
	}
	retry := make([]byte, retryLen)
	if _, err := io.ReadFull(reader, retry); err != nil {
		return nil, err
	}
	s.RetryPath = string(retry)

	if err := binary.Read(reader, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.TTLSeconds); err != nil {
		return nil, err
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	s.ReAuthenticated = flags&flagReAuthenticated != 0
	s.Warning = flags&flagWarning != 0
	if version >= sessionFormatVersionV2 {
		s.StepUpPending = flags&flagStepUpPending != 0
	}

	if flags&flagChallenge != 0 {
		c := &PendingChallenge{}
		if _, err := io.ReadFull(reader, c.CodeHash[:]); err != nil {
			return nil, err
		}
		if err := binary.Read(reader, binary.BigEndian, &c.IssuedAtMillis); err != nil {
			return nil, err
		}
		if err := binary.Read(reader, binary.BigEndian, &c.ExpiresAtMillis); err != nil {
			return nil, err
		}
		if version < sessionFormatVersionCurrent {
			c.IssuedAtMillis *= 1000
			c.ExpiresAtMillis *= 1000
		}
		s.Challenge = c
	}

	if reader.Len() != 0 {
		return nil, errors.New("trailing session bytes")
	}

	return s, nil
}

func writeString(buf *bytes.Buffer, v string, max int, msg string) error {
	if len(v) > max {
		return errors.New(msg)
	}
	buf.WriteByte(byte(len(v)))
	buf.WriteString(v)
	return nil
}

func readString(reader *bytes.Reader) (string, error) {
	n, err := reader.ReadByte()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(reader, b); err != nil {
		return "", err
	}
	return string(b), nil
}
