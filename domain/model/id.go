package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	JobPrefix     = "job"
	FactoryPrefix = "factory"
)

// NewPrefixedID returns "<prefix>-<uuid4>". The prefix itself must not contain a dash.
func NewPrefixedID(prefix string) string {
	if prefix == "" || strings.Contains(prefix, "-") {
		panic(fmt.Sprintf("invalid id prefix %q", prefix))
	}
	return prefix + "-" + uuid.NewString()
}

// ParsePrefixedID returns the canonical uuid part of id, or ErrInvalidID.
func ParsePrefixedID(prefix, id string) (string, error) {
	rest, ok := strings.CutPrefix(id, prefix+"-")
	if !ok {
		return "", ErrInvalidID
	}
	u, err := uuid.Parse(rest)
	// only the canonical lowercase form is accepted, ids end up as directory names
	if err != nil || u.String() != rest {
		return "", ErrInvalidID
	}
	return u.String(), nil
}

// IsPrefixedID reports whether id is a well formed "<prefix>-<uuid>" identifier.
func IsPrefixedID(prefix, id string) bool {
	_, err := ParsePrefixedID(prefix, id)
	return err == nil
}
