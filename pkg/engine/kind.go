package engine

import (
	"fmt"
	"strings"
)

// Kind is the category of a declared entity.
type Kind int

// Entity kinds known to the interpreter.
const (
	KindVariable Kind = iota
	KindConstraint
	KindObjective
	KindSet
	KindParameter
)

var kindNames = [...]string{
	KindVariable:   "variable",
	KindConstraint: "constraint",
	KindObjective:  "objective",
	KindSet:        "set",
	KindParameter:  "parameter",
}

// Kinds returns all entity kinds in a stable order.
func Kinds() []Kind {
	return []Kind{KindVariable, KindConstraint, KindObjective, KindSet, KindParameter}
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	return k >= 0 && int(k) < len(kindNames)
}

// ParseKind parses a kind name. Plural forms ("variables") are accepted.
func ParseKind(s string) (Kind, error) {
	name := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s")
	for i, n := range kindNames {
		if n == name {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown entity kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid entity kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Handle is an opaque, non-owning reference to an entity living inside
// the interpreter. Only the engine that issued it can interpret Token.
type Handle struct {
	Kind       Kind   `json:"kind"`
	Name       string `json:"name"`
	IndexArity int    `json:"index_arity"`
	Token      uint64 `json:"token,omitempty"`
}
