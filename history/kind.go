package history

import (
	"strconv"
	"strings"

	apperrors "github.com/kbukum/dbfixture/errors"
)

// Kind is the kind of change a ledger records.
type Kind int

const (
	Created Kind = iota
	Updated
	Deleted
)

var kindNames = [...]string{Created: "created", Updated: "updated", Deleted: "deleted"}

func (k Kind) String() string {
	if k.valid() {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

func (k Kind) valid() bool { return k >= Created && k <= Deleted }

// ParseKind parses "created", "updated" or "deleted".
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if strings.EqualFold(s, name) {
			return Kind(k), nil
		}
	}
	return 0, apperrors.InvalidMode(s)
}
