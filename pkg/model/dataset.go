package model

import (
	"path"
	"strings"
	"unicode"
)

// DatasetRef identifies a dataset within an organization
type DatasetRef struct {
	Org  string `json:"org" yaml:"org"`
	Name string `json:"name" yaml:"name"`
	_    struct{}
}

// NewDatasetRef builds a validated dataset reference
func NewDatasetRef(org, name string) (DatasetRef, error) {
	ref := DatasetRef{Org: org, Name: name}
	return ref, ref.Validate()
}

// ParseDatasetRef parses a reference written as "{org}/{dataset}"
func ParseDatasetRef(s string) (DatasetRef, error) {
	org, name, ok := strings.Cut(s, "/")
	if !ok {
		return DatasetRef{}, ErrInvalidDataset.WrapMessage("expected {org}/{dataset}, got %q", s)
	}
	return NewDatasetRef(org, name)
}

func (r DatasetRef) String() string {
	return path.Join(r.Org, r.Name)
}

// IsZero tells if the reference is not set
func (r DatasetRef) IsZero() bool {
	return r.Org == "" && r.Name == ""
}

// Validate a dataset reference.
//
// Names may contain letters, digits, '-', '_' and '.', but may not start with a '.'.
func (r DatasetRef) Validate() error {
	if err := validateName("organization", r.Org); err != nil {
		return err
	}
	return validateName("dataset", r.Name)
}

func validateName(kind, name string) error {
	if name == "" {
		return ErrInvalidDataset.WrapMessage("%s name is empty", kind)
	}
	if strings.HasPrefix(name, ".") {
		return ErrInvalidDataset.WrapMessage("%s name %q may not start with a dot", kind, name)
	}
	for _, c := range name {
		if !unicode.IsDigit(c) && !unicode.IsLetter(c) && !unicode.Is(unicode.Hyphen, c) && c != '_' && c != '.' {
			return ErrInvalidDataset.WrapMessage("%s name %q contains unsupported character %q", kind, name, string(c))
		}
	}
	return nil
}
