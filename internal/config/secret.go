package config

// Secret holds a credential loaded from configuration. It redacts itself
// in every textual representation so it cannot leak through logs, error
// messages or serialized config dumps.
type Secret string

// Value returns the underlying secret string.
func (s Secret) Value() string { return string(s) }

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[redacted]"
}

func (s Secret) GoString() string { return s.String() }

func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

func (s Secret) MarshalYAML() (any, error) {
	return s.String(), nil
}
