package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateStoreName(t *testing.T) {
	valid := []string{DefaultStore, MetadataStore, "my-store_1"}
	for _, name := range valid {
		if err := ValidateStoreName(name); err != nil {
			t.Errorf("ValidateStoreName(%q) = %v", name, err)
		}
	}
	invalid := []string{"", "a:b", "a*", "with space", strings.Repeat("x", MaxStoreNameLength+1)}
	for _, name := range invalid {
		if err := ValidateStoreName(name); !errors.Is(err, ErrInvalidSchema) {
			t.Errorf("ValidateStoreName(%q) = %v, want ErrInvalidSchema", name, err)
		}
	}
}
