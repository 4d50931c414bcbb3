package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveSchemaNameIsPureAndDeterministic(t *testing.T) {
	a := DeriveSchemaName("did:key:z6Mk...Example")
	b := DeriveSchemaName("did:key:z6Mk...Example")
	require.Equal(t, a, b)
}

func TestDeriveSchemaNameSanitizes(t *testing.T) {
	name := DeriveSchemaName("did:web:Example.COM:alice")
	require.Equal(t, strings.ToLower(name), name)
	for _, r := range name {
		ok := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_'
		require.True(t, ok, "unexpected character %q in %q", r, name)
	}
}

func TestDeriveSchemaNamePrefixesLeadingDigit(t *testing.T) {
	name := DeriveSchemaName("123abc")
	require.False(t, name[0] >= '0' && name[0] <= '9')
}

func TestDeriveSchemaNameTruncatesAndHashesLongNames(t *testing.T) {
	long := "did:" + strings.Repeat("x", 100)
	name := DeriveSchemaName(long)
	require.LessOrEqual(t, len(name), maxSchemaNameLength)
	require.Contains(t, name, "_")
}

func TestDeriveSchemaNameDistinctInputsDistinctOutputs(t *testing.T) {
	require.NotEqual(t, DeriveSchemaName("did:key:aaa"), DeriveSchemaName("did:key:bbb"))
}
