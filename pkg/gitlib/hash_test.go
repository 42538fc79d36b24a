package gitlib_test

import (
	"testing"

	git2go "github.com/libgit2/git2go/v34"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-condo-software/gitexporter/pkg/gitlib"
)

var sampleHash = gitlib.Hash{
	0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef,
	0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef,
	0x01, 0x23, 0x45, 0x67,
}

func TestParseHash(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    gitlib.Hash
		wantErr bool
	}{
		{name: "lowercase", input: "0123456789abcdef0123456789abcdef01234567", want: sampleHash},
		{name: "uppercase", input: "0123456789ABCDEF0123456789ABCDEF01234567", want: sampleHash},
		{name: "short", input: "0123456", wantErr: true},
		{name: "too long", input: "0123456789abcdef0123456789abcdef012345670", wantErr: true},
		{name: "not hex", input: "zz23456789abcdef0123456789abcdef01234567", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := gitlib.ParseHash(tc.input)
			if tc.wantErr {
				require.ErrorIs(t, err, gitlib.ErrInvalidHash)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestHashString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0000000000000000000000000000000000000000", gitlib.Hash{}.String())
	assert.Equal(t, "0123456789abcdef0123456789abcdef01234567", sampleHash.String())
	assert.Equal(t, "0123456", sampleHash.Short())
}

func TestHashIsZero(t *testing.T) {
	t.Parallel()

	assert.True(t, gitlib.Hash{}.IsZero())
	assert.False(t, sampleHash.IsZero())
	assert.False(t, gitlib.Hash{19: 1}.IsZero())
}

func TestHashOidRoundTrip(t *testing.T) {
	t.Parallel()

	oid := sampleHash.ToOid()
	require.NotNil(t, oid)
	assert.Equal(t, sampleHash, gitlib.HashFromOid(oid))

	assert.True(t, gitlib.HashFromOid((*git2go.Oid)(nil)).IsZero())
}
