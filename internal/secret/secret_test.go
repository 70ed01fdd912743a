package secret

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic(t *testing.T) {
	got, err := Static("s3cret").Secret()
	require.NoError(t, err)
	assert.Equal(t, []byte("s3cret"), got)

	_, err = Static("").Secret()
	require.ErrorIs(t, err, ErrNoSecret)
}

func TestKeyring_Secret(t *testing.T) {
	tests := []struct {
		name    string
		items   []keyring.Item
		want    []byte
		wantErr error
	}{
		{"present", []keyring.Item{{Key: KeySigningSecret, Data: []byte("k")}}, []byte("k"), nil},
		{"missing", nil, nil, ErrNoSecret},
		{"empty", []keyring.Item{{Key: KeySigningSecret}}, nil, ErrNoSecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := NewKeyring(keyring.NewArrayKeyring(tt.items))
			got, err := k.Secret()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKeyring_StoreThenRead(t *testing.T) {
	k := NewKeyring(keyring.NewArrayKeyring(nil))

	require.ErrorIs(t, k.Store(nil), ErrNoSecret)
	require.NoError(t, k.Store([]byte("first")))
	require.NoError(t, k.Store([]byte("second")))

	got, err := k.Secret()
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

var (
	_ Source = Static("")
	_ Source = (*Keyring)(nil)
)
