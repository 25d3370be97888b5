package crypto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAddressRoundTrip(t *testing.T) {
	addr, err := ParseAddress("0x00112233445566778899aabbccddeeff00112233")
	require.NoError(t, err)
	require.Equal(t, "0x00112233445566778899aabbccddeeff00112233", addr.String())
	require.False(t, addr.IsZero())
}

func TestParseAddressRejectsBadInput(t *testing.T) {
	cases := []string{"", "0x1234", "0xzz112233445566778899aabbccddeeff00112233"}
	for _, input := range cases {
		_, err := ParseAddress(input)
		require.Error(t, err, "input %q", input)
	}
}

func TestAddressJSON(t *testing.T) {
	addr, err := ParseAddress("0xffeeddccbbaa99887766554433221100ffeeddcc")
	require.NoError(t, err)

	encoded, err := json.Marshal(addr)
	require.NoError(t, err)
	require.JSONEq(t, `"0xffeeddccbbaa99887766554433221100ffeeddcc"`, string(encoded))

	var decoded Address
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	require.Equal(t, addr, decoded)
}

func TestNewAddressLengthCheck(t *testing.T) {
	_, err := NewAddress(make([]byte, 19))
	require.Error(t, err)

	addr, err := NewAddress(make([]byte, 20))
	require.NoError(t, err)
	require.True(t, addr.IsZero())
}
