package dmmessages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestRegisterBrowserRequest(t *testing.T) {
	b, err := SerializeRegisterBrowserRequest("host-1", "Windows NT|x86_64|10.0.0", "10.0.19045.0")
	require.NoError(t, err)

	req, err := ParseRegisterBrowserRequest(b)
	require.NoError(t, err)
	assert.Equal(t, "host-1", req.MachineName)
	assert.Equal(t, "Windows NT|x86_64|10.0.0", req.OSPlatform)
	assert.Equal(t, "10.0.19045.0", req.OSVersion)

	_, err = SerializeRegisterBrowserRequest("host\xff", "p", "v")
	require.Error(t, err)

	_, err = ParseRegisterBrowserRequest(MarshalErrorResponse("nope"))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestParseDeviceRegisterResponse(t *testing.T) {
	token, err := ParseDeviceRegisterResponse(MarshalDeviceRegisterResponse("dm-token"))
	require.NoError(t, err)
	assert.Equal(t, "dm-token", token)

	// a response without register_response
	_, err = ParseDeviceRegisterResponse(MarshalErrorResponse("oops"))
	require.ErrorIs(t, err, ErrMalformed)

	// an empty register_response
	_, err = ParseDeviceRegisterResponse(appendBytes(nil, fieldRegisterResponse, nil))
	require.ErrorIs(t, err, ErrMalformed)

	// not a protobuf at all
	_, err = ParseDeviceRegisterResponse([]byte("<html>bad gateway</html>"))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestParseDeviceManagementResponseError(t *testing.T) {
	msg, err := ParseDeviceManagementResponseError(MarshalErrorResponse("invalid enrollment token"))
	require.NoError(t, err)
	assert.Equal(t, "invalid enrollment token", msg)

	_, err = ParseDeviceManagementResponseError(MarshalDeviceRegisterResponse("x"))
	require.ErrorIs(t, err, ErrNoErrorMessage)

	_, err = ParseDeviceManagementResponseError([]byte{0xff})
	require.ErrorIs(t, err, ErrMalformed)
}

func TestUnknownFieldsAreSkipped(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, 40, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, 7)
	b = protowire.AppendTag(b, 41, protowire.VarintType)
	b = protowire.AppendVarint(b, 300)
	b = append(b, MarshalDeviceRegisterResponse("tok")...)

	token, err := ParseDeviceRegisterResponse(b)
	require.NoError(t, err)
	assert.Equal(t, "tok", token)
}

func TestParseCachedPublicKey(t *testing.T) {
	version := int32(7)
	resp := MarshalPolicyFetchResponse(PolicyFetchResponse{
		PolicyData: MarshalPolicyData(PolicyData{
			PolicyType:       "google/machine-level-omaha",
			PolicyValue:      []byte("value"),
			PublicKeyVersion: &version,
		}),
		PolicyDataSignature: []byte("sig"),
		NewPublicKey:        []byte("key"),
	})

	key, err := ParseCachedPublicKey(resp)
	require.NoError(t, err)
	assert.Equal(t, &CachedPublicKey{Key: []byte("key"), Version: 7, IsVersionValid: true}, key)

	// no version
	resp = MarshalPolicyFetchResponse(PolicyFetchResponse{
		PolicyData:   MarshalPolicyData(PolicyData{PolicyType: "t"}),
		NewPublicKey: []byte("key2"),
	})
	key, err = ParseCachedPublicKey(resp)
	require.NoError(t, err)
	assert.Equal(t, &CachedPublicKey{Key: []byte("key2")}, key)

	// no key
	resp = MarshalPolicyFetchResponse(PolicyFetchResponse{
		PolicyData: MarshalPolicyData(PolicyData{PolicyType: "t"}),
	})
	_, err = ParseCachedPublicKey(resp)
	require.ErrorIs(t, err, ErrMalformed)

	_, err = ParseCachedPublicKey([]byte("garbage"))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestPolicyData(t *testing.T) {
	version := int32(-1)
	pd := PolicyData{
		PolicyType:       "google/machine-level-omaha",
		Timestamp:        1700000000000,
		PolicyValue:      []byte{0x08, 0x01},
		DeviceID:         "device",
		PublicKeyVersion: &version,
	}
	got, err := ParsePolicyData(MarshalPolicyData(pd))
	require.NoError(t, err)
	assert.Equal(t, &pd, got)
}
