// Package dmmessages encodes and decodes the device management protocol
// messages exchanged during registration, and the policy fetch responses kept
// in the policy cache.
//
// The messages are protocol buffers. Only the handful of fields this client
// reads or writes are handled, directly on the wire format; every other field
// is skipped when decoding.
package dmmessages

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed is returned when a message cannot be decoded or lacks a
// required field.
var ErrMalformed = errors.New("malformed device management message")

// ErrNoErrorMessage is returned by ParseDeviceManagementResponseError when the
// response is well-formed but carries no error message.
var ErrNoErrorMessage = errors.New("no error message in response")

// Field numbers, from device_management_backend.proto.
const (
	// DeviceManagementRequest
	fieldRegisterBrowserRequest protowire.Number = 19

	// RegisterBrowserRequest
	fieldMachineName protowire.Number = 1
	fieldOSPlatform  protowire.Number = 2
	fieldOSVersion   protowire.Number = 3

	// DeviceManagementResponse
	fieldErrorMessage     protowire.Number = 2
	fieldRegisterResponse protowire.Number = 3

	// DeviceRegisterResponse
	fieldDeviceManagementToken protowire.Number = 1

	// PolicyFetchResponse
	fieldPolicyData          protowire.Number = 3
	fieldPolicyDataSignature protowire.Number = 4
	fieldNewPublicKey        protowire.Number = 5

	// PolicyData
	fieldPolicyType       protowire.Number = 1
	fieldTimestamp        protowire.Number = 2
	fieldPolicyValue      protowire.Number = 4
	fieldPublicKeyVersion protowire.Number = 6
	fieldDeviceID         protowire.Number = 8
)

// RegisterBrowserRequest is the payload of a registration request.
type RegisterBrowserRequest struct {
	MachineName string
	OSPlatform  string
	OSVersion   string
}

// PolicyData is the signed part of a policy fetch response.
type PolicyData struct {
	PolicyType  string
	Timestamp   int64
	PolicyValue []byte
	DeviceID    string
	// PublicKeyVersion is nil when the field is absent.
	PublicKeyVersion *int32
}

// PolicyFetchResponse is one policy as returned by the server. PolicyData is
// kept serialized, as the signature covers its exact bytes.
type PolicyFetchResponse struct {
	PolicyData          []byte
	PolicyDataSignature []byte
	NewPublicKey        []byte
}

// CachedPublicKey is the signing key extracted from the cached policy fetch
// response that introduced it.
type CachedPublicKey struct {
	Key            []byte
	Version        int32
	IsVersionValid bool
}

// SerializeRegisterBrowserRequest returns the serialized
// DeviceManagementRequest carrying a RegisterBrowserRequest.
func SerializeRegisterBrowserRequest(machineName, osPlatform, osVersion string) ([]byte, error) {
	for field, s := range map[string]string{
		"machine name": machineName,
		"os platform":  osPlatform,
		"os version":   osVersion,
	} {
		if !utf8.ValidString(s) {
			return nil, fmt.Errorf("serialize register request: %s is not valid UTF-8", field)
		}
	}

	var req []byte
	req = appendString(req, fieldMachineName, machineName)
	req = appendString(req, fieldOSPlatform, osPlatform)
	req = appendString(req, fieldOSVersion, osVersion)

	return appendBytes(nil, fieldRegisterBrowserRequest, req), nil
}

// ParseRegisterBrowserRequest decodes a DeviceManagementRequest carrying a
// RegisterBrowserRequest.
func ParseRegisterBrowserRequest(b []byte) (*RegisterBrowserRequest, error) {
	dm, err := parse(b)
	if err != nil {
		return nil, err
	}
	raw, ok := dm.bytes[fieldRegisterBrowserRequest]
	if !ok {
		return nil, fmt.Errorf("%w: missing register_browser_request", ErrMalformed)
	}
	req, err := parse(raw)
	if err != nil {
		return nil, err
	}
	return &RegisterBrowserRequest{
		MachineName: string(req.bytes[fieldMachineName]),
		OSPlatform:  string(req.bytes[fieldOSPlatform]),
		OSVersion:   string(req.bytes[fieldOSVersion]),
	}, nil
}

// ParseDeviceRegisterResponse returns the device management token of a
// serialized DeviceManagementResponse.
func ParseDeviceRegisterResponse(b []byte) (string, error) {
	dm, err := parse(b)
	if err != nil {
		return "", err
	}
	raw, ok := dm.bytes[fieldRegisterResponse]
	if !ok {
		return "", fmt.Errorf("%w: missing register_response", ErrMalformed)
	}
	resp, err := parse(raw)
	if err != nil {
		return "", err
	}
	token, ok := resp.bytes[fieldDeviceManagementToken]
	if !ok {
		return "", fmt.Errorf("%w: missing device_management_token", ErrMalformed)
	}
	return string(token), nil
}

// MarshalDeviceRegisterResponse returns the serialized DeviceManagementResponse
// carrying dmToken.
func MarshalDeviceRegisterResponse(dmToken string) []byte {
	resp := appendString(nil, fieldDeviceManagementToken, dmToken)
	return appendBytes(nil, fieldRegisterResponse, resp)
}

// ParseDeviceManagementResponseError returns the error message of a serialized
// DeviceManagementResponse, or ErrNoErrorMessage if it has none.
func ParseDeviceManagementResponseError(b []byte) (string, error) {
	dm, err := parse(b)
	if err != nil {
		return "", err
	}
	msg, ok := dm.bytes[fieldErrorMessage]
	if !ok {
		return "", ErrNoErrorMessage
	}
	return string(msg), nil
}

// MarshalErrorResponse returns the serialized DeviceManagementResponse
// carrying msg as error message.
func MarshalErrorResponse(msg string) []byte {
	return appendString(nil, fieldErrorMessage, msg)
}

// MarshalPolicyData returns the serialized PolicyData.
func MarshalPolicyData(pd PolicyData) []byte {
	var b []byte
	b = appendString(b, fieldPolicyType, pd.PolicyType)
	if pd.Timestamp != 0 {
		b = protowire.AppendTag(b, fieldTimestamp, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(pd.Timestamp))
	}
	if pd.PolicyValue != nil {
		b = appendBytes(b, fieldPolicyValue, pd.PolicyValue)
	}
	if pd.PublicKeyVersion != nil {
		b = protowire.AppendTag(b, fieldPublicKeyVersion, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(*pd.PublicKeyVersion)))
	}
	if pd.DeviceID != "" {
		b = appendString(b, fieldDeviceID, pd.DeviceID)
	}
	return b
}

// ParsePolicyData decodes a serialized PolicyData.
func ParsePolicyData(b []byte) (*PolicyData, error) {
	m, err := parse(b)
	if err != nil {
		return nil, err
	}
	pd := &PolicyData{
		PolicyType:  string(m.bytes[fieldPolicyType]),
		Timestamp:   int64(m.varints[fieldTimestamp]),
		PolicyValue: m.bytes[fieldPolicyValue],
		DeviceID:    string(m.bytes[fieldDeviceID]),
	}
	if v, ok := m.varints[fieldPublicKeyVersion]; ok {
		version := int32(v)
		pd.PublicKeyVersion = &version
	}
	return pd, nil
}

// MarshalPolicyFetchResponse returns the serialized PolicyFetchResponse.
func MarshalPolicyFetchResponse(r PolicyFetchResponse) []byte {
	var b []byte
	if r.PolicyData != nil {
		b = appendBytes(b, fieldPolicyData, r.PolicyData)
	}
	if r.PolicyDataSignature != nil {
		b = appendBytes(b, fieldPolicyDataSignature, r.PolicyDataSignature)
	}
	if r.NewPublicKey != nil {
		b = appendBytes(b, fieldNewPublicKey, r.NewPublicKey)
	}
	return b
}

// ParsePolicyFetchResponse decodes a serialized PolicyFetchResponse.
func ParsePolicyFetchResponse(b []byte) (*PolicyFetchResponse, error) {
	m, err := parse(b)
	if err != nil {
		return nil, err
	}
	return &PolicyFetchResponse{
		PolicyData:          m.bytes[fieldPolicyData],
		PolicyDataSignature: m.bytes[fieldPolicyDataSignature],
		NewPublicKey:        m.bytes[fieldNewPublicKey],
	}, nil
}

// ParseCachedPublicKey extracts the signing key, and its version when the
// server provided one, from a serialized PolicyFetchResponse.
func ParseCachedPublicKey(b []byte) (*CachedPublicKey, error) {
	resp, err := ParsePolicyFetchResponse(b)
	if err != nil {
		return nil, err
	}
	if len(resp.NewPublicKey) == 0 {
		return nil, fmt.Errorf("%w: missing new_public_key", ErrMalformed)
	}
	key := &CachedPublicKey{Key: resp.NewPublicKey}

	pd, err := ParsePolicyData(resp.PolicyData)
	if err != nil {
		return nil, err
	}
	if pd.PublicKeyVersion != nil {
		key.Version = *pd.PublicKeyVersion
		key.IsVersionValid = true
	}
	return key, nil
}

// message holds the singular fields of a decoded message. As in proto2, the
// last occurrence of a field wins.
type message struct {
	bytes   map[protowire.Number][]byte
	varints map[protowire.Number]uint64
}

func parse(b []byte) (*message, error) {
	m := &message{
		bytes:   make(map[protowire.Number][]byte),
		varints: make(map[protowire.Number]uint64),
	}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		switch typ {
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
			m.bytes[num] = append([]byte(nil), v...)
			b = b[n:]
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
			m.varints[num] = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return m, nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}
