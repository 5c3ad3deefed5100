package bytecode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	strs := StringTable{"ALPHA", "BETA", ""}
	res := []ResourceMeta{{
		Name:        "Main",
		InputBytes:  4,
		OutputBytes: 4,
		MarkerBytes: 8,
		Tasks: []TaskMeta{
			{Name: "Fast", Priority: 0, Single: "%IX0.0", IntervalMS: 10},
		},
	}}

	enc := NewEncoder(1, 0, false)
	enc.AddSection(SectionStrings, EncodeStringTable(strs), false)
	resBytes, err := EncodeResources(res)
	require.NoError(t, err)
	enc.AddSection(SectionResources, resBytes, false)
	data := enc.Encode()

	require.Equal(t, Magic, string(data[:4]))

	c, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), c.MajorVersion)
	assert.Equal(t, uint16(0), c.MinorVersion)

	strsSection, ok := c.Section(SectionStrings)
	require.True(t, ok)
	gotStrs, err := DecodeStringTable(strsSection)
	require.NoError(t, err)
	assert.Equal(t, strs, gotStrs)

	resSection, ok := c.Section(SectionResources)
	require.True(t, ok)
	gotRes, err := DecodeResources(resSection)
	require.NoError(t, err)
	assert.Equal(t, res, gotRes)
}

func TestCRC32SectionDetectsCorruption(t *testing.T) {
	enc := NewEncoder(1, 0, true)
	enc.AddSection(SectionStrings, EncodeStringTable(StringTable{"X"}), false)
	data := enc.Encode()

	c, err := Decode(data)
	require.NoError(t, err)
	_, ok := c.Section(SectionStrings)
	require.True(t, ok)

	corrupt := append([]byte{}, data...)
	corrupt[len(corrupt)-5] ^= 0xFF // flip a byte inside the CRC-protected payload
	_, err = Decode(corrupt)
	assert.Error(t, err)
}

func TestDecodeRejectsUnsupportedMajorVersion(t *testing.T) {
	enc := NewEncoder(SupportedMajorVersion+1, 0, false)
	data := enc.Encode()
	_, err := Decode(data)
	assert.Error(t, err)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, err := Decode([]byte("not-a-container-at-all"))
	assert.Error(t, err)
}

func TestIOMapAndVariablesRoundTrip(t *testing.T) {
	ioMap := []IOMapEntry{{Address: "%QX0.0", Symbol: "Main.motorRun"}}
	vars := []VariableMeta{{QualifiedName: "Main.motorRun", TypeName: "BOOL", Qualifier: "VAR", Retain: false}}
	retain := RetainInit{"Main/counter#12": "0"}

	ioBytes, err := EncodeIOMap(ioMap)
	require.NoError(t, err)
	gotIO, err := DecodeIOMap(ioBytes)
	require.NoError(t, err)
	assert.Equal(t, ioMap, gotIO)

	varBytes, err := EncodeVariables(vars)
	require.NoError(t, err)
	gotVars, err := DecodeVariables(varBytes)
	require.NoError(t, err)
	assert.Equal(t, vars, gotVars)

	retainBytes, err := EncodeRetainInit(retain)
	require.NoError(t, err)
	gotRetain, err := DecodeRetainInit(retainBytes)
	require.NoError(t, err)
	assert.Equal(t, retain, gotRetain)
}
