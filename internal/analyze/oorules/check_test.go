package oorules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtendsFinalDetected(t *testing.T) {
	pous := []POUInfo{
		{Name: "Base", Final: true},
		{Name: "Derived", Extends: "Base"},
	}
	res, err := Check(context.Background(), pous)
	require.NoError(t, err)
	require.Len(t, res.ExtendsFinal, 1)
	assert.Equal(t, "Derived", res.ExtendsFinal[0].Sub)
	assert.Equal(t, "Base", res.ExtendsFinal[0].Base)
}

func TestOverrideWithoutBaseDetected(t *testing.T) {
	pous := []POUInfo{
		{Name: "Standalone", Methods: []MethodInfo{{Name: "Run", Access: "public", Override: true}}},
	}
	res, err := Check(context.Background(), pous)
	require.NoError(t, err)
	require.Len(t, res.OverrideWithoutBase, 1)
	assert.Equal(t, "Run", res.OverrideWithoutBase[0].Method)
}

func TestValidOverrideNotFlagged(t *testing.T) {
	pous := []POUInfo{
		{Name: "Base", Methods: []MethodInfo{{Name: "Run", Access: "public"}}},
		{Name: "Derived", Extends: "Base", Methods: []MethodInfo{{Name: "Run", Access: "public", Override: true}}},
	}
	res, err := Check(context.Background(), pous)
	require.NoError(t, err)
	assert.Empty(t, res.OverrideWithoutBase)
	assert.Empty(t, res.OverrideAccessMismatch)
}

func TestOverrideAccessMismatchDetected(t *testing.T) {
	pous := []POUInfo{
		{Name: "Base", Methods: []MethodInfo{{Name: "Run", Access: "public"}}},
		{Name: "Derived", Extends: "Base", Methods: []MethodInfo{{Name: "Run", Access: "private", Override: true}}},
	}
	res, err := Check(context.Background(), pous)
	require.NoError(t, err)
	require.Len(t, res.OverrideAccessMismatch, 1)
	assert.Equal(t, "private", res.OverrideAccessMismatch[0].Access)
	assert.Equal(t, "public", res.OverrideAccessMismatch[0].BaseAccess)
}

func TestAbstractMethodRequiresAbstractClass(t *testing.T) {
	pous := []POUInfo{
		{Name: "Concrete", Methods: []MethodInfo{{Name: "Stub", Access: "public", Abstract: true}}},
	}
	res, err := Check(context.Background(), pous)
	require.NoError(t, err)
	require.Len(t, res.AbstractMethodOutsideAbstractClass, 1)
	assert.Equal(t, "Stub", res.AbstractMethodOutsideAbstractClass[0].Method)
}

func TestMissingInterfaceMethodDetected(t *testing.T) {
	pous := []POUInfo{
		{Name: "IShape", IsInterface: true, Methods: []MethodInfo{{Name: "Area"}}},
		{Name: "Circle", Implements: []string{"IShape"}},
	}
	res, err := Check(context.Background(), pous)
	require.NoError(t, err)
	require.Len(t, res.MissingInterfaceMethod, 1)
	assert.Equal(t, "Area", res.MissingInterfaceMethod[0].Method)
}

func TestInterfaceSatisfiedNotFlagged(t *testing.T) {
	pous := []POUInfo{
		{Name: "IShape", IsInterface: true, Methods: []MethodInfo{{Name: "Area"}}},
		{Name: "Circle", Implements: []string{"IShape"}, Methods: []MethodInfo{{Name: "Area", Access: "public"}}},
	}
	res, err := Check(context.Background(), pous)
	require.NoError(t, err)
	assert.Empty(t, res.MissingInterfaceMethod)
}
