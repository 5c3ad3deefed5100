package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssignSameTypeOK(t *testing.T) {
	c, _ := AssignCompatible(Int, Int)
	assert.Equal(t, AssignOK, c)
}

func TestIntegerWideningSameSignOK(t *testing.T) {
	c, _ := AssignCompatible(DInt, Int)
	assert.Equal(t, AssignOK, c)
}

func TestIntegerNarrowingError(t *testing.T) {
	c, msg := AssignCompatible(Int, DInt)
	assert.Equal(t, AssignError, c)
	assert.NotEmpty(t, msg)
}

func TestAnyIntToAnyRealImplicit(t *testing.T) {
	c, _ := AssignCompatible(Real, Int)
	assert.Equal(t, AssignOK, c)
}

func TestRealToIntError(t *testing.T) {
	c, _ := AssignCompatible(Int, Real)
	assert.Equal(t, AssignError, c)
}

func TestCrossSignednessError(t *testing.T) {
	c, _ := AssignCompatible(UInt, Int)
	assert.Equal(t, AssignError, c)
}

func TestStructRequiresIdentity(t *testing.T) {
	a := &Type{Cat: CatStruct, Name: "Point"}
	b := &Type{Cat: CatStruct, Name: "Vector"}
	c, _ := AssignCompatible(a, b)
	assert.Equal(t, AssignError, c)
}

func TestStructIdenticalOK(t *testing.T) {
	a := &Type{Cat: CatStruct, Name: "Point"}
	b := &Type{Cat: CatStruct, Name: "Point"}
	c, _ := AssignCompatible(a, b)
	assert.Equal(t, AssignOK, c)
}

func TestWiderNumericMixedSignednessRejected(t *testing.T) {
	_, ok := WiderNumeric(Int, UInt)
	assert.False(t, ok)
}

func TestWiderNumericPicksWiderSameSign(t *testing.T) {
	result, ok := WiderNumeric(Int, DInt)
	assert.True(t, ok)
	assert.True(t, Identical(result, DInt))
}

func TestRefToIdenticalPointee(t *testing.T) {
	a := &Type{Cat: CatRefTo, Referent: Int}
	b := &Type{Cat: CatRefTo, Referent: Int}
	c, _ := AssignCompatible(a, b)
	assert.Equal(t, AssignOK, c)
}
