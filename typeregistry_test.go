package cclower

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeRegistryDeclareAndTypeOf(t *testing.T) {
	r := NewTypeRegistry()
	r.Declare("v", "Vec_int")
	typeName, ok := r.TypeOf("v")
	assert.True(t, ok)
	assert.Equal(t, "Vec_int", typeName)

	_, ok = r.TypeOf("unknown")
	assert.False(t, ok)
}

func TestIsContainerPrefix(t *testing.T) {
	assert.True(t, IsContainerPrefix("Vec_int", ContainerVec))
	assert.True(t, IsContainerPrefix("Map_string_int", ContainerMap))
	assert.False(t, IsContainerPrefix("Vec_int", ContainerMap))
	assert.False(t, IsContainerPrefix("int", ContainerVec))
}

func TestTypeRegistryInstantiationsDedup(t *testing.T) {
	r := NewTypeRegistry()
	r.AddInstantiation(Instantiation{Kind: ContainerVec, MangledName: "Vec_int", Type1: "int"})
	r.AddInstantiation(Instantiation{Kind: ContainerVec, MangledName: "Vec_int", Type1: "int"})
	r.AddInstantiation(Instantiation{Kind: ContainerVec, MangledName: "Vec_float", Type1: "float"})

	assert.Len(t, r.Instantiations(ContainerVec), 2)
	assert.Len(t, r.Instantiations(ContainerMap), 0)
}

func TestTypeRegistryClear(t *testing.T) {
	r := NewTypeRegistry()
	r.Declare("v", "int")
	r.AddInstantiation(Instantiation{Kind: ContainerVec, MangledName: "Vec_int", Type1: "int"})
	r.Clear()

	_, ok := r.TypeOf("v")
	assert.False(t, ok)
	assert.Len(t, r.Instantiations(ContainerVec), 0)
}
