package shaders

import (
	_ "embed"
)

//go:embed instance_sort.wgsl
var InstanceSortWGSL string

//go:embed instance_sort_indexed.wgsl
var InstanceSortIndexedWGSL string

//go:embed instanced_mesh.wgsl
var InstancedMeshWGSL string
