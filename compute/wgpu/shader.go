//go:build !nogpu

package wgpu

import (
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/paeth/compute"
)

// compileSPIRV compiles WGSL source to SPIR-V words.
func compileSPIRV(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("%w: naga: %w", compute.ErrBuildFailure, err)
	}
	if len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("%w: naga produced %d bytes of SPIR-V", compute.ErrBuildFailure, len(spirvBytes))
	}

	// SPIR-V is little-endian 32-bit words
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}

// pipelineResources are the device objects behind a program.
type pipelineResources struct {
	device         hal.Device
	module         hal.ShaderModule
	bindLayout     hal.BindGroupLayout
	pipelineLayout hal.PipelineLayout
	pipelines      map[string]hal.ComputePipeline
}

// destroy releases the resources in reverse creation order.
func (r *pipelineResources) destroy() {
	if r.device == nil {
		return
	}
	for _, p := range r.pipelines {
		if p != nil {
			r.device.DestroyComputePipeline(p)
		}
	}
	if r.pipelineLayout != nil {
		r.device.DestroyPipelineLayout(r.pipelineLayout)
	}
	if r.bindLayout != nil {
		r.device.DestroyBindGroupLayout(r.bindLayout)
	}
	if r.module != nil {
		r.device.DestroyShaderModule(r.module)
	}
	r.pipelines = nil
	r.pipelineLayout, r.bindLayout, r.module = nil, nil, nil
}

// buildResources creates the shader module, one bind group layout
// covering the uniform and storage bindings, and one compute pipeline per
// entry point.
func buildResources(device hal.Device, layout *compute.Layout, spirv []uint32) (*pipelineResources, error) {
	r := &pipelineResources{device: device, pipelines: make(map[string]hal.ComputePipeline, len(layout.Entries))}

	module, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "paeth_shader",
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create shader module: %w", compute.ErrBuildFailure, err)
	}
	r.module = module

	bindLayout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "paeth_bgl",
		Entries: bindGroupLayoutEntries(layout),
	})
	if err != nil {
		r.destroy()
		return nil, fmt.Errorf("%w: create bind group layout: %w", compute.ErrBuildFailure, err)
	}
	r.bindLayout = bindLayout

	pipelineLayout, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "paeth_pl",
		BindGroupLayouts: []hal.BindGroupLayout{bindLayout},
	})
	if err != nil {
		r.destroy()
		return nil, fmt.Errorf("%w: create pipeline layout: %w", compute.ErrBuildFailure, err)
	}
	r.pipelineLayout = pipelineLayout

	for name := range layout.Entries {
		p, err := device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
			Label:  name,
			Layout: pipelineLayout,
			Compute: hal.ComputeState{
				Module:     module,
				EntryPoint: name,
			},
		})
		if err != nil {
			r.destroy()
			return nil, fmt.Errorf("%w: create compute pipeline %s: %w", compute.ErrBuildFailure, name, err)
		}
		r.pipelines[name] = p
	}
	return r, nil
}
