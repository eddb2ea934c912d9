//go:build !nogpu

package main

import (
	// Register the WebGPU backend.
	_ "github.com/gogpu/paeth/compute/wgpu"
)
