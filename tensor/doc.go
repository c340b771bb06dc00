// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the framework blob used by dnnconv layers.
//
// # Overview
//
// A Blob is an N-D float32 tensor, usually shaped (N, C, H, W), holding two
// buffers: data and its gradient ("diff"). Both are kept in the plain
// row-major layout. Layers backed by the engine may attach private buffers
// in blocked layouts; the blob converts them back only when plain values
// are read.
//
// # Basic Usage
//
//	import "github.com/born-ml/dnnconv/tensor"
//
//	func main() {
//	    x, err := tensor.FromSlice([]float32{1, 2, 3, 4}, 1, 1, 2, 2)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    data, _ := x.CPUData()
//	    fmt.Println(x.Shape(), data)
//	}
//
// # Memory Heads
//
// Every buffer tracks where its current values live:
//   - Uninitialized: nothing allocated yet
//   - AtCPU: only the plain buffer is current
//   - AtPrv: only the private buffer is current
//   - SyncedPrv: both are current
package tensor
