// Package serialization saves and restores layer blobs as SafeTensors files.
//
// The layout is the standard SafeTensors one:
//
//	[8 bytes: header size (uint64 LE)]
//	[header: JSON object, name -> {dtype, shape, data_offsets}]
//	[tensor data: raw little-endian float32, alphabetical order]
//
// The "__metadata__" entry of the header carries free-form string metadata
// plus the SHA-256 of the data section, which the reader checks before
// handing out any blob. Files are read through a read-only memory mapping.
//
// Example usage:
//
//	blobs := map[string]*tensor.Blob{"conv1.weight": w, "conv1.bias": b}
//	if err := serialization.WriteBlobs("conv1.safetensors", blobs, nil); err != nil {
//	    log.Fatal(err)
//	}
//
//	restored, meta, err := serialization.ReadBlobs("conv1.safetensors")
package serialization
