// Package dnn is a small deep-learning primitives engine.
//
// It exposes the same object model as vendor DNN libraries: opaque layouts,
// primitives bound to fixed shapes, and conversion primitives between layouts.
// Callers describe their own tensors with plain ("user") layouts and query the
// layouts a primitive prefers ("internal") with LayoutFromPrimitive. When the
// two differ, CreateConversion builds the primitive that reformats the data.
//
// Internal activation layouts block channels innermost (nChw8c), and the
// forward and backward filter layouts block input and output channels in
// opposite orders, so a training step needs filter conversions between them.
//
// All failures are returned as *StatusError values wrapped with a stack trace;
// use StatusOf to recover the status code.
package dnn

// LayoutFromPrimitive returns the layout primitive p expects for resource r.
func LayoutFromPrimitive(p Primitive, r Resource) (*Layout, error) {
	if p == nil {
		return nil, statusErrorf("LayoutCreateFromPrimitive", StatusIncorrectInput, "nil primitive")
	}
	return p.Layout(r)
}

// Execute runs p on res.
func Execute(p Primitive, res *Resources) error {
	if p == nil {
		return statusErrorf("Execute", StatusIncorrectInput, "nil primitive")
	}
	return p.Execute(res)
}
