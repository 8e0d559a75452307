package compiler

// alignTo rounds n up to the nearest multiple of align.
func alignTo(n, align int) int {
	return (n + align - 1) / align * align
}

// AssignLocalOffsets lays out every function's frame. The i-th local in
// declaration order lives at rbp-8*(i+1) and the frame is padded to 16 bytes.
// Offsets come from list positions, so running it twice is harmless.
func AssignLocalOffsets(prog *Program) {
	for _, fn := range prog.Funcs {
		offset := 0
		for _, v := range fn.Locals {
			offset += v.Ty.Size()
			v.Offset = -offset
		}
		fn.StackSize = alignTo(offset, 16)
	}
}
