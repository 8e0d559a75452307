// Package compiler translates a small C subset (int, pointers, locals,
// functions of up to six parameters, if/for/while) into x86-64 assembly in
// Intel syntax for the GNU assembler.
//
// Pipeline: C source → Tokenize → Parse → AssignLocalOffsets → Generate → assembly text
package compiler
