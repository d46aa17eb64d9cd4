// Package pintgo simulates the core of a small instructional operating
// system in userspace: a FAT-style filesystem (cluster allocator, inodes,
// directories, symlinks) and a preemptive priority scheduler with virtual
// memory (supplemental page tables, copy-on-write fork, swap) layered on
// top of it.
//
// See kernel.Kernel for the facade that wires the subsystems together.
package pintgo
