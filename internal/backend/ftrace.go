package backend

// FtraceOffset is the design constant (0x5) by which return probes observe
// addresses offset from a function's entry, per the GLOSSARY. Return-probe
// trampolines patch in a call a few bytes into the function prologue, so a
// captured return address on the native stack is FtraceOffset bytes past
// the symbol's true entry.
const FtraceOffset = 0x5
