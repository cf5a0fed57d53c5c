package fractalloc

const touchStride = 4096

// manualTouch reads one byte per page to force the OS/runtime to commit
// every page backing mem, the portable fallback used by both backends.
// Grounded in joshuapare-hivekit's manualPreFault, which XORs a sink
// byte per page to stop the compiler from optimizing the reads away.
func manualTouch(mem []byte) {
	var sink byte
	for i := 0; i < len(mem); i += touchStride {
		sink ^= mem[i]
	}
	if len(mem) > 0 {
		sink ^= mem[len(mem)-1]
	}
	_ = sink
}
