//go:build llama

package inproc

// Link against libllama next to the built binary (./bin), with an $ORIGIN
// rpath so no environment variables are needed at runtime.
/*
#cgo LDFLAGS: -Wl,-rpath,'$ORIGIN' -L${SRCDIR}/../../bin -lllama
*/
import "C"
