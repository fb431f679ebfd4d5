package udsclient

import (
	"crypto/aes"
	"fmt"

	"github.com/chmike/cmac-go"
)

// benchSecret is the shared security-access secret of the simulated bench.
// The server hands out a fixed seed and accepts any key, so this derivation
// exists to exercise the same code path a real tester would use.
var benchSecret = []byte("virtual-hil-bench-key-16")

// keyLength is the number of key bytes sent back to the server.
const keyLength = 4

// KeyFromSeed derives the security-access key for a seed using AES-CMAC
// over the bench secret, truncated to the key length.
func KeyFromSeed(seed []byte) ([]byte, error) {
	if len(seed) == 0 {
		return nil, fmt.Errorf("empty seed")
	}
	mac, err := cmac.New(aes.NewCipher, benchSecret)
	if err != nil {
		return nil, fmt.Errorf("init CMAC: %w", err)
	}
	mac.Write(seed)
	return mac.Sum(nil)[:keyLength], nil
}
