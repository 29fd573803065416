//go:build linux

package secretstore

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/go-tpm/tpm2"
	"github.com/google/go-tpm/tpm2/transport"
)

// TPM device paths in order of preference.
var tpmDevicePaths = []string{
	"/dev/tpmrm0", // TPM Resource Manager (preferred)
	"/dev/tpm0",   // direct TPM access
}

// hardwareRandom reads n bytes from the TPM's RNG, if one is present.
func hardwareRandom(n int) ([]byte, error) {
	devicePath := ""
	for _, path := range tpmDevicePaths {
		if _, err := os.Stat(path); err == nil {
			devicePath = path
			break
		}
	}
	if devicePath == "" {
		return nil, errors.New("secretstore: no TPM device")
	}

	t, err := transport.OpenTPM(devicePath)
	if err != nil {
		return nil, fmt.Errorf("secretstore: open tpm: %w", err)
	}
	defer t.Close()

	out := make([]byte, 0, n)
	for len(out) < n {
		rsp, err := tpm2.GetRandom{BytesRequested: uint16(n - len(out))}.Execute(t)
		if err != nil {
			return nil, fmt.Errorf("secretstore: tpm GetRandom: %w", err)
		}
		if len(rsp.RandomBytes.Buffer) == 0 {
			return nil, errors.New("secretstore: tpm returned no random bytes")
		}
		out = append(out, rsp.RandomBytes.Buffer...)
	}
	return out[:n], nil
}
