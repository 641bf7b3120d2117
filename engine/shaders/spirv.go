package shaders

import (
	"encoding/binary"
	"fmt"
)

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic uint32 = 0x07230203

// spirvHeaderWords is magic, version, generator, bound and schema.
const spirvHeaderWords = 5

// SPIRVWords checks the module header and returns the code as little-endian
// 32-bit words, the layout native APIs expect.
func SPIRVWords(code []byte) ([]uint32, error) {
	if len(code)%4 != 0 {
		return nil, fmt.Errorf("SPIR-V size %d is not a multiple of 4", len(code))
	}
	if len(code) < spirvHeaderWords*4 {
		return nil, fmt.Errorf("SPIR-V module of %d bytes is shorter than its header", len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	if words[0] != SPIRVMagic {
		return nil, fmt.Errorf("invalid SPIR-V magic %#08x", words[0])
	}
	return words, nil
}

// SPIRVVersion returns the major and minor version of a checked module.
func SPIRVVersion(words []uint32) (major, minor uint8) {
	return uint8(words[1] >> 16), uint8(words[1] >> 8)
}
