package tunnelwire

import "crypto/cipher"

// The standard library deliberately omits ECB mode because it leaks block
// equality patterns; the wire format nonetheless fixes AES-256-ECB (see
// SPEC_FULL.md §9 "Crypto choice"), so the two BlockModes below reproduce it
// by hand, the same shape as crypto/cipher's CBC implementation minus any
// chaining.

type ecbEncrypter struct {
	block cipher.Block
}

func newECBEncrypter(block cipher.Block) cipher.BlockMode {
	return &ecbEncrypter{block: block}
}

func (x *ecbEncrypter) BlockSize() int { return x.block.BlockSize() }

func (x *ecbEncrypter) CryptBlocks(dst, src []byte) {
	bs := x.block.BlockSize()
	if len(src)%bs != 0 {
		panic("tunnelwire: input not full blocks")
	}
	if len(dst) < len(src) {
		panic("tunnelwire: output smaller than input")
	}
	for len(src) > 0 {
		x.block.Encrypt(dst, src[:bs])
		src = src[bs:]
		dst = dst[bs:]
	}
}

type ecbDecrypter struct {
	block cipher.Block
}

func newECBDecrypter(block cipher.Block) cipher.BlockMode {
	return &ecbDecrypter{block: block}
}

func (x *ecbDecrypter) BlockSize() int { return x.block.BlockSize() }

func (x *ecbDecrypter) CryptBlocks(dst, src []byte) {
	bs := x.block.BlockSize()
	if len(src)%bs != 0 {
		panic("tunnelwire: input not full blocks")
	}
	if len(dst) < len(src) {
		panic("tunnelwire: output smaller than input")
	}
	for len(src) > 0 {
		x.block.Decrypt(dst, src[:bs])
		src = src[bs:]
		dst = dst[bs:]
	}
}
