package quant

import "encoding/binary"

// Q8_0: d (f16) | qs[32] int8. value = d * q.
func quantizeQ8_0(x []float32, y []byte) {
	x = x[:QK]
	var amax float32
	for _, v := range x {
		amax = max(amax, abs32(v))
	}
	d := amax / 127
	var id float32
	if d != 0 {
		id = 1 / d
	}
	writeF16(y[0:2], d)
	qs := y[2 : 2+QK]
	for i, v := range x {
		qs[i] = byte(int8(clampInt(nearestInt(v*id), -127, 127)))
	}
}

func dequantizeQ8_0(y []float32, b []byte) {
	d := readF16(b[0:2])
	qs := b[2 : 2+QK]
	y = y[:QK]
	for i := range y {
		y[i] = d * float32(int8(qs[i]))
	}
}

func unpackQ8_0(b []byte, levels []float32, groups []Affine) {
	qs := b[2 : 2+QK]
	for i := range QK {
		levels[i] = float32(int8(qs[i]))
	}
	groups[0] = Affine{Scale: readF16(b[0:2])}
}

// Q8_1: d (f16) | s (f16) | qs[32] int8, where s = d * sum(qs). The sum is
// consumed by dot-product kernels and ignored when decoding.
func quantizeQ8_1(x []float32, y []byte) {
	x = x[:QK]
	var amax float32
	for _, v := range x {
		amax = max(amax, abs32(v))
	}
	d := amax / 127
	var id float32
	if d != 0 {
		id = 1 / d
	}
	qs := y[4 : 4+QK]
	sum := 0
	for i, v := range x {
		q := clampInt(nearestInt(v*id), -127, 127)
		qs[i] = byte(int8(q))
		sum += q
	}
	writeF16(y[0:2], d)
	writeF16(y[2:4], float32(sum)*d)
}

func dequantizeQ8_1(y []float32, b []byte) {
	d := readF16(b[0:2])
	qs := b[4 : 4+QK]
	y = y[:QK]
	for i := range y {
		y[i] = d * float32(int8(qs[i]))
	}
}

func unpackQ8_1(b []byte, levels []float32, groups []Affine) {
	qs := b[4 : 4+QK]
	for i := range QK {
		levels[i] = float32(int8(qs[i]))
	}
	groups[0] = Affine{Scale: readF16(b[0:2])}
}

// Q8_K: d (f32) | qs[256] int8 | bsums[16] int16. The scale is kept in full
// precision and bsums hold the level sum of each run of 16.
func quantizeQ8K(x []float32, y []byte) {
	x = x[:QKK]
	var amax, vmax float32
	for _, v := range x {
		if a := abs32(v); a > amax {
			amax = a
			vmax = v
		}
	}
	qs := y[4 : 4+QKK]
	bsums := y[4+QKK : q8kTypeSize]
	if amax == 0 {
		clear(y[:q8kTypeSize])
		return
	}
	iscale := -127 / vmax
	for i, v := range x {
		qs[i] = byte(int8(clampInt(nearestInt(iscale*v), -127, 127)))
	}
	for j := range QKK / 16 {
		sum := 0
		for i := range 16 {
			sum += int(int8(qs[16*j+i]))
		}
		binary.LittleEndian.PutUint16(bsums[2*j:], uint16(int16(sum)))
	}
	writeF32(y[0:4], 1/iscale)
}

func dequantizeQ8K(y []float32, b []byte) {
	d := readF32(b[0:4])
	qs := b[4 : 4+QKK]
	y = y[:QKK]
	for i := range y {
		y[i] = d * float32(int8(qs[i]))
	}
}

func unpackQ8K(b []byte, levels []float32, groups []Affine) {
	qs := b[4 : 4+QKK]
	for i := range QKK {
		levels[i] = float32(int8(qs[i]))
	}
	groups[0] = Affine{Scale: readF32(b[0:4])}
}
