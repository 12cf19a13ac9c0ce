package quant

// signedMax returns the value of largest magnitude, keeping its sign.
func signedMax(x []float32) float32 {
	var amax, vmax float32
	for _, v := range x {
		if a := abs32(v); a > amax {
			amax = a
			vmax = v
		}
	}
	return vmax
}

func minMax(x []float32) (float32, float32) {
	lo, hi := x[0], x[0]
	for _, v := range x[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return lo, hi
}

// Q4_0: d (f16) | qs[16]. Low nibbles hold elements 0..15, high nibbles
// 16..31. value = d * (q - 8).
func quantizeQ4_0(x []float32, y []byte) {
	x = x[:QK]
	d := signedMax(x) / -8
	var id float32
	if d != 0 {
		id = 1 / d
	}
	writeF16(y[0:2], d)
	qs := y[2 : 2+QK/2]
	for j := range QK / 2 {
		q0 := clampInt(nearestInt(x[j]*id)+8, 0, 15)
		q1 := clampInt(nearestInt(x[j+QK/2]*id)+8, 0, 15)
		qs[j] = byte(q0) | byte(q1)<<4
	}
}

func dequantizeQ4_0(y []float32, b []byte) {
	d := readF16(b[0:2])
	qs := b[2 : 2+QK/2]
	for j := range QK / 2 {
		y[j] = d * float32(int(qs[j]&0x0F)-8)
		y[j+QK/2] = d * float32(int(qs[j]>>4)-8)
	}
}

func unpackQ4_0(b []byte, levels []float32, groups []Affine) {
	qs := b[2 : 2+QK/2]
	for j := range QK / 2 {
		levels[j] = float32(int(qs[j]&0x0F) - 8)
		levels[j+QK/2] = float32(int(qs[j]>>4) - 8)
	}
	groups[0] = Affine{Scale: readF16(b[0:2])}
}

// Q4_1: d (f16) | m (f16) | qs[16]. value = d * q + m.
func quantizeQ4_1(x []float32, y []byte) {
	x = x[:QK]
	lo, hi := minMax(x)
	d := (hi - lo) / 15
	var id float32
	if d != 0 {
		id = 1 / d
	}
	writeF16(y[0:2], d)
	writeF16(y[2:4], lo)
	qs := y[4 : 4+QK/2]
	for j := range QK / 2 {
		q0 := clampInt(nearestInt((x[j]-lo)*id), 0, 15)
		q1 := clampInt(nearestInt((x[j+QK/2]-lo)*id), 0, 15)
		qs[j] = byte(q0) | byte(q1)<<4
	}
}

func dequantizeQ4_1(y []float32, b []byte) {
	d := readF16(b[0:2])
	m := readF16(b[2:4])
	qs := b[4 : 4+QK/2]
	for j := range QK / 2 {
		y[j] = float32(d*float32(qs[j]&0x0F)) + m
		y[j+QK/2] = float32(d*float32(qs[j]>>4)) + m
	}
}

func unpackQ4_1(b []byte, levels []float32, groups []Affine) {
	qs := b[4 : 4+QK/2]
	for j := range QK / 2 {
		levels[j] = float32(qs[j] & 0x0F)
		levels[j+QK/2] = float32(qs[j] >> 4)
	}
	groups[0] = Affine{Scale: readF16(b[0:2]), Offset: readF16(b[2:4])}
}
