package quant

import "encoding/binary"

// Q5_0: d (f16) | qh (u32) | qs[16]. The low four bits of each level are
// packed like Q4_0; bit j of qh is the fifth bit of element j.
// value = d * (q - 16).
func quantizeQ5_0(x []float32, y []byte) {
	x = x[:QK]
	d := signedMax(x) / -16
	var id float32
	if d != 0 {
		id = 1 / d
	}
	writeF16(y[0:2], d)
	qs := y[6 : 6+QK/2]
	var qh uint32
	for j := range QK / 2 {
		q0 := uint32(clampInt(nearestInt(x[j]*id)+16, 0, 31))
		q1 := uint32(clampInt(nearestInt(x[j+QK/2]*id)+16, 0, 31))
		qs[j] = byte(q0&0x0F) | byte(q1&0x0F)<<4
		qh |= ((q0 & 0x10) >> 4) << j
		qh |= ((q1 & 0x10) >> 4) << (j + QK/2)
	}
	binary.LittleEndian.PutUint32(y[2:6], qh)
}

func q5Levels(qs []byte, qh uint32, j int) (uint32, uint32) {
	h0 := ((qh >> j) << 4) & 0x10
	h1 := (qh >> (j + 12)) & 0x10
	return uint32(qs[j]&0x0F) | h0, uint32(qs[j]>>4) | h1
}

func dequantizeQ5_0(y []float32, b []byte) {
	d := readF16(b[0:2])
	qh := binary.LittleEndian.Uint32(b[2:6])
	qs := b[6 : 6+QK/2]
	for j := range QK / 2 {
		q0, q1 := q5Levels(qs, qh, j)
		y[j] = d * float32(int(q0)-16)
		y[j+QK/2] = d * float32(int(q1)-16)
	}
}

func unpackQ5_0(b []byte, levels []float32, groups []Affine) {
	qh := binary.LittleEndian.Uint32(b[2:6])
	qs := b[6 : 6+QK/2]
	for j := range QK / 2 {
		q0, q1 := q5Levels(qs, qh, j)
		levels[j] = float32(int(q0) - 16)
		levels[j+QK/2] = float32(int(q1) - 16)
	}
	groups[0] = Affine{Scale: readF16(b[0:2])}
}

// Q5_1: d (f16) | m (f16) | qh (u32) | qs[16]. value = d * q + m.
func quantizeQ5_1(x []float32, y []byte) {
	x = x[:QK]
	lo, hi := minMax(x)
	d := (hi - lo) / 31
	var id float32
	if d != 0 {
		id = 1 / d
	}
	writeF16(y[0:2], d)
	writeF16(y[2:4], lo)
	qs := y[8 : 8+QK/2]
	var qh uint32
	for j := range QK / 2 {
		q0 := uint32(clampInt(nearestInt((x[j]-lo)*id), 0, 31))
		q1 := uint32(clampInt(nearestInt((x[j+QK/2]-lo)*id), 0, 31))
		qs[j] = byte(q0&0x0F) | byte(q1&0x0F)<<4
		qh |= ((q0 & 0x10) >> 4) << j
		qh |= ((q1 & 0x10) >> 4) << (j + QK/2)
	}
	binary.LittleEndian.PutUint32(y[4:8], qh)
}

func dequantizeQ5_1(y []float32, b []byte) {
	d := readF16(b[0:2])
	m := readF16(b[2:4])
	qh := binary.LittleEndian.Uint32(b[4:8])
	qs := b[8 : 8+QK/2]
	for j := range QK / 2 {
		q0, q1 := q5Levels(qs, qh, j)
		y[j] = float32(d*float32(q0)) + m
		y[j+QK/2] = float32(d*float32(q1)) + m
	}
}

func unpackQ5_1(b []byte, levels []float32, groups []Affine) {
	qh := binary.LittleEndian.Uint32(b[4:8])
	qs := b[8 : 8+QK/2]
	for j := range QK / 2 {
		q0, q1 := q5Levels(qs, qh, j)
		levels[j] = float32(q0)
		levels[j+QK/2] = float32(q1)
	}
	groups[0] = Affine{Scale: readF16(b[0:2]), Offset: readF16(b[2:4])}
}
