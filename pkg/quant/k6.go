package quant

// Q6_K super-block: ql[128] | qh[64] | scales[16] int8 | d (f16).
//
// Sixteen groups of 16 elements share an int8 scale relative to d. A level
// is six bits, the low four in ql and the high two in qh:
// value = d * scale[e/16] * (q - 32).

// groupMaxEps is the magnitude below which a group is treated as all zero.
const groupMaxEps = 1e-15

// makeQXQuants fits a symmetric scale to x with levels in [-nmax, nmax-1],
// weighting each element by its square. Eighteen perturbed inverse scales
// around nmax are tried and the best fit kept. L receives levels offset by
// nmax.
func makeQXQuants(nmax int, x []float32, L []uint8) float32 {
	var amax, vmax float32
	for _, v := range x {
		if a := abs32(v); a > amax {
			amax = a
			vmax = v
		}
	}
	if amax < groupMaxEps {
		clear(L)
		return 0
	}
	fmax := float32(nmax)
	iscale := -fmax / vmax
	var sumLX, sumL2 float32
	for i, v := range x {
		l := clampInt(nearestInt(iscale*v), -nmax, nmax-1)
		L[i] = uint8(l + nmax)
		w := v * v
		sumLX += w * v * float32(l)
		sumL2 += w * float32(l) * float32(l)
	}
	var scale float32
	if sumL2 != 0 {
		scale = sumLX / sumL2
	}
	best := scale * sumLX
	for is := -9; is <= 9; is++ {
		if is == 0 {
			continue
		}
		iscale = -(fmax + 0.1*float32(is)) / vmax
		sumLX, sumL2 = 0, 0
		for _, v := range x {
			l := float32(clampInt(nearestInt(iscale*v), -nmax, nmax-1))
			w := v * v
			sumLX += w * v * l
			sumL2 += w * l * l
		}
		if sumL2 > 0 && sumLX*sumLX > best*sumL2 {
			for i, v := range x {
				L[i] = uint8(clampInt(nearestInt(iscale*v), -nmax, nmax-1) + nmax)
			}
			scale = sumLX / sumL2
			best = scale * sumLX
		}
	}
	return scale
}

func quantizeQ6K(x []float32, y []byte) {
	x = x[:QKK]
	var (
		L      [QKK]uint8
		scales [QKK / 16]float32
	)
	var maxScale, maxAbsScale float32
	for g := range QKK / 16 {
		s := makeQXQuants(32, x[16*g:16*g+16], L[16*g:16*g+16])
		scales[g] = s
		if a := abs32(s); a > maxAbsScale {
			maxAbsScale = a
			maxScale = s
		}
	}
	block := y[:q6kTypeSize]
	if maxAbsScale < groupMaxEps {
		clear(block)
		return
	}

	iscale := -128 / maxScale
	writeF16(block[q6kTypeSize-2:], 1/iscale)
	sc := block[QKK/2+QKK/4 : QKK/2+QKK/4+QKK/16]
	for g := range QKK / 16 {
		sc[g] = byte(int8(min(127, nearestInt(iscale*scales[g]))))
	}

	d := readF16(block[q6kTypeSize-2:])
	for g := range QKK / 16 {
		dg := d * float32(int8(sc[g]))
		if dg == 0 {
			continue
		}
		for i := range 16 {
			l := clampInt(nearestInt(x[16*g+i]/dg), -32, 31)
			L[16*g+i] = uint8(l + 32)
		}
	}

	ql := block[:QKK/2]
	qh := block[QKK/2 : QKK/2+QKK/4]
	for j := 0; j < QKK; j += 128 {
		for l := range 32 {
			q1 := L[j+l] & 0x0F
			q2 := L[j+l+32] & 0x0F
			q3 := L[j+l+64] & 0x0F
			q4 := L[j+l+96] & 0x0F
			ql[l] = q1 | q3<<4
			ql[l+32] = q2 | q4<<4
			qh[l] = L[j+l]>>4 | (L[j+l+32]>>4)<<2 | (L[j+l+64]>>4)<<4 | (L[j+l+96]>>4)<<6
		}
		ql = ql[64:]
		qh = qh[32:]
	}
}

// q6Levels yields the four signed levels at offset l of one 128-element half.
func q6Levels(ql, qh []byte, l int) (q1, q2, q3, q4 int8) {
	q1 = int8((ql[l]&0x0F)|((qh[l]>>0)&3)<<4) - 32
	q2 = int8((ql[l+32]&0x0F)|((qh[l]>>2)&3)<<4) - 32
	q3 = int8((ql[l]>>4)|((qh[l]>>4)&3)<<4) - 32
	q4 = int8((ql[l+32]>>4)|((qh[l]>>6)&3)<<4) - 32
	return
}

func dequantizeQ6K(y []float32, b []byte) {
	ql := b[:QKK/2]
	qh := b[QKK/2 : QKK/2+QKK/4]
	sc := b[QKK/2+QKK/4 : QKK/2+QKK/4+QKK/16]
	d := readF16(b[q6kTypeSize-2 : q6kTypeSize])
	y = y[:QKK]
	for n := 0; n < QKK; n += 128 {
		for l := range 32 {
			is := l / 16
			q1, q2, q3, q4 := q6Levels(ql, qh, l)
			y[n+l] = float32(d*float32(int8(sc[is]))) * float32(q1)
			y[n+l+32] = float32(d*float32(int8(sc[is+2]))) * float32(q2)
			y[n+l+64] = float32(d*float32(int8(sc[is+4]))) * float32(q3)
			y[n+l+96] = float32(d*float32(int8(sc[is+6]))) * float32(q4)
		}
		ql = ql[64:]
		qh = qh[32:]
		sc = sc[8:]
	}
}

func unpackQ6K(b []byte, levels []float32, groups []Affine) {
	ql := b[:QKK/2]
	qh := b[QKK/2 : QKK/2+QKK/4]
	sc := b[QKK/2+QKK/4 : QKK/2+QKK/4+QKK/16]
	d := readF16(b[q6kTypeSize-2 : q6kTypeSize])
	for g := range QKK / 16 {
		groups[g] = Affine{Scale: d * float32(int8(sc[g]))}
	}
	for n := 0; n < QKK; n += 128 {
		for l := range 32 {
			q1, q2, q3, q4 := q6Levels(ql, qh, l)
			levels[n+l] = float32(q1)
			levels[n+l+32] = float32(q2)
			levels[n+l+64] = float32(q3)
			levels[n+l+96] = float32(q4)
		}
		ql = ql[64:]
		qh = qh[32:]
	}
}
