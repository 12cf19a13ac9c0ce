package quant

import "math"

// Q4_K super-block: d (f16) | dmin (f16) | scales[12] | qs[128].
//
// The 256 elements form eight sub-blocks of 32. Each sub-block has a 6-bit
// scale and a 6-bit min, multiplied by d and dmin respectively:
// value = d*sc*q - dmin*m.

// makeQKX2Quants searches for the scale and min of one sub-block that
// minimise the weighted squared error, starting from the min/max fit and
// trying nstep+1 perturbed inverse scales. L receives the levels; the
// returned min is the positive offset subtracted on decode.
func makeQKX2Quants(nmax int, x, weights []float32, L, aux []uint8, rmin, rdelta float32, nstep int) (scale, theMin float32) {
	lo, hi := x[0], x[0]
	sumW := weights[0]
	sumX := sumW * x[0]
	for i := 1; i < len(x); i++ {
		lo = min(lo, x[i])
		hi = max(hi, x[i])
		sumW += weights[i]
		sumX += weights[i] * x[i]
	}
	lo = min(lo, 0)
	if hi == lo {
		clear(L)
		return 0, -lo
	}

	fmax := float32(nmax)
	iscale := fmax / (hi - lo)
	scale = 1 / iscale
	var best float32
	for i, v := range x {
		l := clampInt(nearestInt(iscale*(v-lo)), 0, nmax)
		L[i] = uint8(l)
		diff := scale*float32(l) + lo - v
		best += weights[i] * diff * diff
	}

	for step := 0; step <= nstep; step++ {
		iscale = (rmin + rdelta*float32(step) + fmax) / (hi - lo)
		var sumL, sumL2, sumXL float32
		for i, v := range x {
			l := clampInt(nearestInt(iscale*(v-lo)), 0, nmax)
			aux[i] = uint8(l)
			w := weights[i]
			fl := float32(l)
			sumL += w * fl
			sumL2 += w * fl * fl
			sumXL += w * fl * v
		}
		D := sumW*sumL2 - sumL*sumL
		if D <= 0 {
			continue
		}
		thisScale := (sumW*sumXL - sumX*sumL) / D
		thisMin := (sumL2*sumX - sumL*sumXL) / D
		if thisMin > 0 {
			thisMin = 0
			thisScale = sumXL / sumL2
		}
		var mad float32
		for i, v := range x {
			diff := thisScale*float32(aux[i]) + thisMin - v
			mad += weights[i] * diff * diff
		}
		if mad < best {
			copy(L, aux)
			best = mad
			scale = thisScale
			lo = thisMin
		}
	}
	return scale, -lo
}

// scaleMinK4 unpacks the 6-bit scale and min of sub-block j.
func scaleMinK4(j int, scales []byte) (uint8, uint8) {
	if j < 4 {
		return scales[j] & 63, scales[j+4] & 63
	}
	d := (scales[j+4] & 0x0F) | ((scales[j-4] >> 6) << 4)
	m := (scales[j+4] >> 4) | ((scales[j] >> 6) << 4)
	return d, m
}

func quantizeQ4K(x []float32, y []byte) {
	x = x[:QKK]
	var (
		L       [QKK]uint8
		aux     [32]uint8
		weights [32]float32
		scales  [8]float32
		mins    [8]float32
	)
	var maxScale, maxMin float32
	for j := range QKK / 32 {
		sub := x[32*j : 32*j+32]
		var sumX2 float32
		for _, v := range sub {
			sumX2 += v * v
		}
		avX := float32(math.Sqrt(float64(sumX2 / 32)))
		for l, v := range sub {
			weights[l] = avX + abs32(v)
		}
		scales[j], mins[j] = makeQKX2Quants(15, sub, weights[:], L[32*j:32*j+32], aux[:], -1, 0.1, 20)
		maxScale = max(maxScale, scales[j])
		maxMin = max(maxMin, mins[j])
	}

	var invScale, invMin float32
	if maxScale > 0 {
		invScale = 63 / maxScale
	}
	if maxMin > 0 {
		invMin = 63 / maxMin
	}
	sc := y[4:16]
	clear(sc)
	for j := range QKK / 32 {
		ls := uint8(clampInt(nearestInt(invScale*scales[j]), 0, 63))
		lm := uint8(clampInt(nearestInt(invMin*mins[j]), 0, 63))
		if j < 4 {
			sc[j] = ls
			sc[j+4] = lm
		} else {
			sc[j+4] = (ls & 0x0F) | ((lm & 0x0F) << 4)
			sc[j-4] |= (ls >> 4) << 6
			sc[j] |= (lm >> 4) << 6
		}
	}
	writeF16(y[0:2], maxScale/63)
	writeF16(y[2:4], maxMin/63)

	// Requantize against the rounded super-block scales so the levels match
	// what the decoder will reconstruct.
	d := readF16(y[0:2])
	dmin := readF16(y[2:4])
	for j := range QKK / 32 {
		s, m := scaleMinK4(j, sc)
		dj := d * float32(s)
		if dj == 0 {
			continue
		}
		dm := dmin * float32(m)
		for i := range 32 {
			L[32*j+i] = uint8(clampInt(nearestInt((x[32*j+i]+dm)/dj), 0, 15))
		}
	}

	qs := y[16 : 16+QKK/2]
	for j := 0; j < QKK; j += 64 {
		for l := range 32 {
			qs[l] = L[j+l] | L[j+l+32]<<4
		}
		qs = qs[32:]
	}
}

func dequantizeQ4K(y []float32, b []byte) {
	d := readF16(b[0:2])
	dmin := readF16(b[2:4])
	scales := b[4:16]
	q := b[16 : 16+QKK/2]
	y = y[:QKK]
	is := 0
	for j := 0; j < QKK; j += 64 {
		sc1, m1 := scaleMinK4(is, scales)
		sc2, m2 := scaleMinK4(is+1, scales)
		d1 := d * float32(sc1)
		d2 := d * float32(sc2)
		mm1 := dmin * float32(m1)
		mm2 := dmin * float32(m2)
		for l := range 32 {
			y[j+l] = float32(d1*float32(q[l]&0x0F)) - mm1
		}
		for l := range 32 {
			y[j+32+l] = float32(d2*float32(q[l]>>4)) - mm2
		}
		q = q[32:]
		is += 2
	}
}

func unpackQ4K(b []byte, levels []float32, groups []Affine) {
	d := readF16(b[0:2])
	dmin := readF16(b[2:4])
	scales := b[4:16]
	q := b[16 : 16+QKK/2]
	for g := range QKK / 32 {
		s, m := scaleMinK4(g, scales)
		groups[g] = Affine{Scale: d * float32(s), Offset: -(dmin * float32(m))}
	}
	for j := 0; j < QKK; j += 64 {
		for l := range 32 {
			levels[j+l] = float32(q[l] & 0x0F)
			levels[j+32+l] = float32(q[l] >> 4)
		}
		q = q[32:]
	}
}
