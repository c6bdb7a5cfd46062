package embed

import "math"

// QuantizeColbert converts a T x ColbertDimensions float32 matrix (already row-normalized)
// into symmetric int8 bytes plus a per-document scale factor (SPEC_FULL §4.3 Quantization).
//
// scale = max(|x|) / 127; each value is stored as round(x/max * 127) reinterpreted as an
// unsigned byte. An all-zero matrix (or empty input) yields all-zero bytes and scale 1.0.
func QuantizeColbert(rows [][]float32) (bytes []byte, scale float64) {
	if len(rows) == 0 {
		return nil, 1.0
	}
	dim := len(rows[0])

	var maxAbs float64
	for _, row := range rows {
		for _, v := range row {
			a := math.Abs(float64(v))
			if a > maxAbs {
				maxAbs = a
			}
		}
	}

	out := make([]byte, len(rows)*dim)
	if maxAbs == 0 {
		return out, 1.0
	}

	scale = maxAbs / 127
	for i, row := range rows {
		base := i * dim
		for j, v := range row {
			q := int32(math.Round(float64(v) / maxAbs * 127))
			if q > 127 {
				q = 127
			} else if q < -128 {
				q = -128
			}
			out[base+j] = byte(int8(q))
		}
	}
	return out, scale
}

// DequantizeColbertRow dequantizes the byte row at index i of a quantized matrix:
// f(b) = int8(b) * scale.
func dequantizeByte(b byte, scale float64) float32 {
	return float32(float64(int8(b)) * scale)
}

// isPaddingRow reports whether a row of dim bytes starting at offset is all-zero, i.e. a
// padding row that must be excluded from scoring.
func isPaddingRow(data []byte, offset, dim int) bool {
	for i := 0; i < dim; i++ {
		if data[offset+i] != 0 {
			return false
		}
	}
	return true
}

// MaxSim computes the late-interaction MaxSim score between a query matrix (T_q rows of
// dim float32) and a document's quantized ColBERT bytes (T rows of dim, row-major,
// signed-int8 values packed as bytes) with the given dequantization scale (SPEC_FULL §4.7).
//
// Padding rows (all-zero bytes) are excluded from the max. A query row with no non-padding
// document row to compare against contributes 0 to the sum.
func MaxSim(query [][]float32, docBytes []byte, scale float64, dim int) float32 {
	if dim <= 0 || len(docBytes) == 0 || len(query) == 0 {
		return 0
	}

	numRows := len(docBytes) / dim
	var total float32

	for _, qRow := range query {
		var best float32
		found := false

		for r := 0; r < numRows; r++ {
			offset := r * dim
			if isPaddingRow(docBytes, offset, dim) {
				continue
			}

			var dot float32
			for d := 0; d < dim; d++ {
				dot += qRow[d] * dequantizeByte(docBytes[offset+d], scale)
			}

			if !found || dot > best {
				best = dot
				found = true
			}
		}

		if found {
			total += best
		}
	}

	return total
}

// MaxSimFloat computes MaxSim directly over two unquantized float32 matrices, used for
// testing round-trip quantization error against the quantized path.
func MaxSimFloat(query, doc [][]float32) float32 {
	var total float32
	for _, qRow := range query {
		var best float32
		found := false
		for _, dRow := range doc {
			var dot float32
			for d := range qRow {
				dot += qRow[d] * dRow[d]
			}
			if !found || dot > best {
				best = dot
				found = true
			}
		}
		if found {
			total += best
		}
	}
	return total
}
