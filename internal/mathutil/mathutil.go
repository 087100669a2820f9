// Package mathutil holds the column-major 4x4 matrix and quaternion
// primitives the traversal and assembly stages need. The matrix routines
// keep the flat-[]float32, out-parameter idiom the engine's renderer used
// for its hot-loop math; TRS decomposition and quaternion composition are
// new here because a render engine only ever builds matrices forward, it
// never needs to recover TRS from one.
package mathutil

import "math"

// Identity resets a 4x4 matrix (flat slice) to the identity matrix.
// The matrix is stored in column-major order.
func Identity(m []float32) {
	for i := range m {
		m[i] = 0
	}
	m[0], m[5], m[10], m[15] = 1, 1, 1, 1
}

// Mul4 multiplies two 4x4 matrices and stores the result in out.
// Result: out = a * b. out must not alias a or b.
func Mul4(out, a, b []float32) {
	var buf [16]float32
	for i := 0; i < 4; i++ { // column of B
		for j := 0; j < 4; j++ { // row of A
			sum := float32(0)
			for k := 0; k < 4; k++ {
				sum += a[k*4+j] * b[i*4+k]
			}
			buf[i*4+j] = sum
		}
	}
	copy(out, buf[:])
}

// Invert4 computes the inverse of a 4x4 column-major matrix using the
// Laplace expansion (cofactor) method. If the matrix is singular the output
// is left unchanged and the function returns false.
func Invert4(out, m []float32) bool {
	s0 := m[0]*m[5] - m[4]*m[1]
	s1 := m[0]*m[6] - m[4]*m[2]
	s2 := m[0]*m[7] - m[4]*m[3]
	s3 := m[1]*m[6] - m[5]*m[2]
	s4 := m[1]*m[7] - m[5]*m[3]
	s5 := m[2]*m[7] - m[6]*m[3]

	c5 := m[10]*m[15] - m[14]*m[11]
	c4 := m[9]*m[15] - m[13]*m[11]
	c3 := m[9]*m[14] - m[13]*m[10]
	c2 := m[8]*m[15] - m[12]*m[11]
	c1 := m[8]*m[14] - m[12]*m[10]
	c0 := m[8]*m[13] - m[12]*m[9]

	det := s0*c5 - s1*c4 + s2*c3 + s3*c2 - s4*c1 + s5*c0
	if det == 0 {
		return false
	}
	invDet := 1.0 / det

	out[0] = (m[5]*c5 - m[6]*c4 + m[7]*c3) * invDet
	out[1] = (-m[1]*c5 + m[2]*c4 - m[3]*c3) * invDet
	out[2] = (m[13]*s5 - m[14]*s4 + m[15]*s3) * invDet
	out[3] = (-m[9]*s5 + m[10]*s4 - m[11]*s3) * invDet

	out[4] = (-m[4]*c5 + m[6]*c2 - m[7]*c1) * invDet
	out[5] = (m[0]*c5 - m[2]*c2 + m[3]*c1) * invDet
	out[6] = (-m[12]*s5 + m[14]*s2 - m[15]*s1) * invDet
	out[7] = (m[8]*s5 - m[10]*s2 + m[11]*s1) * invDet

	out[8] = (m[4]*c4 - m[5]*c2 + m[7]*c0) * invDet
	out[9] = (-m[0]*c4 + m[1]*c2 - m[3]*c0) * invDet
	out[10] = (m[12]*s4 - m[13]*s2 + m[15]*s0) * invDet
	out[11] = (-m[8]*s4 + m[9]*s2 - m[11]*s0) * invDet

	out[12] = (-m[4]*c3 + m[5]*c1 - m[6]*c0) * invDet
	out[13] = (m[0]*c3 - m[1]*c1 + m[2]*c0) * invDet
	out[14] = (-m[12]*s3 + m[13]*s1 - m[14]*s0) * invDet
	out[15] = (m[8]*s3 - m[9]*s1 + m[10]*s0) * invDet

	return true
}

// Transpose3x3Det returns the determinant of the upper-left 3x3 block of a
// column-major 4x4 matrix; used to detect reflections (negative scale) when
// decomposing TRS.
func Transpose3x3Det(m []float32) float32 {
	return m[0]*(m[5]*m[10]-m[6]*m[9]) -
		m[4]*(m[1]*m[10]-m[2]*m[9]) +
		m[8]*(m[1]*m[6]-m[2]*m[5])
}

// ComposeTRS builds a column-major 4x4 matrix out = T * R * S from a
// translation, a unit quaternion [x,y,z,w], and a scale vector.
func ComposeTRS(out []float32, translation [3]float32, rotation [4]float32, scale [3]float32) {
	var rot [16]float32
	QuatToMat4(rot[:], rotation)

	out[0] = rot[0] * scale[0]
	out[1] = rot[1] * scale[0]
	out[2] = rot[2] * scale[0]
	out[3] = 0

	out[4] = rot[4] * scale[1]
	out[5] = rot[5] * scale[1]
	out[6] = rot[6] * scale[1]
	out[7] = 0

	out[8] = rot[8] * scale[2]
	out[9] = rot[9] * scale[2]
	out[10] = rot[10] * scale[2]
	out[11] = 0

	out[12] = translation[0]
	out[13] = translation[1]
	out[14] = translation[2]
	out[15] = 1
}

// QuatToMat4 writes the column-major rotation matrix for a unit quaternion
// stored in glTF's [x, y, z, w] order.
func QuatToMat4(out []float32, q [4]float32) {
	x, y, z, w := q[0], q[1], q[2], q[3]
	x2, y2, z2 := x+x, y+y, z+z
	xx, xy, xz := x*x2, x*y2, x*z2
	yy, yz, zz := y*y2, y*z2, z*z2
	wx, wy, wz := w*x2, w*y2, w*z2

	Identity(out)
	out[0] = 1 - (yy + zz)
	out[1] = xy + wz
	out[2] = xz - wy

	out[4] = xy - wz
	out[5] = 1 - (xx + zz)
	out[6] = yz + wx

	out[8] = xz + wy
	out[9] = yz - wx
	out[10] = 1 - (xx + yy)
}

// NormalizeQuat returns q scaled to unit length, or the identity quaternion
// if q is degenerate (near-zero length).
func NormalizeQuat(q [4]float32) [4]float32 {
	lenSq := float64(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
	if lenSq < 1e-20 {
		return [4]float32{0, 0, 0, 1}
	}
	inv := float32(1.0 / math.Sqrt(lenSq))
	return [4]float32{q[0] * inv, q[1] * inv, q[2] * inv, q[3] * inv}
}

// MulQuat returns a * b, where quaternions are [x,y,z,w] and the product
// represents "apply b, then a" when both act on the same vector space.
func MulQuat(a, b [4]float32) [4]float32 {
	ax, ay, az, aw := a[0], a[1], a[2], a[3]
	bx, by, bz, bw := b[0], b[1], b[2], b[3]
	return [4]float32{
		aw*bx + ax*bw + ay*bz - az*by,
		aw*by - ax*bz + ay*bw + az*bx,
		aw*bz + ax*by - ay*bx + az*bw,
		aw*bw - ax*bx - ay*by - az*bz,
	}
}

// MulVec3 transforms a point by a column-major 4x4 matrix (w implicitly 1).
func MulVec3(m []float32, v [3]float32) [3]float32 {
	return [3]float32{
		m[0]*v[0] + m[4]*v[1] + m[8]*v[2] + m[12],
		m[1]*v[0] + m[5]*v[1] + m[9]*v[2] + m[13],
		m[2]*v[0] + m[6]*v[1] + m[10]*v[2] + m[14],
	}
}

// DecomposeTRS recovers translation, rotation (unit quaternion, [x,y,z,w])
// and scale from a column-major affine matrix. Returns ok=false when the
// matrix's linear part is singular (a zero-determinant upper-left 3x3
// block) — callers should fall back to carrying the raw matrix rather than
// trusting a decomposition that divided by a near-zero length.
func DecomposeTRS(m []float32) (translation [3]float32, rotation [4]float32, scale [3]float32, ok bool) {
	translation = [3]float32{m[12], m[13], m[14]}

	col0 := [3]float32{m[0], m[1], m[2]}
	col1 := [3]float32{m[4], m[5], m[6]}
	col2 := [3]float32{m[8], m[9], m[10]}

	sx := vecLen(col0)
	sy := vecLen(col1)
	sz := vecLen(col2)
	if sx < 1e-12 || sy < 1e-12 || sz < 1e-12 {
		return translation, [4]float32{0, 0, 0, 1}, [3]float32{1, 1, 1}, false
	}

	// A negative determinant means one axis is mirrored; fold that sign
	// into one scale component rather than leaving it in the rotation
	// matrix, where it would make the block non-orthogonal.
	det := Transpose3x3Det(m)
	if det < 0 {
		sx = -sx
	}

	var rot [16]float32
	Identity(rot[:])
	rot[0], rot[1], rot[2] = col0[0]/sx, col0[1]/sx, col0[2]/sx
	rot[4], rot[5], rot[6] = col1[0]/sy, col1[1]/sy, col1[2]/sy
	rot[8], rot[9], rot[10] = col2[0]/sz, col2[1]/sz, col2[2]/sz

	if !isOrthonormal(rot[:]) {
		return translation, [4]float32{0, 0, 0, 1}, [3]float32{1, 1, 1}, false
	}

	rotation = NormalizeQuat(mat4ToQuat(rot[:]))
	scale = [3]float32{sx, sy, sz}
	return translation, rotation, scale, true
}

func vecLen(v [3]float32) float32 {
	return float32(math.Sqrt(float64(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])))
}

// isOrthonormal checks the rotation block's columns are mutually
// perpendicular within a loose tolerance (DecomposeTRS has already divided
// each column by its length, so unit length is not re-checked); a matrix
// failing this almost certainly came from a non-uniform shear, which has
// no faithful quaternion representation.
func isOrthonormal(rot []float32) bool {
	const tol = 1e-3
	c0 := [3]float32{rot[0], rot[1], rot[2]}
	c1 := [3]float32{rot[4], rot[5], rot[6]}
	c2 := [3]float32{rot[8], rot[9], rot[10]}
	dot := func(a, b [3]float32) float32 { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }
	if math.Abs(float64(dot(c0, c1))) > tol || math.Abs(float64(dot(c0, c2))) > tol || math.Abs(float64(dot(c1, c2))) > tol {
		return false
	}
	return true
}

func mat4ToQuat(m []float32) [4]float32 {
	trace := m[0] + m[5] + m[10]
	if trace > 0 {
		s := float32(0.5 / math.Sqrt(float64(trace+1)))
		return [4]float32{
			(m[6] - m[9]) * s,
			(m[8] - m[2]) * s,
			(m[1] - m[4]) * s,
			0.25 / s,
		}
	}
	if m[0] > m[5] && m[0] > m[10] {
		s := float32(2.0 * math.Sqrt(float64(1+m[0]-m[5]-m[10])))
		return [4]float32{0.25 * s, (m[1] + m[4]) / s, (m[8] + m[2]) / s, (m[6] - m[9]) / s}
	}
	if m[5] > m[10] {
		s := float32(2.0 * math.Sqrt(float64(1+m[5]-m[0]-m[10])))
		return [4]float32{(m[1] + m[4]) / s, 0.25 * s, (m[6] + m[9]) / s, (m[8] - m[2]) / s}
	}
	s := float32(2.0 * math.Sqrt(float64(1+m[10]-m[0]-m[5])))
	return [4]float32{(m[8] + m[2]) / s, (m[6] + m[9]) / s, 0.25 * s, (m[1] - m[4]) / s}
}
