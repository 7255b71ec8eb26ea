package types

import "math"

// floatCmpEpsilon is the tolerance used by the Normalize helpers in this
// package when deciding whether a vector/quaternion length is degenerate.
const floatCmpEpsilon float32 = 1e-6

// Mat3 is a column-major 3x3 matrix.
type Mat3 [9]float32

// Mat4 is a column-major 4x4 matrix, laid out the same way as go-gl/mathgl's
// mgl32.Mat4 so camera math composes without extra conversions.
type Mat4 [16]float32

// Ident4 returns the 4x4 identity matrix.
func Ident4() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Mul4 multiplies two column-major 4x4 matrices (m * m2).
func (m Mat4) Mul4(m2 Mat4) Mat4 {
	var out Mat4
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += m[k*4+row] * m2[col*4+k]
			}
			out[col*4+row] = sum
		}
	}
	return out
}

// Mul4x1 transforms a Vec4 by this matrix.
func (m Mat4) Mul4x1(v Vec4) Vec4 {
	return Vec4{
		m[0]*v[0] + m[4]*v[1] + m[8]*v[2] + m[12]*v[3],
		m[1]*v[0] + m[5]*v[1] + m[9]*v[2] + m[13]*v[3],
		m[2]*v[0] + m[6]*v[1] + m[10]*v[2] + m[14]*v[3],
		m[3]*v[0] + m[7]*v[1] + m[11]*v[2] + m[15]*v[3],
	}
}

// Mul4x3 transforms a point by the upper 3x4 part of this matrix, treating
// it as an affine transform (w implicitly 1).
func (m Mat4) Mul4x3(v Vec3) Vec3 {
	r := m.Mul4x1(v.Vec4(1))
	return r.Vec3()
}

// Mul4x3Dir transforms a direction by the upper 3x3 part of this matrix
// (w implicitly 0, so translation does not apply).
func (m Mat4) Mul4x3Dir(v Vec3) Vec3 {
	r := m.Mul4x1(v.Vec4(0))
	return r.Vec3()
}

// Translate3D builds a translation matrix.
func Translate3D(t Vec3) Mat4 {
	m := Ident4()
	m[12], m[13], m[14] = t[0], t[1], t[2]
	return m
}

// Inv returns the inverse of m, or the identity matrix if m is singular.
func (m Mat4) Inv() Mat4 {
	// Cofactor expansion, adapted from the standard go-gl/mathgl mgl32
	// implementation used elsewhere in this codebase's transform math.
	a := [16]float32(m)

	sub00 := a[10]*a[15] - a[11]*a[14]
	sub01 := a[9]*a[15] - a[11]*a[13]
	sub02 := a[9]*a[14] - a[10]*a[13]
	sub03 := a[8]*a[15] - a[11]*a[12]
	sub04 := a[8]*a[14] - a[10]*a[12]
	sub05 := a[8]*a[13] - a[9]*a[12]
	sub06 := a[6]*a[15] - a[7]*a[14]
	sub07 := a[5]*a[15] - a[7]*a[13]
	sub08 := a[5]*a[14] - a[6]*a[13]
	sub09 := a[6]*a[11] - a[7]*a[10]
	sub10 := a[5]*a[11] - a[7]*a[9]
	sub11 := a[5]*a[10] - a[6]*a[9]
	sub12 := a[4]*a[15] - a[7]*a[12]
	sub13 := a[4]*a[14] - a[6]*a[12]
	sub14 := a[4]*a[11] - a[7]*a[8]
	sub15 := a[4]*a[10] - a[6]*a[8]
	sub16 := a[4]*a[13] - a[5]*a[12]
	sub17 := a[4]*a[9] - a[5]*a[8]

	det := a[0]*(a[5]*sub00-a[6]*sub01+a[7]*sub02) -
		a[1]*(a[4]*sub00-a[6]*sub03+a[7]*sub04) +
		a[2]*(a[4]*sub01-a[5]*sub03+a[7]*sub05) -
		a[3]*(a[4]*sub02-a[5]*sub04+a[6]*sub05)

	if det == 0 {
		return Ident4()
	}
	invDet := 1.0 / det

	var out Mat4
	out[0] = (a[5]*sub00 - a[6]*sub01 + a[7]*sub02) * invDet
	out[1] = -(a[1]*sub00 - a[2]*sub01 + a[3]*sub02) * invDet
	out[2] = (a[1]*sub06 - a[2]*sub07 + a[3]*sub08) * invDet
	out[3] = -(a[1]*sub09 - a[2]*sub10 + a[3]*sub11) * invDet

	out[4] = -(a[4]*sub00 - a[6]*sub03 + a[7]*sub04) * invDet
	out[5] = (a[0]*sub00 - a[2]*sub03 + a[3]*sub04) * invDet
	out[6] = -(a[0]*sub06 - a[2]*sub12 + a[3]*sub13) * invDet
	out[7] = (a[0]*sub09 - a[2]*sub14 + a[3]*sub15) * invDet

	out[8] = (a[4]*sub01 - a[5]*sub03 + a[7]*sub05) * invDet
	out[9] = -(a[0]*sub01 - a[1]*sub03 + a[3]*sub05) * invDet
	out[10] = (a[0]*sub07 - a[1]*sub12 + a[3]*sub16) * invDet
	out[11] = -(a[0]*sub10 - a[1]*sub14 + a[3]*sub17) * invDet

	out[12] = -(a[4]*sub02 - a[5]*sub04 + a[6]*sub05) * invDet
	out[13] = (a[0]*sub02 - a[1]*sub04 + a[2]*sub05) * invDet
	out[14] = -(a[0]*sub08 - a[1]*sub13 + a[2]*sub16) * invDet
	out[15] = (a[0]*sub11 - a[1]*sub15 + a[2]*sub17) * invDet

	return out
}

// Perspective4 builds a right-handed perspective projection matrix. fovY is
// in radians.
func Perspective4(fovY, aspect, near, far float32) Mat4 {
	f := float32(1.0 / math.Tan(float64(fovY)/2.0))
	nf := 1.0 / (near - far)
	return Mat4{
		f / aspect, 0, 0, 0,
		0, f, 0, 0,
		0, 0, (far + near) * nf, -1,
		0, 0, 2 * far * near * nf, 0,
	}
}

// LookAtV builds a right-handed view matrix.
func LookAtV(eye, center, up Vec3) Mat4 {
	f := center.Sub(eye).Normalize()
	s := f.Cross(up).Normalize()
	u := s.Cross(f)

	return Mat4{
		s[0], u[0], -f[0], 0,
		s[1], u[1], -f[1], 0,
		s[2], u[2], -f[2], 0,
		-s.Dot(eye), -u.Dot(eye), f.Dot(eye), 1,
	}
}
