package boardcal

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/rdk/rimage/transform"
)

// CameraIntrinsics is a calibrated pinhole model with Brown-Conrady distortion, together
// with the board it was fitted from.
type CameraIntrinsics struct {
	Pinhole    transform.PinholeCameraIntrinsics
	Distortion transform.BrownConrady
	Geometry   BoardGeometry
	SquareSize float64
	RMSError   float64
}

// ImageSize is the resolution the model was calibrated at.
func (ci *CameraIntrinsics) ImageSize() image.Point {
	return image.Pt(ci.Pinhole.Width, ci.Pinhole.Height)
}

// CameraMatrix is the 3x3 K matrix.
func (ci *CameraIntrinsics) CameraMatrix() *mat.Dense {
	return ci.Pinhole.GetCameraMatrix()
}

// DistCoeffs returns the distortion in OpenCV order: k1, k2, p1, p2, k3.
func (ci *CameraIntrinsics) DistCoeffs() []float64 {
	d := ci.Distortion
	return []float64{d.RadialK1, d.RadialK2, d.TangentialP1, d.TangentialP2, d.RadialK3}
}

func distortionFromCoeffs(c []float64) transform.BrownConrady {
	var d transform.BrownConrady
	get := func(i int) float64 {
		if i < len(c) {
			return c[i]
		}
		return 0
	}
	d.RadialK1 = get(0)
	d.RadialK2 = get(1)
	d.TangentialP1 = get(2)
	d.TangentialP2 = get(3)
	d.RadialK3 = get(4)
	return d
}

type rotation [3][3]float64

func (m rotation) apply(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// rodriguesToMatrix converts an axis-angle rotation vector into a rotation matrix.
func rodriguesToMatrix(rv r3.Vector) rotation {
	theta := rv.Norm()
	if theta < 1e-12 {
		return rotation{
			{1, -rv.Z, rv.Y},
			{rv.Z, 1, -rv.X},
			{-rv.Y, rv.X, 1},
		}
	}
	k := rv.Mul(1 / theta)
	c, s := math.Cos(theta), math.Sin(theta)
	t := 1 - c
	return rotation{
		{c + t*k.X*k.X, t*k.X*k.Y - s*k.Z, t*k.X*k.Z + s*k.Y},
		{t*k.Y*k.X + s*k.Z, c + t*k.Y*k.Y, t*k.Y*k.Z - s*k.X},
		{t*k.Z*k.X - s*k.Y, t*k.Z*k.Y + s*k.X, c + t*k.Z*k.Z},
	}
}

// matrixToRodrigues is the inverse of rodriguesToMatrix for a proper rotation.
func matrixToRodrigues(m rotation) r3.Vector {
	rx := m[2][1] - m[1][2]
	ry := m[0][2] - m[2][0]
	rz := m[1][0] - m[0][1]
	s := math.Sqrt(rx*rx+ry*ry+rz*rz) / 2
	c := (m[0][0] + m[1][1] + m[2][2] - 1) / 2
	c = math.Max(-1, math.Min(1, c))
	theta := math.Acos(c)

	if s >= 1e-5 {
		f := theta / (2 * s)
		return r3.Vector{X: rx * f, Y: ry * f, Z: rz * f}
	}
	if c > 0 {
		return r3.Vector{}
	}

	// theta near pi: recover the axis from the diagonal of (R+I)/2.
	ax := math.Sqrt(math.Max((m[0][0]+1)/2, 0))
	ay := math.Sqrt(math.Max((m[1][1]+1)/2, 0))
	az := math.Sqrt(math.Max((m[2][2]+1)/2, 0))
	if m[0][1] < 0 {
		ay = -ay
	}
	if m[0][2] < 0 {
		az = -az
	}
	if math.Abs(ax) < math.Abs(ay) && math.Abs(ax) < math.Abs(az) && (m[1][2] > 0) != (ay*az > 0) {
		az = -az
	}
	axis := r3.Vector{X: ax, Y: ay, Z: az}
	n := axis.Norm()
	if n == 0 {
		return r3.Vector{}
	}
	return axis.Mul(theta / n)
}

// cameraModel is the parameter set the solver refines.
type cameraModel struct {
	fx, fy, cx, cy float64
	dist           transform.BrownConrady
}

// project maps a board point through a pose into distorted pixel coordinates.
func (cm *cameraModel) project(r rotation, t, p r3.Vector) r2.Point {
	c := r.apply(p).Add(t)
	x, y := c.X/c.Z, c.Y/c.Z
	xd, yd := cm.dist.Transform(x, y)
	return r2.Point{X: cm.fx*xd + cm.cx, Y: cm.fy*yd + cm.cy}
}

// undistortNormalized inverts the distortion on normalized coordinates by fixed-point
// iteration.
func undistortNormalized(d transform.BrownConrady, xd, yd float64) (float64, float64) {
	x, y := xd, yd
	for i := 0; i < 20; i++ {
		rr := x*x + y*y
		radial := 1 + ((d.RadialK3*rr+d.RadialK2)*rr+d.RadialK1)*rr
		if radial == 0 {
			break
		}
		dx := 2*d.TangentialP1*x*y + d.TangentialP2*(rr+2*x*x)
		dy := d.TangentialP1*(rr+2*y*y) + 2*d.TangentialP2*x*y
		x = (xd - dx) / radial
		y = (yd - dy) / radial
	}
	return x, y
}
