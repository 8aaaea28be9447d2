package boardcal

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/rdk/rimage/transform"
)

const (
	// MinCalibrationSamples is the fewest detected views the solver accepts.
	MinCalibrationSamples = 3
	// RecommendedCalibrationSamples is the count below which a result is low confidence.
	RecommendedCalibrationSamples = 20

	numIntrinsicParams = 9
	numPoseParams      = 6
	maxSolverIters     = 100
)

// SolveIntrinsics fits a pinhole camera with Brown-Conrady distortion to the detected views
// by minimizing the reprojection error over the intrinsics and every view's pose.
func SolveIntrinsics(
	samples []CalibrationSample,
	g BoardGeometry,
	squareSize float64,
	imageSize image.Point,
) (*CameraIntrinsics, error) {
	if len(samples) < MinCalibrationSamples {
		return nil, errors.Wrapf(ErrInsufficientSamples,
			"only found corners in %d images for geometry %v; need at least %d, ideally %d+",
			len(samples), g, MinCalibrationSamples, RecommendedCalibrationSamples)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if squareSize <= 0 {
		return nil, errors.Errorf("square size must be positive, got %v", squareSize)
	}
	if imageSize.X <= 0 || imageSize.Y <= 0 {
		return nil, errors.Errorf("bad image size %v", imageSize)
	}
	for _, s := range samples {
		if len(s.Corners) != g.NumCorners() {
			return nil, errors.Errorf("%s has %d corners, expected %d for %v", s.Path, len(s.Corners), g.NumCorners(), g)
		}
	}

	obj := ObjectPoints(g, squareSize)
	planar := make([]r2.Point, len(obj))
	for i, p := range obj {
		planar[i] = r2.Point{X: p.X, Y: p.Y}
	}

	homographies := make([]*mat.Dense, len(samples))
	for i, s := range samples {
		h, err := EstimateHomography(planar, s.Corners)
		if err != nil {
			return nil, errors.Wrapf(err, "view %s", s.Path)
		}
		homographies[i] = h
	}

	cm := initCameraModel(homographies, imageSize)

	x0 := make([]float64, numIntrinsicParams+numPoseParams*len(samples))
	x0[0], x0[1], x0[2], x0[3] = cm.fx, cm.fy, cm.cx, cm.cy
	for i, h := range homographies {
		rv, t := poseFromHomography(h, cm)
		base := numIntrinsicParams + numPoseParams*i
		x0[base], x0[base+1], x0[base+2] = rv.X, rv.Y, rv.Z
		x0[base+3], x0[base+4], x0[base+5] = t.X, t.Y, t.Z
	}

	numPoints := len(samples) * len(obj)
	f := func(dst, x []float64) {
		model := modelFromParams(x)
		k := 0
		for v, s := range samples {
			base := numIntrinsicParams + numPoseParams*v
			rot := rodriguesToMatrix(r3.Vector{X: x[base], Y: x[base+1], Z: x[base+2]})
			t := r3.Vector{X: x[base+3], Y: x[base+4], Z: x[base+5]}
			for j, p := range obj {
				proj := model.project(rot, t, p)
				dst[k] = proj.X - s.Corners[j].X
				dst[k+1] = proj.Y - s.Corners[j].Y
				k += 2
			}
		}
	}

	res := levenbergMarquardt(f, 2*numPoints, x0, maxSolverIters)
	if !allFinite(res.x) {
		return nil, errors.New("calibration did not converge to a finite solution")
	}
	rms := math.Sqrt(res.cost / float64(numPoints))
	if math.IsNaN(rms) || math.IsInf(rms, 0) {
		return nil, errors.New("calibration produced a non-finite reprojection error")
	}

	model := modelFromParams(res.x)
	return &CameraIntrinsics{
		Pinhole: transform.PinholeCameraIntrinsics{
			Width:  imageSize.X,
			Height: imageSize.Y,
			Fx:     model.fx,
			Fy:     model.fy,
			Ppx:    model.cx,
			Ppy:    model.cy,
		},
		Distortion: model.dist,
		Geometry:   g,
		SquareSize: squareSize,
		RMSError:   rms,
	}, nil
}

func modelFromParams(x []float64) *cameraModel {
	return &cameraModel{
		fx: x[0], fy: x[1], cx: x[2], cy: x[3],
		dist: distortionFromCoeffs(x[4:9]),
	}
}

// initCameraModel estimates focal lengths from the homographies with the principal point
// fixed at the image center and no distortion.
func initCameraModel(hs []*mat.Dense, size image.Point) *cameraModel {
	cx := float64(size.X-1) / 2
	cy := float64(size.Y-1) / 2

	// Each view gives two linear constraints on (1/fx², 1/fy²).
	a := mat.NewDense(2*len(hs), 2, nil)
	b := mat.NewVecDense(2*len(hs), nil)
	for i, h := range hs {
		col := func(c int) r3.Vector {
			hz := h.At(2, c)
			return r3.Vector{X: h.At(0, c) - cx*hz, Y: h.At(1, c) - cy*hz, Z: hz}
		}
		h1, h2 := col(0), col(1)
		scale := math.Sqrt(h1.Norm() * h2.Norm())
		if scale == 0 {
			continue
		}
		h1, h2 = h1.Mul(1/scale), h2.Mul(1/scale)

		a.Set(2*i, 0, h1.X*h2.X)
		a.Set(2*i, 1, h1.Y*h2.Y)
		b.SetVec(2*i, -h1.Z*h2.Z)
		a.Set(2*i+1, 0, h1.X*h1.X-h2.X*h2.X)
		a.Set(2*i+1, 1, h1.Y*h1.Y-h2.Y*h2.Y)
		b.SetVec(2*i+1, h2.Z*h2.Z-h1.Z*h1.Z)
	}

	fallback := math.Max(float64(size.X), float64(size.Y))
	fx, fy := fallback, fallback

	var sol mat.VecDense
	if err := sol.SolveVec(a, b); err == nil {
		ia, ib := sol.AtVec(0), sol.AtVec(1)
		if ia > 0 && ib > 0 {
			fx, fy = 1/math.Sqrt(ia), 1/math.Sqrt(ib)
		}
	}
	return &cameraModel{fx: fx, fy: fy, cx: cx, cy: cy}
}

// poseFromHomography decomposes H = K [r1 r2 t] into a rotation vector and translation,
// with the board in front of the camera.
func poseFromHomography(h *mat.Dense, cm *cameraModel) (r3.Vector, r3.Vector) {
	col := func(c int) r3.Vector {
		hz := h.At(2, c)
		return r3.Vector{X: (h.At(0, c) - cm.cx*hz) / cm.fx, Y: (h.At(1, c) - cm.cy*hz) / cm.fy, Z: hz}
	}
	a1, a2, a3 := col(0), col(1), col(2)
	lambda := 2 / (a1.Norm() + a2.Norm())
	if a3.Z*lambda < 0 {
		lambda = -lambda
	}
	r1 := a1.Mul(lambda)
	r2v := a2.Mul(lambda)
	t := a3.Mul(lambda)
	r3v := r1.Cross(r2v)

	approx := mat.NewDense(3, 3, []float64{
		r1.X, r2v.X, r3v.X,
		r1.Y, r2v.Y, r3v.Y,
		r1.Z, r2v.Z, r3v.Z,
	})
	return matrixToRodrigues(nearestRotation(approx)), t
}

// nearestRotation projects m onto SO(3) in the Frobenius sense.
func nearestRotation(m *mat.Dense) rotation {
	var svd mat.SVD
	var out rotation
	if ok := svd.Factorize(m, mat.SVDFull); !ok {
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				out[i][j] = m.At(i, j)
			}
		}
		return out
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	var r mat.Dense
	r.Mul(&u, v.T())
	if mat.Det(&r) < 0 {
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		r.Mul(&u, v.T())
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = r.At(i, j)
		}
	}
	return out
}
