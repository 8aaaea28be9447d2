package boardcal

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/rdk/rimage/transform"
)

type matrixJSON struct {
	Shape struct {
		Row int `json:"row"`
		Col int `json:"col"`
	} `json:"shape"`
	Data []float64 `json:"data"`
}

func newMatrixJSON(rows, cols int, data []float64) matrixJSON {
	var m matrixJSON
	m.Shape.Row = rows
	m.Shape.Col = cols
	m.Data = data
	return m
}

// intrinsicsJSON is the on-disk calibration artifact.
type intrinsicsJSON struct {
	CameraMatrix matrixJSON `json:"camera_matrix"`
	DistCoeffs   matrixJSON `json:"dist_coeffs"`
	ImageSize    [2]int     `json:"image_size"`
	Checkerboard [2]int     `json:"checkerboard"`
	SquareSizeM  float64    `json:"square_size_m"`
	RMSError     float64    `json:"rms_error"`
}

// SaveIntrinsics writes ci as JSON. The file is written next to path and renamed into
// place, so path either keeps its old contents or holds the complete new artifact.
func SaveIntrinsics(path string, ci *CameraIntrinsics) (err error) {
	doc := intrinsicsJSON{
		CameraMatrix: newMatrixJSON(3, 3, ci.CameraMatrix().RawMatrix().Data),
		DistCoeffs:   newMatrixJSON(1, 5, ci.DistCoeffs()),
		ImageSize:    [2]int{ci.Pinhole.Width, ci.Pinhole.Height},
		Checkerboard: [2]int{ci.Geometry.Rows, ci.Geometry.Cols},
		SquareSizeM:  ci.SquareSize,
		RMSError:     ci.RMSError,
	}
	raw, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "cannot create %s", dir)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			utils.UncheckedError(os.Remove(tmp))
		}
	}()

	if _, err = f.Write(raw); err != nil {
		utils.UncheckedError(f.Close())
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadIntrinsics reads an artifact written by SaveIntrinsics.
func LoadIntrinsics(path string) (*CameraIntrinsics, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(ErrInputNotFound, "cannot read intrinsics %s: %v", path, err)
	}
	var doc intrinsicsJSON
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrapf(err, "bad intrinsics file %s", path)
	}
	k := doc.CameraMatrix
	if k.Shape.Row != 3 || k.Shape.Col != 3 || len(k.Data) != 9 {
		return nil, errors.Errorf("camera_matrix in %s must be 3x3", path)
	}
	if len(doc.DistCoeffs.Data) > 5 {
		return nil, errors.Errorf("dist_coeffs in %s has %d values, at most 5 supported", path, len(doc.DistCoeffs.Data))
	}

	ci := &CameraIntrinsics{
		Pinhole: transform.PinholeCameraIntrinsics{
			Width:  doc.ImageSize[0],
			Height: doc.ImageSize[1],
			Fx:     k.Data[0],
			Fy:     k.Data[4],
			Ppx:    k.Data[2],
			Ppy:    k.Data[5],
		},
		Distortion: distortionFromCoeffs(doc.DistCoeffs.Data),
		Geometry:   BoardGeometry{Rows: doc.Checkerboard[0], Cols: doc.Checkerboard[1]},
		SquareSize: doc.SquareSizeM,
		RMSError:   doc.RMSError,
	}
	if err := ci.Pinhole.CheckValid(); err != nil {
		return nil, errors.Wrapf(err, "invalid intrinsics in %s", path)
	}
	return ci, nil
}
