package protocol

import "github.com/go-gl/mathgl/mgl64"

// DragTransform is a rigid-body transform (rotation then translation)
// describing the pose of a dragging input device in simulation space.
// On the wire it is the translation followed by the rotation quaternion
// as x, y, z, w. The quaternion must be unit length.
type DragTransform struct {
	Translation mgl64.Vec3
	Rotation    mgl64.Quat
}

const dragTransformWireSize = 7 * 8

// IdentityDragTransform returns the transform that maps every point to
// itself.
func IdentityDragTransform() DragTransform {
	return DragTransform{Rotation: mgl64.QuatIdent()}
}

// Transform maps p from device-local space into simulation space.
func (t DragTransform) Transform(p mgl64.Vec3) mgl64.Vec3 {
	return t.Rotation.Rotate(p).Add(t.Translation)
}

// InverseTransform maps p from simulation space into device-local
// space, undoing Transform.
func (t DragTransform) InverseTransform(p mgl64.Vec3) mgl64.Vec3 {
	return t.Rotation.Inverse().Rotate(p.Sub(t.Translation))
}

func (t DragTransform) append(b []byte) []byte {
	b = appendF64(b, t.Translation[0])
	b = appendF64(b, t.Translation[1])
	b = appendF64(b, t.Translation[2])
	b = appendF64(b, t.Rotation.V[0])
	b = appendF64(b, t.Rotation.V[1])
	b = appendF64(b, t.Rotation.V[2])
	b = appendF64(b, t.Rotation.W)
	return b
}

func (t *DragTransform) read(r *reader) {
	t.Translation[0] = r.f64()
	t.Translation[1] = r.f64()
	t.Translation[2] = r.f64()
	t.Rotation.V[0] = r.f64()
	t.Rotation.V[1] = r.f64()
	t.Rotation.V[2] = r.f64()
	t.Rotation.W = r.f64()
}
